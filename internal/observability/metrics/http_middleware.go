package metrics

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"
)

type routeKey struct{}

// route is filled in by RecordRoute once the mux has matched a pattern
type route struct {
	pattern string
}

// HTTPMetricsMiddleware instruments requests with Prometheus metrics. Requests
// are labeled by the matched route pattern so path ids do not explode the
// label cardinality; unmatched requests are labeled "unmatched".
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rt := &route{}
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), routeKey{}, rt)))

		label := rt.pattern
		if label == "" {
			label = "unmatched"
		}
		ObserveHTTPRequest(r.Method, label, strconv.Itoa(ww.status), time.Since(start))
	})
}

// RecordRoute wraps a ServeMux and reports the pattern it matched back to
// HTTPMetricsMiddleware
func RecordRoute(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if rt, ok := r.Context().Value(routeKey{}).(*route); ok {
			rt.pattern = r.Pattern
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
