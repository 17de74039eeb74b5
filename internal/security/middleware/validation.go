package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"unicode"
)

// ValidateJSONContentType ensures POST/PUT/PATCH bodies are JSON. Paths ending
// in /attachments accept multipart uploads and the billing webhook accepts
// any body since its signature covers the raw bytes.
func ValidateJSONContentType(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}
			// bodiless actions like /send or /cancel
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if r.URL.Path == "/api/billing/webhook" {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err == nil && strings.HasSuffix(r.URL.Path, "/attachments") && mediaType == "multipart/form-data" {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil || mediaType != "application/json" {
				log.Warn("invalid content type",
					slog.String("path", r.URL.Path),
					slog.String("content_type", r.Header.Get("Content-Type")),
					slog.String("method", r.Method),
				)
				writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SanitizeInputs rejects control characters in query values and traversal
// sequences in the path
func SanitizeInputs(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for key, values := range r.URL.Query() {
				for _, val := range values {
					if strings.IndexFunc(val, unicode.IsControl) >= 0 {
						log.Warn("suspicious input detected",
							slog.String("path", r.URL.Path),
							slog.String("param", key),
						)
						writeError(w, http.StatusBadRequest, "invalid input: control characters")
						return
					}
				}
			}

			if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "//") {
				log.Warn("suspicious path pattern detected", slog.String("path", r.URL.Path))
				writeError(w, http.StatusBadRequest, "invalid path")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
