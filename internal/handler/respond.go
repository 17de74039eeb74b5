package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/requestid"
	"github.com/aryan0dhankhar/bizdesk/internal/security/middleware"
)

// maxJSONBody bounds request bodies outside of attachment uploads
const maxJSONBody = 1 << 20

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListResponse wraps one page of a collection
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newList[T any](items []T, total int, p domain.Page) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps domain errors to an HTTP status and a client-safe message
func statusFor(err error) (int, string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrSubscriptionInactive):
		return http.StatusPaymentRequired, "subscription inactive"
	case errors.Is(err, domain.ErrSeatLimitReached):
		return http.StatusPaymentRequired, "seat limit reached"
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway, "upstream provider unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError answers with the mapped status; server faults are logged with
// the request id and never echoed to the client
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", requestid.From(r.Context())),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// decodeJSON reads a JSON body into dst; an empty body is an error
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Invalid("body", "is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Invalid("body", "is too large")
		}
		return domain.Invalid("body", "invalid JSON")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for actions whose body may be omitted
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	err := decodeJSON(w, r, dst)
	var ve *domain.ValidationError
	if errors.As(err, &ve) && ve.Message == "is required" {
		return nil
	}
	return err
}

// membership returns the caller's membership set by RequireMembership
func membership(r *http.Request) (*domain.Membership, error) {
	m := middleware.GetMembershipFromContext(r.Context())
	if m == nil {
		return nil, domain.ErrUnauthenticated
	}
	return m, nil
}

func callerID(r *http.Request) (string, error) {
	id := middleware.UserIDFromContext(r.Context())
	if id == "" {
		return "", domain.ErrUnauthenticated
	}
	return id, nil
}

// pageFrom reads limit and offset query parameters
func pageFrom(r *http.Request) (domain.Page, error) {
	q := r.URL.Query()
	var p domain.Page
	var err error
	if v := q.Get("limit"); v != "" {
		if p.Limit, err = strconv.Atoi(v); err != nil {
			return p, domain.Invalid("limit", "must be an integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if p.Offset, err = strconv.Atoi(v); err != nil {
			return p, domain.Invalid("offset", "must be an integer")
		}
	}
	return p.Normalize(), nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp
func parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, domain.Invalid(field, "must be a date (YYYY-MM-DD)")
	}
	return t.UTC(), nil
}

// optionalDate parses v when set
func optionalDate(field, v string) (*time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	t, err := parseDate(field, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// dateRange reads the from/to query parameters
func dateRange(r *http.Request) (from, to *time.Time, err error) {
	q := r.URL.Query()
	if from, err = optionalDate("from", q.Get("from")); err != nil {
		return nil, nil, err
	}
	if to, err = optionalDate("to", q.Get("to")); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// pageAll describes an unpaginated collection of n items
func pageAll(n int) domain.Page {
	return domain.Page{Limit: n}
}
