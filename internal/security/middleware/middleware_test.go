package middleware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/requestid"
	"github.com/aryan0dhankhar/bizdesk/internal/security/auth"
	"github.com/aryan0dhankhar/bizdesk/internal/security/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestJWTMiddleware(t *testing.T) {
	tm := auth.NewTokenManager("secret", "")
	token, err := tm.GenerateToken("user-1", "a@example.com", "Ann", time.Hour)
	require.NoError(t, err)

	var seen string
	h := JWTMiddleware(tm, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
		user   string
	}{
		{"public path", "/api/auth/login", "", http.StatusOK, ""},
		{"missing header", "/api/organizations", "", http.StatusUnauthorized, ""},
		{"malformed header", "/api/organizations", "Token abc", http.StatusUnauthorized, ""},
		{"bad token", "/api/organizations", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid", "/api/organizations", "Bearer " + token, http.StatusOK, "user-1"},
		{"websocket query token", "/ws/organizations/o1/events?token=" + token, "", http.StatusOK, "user-1"},
		{"websocket without token", "/ws/organizations/o1/events", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.user, seen)
		})
	}
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var fromCtx string
	h := RequestID(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = requestid.From(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, fromCtx)
	assert.Equal(t, fromCtx, rec.Header().Get(requestid.Header))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestid.Header, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", fromCtx)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/organizations", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/organizations", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRateLimitMiddleware_AuthEndpointsStrict(t *testing.T) {
	limiter := ratelimit.NewLimiter(1000, 1000)
	defer limiter.Stop()
	h := RateLimitMiddleware(limiter, 2, nil, testLogger())(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// another client keeps its own budget
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_PerPrincipal(t *testing.T) {
	limiter := ratelimit.NewLimiter(0.001, 1)
	defer limiter.Stop()
	h := RateLimitMiddleware(limiter, 0, nil, testLogger())(okHandler)

	call := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/organizations", nil)
		claims := &auth.Claims{}
		claims.Subject = user
		req = req.WithContext(WithClaims(req.Context(), claims))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, call("u1"))
	assert.Equal(t, http.StatusTooManyRequests, call("u1"))
	assert.Equal(t, http.StatusOK, call("u2"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	limiter := ratelimit.NewLimiter(1000, 1000)
	defer limiter.Stop()
	h := RateLimitMiddleware(limiter, 2, nil, testLogger())(okHandler)

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestRateLimitMiddleware_TrustedProxyForwardsClient(t *testing.T) {
	limiter := ratelimit.NewLimiter(1000, 1000)
	defer limiter.Stop()
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	h := RateLimitMiddleware(limiter, 1, proxies, testLogger())(okHandler)

	call := func(xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, call("198.51.100.1"))
	assert.Equal(t, http.StatusOK, call("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, call("198.51.100.1"))
	// a spoofed left-most hop does not move the client behind the proxy
	assert.Equal(t, http.StatusTooManyRequests, call("203.0.113.9, 198.51.100.2"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	var none TrustedProxies
	assert.Equal(t, "192.0.2.1", none.ClientIP(req))

	proxies, err := ParseTrustedProxies([]string{"192.0.2.1", "10.0.0.0/8"})
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", proxies.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 198.51.100.4, 10.0.0.1")
	assert.Equal(t, "198.51.100.4", proxies.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.1")
	assert.Equal(t, "10.0.0.3", proxies.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "not-an-ip, 10.0.0.1")
	assert.Equal(t, "10.0.0.1", proxies.ClientIP(req))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "192.0.2.1", proxies.ClientIP(req))
}

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{" 10.0.0.0/8 ", "", "::1"})
	require.NoError(t, err)
	assert.Len(t, proxies, 2)

	_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
}

type countingMembershipRepo struct {
	calls  atomic.Int32
	member map[string]*domain.Membership
}

func (r *countingMembershipRepo) Get(_ context.Context, orgID, userID string) (*domain.Membership, error) {
	r.calls.Add(1)
	if m, ok := r.member[orgID+"/"+userID]; ok {
		return m, nil
	}
	return nil, domain.ErrNotFound
}

func TestRequireMembership(t *testing.T) {
	repo := &countingMembershipRepo{member: map[string]*domain.Membership{
		"org-1/user-1": {OrganizationID: "org-1", UserID: "user-1", Role: domain.RoleAdmin},
	}}
	resolver := NewMembershipResolver(repo, time.Minute, nil, testLogger())

	var role domain.Role
	mux := http.NewServeMux()
	mux.Handle("GET /api/organizations/{orgId}", resolver.RequireMembership(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role = GetMembershipFromContext(r.Context()).Role
	})))

	call := func(path, user string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if user != "" {
			claims := &auth.Claims{}
			claims.Subject = user
			req = req.WithContext(WithClaims(req.Context(), claims))
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("/api/organizations/org-1", "user-1"))
	assert.Equal(t, domain.RoleAdmin, role)
	assert.Equal(t, http.StatusOK, call("/api/organizations/org-1", "user-1"))
	assert.Equal(t, int32(1), repo.calls.Load(), "second lookup should hit the cache")

	assert.Equal(t, http.StatusNotFound, call("/api/organizations/org-2", "user-1"))
	assert.Equal(t, http.StatusUnauthorized, call("/api/organizations/org-1", ""))

	resolver.InvalidateOrg("org-1")
	assert.Equal(t, http.StatusOK, call("/api/organizations/org-1", "user-1"))
	assert.Equal(t, int32(3), repo.calls.Load())
}

func TestValidateJSONContentType(t *testing.T) {
	h := ValidateJSONContentType(testLogger())(okHandler)

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		want        int
	}{
		{"get ignored", http.MethodGet, "/api/organizations", "", "", http.StatusOK},
		{"empty post", http.MethodPost, "/api/organizations/o/invoices/i/send", "", "", http.StatusOK},
		{"json", http.MethodPost, "/api/organizations", "application/json; charset=utf-8", "{}", http.StatusOK},
		{"text", http.MethodPost, "/api/organizations", "text/plain", "x", http.StatusUnsupportedMediaType},
		{"multipart attachments", http.MethodPost, "/api/organizations/o/attachments", "multipart/form-data; boundary=x", "x", http.StatusOK},
		{"multipart elsewhere", http.MethodPost, "/api/organizations/o/clients", "multipart/form-data; boundary=x", "x", http.StatusUnsupportedMediaType},
		{"webhook", http.MethodPost, "/api/billing/webhook", "text/plain", "x", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSanitizeInputs(t *testing.T) {
	h := SanitizeInputs(testLogger())(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x?q=acme%20corp", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x?q=a%00b", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	Chain(okHandler, mw("a"), mw("b"), mw("c")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}
