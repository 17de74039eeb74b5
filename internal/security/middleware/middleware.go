package middleware

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/requestid"
	"github.com/aryan0dhankhar/bizdesk/internal/security/audit"
	"github.com/aryan0dhankhar/bizdesk/internal/security/auth"
	"github.com/aryan0dhankhar/bizdesk/internal/security/ratelimit"
	"github.com/aryan0dhankhar/bizdesk/pkg/cache"
)

type ClaimsContextKey struct{}
type MembershipContextKey struct{}

// publicPaths never require a bearer token
var publicPaths = map[string]bool{
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/api/auth/signup":     true,
	"/api/auth/login":      true,
	"/api/auth/refresh":    true,
	"/api/auth/recover":    true,
	"/api/auth/callback":   true,
	"/api/billing/webhook": true,
	"/api/plans":           true,
}

// IsPublic reports whether path is served without authentication
func IsPublic(path string) bool {
	return publicPaths[path]
}

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack passes websocket upgrades through to the underlying connection
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// RequestID attaches a request ID to the context and response headers for traceability
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestid.Header)
			if reqID == "" || len(reqID) > 64 {
				reqID = requestid.New()
			}
			w.Header().Set(requestid.Header, reqID)

			ctx := requestid.With(r.Context(), reqID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rec, r.WithContext(ctx))

			log.Info("request completed",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// CORS honors the configured origins and answers preflight requests
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if OriginAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, OPTIONS, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OriginAllowed reports whether origin is in the allow list ("*" matches any)
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// JWTMiddleware verifies the bearer token on every non-public path. WebSocket
// paths take the token from the "token" query parameter since browsers
// cannot set headers on the upgrade request.
func JWTMiddleware(tm *auth.TokenManager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublic(r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			var tokenString string
			if strings.HasPrefix(r.URL.Path, "/ws/") {
				tokenString = r.URL.Query().Get("token")
				if tokenString == "" {
					writeError(w, http.StatusUnauthorized, "missing auth")
					return
				}
			} else {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					writeError(w, http.StatusUnauthorized, "missing auth")
					return
				}
				var err error
				tokenString, err = auth.ExtractToken(authHeader)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "invalid auth")
					return
				}
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				log.Debug("token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware applies the per-principal bucket, and a strict per-IP
// bucket on the credential endpoints under /api/auth/. Client addresses are
// resolved through proxies.
func RateLimitMiddleware(limiter *ratelimit.Limiter, authPerMinute int, proxies TrustedProxies, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/readyz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}

			ip := proxies.ClientIP(r)
			if strings.HasPrefix(r.URL.Path, "/api/auth/") && authPerMinute > 0 {
				if !limiter.AllowStrict(ip, authPerMinute) {
					log.Warn("auth rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path))
					writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
					return
				}
			}

			key := "ip:" + ip
			if c := GetClaimsFromContext(r.Context()); c != nil {
				key = "user:" + c.UserID()
			}
			if !limiter.Allow(key) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MembershipRepository is the lookup the resolver needs
type MembershipRepository interface {
	Get(ctx context.Context, orgID, userID string) (*domain.Membership, error)
}

// MembershipResolver looks up the caller's membership with a short-lived L1 cache
type MembershipResolver struct {
	repo  MembershipRepository
	cache *cache.Cache[*domain.Membership]
	audit *audit.Logger
	log   *slog.Logger
}

// NewMembershipResolver creates a resolver caching hits for ttl
func NewMembershipResolver(repo MembershipRepository, ttl time.Duration, auditLog *audit.Logger, log *slog.Logger) *MembershipResolver {
	if log == nil {
		log = slog.Default()
	}
	return &MembershipResolver{
		repo:  repo,
		cache: cache.New[*domain.Membership](ttl),
		audit: auditLog,
		log:   log,
	}
}

func membershipKey(orgID, userID string) string {
	return orgID + ":" + userID
}

// Resolve returns the membership of userID in orgID
func (mr *MembershipResolver) Resolve(ctx context.Context, orgID, userID string) (*domain.Membership, error) {
	key := membershipKey(orgID, userID)
	if m, ok := mr.cache.Get(key); ok {
		return m, nil
	}
	m, err := mr.repo.Get(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	mr.cache.Set(key, m)
	return m, nil
}

// Invalidate drops the cached membership of one user
func (mr *MembershipResolver) Invalidate(orgID, userID string) {
	mr.cache.Delete(membershipKey(orgID, userID))
}

// InvalidateOrg drops every cached membership of an organization
func (mr *MembershipResolver) InvalidateOrg(orgID string) {
	mr.cache.Invalidate(orgID + ":")
}

// Prune evicts expired entries
func (mr *MembershipResolver) Prune() int {
	return mr.cache.Prune()
}

// RequireMembership resolves the {orgId} path value against the caller and
// stores the membership in the context. Non-members get 404 so organization
// ids cannot be probed.
func (mr *MembershipResolver) RequireMembership(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaimsFromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "missing auth")
			return
		}
		orgID := r.PathValue("orgId")
		if orgID == "" {
			writeError(w, http.StatusNotFound, "organization not found")
			return
		}

		m, err := mr.Resolve(r.Context(), orgID, claims.UserID())
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				if mr.audit != nil {
					mr.audit.LogDenied(r.Context(), orgID, claims.UserID(), r.Method, r.URL.Path, "not a member")
				}
				writeError(w, http.StatusNotFound, "organization not found")
				return
			}
			mr.log.Error("membership lookup failed",
				slog.String("org_id", orgID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		ctx := context.WithValue(r.Context(), MembershipContextKey{}, m)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Chain applies middlewares so that the first one listed runs outermost
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(ClaimsContextKey{}).(*auth.Claims); ok {
		return c
	}
	return nil
}

// UserIDFromContext returns the authenticated subject or ""
func UserIDFromContext(ctx context.Context) string {
	if c := GetClaimsFromContext(ctx); c != nil {
		return c.UserID()
	}
	return ""
}

func GetMembershipFromContext(ctx context.Context) *domain.Membership {
	if m, ok := ctx.Value(MembershipContextKey{}).(*domain.Membership); ok {
		return m
	}
	return nil
}

// WithClaims stores claims in ctx
func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey{}, c)
}

// WithMembership stores m in ctx
func WithMembership(ctx context.Context, m *domain.Membership) context.Context {
	return context.WithValue(ctx, MembershipContextKey{}, m)
}
