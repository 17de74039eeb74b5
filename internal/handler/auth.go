package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/security/auth"
	"github.com/aryan0dhankhar/bizdesk/internal/security/middleware"
	"github.com/aryan0dhankhar/bizdesk/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// SignUpRequest represents a registration request
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// LoginRequest represents a password login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries the refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// CallbackRequest carries the tokens returned by an OAuth or magic-link redirect
type CallbackRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RecoverRequest asks for a password reset email
type RecoverRequest struct {
	Email string `json:"email"`
}

// SignUp handles POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.authService.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if result.ConfirmationRequired {
		writeJSON(w, http.StatusAccepted, result)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Refresh handles POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, r, h.logger, domain.ErrUnauthenticated)
		return
	}
	if err := h.authService.Logout(r.Context(), token); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Callback handles POST /api/auth/callback
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.authService.Callback(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Recover handles POST /api/auth/recover. The answer is the same whether or
// not the address is registered.
func (h *AuthHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.authService.Recover(r.Context(), req.Email); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "if the address is registered a reset link has been sent"})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, h.logger, domain.ErrUnauthenticated)
		return
	}

	profile, err := h.authService.Me(r.Context(), claims)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
