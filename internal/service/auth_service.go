package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/featureflags"
	"github.com/aryan0dhankhar/bizdesk/internal/security/auth"
)

// MinPasswordLength is checked before credentials reach the provider
const MinPasswordLength = 8

// AuthService handles authentication operations. Credentials are verified by
// the hosted identity provider; this service keeps the local profile in sync.
type AuthService struct {
	idp    domain.IdentityProvider
	users  domain.UserRepository
	orgs   domain.OrganizationRepository
	tokens *auth.TokenManager
	flags  *featureflags.Set
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	idp domain.IdentityProvider,
	users domain.UserRepository,
	orgs domain.OrganizationRepository,
	tokens *auth.TokenManager,
	flags *featureflags.Set,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		idp:    idp,
		users:  users,
		orgs:   orgs,
		tokens: tokens,
		flags:  flags,
		logger: logger,
		now:    time.Now,
	}
}

// AuthResult is returned by sign-up, login, refresh and callback
type AuthResult struct {
	AccessToken          string                         `json:"accessToken,omitempty"`
	RefreshToken         string                         `json:"refreshToken,omitempty"`
	ExpiresIn            int                            `json:"expiresIn,omitempty"`
	TokenType            string                         `json:"tokenType,omitempty"`
	ConfirmationRequired bool                           `json:"confirmationRequired,omitempty"`
	User                 *domain.User                   `json:"user,omitempty"`
	Organizations        []*domain.OrganizationWithRole `json:"organizations,omitempty"`
}

// Profile is the caller's user record and organization memberships
type Profile struct {
	User          *domain.User                   `json:"user"`
	Organizations []*domain.OrganizationWithRole `json:"organizations"`
}

func validateCredentials(email, password string) (string, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return "", domain.Invalid("email", "is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", domain.Invalid("email", "is not a valid address")
	}
	if len(password) < MinPasswordLength {
		return "", domain.Invalid("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	return email, nil
}

// SignUp registers a new identity. When the provider requires email
// confirmation no session is issued and ConfirmationRequired is set.
func (s *AuthService) SignUp(ctx context.Context, email, password, fullName string) (*AuthResult, error) {
	if !s.flags.Enabled(featureflags.PublicSignup) {
		return nil, fmt.Errorf("public signup is disabled: %w", domain.ErrForbidden)
	}
	email, err := validateCredentials(email, password)
	if err != nil {
		return nil, err
	}
	fullName = strings.TrimSpace(fullName)
	if len(fullName) > 120 {
		return nil, domain.Invalid("fullName", "must be at most 120 characters")
	}

	identity, session, err := s.idp.SignUp(ctx, email, password, fullName)
	if err != nil {
		return nil, err
	}
	if session == nil {
		s.logger.Info("signup pending confirmation", slog.String("email", email))
		return &AuthResult{ConfirmationRequired: true}, nil
	}
	if identity == nil {
		identity = &session.Identity
	}

	user, err := s.syncUser(ctx, identity, false)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user signed up", slog.String("user_id", user.ID))
	return sessionResult(session, user, nil), nil
}

// Login authenticates against the provider and returns its session
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.Invalid("", "email and password are required")
	}

	session, err := s.idp.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			s.logger.Info("login failed", slog.String("email", email))
		}
		return nil, err
	}

	user, err := s.syncUser(ctx, &session.Identity, true)
	if err != nil {
		return nil, err
	}
	orgs, err := s.orgs.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return sessionResult(session, user, orgs), nil
}

// Refresh exchanges a refresh token for a new session
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, domain.Invalid("refreshToken", "is required")
	}
	session, err := s.idp.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return sessionResult(session, nil, nil), nil
}

// Logout revokes the caller's provider session
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	return s.idp.SignOut(ctx, accessToken)
}

// Callback completes an OAuth or magic-link sign-in whose tokens were issued
// to the browser directly by the provider
func (s *AuthService) Callback(ctx context.Context, accessToken, refreshToken string) (*AuthResult, error) {
	if accessToken == "" {
		return nil, domain.Invalid("accessToken", "is required")
	}
	claims, err := s.tokens.ValidateToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrUnauthenticated)
	}

	user, err := s.syncUser(ctx, identityFromClaims(claims), true)
	if err != nil {
		return nil, err
	}
	orgs, err := s.orgs.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	expiresIn := 0
	if claims.ExpiresAt != nil {
		expiresIn = int(claims.ExpiresAt.Sub(s.now()).Seconds())
	}
	return &AuthResult{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		ExpiresIn:     expiresIn,
		TokenType:     "bearer",
		User:          user,
		Organizations: orgs,
	}, nil
}

// Recover asks the provider to send a password reset email. Unknown
// addresses are not revealed.
func (s *AuthService) Recover(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.Invalid("email", "is not a valid address")
	}
	return s.idp.Recover(ctx, email)
}

// Me returns the caller's profile, creating it on first sight of a token
func (s *AuthService) Me(ctx context.Context, claims *auth.Claims) (*Profile, error) {
	user, err := s.users.GetByID(ctx, claims.UserID())
	if errors.Is(err, domain.ErrNotFound) {
		user, err = s.syncUser(ctx, identityFromClaims(claims), false)
	}
	if err != nil {
		return nil, err
	}

	orgs, err := s.orgs.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return &Profile{User: user, Organizations: orgs}, nil
}

func (s *AuthService) syncUser(ctx context.Context, id *domain.Identity, login bool) (*domain.User, error) {
	if id == nil || id.ID == "" {
		return nil, fmt.Errorf("provider returned no identity: %w", domain.ErrUpstream)
	}
	user := &domain.User{
		ID:       id.ID,
		Email:    domain.NormalizeEmail(id.Email),
		FullName: strings.TrimSpace(id.FullName),
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	if login {
		now := s.now().UTC()
		if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
			s.logger.Warn("failed to record login", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		} else {
			user.LastLoginAt = &now
		}
	}
	return user, nil
}

func identityFromClaims(c *auth.Claims) *domain.Identity {
	return &domain.Identity{ID: c.UserID(), Email: c.Email, FullName: c.UserMetadata.FullName}
}

func sessionResult(s *domain.Session, user *domain.User, orgs []*domain.OrganizationWithRole) *AuthResult {
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &AuthResult{
		AccessToken:   s.AccessToken,
		RefreshToken:  s.RefreshToken,
		ExpiresIn:     s.ExpiresIn,
		TokenType:     tokenType,
		User:          user,
		Organizations: orgs,
	}
}
