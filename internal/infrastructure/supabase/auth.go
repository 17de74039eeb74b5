package supabase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	supa "github.com/supabase-community/supabase-go"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// authOps are the GoTrue calls the adapter makes
type authOps struct {
	signUp  func(email, password, fullName string) (*domain.Identity, *domain.Session, error)
	signIn  func(email, password string) (*domain.Session, error)
	refresh func(refreshToken string) (*domain.Session, error)
	signOut func(accessToken string) error
	recover func(email string) error
}

// Auth implements domain.IdentityProvider on Supabase Auth
type Auth struct {
	ops    authOps
	guard  *guard
	logger *slog.Logger
}

// NewAuth connects to Supabase Auth using the public anon key
func NewAuth(cfg Config, logger *slog.Logger) (*Auth, error) {
	if cfg.URL == "" || cfg.AnonKey == "" {
		return nil, fmt.Errorf("supabase url and anon key are required")
	}
	client, err := supa.NewClient(cfg.URL, cfg.AnonKey, &supa.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	ops := authOps{
		signUp: func(email, password, fullName string) (*domain.Identity, *domain.Session, error) {
			resp, err := client.Auth.Signup(types.SignupRequest{
				Email:    email,
				Password: password,
				Data:     map[string]interface{}{"full_name": fullName},
			})
			if err != nil {
				return nil, nil, err
			}
			if resp.AccessToken == "" {
				id := identityFrom(resp.User)
				return &id, nil, nil
			}
			s := sessionFrom(resp.Session)
			return &s.Identity, &s, nil
		},
		signIn: func(email, password string) (*domain.Session, error) {
			resp, err := client.Auth.SignInWithEmailPassword(email, password)
			if err != nil {
				return nil, err
			}
			s := sessionFrom(resp.Session)
			return &s, nil
		},
		refresh: func(refreshToken string) (*domain.Session, error) {
			resp, err := client.Auth.RefreshToken(refreshToken)
			if err != nil {
				return nil, err
			}
			s := sessionFrom(resp.Session)
			return &s, nil
		},
		signOut: func(accessToken string) error {
			return client.Auth.WithToken(accessToken).Logout()
		},
		recover: func(email string) error {
			return client.Auth.Recover(types.RecoverRequest{Email: email})
		},
	}
	return newAuth(ops, logger), nil
}

func newAuth(ops authOps, logger *slog.Logger) *Auth {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auth{ops: ops, guard: newGuard("supabase-auth", logger), logger: logger}
}

type signUpResult struct {
	identity *domain.Identity
	session  *domain.Session
}

// SignUp registers an account; a nil session means email confirmation is pending
func (a *Auth) SignUp(ctx context.Context, email, password, fullName string) (*domain.Identity, *domain.Session, error) {
	res, err := run(ctx, a.guard, "signup", func() (signUpResult, error) {
		id, s, err := a.ops.signUp(email, password, fullName)
		return signUpResult{identity: id, session: s}, err
	})
	if err != nil {
		if pe, ok := isProviderError(err); ok {
			if strings.Contains(strings.ToLower(pe.msg), "already") {
				return nil, nil, fmt.Errorf("account exists: %w", domain.ErrConflict)
			}
			return nil, nil, domain.Invalid("email", "rejected by identity provider")
		}
		return nil, nil, upstream("signup", err)
	}
	return res.identity, res.session, nil
}

// SignIn exchanges credentials for a session
func (a *Auth) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	s, err := run(ctx, a.guard, "signin", func() (*domain.Session, error) {
		return a.ops.signIn(email, password)
	})
	return s, a.credentialError("signin", err)
}

// Refresh rotates a refresh token
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	s, err := run(ctx, a.guard, "refresh", func() (*domain.Session, error) {
		return a.ops.refresh(refreshToken)
	})
	return s, a.credentialError("refresh", err)
}

// SignOut revokes the session behind an access token
func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	_, err := run(ctx, a.guard, "logout", func() (struct{}, error) {
		return struct{}{}, a.ops.signOut(accessToken)
	})
	return a.credentialError("logout", err)
}

// Recover sends a password reset email. Unknown addresses are not reported.
func (a *Auth) Recover(ctx context.Context, email string) error {
	_, err := run(ctx, a.guard, "recover", func() (struct{}, error) {
		return struct{}{}, a.ops.recover(email)
	})
	if err == nil {
		return nil
	}
	if _, ok := isProviderError(err); ok {
		a.logger.Info("password recovery rejected by provider", slog.String("error", err.Error()))
		return nil
	}
	return upstream("recover", err)
}

func (a *Auth) credentialError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := isProviderError(err); ok {
		return fmt.Errorf("%s: %w", op, domain.ErrUnauthenticated)
	}
	a.logger.Error("supabase auth call failed", slog.String("operation", op), slog.String("error", err.Error()))
	return upstream(op, err)
}

func sessionFrom(s types.Session) domain.Session {
	return domain.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    s.ExpiresIn,
		TokenType:    s.TokenType,
		Identity:     identityFrom(s.User),
	}
}

func identityFrom(u types.User) domain.Identity {
	id := domain.Identity{ID: u.ID.String(), Email: domain.NormalizeEmail(u.Email)}
	if name, ok := u.UserMetadata["full_name"].(string); ok {
		id.FullName = name
	}
	return id
}
