package domain

import "context"

// Identity is a user as known by the external auth provider
type Identity struct {
	ID       string
	Email    string
	FullName string
}

// Session is a token pair issued by the auth provider
type Session struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresIn    int      `json:"expiresIn"`
	TokenType    string   `json:"tokenType"`
	Identity     Identity `json:"-"`
}

// IdentityProvider delegates credential handling to the hosted auth service.
// SignUp returns a nil session when email confirmation is pending.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password, fullName string) (*Identity, *Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	Recover(ctx context.Context, email string) error
}
