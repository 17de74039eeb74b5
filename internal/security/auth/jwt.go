package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SupabaseAudience is the aud claim on tokens issued to signed-in users
const SupabaseAudience = "authenticated"

// Claims are the fields of a Supabase access token this service reads
type Claims struct {
	Email        string       `json:"email"`
	Role         string       `json:"role,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// UserMetadata is the profile data supplied at sign-up
type UserMetadata struct {
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// UserID returns the subject, which is the provider's user id
func (c *Claims) UserID() string { return c.Subject }

// TokenManager verifies access tokens locally with the project JWT secret
type TokenManager struct {
	secret   []byte
	audience string
	issuer   string
}

// NewTokenManager creates a verifier; issuer may be empty to skip the iss check
func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{secret: []byte(secret), audience: SupabaseAudience, issuer: issuer}
}

// GenerateToken mints a token in the provider's format. Used by tests and local tooling.
func (tm *TokenManager) GenerateToken(userID, email, fullName string, expiresIn time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user_id required")
	}
	now := time.Now()
	claims := Claims{
		Email:        email,
		Role:         SupabaseAudience,
		UserMetadata: UserMetadata{FullName: fullName},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{tm.audience},
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// ValidateToken checks signature, expiry and audience
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	if len(tm.secret) == 0 {
		return nil, errors.New("token verification is not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(tm.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token failed: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// ExtractToken returns the credential from a "Bearer <token>" header
func ExtractToken(authHeader string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(token), nil
}
