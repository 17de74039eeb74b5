package domain

import (
	"context"
	"time"
)

// User is the local profile of an identity managed by the auth provider.
// ID is the provider's subject; passwords never reach this service.
type User struct {
	ID          string     `json:"id" db:"id"`
	Email       string     `json:"email" db:"email"`
	FullName    string     `json:"fullName" db:"full_name"`
	AvatarURL   string     `json:"avatarUrl,omitempty" db:"avatar_url"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
}

// UserRepository defines data access for user profiles
type UserRepository interface {
	Upsert(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}
