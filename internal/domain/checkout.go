package domain

import (
	"context"
	"time"
)

// CheckoutStatus tracks a hosted billing checkout
type CheckoutStatus string

const (
	CheckoutPending   CheckoutStatus = "pending"
	CheckoutCompleted CheckoutStatus = "completed"
	CheckoutExpired   CheckoutStatus = "expired"
)

// CheckoutTTL bounds how long a checkout session may be completed
const CheckoutTTL = 24 * time.Hour

// CheckoutSession records an owner starting a billing checkout for a plan
type CheckoutSession struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organizationId" db:"organization_id"`
	Plan           string         `json:"plan" db:"plan"`
	Status         CheckoutStatus `json:"status" db:"status"`
	CreatedBy      string         `json:"createdBy" db:"created_by"`
	ExpiresAt      time.Time      `json:"expiresAt" db:"expires_at"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
}

// CheckoutRepository defines data access for checkout sessions
type CheckoutRepository interface {
	Create(ctx context.Context, s *CheckoutSession) error
	GetByID(ctx context.Context, id string) (*CheckoutSession, error)
	// Complete marks a pending session completed and saves org's billing
	// state atomically; ErrConflict when the session is no longer pending.
	Complete(ctx context.Context, id string, at time.Time, org *Organization) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}
