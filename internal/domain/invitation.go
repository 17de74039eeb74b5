package domain

import (
	"context"
	"time"
)

// InvitationStatus tracks an invitation's lifecycle
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRevoked  InvitationStatus = "revoked"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation offers an email address membership in an organization.
// The bearer token is "<ID>.<secret>"; only a bcrypt hash of the secret is stored.
type Invitation struct {
	ID             string           `json:"id" db:"id"`
	OrganizationID string           `json:"organizationId" db:"organization_id"`
	Email          string           `json:"email" db:"email"`
	Role           Role             `json:"role" db:"role"`
	SecretHash     string           `json:"-" db:"secret_hash"`
	Status         InvitationStatus `json:"status" db:"status"`
	InvitedBy      string           `json:"invitedBy" db:"invited_by"`
	ExpiresAt      time.Time        `json:"expiresAt" db:"expires_at"`
	AcceptedAt     *time.Time       `json:"acceptedAt,omitempty" db:"accepted_at"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
}

// Usable reports whether the invitation can still be accepted
func (i *Invitation) Usable(now time.Time) bool {
	return i.Status == InvitationPending && now.Before(i.ExpiresAt)
}

// InvitationRepository defines data access for invitations
type InvitationRepository interface {
	Create(ctx context.Context, inv *Invitation) error
	GetByID(ctx context.Context, id string) (*Invitation, error)
	ListPending(ctx context.Context, orgID string) ([]*Invitation, error)
	CountPending(ctx context.Context, orgID string, now time.Time) (int, error)
	FindPendingByEmail(ctx context.Context, orgID, email string) (*Invitation, error)
	UpdateStatus(ctx context.Context, id string, status InvitationStatus, at time.Time) error
	// Accept marks a pending invitation accepted and creates m in one
	// transaction; ErrConflict when the invitation is no longer pending.
	Accept(ctx context.Context, id string, at time.Time, m *Membership) error
	ExpireStale(ctx context.Context, now time.Time) ([]*Invitation, error)
}
