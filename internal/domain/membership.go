package domain

import (
	"context"
	"strings"
	"time"
)

// Role is a member's role within an organization
type Role string

const (
	RoleOwner   Role = "OWNER"
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleMember  Role = "MEMBER"
)

// ParseRole normalizes and validates a role string
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if r.Rank() == 0 {
		return "", Invalid("role", "must be one of OWNER, ADMIN, MANAGER, MEMBER")
	}
	return r, nil
}

// Rank orders roles; higher outranks lower. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 4
	case RoleAdmin:
		return 3
	case RoleManager:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// AtLeast reports whether r is at or above min
func (r Role) AtLeast(min Role) bool {
	return r.Rank() >= min.Rank()
}

// CanManage reports whether an actor with role r may change a member
// currently holding target into role to. Owners manage everyone; admins
// manage managers and members only and cannot grant admin or owner.
func (r Role) CanManage(target, to Role) bool {
	switch r {
	case RoleOwner:
		return true
	case RoleAdmin:
		return target.Rank() < RoleAdmin.Rank() && to.Rank() < RoleAdmin.Rank()
	}
	return false
}

// CanInvite reports whether r may invite someone with role to
func (r Role) CanInvite(to Role) bool {
	if to == RoleOwner {
		return false
	}
	switch r {
	case RoleOwner:
		return true
	case RoleAdmin:
		return to.Rank() < RoleAdmin.Rank()
	}
	return false
}

// Membership links a user to an organization with a role
type Membership struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organizationId" db:"organization_id"`
	UserID         string    `json:"userId" db:"user_id"`
	Role           Role      `json:"role" db:"role"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// MemberView is a membership joined with the member's profile
type MemberView struct {
	Membership
	Email    string `json:"email" db:"email"`
	FullName string `json:"fullName" db:"full_name"`
}

// MembershipRepository defines data access for memberships
type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	Get(ctx context.Context, orgID, userID string) (*Membership, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*MemberView, error)
	// UpdateRole and Delete return ErrLastOwner instead of removing the
	// organization's only owner
	UpdateRole(ctx context.Context, orgID, userID string, role Role) error
	Delete(ctx context.Context, orgID, userID string) error
	Count(ctx context.Context, orgID string) (int, error)
}
