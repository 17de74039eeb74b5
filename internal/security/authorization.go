package security

import (
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// Permission represents an action permission within an organization
type Permission string

const (
	PermReadOrganization   Permission = "read_organization"
	PermUpdateOrganization Permission = "update_organization"
	PermDeleteOrganization Permission = "delete_organization"
	PermManageBilling      Permission = "manage_billing"
	PermManageMembers      Permission = "manage_members"
	PermManageInvitations  Permission = "manage_invitations"
	PermReadRecords        Permission = "read_records"
	PermWriteRecords       Permission = "write_records"
	PermSubmitExpense      Permission = "submit_expense"
	PermReviewExpenses     Permission = "review_expenses"
	PermViewAuditLog       Permission = "view_audit_log"
)

// RolePermissions maps organization roles to their permissions
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleOwner: {
		PermReadOrganization,
		PermUpdateOrganization,
		PermDeleteOrganization,
		PermManageBilling,
		PermManageMembers,
		PermManageInvitations,
		PermReadRecords,
		PermWriteRecords,
		PermSubmitExpense,
		PermReviewExpenses,
		PermViewAuditLog,
	},
	domain.RoleAdmin: {
		PermReadOrganization,
		PermUpdateOrganization,
		PermManageMembers,
		PermManageInvitations,
		PermReadRecords,
		PermWriteRecords,
		PermSubmitExpense,
		PermReviewExpenses,
		PermViewAuditLog,
	},
	domain.RoleManager: {
		PermReadOrganization,
		PermReadRecords,
		PermWriteRecords,
		PermSubmitExpense,
		PermReviewExpenses,
	},
	domain.RoleMember: {
		PermReadOrganization,
		PermReadRecords,
		PermSubmitExpense,
	},
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission reports whether role grants permission
func (as *AuthorizationService) HasPermission(role domain.Role, permission Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// Require returns domain.ErrForbidden unless m's role grants permission
func (as *AuthorizationService) Require(m *domain.Membership, permission Permission) error {
	if m == nil {
		return fmt.Errorf("no membership: %w", domain.ErrForbidden)
	}
	if !as.HasPermission(m.Role, permission) {
		as.logger.Warn("permission denied",
			slog.String("org_id", m.OrganizationID),
			slog.String("user_id", m.UserID),
			slog.String("role", string(m.Role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("%s cannot %s: %w", m.Role, permission, domain.ErrForbidden)
	}
	return nil
}

// RequireOwnerOr allows the resource owner, or anyone whose role grants override
func (as *AuthorizationService) RequireOwnerOr(m *domain.Membership, ownerID string, override Permission) error {
	if m != nil && m.UserID == ownerID {
		return nil
	}
	return as.Require(m, override)
}

// GetRolePermissions returns all permissions for a role
func (as *AuthorizationService) GetRolePermissions(role domain.Role) []Permission {
	return RolePermissions[role]
}
