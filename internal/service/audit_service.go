package service

import (
	"context"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/security"
)

// AuditService exposes an organization's audit trail to its administrators
type AuditService struct {
	Common
}

// NewAuditService creates the audit service
func NewAuditService(c Common) *AuditService {
	return &AuditService{Common: c.withDefaults()}
}

// List returns one page of audit entries, newest first
func (s *AuditService) List(ctx context.Context, m *domain.Membership, f domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	if err := s.Authz.Require(m, security.PermViewAuditLog); err != nil {
		return nil, 0, err
	}
	f.Page = f.Page.Normalize()
	return s.Audit.List(ctx, m.OrganizationID, f)
}
