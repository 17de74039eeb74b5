package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/security"
	"github.com/aryan0dhankhar/bizdesk/internal/security/audit"
)

// SystemActor is the actor recorded for changes made by background sweeps and webhooks
const SystemActor = "system"

// MembershipCache is the resolver cache that must forget changed memberships
type MembershipCache interface {
	Invalidate(orgID, userID string)
	InvalidateOrg(orgID string)
}

// Common holds the collaborators every organization-scoped service needs
type Common struct {
	Orgs   domain.OrganizationRepository
	Authz  *security.AuthorizationService
	Audit  *audit.Logger
	Events domain.EventPublisher
	Logger *slog.Logger
	Now    func() time.Time
}

func (c Common) withDefaults() Common {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Authz == nil {
		c.Authz = security.NewAuthorizationService(c.Logger)
	}
	if c.Audit == nil {
		c.Audit = audit.NewLogger(nil, c.Logger)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// requireWrite checks permission and that the organization's subscription
// still allows changes to business data
func (c Common) requireWrite(ctx context.Context, m *domain.Membership, perm security.Permission) (*domain.Organization, error) {
	if err := c.Authz.Require(m, perm); err != nil {
		return nil, err
	}
	return c.writableOrg(ctx, m.OrganizationID)
}

func (c Common) writableOrg(ctx context.Context, orgID string) (*domain.Organization, error) {
	org, err := c.Orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if !org.CanWrite(c.Now()) {
		return nil, fmt.Errorf("organization is %s: %w", org.SubscriptionStatus, domain.ErrSubscriptionInactive)
	}
	return org, nil
}

// emit records an audit entry and broadcasts the matching event. Neither
// failure is returned: the change itself has already been committed.
func (c Common) emit(ctx context.Context, orgID, actorID, eventType, resource, resourceID string, data any) {
	c.Audit.LogAction(ctx, orgID, actorID, eventType, resource, resourceID, data)
	if c.Events == nil {
		return
	}
	err := c.Events.Publish(ctx, domain.Event{
		Type:           eventType,
		OrganizationID: orgID,
		ResourceID:     resourceID,
		ActorID:        actorID,
		Data:           data,
		OccurredAt:     c.Now().UTC(),
	})
	if err != nil {
		c.Logger.Warn("event not delivered",
			slog.String("type", eventType),
			slog.String("org_id", orgID),
			slog.String("error", err.Error()),
		)
	}
}

// today is the start of the current UTC day
func today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
