package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/events"
	"github.com/aryan0dhankhar/bizdesk/internal/security"
)

// maxSlugAttempts bounds the numbered suffixes tried before a random one
const maxSlugAttempts = 20

// OrganizationService manages tenants
type OrganizationService struct {
	Common
	trialDays int
	members   MembershipCache
}

// NewOrganizationService creates the organization service; members may be nil
func NewOrganizationService(c Common, trialDays int, members MembershipCache) *OrganizationService {
	return &OrganizationService{Common: c.withDefaults(), trialDays: trialDays, members: members}
}

// OrganizationInput carries organization fields; nil pointers are left unchanged
type OrganizationInput struct {
	Name         *string `json:"name"`
	BillingEmail *string `json:"billingEmail"`
	Address      *string `json:"address"`
	Currency     *string `json:"currency"`
}

// Create makes a new organization owned by userID and starts its trial
func (s *OrganizationService) Create(ctx context.Context, userID string, in OrganizationInput) (*domain.Organization, error) {
	org := &domain.Organization{CreatedBy: userID}
	if err := applyOrganizationInput(org, in); err != nil {
		return nil, err
	}
	if in.Name == nil {
		return nil, domain.Invalid("name", "is required")
	}
	if err := org.Validate(); err != nil {
		return nil, err
	}
	org.StartTrial(s.Now().UTC(), s.trialDays)

	slug, err := s.uniqueSlug(ctx, domain.Slugify(org.Name))
	if err != nil {
		return nil, err
	}
	org.Slug = slug

	// the repository stores the OWNER membership in the same transaction
	err = s.Orgs.Create(ctx, org)
	if errors.Is(err, domain.ErrConflict) {
		// lost a race for the slug
		org.Slug = slug + "-" + uuid.NewString()[:8]
		err = s.Orgs.Create(ctx, org)
	}
	if err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}

	s.Audit.LogAction(ctx, org.ID, userID, "organization.created", "organization", org.ID,
		map[string]string{"name": org.Name, "slug": org.Slug})
	s.Logger.Info("organization created",
		slog.String("org_id", org.ID),
		slog.String("user_id", userID),
	)
	return org, nil
}

func (s *OrganizationService) uniqueSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		exists, err := s.Orgs.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return base + "-" + uuid.NewString()[:8], nil
}

// List returns the caller's organizations with their role in each
func (s *OrganizationService) List(ctx context.Context, userID string) ([]*domain.OrganizationWithRole, error) {
	return s.Orgs.ListForUser(ctx, userID)
}

// Get returns the organization of membership m
func (s *OrganizationService) Get(ctx context.Context, m *domain.Membership) (*domain.Organization, error) {
	if err := s.Authz.Require(m, security.PermReadOrganization); err != nil {
		return nil, err
	}
	return s.Orgs.GetByID(ctx, m.OrganizationID)
}

// Update changes organization settings
func (s *OrganizationService) Update(ctx context.Context, m *domain.Membership, in OrganizationInput) (*domain.Organization, error) {
	if err := s.Authz.Require(m, security.PermUpdateOrganization); err != nil {
		return nil, err
	}
	org, err := s.Orgs.GetByID(ctx, m.OrganizationID)
	if err != nil {
		return nil, err
	}
	if err := applyOrganizationInput(org, in); err != nil {
		return nil, err
	}
	if err := org.Validate(); err != nil {
		return nil, err
	}
	if err := s.Orgs.Update(ctx, org); err != nil {
		return nil, fmt.Errorf("update organization: %w", err)
	}
	s.emit(ctx, org.ID, m.UserID, events.OrganizationUpdated, "organization", org.ID, in)
	return org, nil
}

// Delete soft-deletes the organization. A running paid subscription must be
// cancelled first.
func (s *OrganizationService) Delete(ctx context.Context, m *domain.Membership) error {
	if err := s.Authz.Require(m, security.PermDeleteOrganization); err != nil {
		return err
	}
	org, err := s.Orgs.GetByID(ctx, m.OrganizationID)
	if err != nil {
		return err
	}
	if org.SubscriptionStatus == domain.SubscriptionActive {
		return fmt.Errorf("cancel the active subscription first: %w", domain.ErrConflict)
	}
	if err := s.Orgs.SoftDelete(ctx, org.ID); err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if s.members != nil {
		s.members.InvalidateOrg(org.ID)
	}
	s.Audit.LogAction(ctx, org.ID, m.UserID, "organization.deleted", "organization", org.ID, nil)
	s.Logger.Info("organization deleted", slog.String("org_id", org.ID), slog.String("user_id", m.UserID))
	return nil
}

func applyOrganizationInput(org *domain.Organization, in OrganizationInput) error {
	if in.Name != nil {
		org.Name = *in.Name
	}
	if in.BillingEmail != nil {
		email := domain.NormalizeEmail(*in.BillingEmail)
		if _, err := mail.ParseAddress(email); email != "" && err != nil {
			return domain.Invalid("billingEmail", "is not a valid address")
		}
		org.BillingEmail = email
	}
	if in.Address != nil {
		org.Address = strings.TrimSpace(*in.Address)
	}
	if in.Currency != nil {
		org.Currency = strings.TrimSpace(*in.Currency)
	}
	return nil
}
