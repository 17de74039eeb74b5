package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// PostgresOrganizationRepository implements domain.OrganizationRepository using PostgreSQL
type PostgresOrganizationRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresOrganizationRepository creates a new organization repository
func NewPostgresOrganizationRepository(db *sqlx.DB, logger *slog.Logger) *PostgresOrganizationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresOrganizationRepository{db: db, logger: logger}
}

const orgColumns = `o.id, o.name, o.slug, o.billing_email, o.address, o.currency,
	o.subscription_status, o.plan, o.trial_ends_at, o.current_period_end,
	o.billing_customer_ref, o.subscription_ref, o.created_by, o.created_at,
	o.updated_at, o.deleted_at`

// Create inserts an organization together with its first OWNER membership
func (r *PostgresOrganizationRepository) Create(ctx context.Context, org *domain.Organization) error {
	ensureID(&org.ID)
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO organizations (id, name, slug, billing_email, address, currency,
				subscription_status, plan, trial_ends_at, current_period_end, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			org.ID, org.Name, org.Slug, org.BillingEmail, org.Address, org.Currency,
			org.SubscriptionStatus, org.Plan, org.TrialEndsAt, org.CurrentPeriodEnd, org.CreatedBy,
		).Scan(&org.CreatedAt, &org.UpdatedAt)
		if err != nil {
			r.logger.Error("failed to create organization",
				slog.String("slug", org.Slug),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("failed to create organization: %w", mapError(err))
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO memberships (id, organization_id, user_id, role)
			VALUES ($1, $2, $3, $4)
		`, newID(), org.ID, org.CreatedBy, domain.RoleOwner)
		if err != nil {
			return fmt.Errorf("failed to create owner membership: %w", mapError(err))
		}
		return nil
	})
}

// GetByID retrieves a live organization by ID
func (r *PostgresOrganizationRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	org := &domain.Organization{}
	err := r.db.GetContext(ctx, org,
		`SELECT `+orgColumns+` FROM organizations o WHERE o.id = $1 AND o.deleted_at IS NULL`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", mapError(err))
	}
	return org, nil
}

// GetBySubscriptionRef finds the organization a billing subscription belongs to
func (r *PostgresOrganizationRepository) GetBySubscriptionRef(ctx context.Context, ref string) (*domain.Organization, error) {
	org := &domain.Organization{}
	err := r.db.GetContext(ctx, org,
		`SELECT `+orgColumns+` FROM organizations o WHERE o.subscription_ref = $1 AND o.deleted_at IS NULL`, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization by subscription: %w", mapError(err))
	}
	return org, nil
}

// SlugExists reports whether a slug is taken, including by deleted organizations
func (r *PostgresOrganizationRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM organizations WHERE slug = $1)`, slug); err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

// Update saves profile fields
func (r *PostgresOrganizationRepository) Update(ctx context.Context, org *domain.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, billing_email = $3, address = $4, currency = $5, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, org.ID, org.Name, org.BillingEmail, org.Address, org.Currency).
		Scan(&org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", mapError(err))
	}
	return nil
}

// UpdateSubscription saves billing state
func (r *PostgresOrganizationRepository) UpdateSubscription(ctx context.Context, org *domain.Organization) error {
	if err := updateSubscription(ctx, r.db, org); err != nil {
		r.logger.Error("failed to update subscription",
			slog.String("org_id", org.ID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// updateSubscription writes org's billing columns through q, which may be a
// transaction
func updateSubscription(ctx context.Context, q sqlx.QueryerContext, org *domain.Organization) error {
	query := `
		UPDATE organizations
		SET subscription_status = $2, plan = $3, trial_ends_at = $4, current_period_end = $5,
			billing_customer_ref = $6, subscription_ref = $7, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err := q.QueryRowxContext(ctx, query,
		org.ID, org.SubscriptionStatus, org.Plan, org.TrialEndsAt, org.CurrentPeriodEnd,
		org.BillingCustomerRef, org.SubscriptionRef,
	).Scan(&org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", mapError(err))
	}
	return nil
}

// SoftDelete hides an organization from every query
func (r *PostgresOrganizationRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return expectRows(res)
}

// ListForUser returns the organizations a user belongs to with their role
func (r *PostgresOrganizationRepository) ListForUser(ctx context.Context, userID string) ([]*domain.OrganizationWithRole, error) {
	query := `
		SELECT ` + orgColumns + `, m.role
		FROM organizations o
		JOIN memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND o.deleted_at IS NULL
		ORDER BY o.name
	`
	out := []*domain.OrganizationWithRole{}
	if err := r.db.SelectContext(ctx, &out, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return out, nil
}

// ListSubscriptionsDue returns organizations whose trial or paid period has ended
func (r *PostgresOrganizationRepository) ListSubscriptionsDue(ctx context.Context, now time.Time) ([]*domain.Organization, error) {
	query := `
		SELECT ` + orgColumns + `
		FROM organizations o
		WHERE o.deleted_at IS NULL AND (
			(o.subscription_status = 'trialing' AND o.trial_ends_at <= $1) OR
			(o.subscription_status IN ('active', 'canceling') AND o.current_period_end <= $1)
		)
	`
	out := []*domain.Organization{}
	if err := r.db.SelectContext(ctx, &out, query, now); err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	return out, nil
}
