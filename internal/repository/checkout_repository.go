package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// PostgresCheckoutRepository implements domain.CheckoutRepository
type PostgresCheckoutRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresCheckoutRepository creates a new checkout session repository
func NewPostgresCheckoutRepository(db *sqlx.DB, logger *slog.Logger) *PostgresCheckoutRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCheckoutRepository{db: db, logger: logger}
}

// Create stores a pending checkout session
func (r *PostgresCheckoutRepository) Create(ctx context.Context, s *domain.CheckoutSession) error {
	ensureID(&s.ID)
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO checkout_sessions (id, organization_id, plan, status, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, s.ID, s.OrganizationID, s.Plan, s.Status, s.CreatedBy, s.ExpiresAt).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create checkout session: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves a checkout session
func (r *PostgresCheckoutRepository) GetByID(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	s := &domain.CheckoutSession{}
	err := r.db.GetContext(ctx, s, `
		SELECT id, organization_id, plan, status, created_by, expires_at, completed_at, created_at
		FROM checkout_sessions WHERE id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", mapError(err))
	}
	return s, nil
}

// Complete marks a pending session completed and activates the organization
// in one transaction, so a failed activation leaves the session pending for
// the provider's redelivery.
func (r *PostgresCheckoutRepository) Complete(ctx context.Context, id string, at time.Time, org *domain.Organization) error {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE checkout_sessions SET status = 'completed', completed_at = $2
			WHERE id = $1 AND status = 'pending'
		`, id, at)
		if err != nil {
			return fmt.Errorf("failed to complete checkout session: %w", err)
		}
		if err := expectRows(res); err != nil {
			return fmt.Errorf("checkout session %s is not pending: %w", id, domain.ErrConflict)
		}
		return updateSubscription(ctx, tx, org)
	})
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		r.logger.Error("failed to complete checkout",
			slog.String("session_id", id),
			slog.String("org_id", org.ID),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// ExpireStale expires pending sessions past their deadline
func (r *PostgresCheckoutRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE checkout_sessions SET status = 'expired' WHERE status = 'pending' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire checkout sessions: %w", err)
	}
	return res.RowsAffected()
}
