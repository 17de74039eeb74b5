package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// PostgresInvitationRepository implements domain.InvitationRepository
type PostgresInvitationRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresInvitationRepository creates a new invitation repository
func NewPostgresInvitationRepository(db *sqlx.DB, logger *slog.Logger) *PostgresInvitationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresInvitationRepository{db: db, logger: logger}
}

const invitationColumns = `id, organization_id, email, role, secret_hash, status, invited_by,
	expires_at, accepted_at, created_at`

// Create stores a pending invitation; one pending invitation per email per organization
func (r *PostgresInvitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	ensureID(&inv.ID)
	query := `
		INSERT INTO invitations (id, organization_id, email, role, secret_hash, status, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		inv.ID, inv.OrganizationID, inv.Email, inv.Role, inv.SecretHash, inv.Status, inv.InvitedBy, inv.ExpiresAt,
	).Scan(&inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves an invitation
func (r *PostgresInvitationRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	inv := &domain.Invitation{}
	if err := r.db.GetContext(ctx, inv, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", mapError(err))
	}
	return inv, nil
}

// ListPending returns pending invitations, newest first
func (r *PostgresInvitationRepository) ListPending(ctx context.Context, orgID string) ([]*domain.Invitation, error) {
	out := []*domain.Invitation{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE organization_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return out, nil
}

// CountPending counts invitations that still hold a seat
func (r *PostgresInvitationRepository) CountPending(ctx context.Context, orgID string, now time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM invitations
		WHERE organization_id = $1 AND status = 'pending' AND expires_at > $2
	`, orgID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to count invitations: %w", err)
	}
	return n, nil
}

// FindPendingByEmail returns the pending invitation for an address
func (r *PostgresInvitationRepository) FindPendingByEmail(ctx context.Context, orgID, email string) (*domain.Invitation, error) {
	inv := &domain.Invitation{}
	err := r.db.GetContext(ctx, inv, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE organization_id = $1 AND lower(email) = lower($2) AND status = 'pending'
	`, orgID, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find invitation: %w", mapError(err))
	}
	return inv, nil
}

// UpdateStatus moves a pending invitation to status. A non-pending row is a conflict.
func (r *PostgresInvitationRepository) UpdateStatus(ctx context.Context, id string, status domain.InvitationStatus, at time.Time) error {
	var acceptedAt *time.Time
	if status == domain.InvitationAccepted {
		acceptedAt = &at
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE invitations SET status = $2, accepted_at = COALESCE($3, accepted_at)
		WHERE id = $1 AND status = 'pending'
	`, id, status, acceptedAt)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	if err := expectRows(res); err != nil {
		return fmt.Errorf("invitation %s is no longer pending: %w", id, domain.ErrConflict)
	}
	return nil
}

// Accept claims a pending invitation and adds the member in one transaction,
// so a failed insert leaves the invitation usable
func (r *PostgresInvitationRepository) Accept(ctx context.Context, id string, at time.Time, m *domain.Membership) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE invitations SET status = 'accepted', accepted_at = $2
			WHERE id = $1 AND status = 'pending'
		`, id, at)
		if err != nil {
			return fmt.Errorf("failed to accept invitation: %w", err)
		}
		if err := expectRows(res); err != nil {
			return fmt.Errorf("invitation %s is no longer pending: %w", id, domain.ErrConflict)
		}
		return createMembership(ctx, tx, m)
	})
}

// ExpireStale marks overdue pending invitations expired and returns them
func (r *PostgresInvitationRepository) ExpireStale(ctx context.Context, now time.Time) ([]*domain.Invitation, error) {
	expired := []*domain.Invitation{}
	err := r.db.SelectContext(ctx, &expired, `
		UPDATE invitations SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1
		RETURNING `+invitationColumns, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return expired, nil
}
