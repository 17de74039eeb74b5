package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// PostgresMembershipRepository implements domain.MembershipRepository
type PostgresMembershipRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresMembershipRepository creates a new membership repository
func NewPostgresMembershipRepository(db *sqlx.DB, logger *slog.Logger) *PostgresMembershipRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresMembershipRepository{db: db, logger: logger}
}

// Create adds a member; a duplicate membership is a conflict
func (r *PostgresMembershipRepository) Create(ctx context.Context, m *domain.Membership) error {
	return createMembership(ctx, r.db, m)
}

func createMembership(ctx context.Context, q sqlx.QueryerContext, m *domain.Membership) error {
	ensureID(&m.ID)
	query := `
		INSERT INTO memberships (id, organization_id, user_id, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := q.QueryRowxContext(ctx, query, m.ID, m.OrganizationID, m.UserID, m.Role).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", mapError(err))
	}
	return nil
}

// Get returns a user's membership in an organization
func (r *PostgresMembershipRepository) Get(ctx context.Context, orgID, userID string) (*domain.Membership, error) {
	m := &domain.Membership{}
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.created_at, m.updated_at
		FROM memberships m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.organization_id = $1 AND m.user_id = $2 AND o.deleted_at IS NULL
	`
	if err := r.db.GetContext(ctx, m, query, orgID, userID); err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", mapError(err))
	}
	return m, nil
}

// ListByOrganization returns members with their profile, highest role first
func (r *PostgresMembershipRepository) ListByOrganization(ctx context.Context, orgID string) ([]*domain.MemberView, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.created_at, m.updated_at,
			u.email, u.full_name
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY CASE m.role WHEN 'OWNER' THEN 1 WHEN 'ADMIN' THEN 2 WHEN 'MANAGER' THEN 3 ELSE 4 END,
			u.email
	`
	out := []*domain.MemberView{}
	if err := r.db.SelectContext(ctx, &out, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return out, nil
}

// UpdateRole changes a member's role
func (r *PostgresMembershipRepository) UpdateRole(ctx context.Context, orgID, userID string, role domain.Role) error {
	return r.keepingOwner(ctx, orgID, userID, role != domain.RoleOwner, func(tx *sqlx.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx, `
			UPDATE memberships SET role = $3, updated_at = now()
			WHERE organization_id = $1 AND user_id = $2
		`, orgID, userID, role)
	})
}

// Delete removes a member
func (r *PostgresMembershipRepository) Delete(ctx context.Context, orgID, userID string) error {
	return r.keepingOwner(ctx, orgID, userID, true, func(tx *sqlx.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx,
			`DELETE FROM memberships WHERE organization_id = $1 AND user_id = $2`, orgID, userID)
	})
}

// keepingOwner runs write with the organization's owner rows locked. When
// the write takes userID out of the owners it is refused if userID is the
// only one left, so concurrent demotions serialize on the lock.
func (r *PostgresMembershipRepository) keepingOwner(ctx context.Context, orgID, userID string, leavesOwners bool,
	write func(tx *sqlx.Tx) (sql.Result, error)) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		owners := []string{}
		err := tx.SelectContext(ctx, &owners, `
			SELECT user_id FROM memberships
			WHERE organization_id = $1 AND role = 'OWNER'
			FOR UPDATE
		`, orgID)
		if err != nil {
			return fmt.Errorf("failed to lock owners: %w", err)
		}
		if leavesOwners && len(owners) == 1 && owners[0] == userID {
			return domain.ErrLastOwner
		}
		res, err := write(tx)
		if err != nil {
			return fmt.Errorf("failed to update membership: %w", err)
		}
		return expectRows(res)
	})
}

// Count counts all members
func (r *PostgresMembershipRepository) Count(ctx context.Context, orgID string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM memberships WHERE organization_id = $1`, orgID); err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return n, nil
}
