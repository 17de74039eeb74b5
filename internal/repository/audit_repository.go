package repository

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// PostgresAuditRepository implements domain.AuditRepository
type PostgresAuditRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresAuditRepository creates a new audit repository
func NewPostgresAuditRepository(db *sqlx.DB, logger *slog.Logger) *PostgresAuditRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAuditRepository{db: db, logger: logger}
}

// Insert appends an audit entry
func (r *PostgresAuditRepository) Insert(ctx context.Context, e *domain.AuditEntry) error {
	ensureID(&e.ID)
	var details any
	if len(e.Details) > 0 {
		details = []byte(e.Details)
	}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO audit_logs (id, organization_id, actor_id, action, resource, resource_id, details, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, e.ID, e.OrganizationID, e.ActorID, e.Action, e.Resource, e.ResourceID, details, e.RequestID).
		Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", mapError(err))
	}
	return nil
}

// List returns audit entries newest first
func (r *PostgresAuditRepository) List(ctx context.Context, orgID string, f domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	where := sq.And{sq.Eq{"organization_id": orgID}}
	if f.Action != "" {
		where = append(where, sq.Eq{"action": f.Action})
	}
	if f.Resource != "" {
		where = append(where, sq.Eq{"resource": f.Resource})
	}
	if f.ActorID != "" {
		where = append(where, sq.Eq{"actor_id": f.ActorID})
	}

	total, err := count(ctx, r.db, "audit_logs", where)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	page := f.Page.Normalize()
	query, args, err := psql.
		Select("id", "organization_id", "actor_id", "action", "resource", "resource_id",
			"COALESCE(details, '{}'::jsonb) AS details", "request_id", "created_at").
		From("audit_logs").Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(page.Limit)).Offset(uint64(page.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	out := []*domain.AuditEntry{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return out, total, nil
}
