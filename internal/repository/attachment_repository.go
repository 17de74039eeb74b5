package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// PostgresAttachmentRepository implements domain.AttachmentRepository
type PostgresAttachmentRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresAttachmentRepository creates a new attachment repository
func NewPostgresAttachmentRepository(db *sqlx.DB, logger *slog.Logger) *PostgresAttachmentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAttachmentRepository{db: db, logger: logger}
}

const attachmentColumns = `id, organization_id, entity_type, entity_id, file_name, content_type,
	size_bytes, storage_path, uploaded_by, created_at`

func (r *PostgresAttachmentRepository) Create(ctx context.Context, a *domain.Attachment) error {
	ensureID(&a.ID)
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO attachments (id, organization_id, entity_type, entity_id, file_name, content_type,
			size_bytes, storage_path, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, a.ID, a.OrganizationID, a.EntityType, a.EntityID, a.FileName, a.ContentType,
		a.SizeBytes, a.StoragePath, a.UploadedBy,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", mapError(err))
	}
	return nil
}

func (r *PostgresAttachmentRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Attachment, error) {
	a := &domain.Attachment{}
	err := r.db.GetContext(ctx, a,
		`SELECT `+attachmentColumns+` FROM attachments WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", mapError(err))
	}
	return a, nil
}

func (r *PostgresAttachmentRepository) ListByEntity(ctx context.Context, orgID string, t domain.EntityType, entityID string) ([]*domain.Attachment, error) {
	out := []*domain.Attachment{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+attachmentColumns+` FROM attachments
		WHERE organization_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at
	`, orgID, t, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return out, nil
}

func (r *PostgresAttachmentRepository) Delete(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return expectRows(res)
}
