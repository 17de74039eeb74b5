package repository

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// PostgresClientRepository implements domain.ClientRepository
type PostgresClientRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresClientRepository creates a new client repository
func NewPostgresClientRepository(db *sqlx.DB, logger *slog.Logger) *PostgresClientRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresClientRepository{db: db, logger: logger}
}

var clientColumns = []string{
	"id", "organization_id", "name", "email", "phone", "company", "address",
	"tax_id", "notes", "archived", "created_at", "updated_at",
}

// Create inserts a client
func (r *PostgresClientRepository) Create(ctx context.Context, c *domain.Client) error {
	ensureID(&c.ID)
	query := `
		INSERT INTO clients (id, organization_id, name, email, phone, company, address, tax_id, notes, archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		c.ID, c.OrganizationID, c.Name, c.Email, c.Phone, c.Company, c.Address, c.TaxID, c.Notes, c.Archived,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to create client",
			slog.String("org_id", c.OrganizationID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create client: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves a client within an organization
func (r *PostgresClientRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Client, error) {
	query, args, err := psql.Select(clientColumns...).From("clients").
		Where(sq.Eq{"organization_id": orgID, "id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	c := &domain.Client{}
	if err := r.db.GetContext(ctx, c, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get client: %w", mapError(err))
	}
	return c, nil
}

// List returns one page of clients and the total matching count
func (r *PostgresClientRepository) List(ctx context.Context, orgID string, f domain.ClientFilter) ([]*domain.Client, int, error) {
	where := sq.And{sq.Eq{"organization_id": orgID}}
	if f.Query != "" {
		p := likePattern(f.Query)
		where = append(where, sq.Or{sq.ILike{"name": p}, sq.ILike{"email": p}, sq.ILike{"company": p}})
	}
	if f.Archived != nil {
		where = append(where, sq.Eq{"archived": *f.Archived})
	}

	total, err := count(ctx, r.db, "clients", where)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count clients: %w", err)
	}

	page := f.Page.Normalize()
	query, args, err := psql.Select(clientColumns...).From("clients").Where(where).
		OrderBy("name", "id").
		Limit(uint64(page.Limit)).Offset(uint64(page.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	out := []*domain.Client{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list clients: %w", err)
	}
	return out, total, nil
}

// Update saves a client
func (r *PostgresClientRepository) Update(ctx context.Context, c *domain.Client) error {
	query := `
		UPDATE clients
		SET name = $3, email = $4, phone = $5, company = $6, address = $7, tax_id = $8,
			notes = $9, archived = $10, updated_at = now()
		WHERE organization_id = $1 AND id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		c.OrganizationID, c.ID, c.Name, c.Email, c.Phone, c.Company, c.Address, c.TaxID, c.Notes, c.Archived,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", mapError(err))
	}
	return nil
}

// Delete removes a client without dependents
func (r *PostgresClientRepository) Delete(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", mapError(err))
	}
	return expectRows(res)
}

// HasDependents reports whether invoices or contracts reference the client
func (r *PostgresClientRepository) HasDependents(ctx context.Context, orgID, id string) (bool, error) {
	var has bool
	err := r.db.GetContext(ctx, &has, `
		SELECT EXISTS (SELECT 1 FROM invoices WHERE organization_id = $1 AND client_id = $2)
			OR EXISTS (SELECT 1 FROM contracts WHERE organization_id = $1 AND client_id = $2)
	`, orgID, id)
	if err != nil {
		return false, fmt.Errorf("failed to check client dependents: %w", err)
	}
	return has, nil
}

// Count counts active clients
func (r *PostgresClientRepository) Count(ctx context.Context, orgID string) (int, error) {
	n, err := count(ctx, r.db, "clients", sq.Eq{"organization_id": orgID, "archived": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count clients: %w", err)
	}
	return n, nil
}
