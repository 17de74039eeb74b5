package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// PostgresContractRepository implements domain.ContractRepository
type PostgresContractRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresContractRepository creates a new contract repository
func NewPostgresContractRepository(db *sqlx.DB, logger *slog.Logger) *PostgresContractRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresContractRepository{db: db, logger: logger}
}

var contractColumns = []string{
	"k.id", "k.organization_id", "k.client_id", "c.name AS client_name", "k.title", "k.description",
	"k.value_cents", "k.currency", "k.start_date", "k.end_date", "k.status", "k.signed_at",
	"k.terminated_at", "k.created_by", "k.created_at", "k.updated_at",
}

func (r *PostgresContractRepository) selectContracts() sq.SelectBuilder {
	return psql.Select(contractColumns...).From("contracts k").Join("clients c ON c.id = k.client_id")
}

// Create inserts a contract
func (r *PostgresContractRepository) Create(ctx context.Context, k *domain.Contract) error {
	ensureID(&k.ID)
	query := `
		INSERT INTO contracts (id, organization_id, client_id, title, description, value_cents, currency,
			start_date, end_date, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		k.ID, k.OrganizationID, k.ClientID, k.Title, k.Description, k.ValueCents, k.Currency,
		k.StartDate, k.EndDate, k.Status, k.CreatedBy,
	).Scan(&k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves a contract within an organization
func (r *PostgresContractRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Contract, error) {
	query, args, err := r.selectContracts().Where(sq.Eq{"k.organization_id": orgID, "k.id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	k := &domain.Contract{}
	if err := r.db.GetContext(ctx, k, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", mapError(err))
	}
	return k, nil
}

// List returns one page of contracts, most recent start first
func (r *PostgresContractRepository) List(ctx context.Context, orgID string, f domain.ContractFilter) ([]*domain.Contract, int, error) {
	where := sq.And{sq.Eq{"k.organization_id": orgID}}
	if f.Status != "" {
		where = append(where, sq.Eq{"k.status": f.Status})
	}
	if f.ClientID != "" {
		where = append(where, sq.Eq{"k.client_id": f.ClientID})
	}

	total, err := count(ctx, r.db, "contracts k", where)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count contracts: %w", err)
	}

	page := f.Page.Normalize()
	query, args, err := r.selectContracts().Where(where).
		OrderBy("k.start_date DESC", "k.id").
		Limit(uint64(page.Limit)).Offset(uint64(page.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	out := []*domain.Contract{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list contracts: %w", err)
	}
	return out, total, nil
}

// Update saves content and lifecycle fields if the contract is still in status from
func (r *PostgresContractRepository) Update(ctx context.Context, k *domain.Contract, from domain.ContractStatus) error {
	query := `
		UPDATE contracts
		SET client_id = $3, title = $4, description = $5, value_cents = $6, currency = $7,
			start_date = $8, end_date = $9, status = $10, signed_at = $11, terminated_at = $12,
			updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND status = $13
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		k.OrganizationID, k.ID, k.ClientID, k.Title, k.Description, k.ValueCents, k.Currency,
		k.StartDate, k.EndDate, k.Status, k.SignedAt, k.TerminatedAt, from,
	).Scan(&k.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return staleStatus("contract", k.ID, from)
	}
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", mapError(err))
	}
	return nil
}

// Delete removes a draft contract
func (r *PostgresContractRepository) Delete(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM contracts WHERE organization_id = $1 AND id = $2 AND status = 'draft'`, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	return expectRows(res)
}

// ExpireEnded moves active contracts whose end date has passed to expired
func (r *PostgresContractRepository) ExpireEnded(ctx context.Context, today time.Time) ([]*domain.Contract, error) {
	out := []*domain.Contract{}
	err := r.db.SelectContext(ctx, &out, `
		UPDATE contracts SET status = 'expired', updated_at = now()
		WHERE status = 'active' AND end_date IS NOT NULL AND end_date < $1
		RETURNING id, organization_id, client_id, title, status, end_date, updated_at
	`, today)
	if err != nil {
		return nil, fmt.Errorf("failed to expire contracts: %w", err)
	}
	return out, nil
}

// CountActive counts contracts in force
func (r *PostgresContractRepository) CountActive(ctx context.Context, orgID string) (int, error) {
	n, err := count(ctx, r.db, "contracts", sq.Eq{"organization_id": orgID, "status": domain.ContractActive})
	if err != nil {
		return 0, fmt.Errorf("failed to count contracts: %w", err)
	}
	return n, nil
}
