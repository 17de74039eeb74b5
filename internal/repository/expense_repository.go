package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// PostgresExpenseRepository implements domain.ExpenseRepository
type PostgresExpenseRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresExpenseRepository creates a new expense repository
func NewPostgresExpenseRepository(db *sqlx.DB, logger *slog.Logger) *PostgresExpenseRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresExpenseRepository{db: db, logger: logger}
}

var expenseColumns = []string{
	"id", "organization_id", "submitted_by", "category", "vendor", "description", "amount_cents",
	"currency", "incurred_on", "status", "reviewed_by", "reviewed_at", "rejection_reason",
	"created_at", "updated_at",
}

// Create inserts an expense
func (r *PostgresExpenseRepository) Create(ctx context.Context, e *domain.Expense) error {
	ensureID(&e.ID)
	query := `
		INSERT INTO expenses (id, organization_id, submitted_by, category, vendor, description,
			amount_cents, currency, incurred_on, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		e.ID, e.OrganizationID, e.SubmittedBy, e.Category, e.Vendor, e.Description,
		e.AmountCents, e.Currency, e.IncurredOn, e.Status,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves an expense within an organization
func (r *PostgresExpenseRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Expense, error) {
	query, args, err := psql.Select(expenseColumns...).From("expenses").
		Where(sq.Eq{"organization_id": orgID, "id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	e := &domain.Expense{}
	if err := r.db.GetContext(ctx, e, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", mapError(err))
	}
	return e, nil
}

// List returns one page of expenses, most recent first
func (r *PostgresExpenseRepository) List(ctx context.Context, orgID string, f domain.ExpenseFilter) ([]*domain.Expense, int, error) {
	where := sq.And{sq.Eq{"organization_id": orgID}}
	if f.Status != "" {
		where = append(where, sq.Eq{"status": f.Status})
	}
	if f.Category != "" {
		where = append(where, sq.Eq{"category": f.Category})
	}
	if f.SubmittedBy != "" {
		where = append(where, sq.Eq{"submitted_by": f.SubmittedBy})
	}
	if f.From != nil {
		where = append(where, sq.GtOrEq{"incurred_on": *f.From})
	}
	if f.To != nil {
		where = append(where, sq.LtOrEq{"incurred_on": *f.To})
	}

	total, err := count(ctx, r.db, "expenses", where)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count expenses: %w", err)
	}

	page := f.Page.Normalize()
	query, args, err := psql.Select(expenseColumns...).From("expenses").Where(where).
		OrderBy("incurred_on DESC", "created_at DESC").
		Limit(uint64(page.Limit)).Offset(uint64(page.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	out := []*domain.Expense{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list expenses: %w", err)
	}
	return out, total, nil
}

// Update saves content and review fields if the expense is still in status from
func (r *PostgresExpenseRepository) Update(ctx context.Context, e *domain.Expense, from domain.ExpenseStatus) error {
	query := `
		UPDATE expenses
		SET category = $3, vendor = $4, description = $5, amount_cents = $6, currency = $7,
			incurred_on = $8, status = $9, reviewed_by = $10, reviewed_at = $11,
			rejection_reason = $12, updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND status = $13
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		e.OrganizationID, e.ID, e.Category, e.Vendor, e.Description, e.AmountCents, e.Currency,
		e.IncurredOn, e.Status, e.ReviewedBy, e.ReviewedAt, e.RejectionReason, from,
	).Scan(&e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return staleStatus("expense", e.ID, from)
	}
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", mapError(err))
	}
	return nil
}

// Delete removes an expense
func (r *PostgresExpenseRepository) Delete(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return expectRows(res)
}
