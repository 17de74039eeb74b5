package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// PostgresAnalyticsRepository runs dashboard aggregates
type PostgresAnalyticsRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresAnalyticsRepository creates a new analytics repository
func NewPostgresAnalyticsRepository(db *sqlx.DB, logger *slog.Logger) *PostgresAnalyticsRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAnalyticsRepository{db: db, logger: logger}
}

// RevenueByMonth sums paid invoices by the month they were paid
func (r *PostgresAnalyticsRepository) RevenueByMonth(ctx context.Context, orgID string, since time.Time) ([]domain.MonthlyAmount, error) {
	out := []domain.MonthlyAmount{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT to_char(date_trunc('month', paid_at), 'YYYY-MM') AS month,
			COALESCE(SUM(total_cents), 0) AS amount_cents
		FROM invoices
		WHERE organization_id = $1 AND status = 'paid' AND paid_at >= $2
		GROUP BY 1 ORDER BY 1
	`, orgID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate revenue: %w", err)
	}
	return out, nil
}

// ExpensesByMonth sums approved expenses by the month they were incurred
func (r *PostgresAnalyticsRepository) ExpensesByMonth(ctx context.Context, orgID string, since time.Time) ([]domain.MonthlyAmount, error) {
	out := []domain.MonthlyAmount{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT to_char(date_trunc('month', incurred_on), 'YYYY-MM') AS month,
			COALESCE(SUM(amount_cents), 0) AS amount_cents
		FROM expenses
		WHERE organization_id = $1 AND status = 'approved' AND incurred_on >= $2
		GROUP BY 1 ORDER BY 1
	`, orgID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate expenses: %w", err)
	}
	return out, nil
}

// ExpensesByCategory sums approved expenses per category, largest first
func (r *PostgresAnalyticsRepository) ExpensesByCategory(ctx context.Context, orgID string, since time.Time) ([]domain.CategoryAmount, error) {
	out := []domain.CategoryAmount{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT category, COALESCE(SUM(amount_cents), 0) AS amount_cents
		FROM expenses
		WHERE organization_id = $1 AND status = 'approved' AND incurred_on >= $2
		GROUP BY category ORDER BY amount_cents DESC, category
	`, orgID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate expense categories: %w", err)
	}
	return out, nil
}

// TopClients ranks clients by paid revenue
func (r *PostgresAnalyticsRepository) TopClients(ctx context.Context, orgID string, since time.Time, limit int) ([]domain.ClientRevenue, error) {
	out := []domain.ClientRevenue{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT c.id AS client_id, c.name AS client_name, COALESCE(SUM(i.total_cents), 0) AS amount_cents
		FROM invoices i
		JOIN clients c ON c.id = i.client_id
		WHERE i.organization_id = $1 AND i.status = 'paid' AND i.paid_at >= $2
		GROUP BY c.id, c.name
		ORDER BY amount_cents DESC, c.name
		LIMIT $3
	`, orgID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank clients: %w", err)
	}
	return out, nil
}

// Receivables totals unpaid sent and overdue invoices
func (r *PostgresAnalyticsRepository) Receivables(ctx context.Context, orgID string) (domain.Receivables, error) {
	var out domain.Receivables
	err := r.db.GetContext(ctx, &out, `
		SELECT
			COALESCE(SUM(total_cents) FILTER (WHERE status IN ('sent', 'overdue')), 0) AS outstanding_cents,
			COUNT(*) FILTER (WHERE status IN ('sent', 'overdue')) AS outstanding_count,
			COALESCE(SUM(total_cents) FILTER (WHERE status = 'overdue'), 0) AS overdue_cents,
			COUNT(*) FILTER (WHERE status = 'overdue') AS overdue_count
		FROM invoices
		WHERE organization_id = $1
	`, orgID)
	if err != nil {
		return out, fmt.Errorf("failed to total receivables: %w", err)
	}
	return out, nil
}
