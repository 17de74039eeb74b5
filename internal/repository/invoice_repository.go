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

// PostgresInvoiceRepository implements domain.InvoiceRepository
type PostgresInvoiceRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresInvoiceRepository creates a new invoice repository
func NewPostgresInvoiceRepository(db *sqlx.DB, logger *slog.Logger) *PostgresInvoiceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresInvoiceRepository{db: db, logger: logger}
}

var invoiceColumns = []string{
	"i.id", "i.organization_id", "i.client_id", "c.name AS client_name", "i.number", "i.status",
	"i.currency", "i.issue_date", "i.due_date", "i.tax_rate_bp", "i.discount_cents",
	"i.subtotal_cents", "i.tax_cents", "i.total_cents", "i.notes", "i.sent_at", "i.paid_at",
	"i.voided_at", "i.created_by", "i.created_at", "i.updated_at",
}

const nextInvoiceSeq = `
	INSERT INTO invoice_sequences (organization_id, period, last_value)
	VALUES ($1, $2, 1)
	ON CONFLICT (organization_id, period)
	DO UPDATE SET last_value = invoice_sequences.last_value + 1
	RETURNING last_value
`

// Create allocates the next number for the issue month and stores the invoice with its items.
// The sequence row lock serializes concurrent creates per organization and month.
func (r *PostgresInvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	ensureID(&inv.ID)
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var seq int64
		if err := tx.QueryRowxContext(ctx, nextInvoiceSeq, inv.OrganizationID, inv.IssueDate.Format("200601")).Scan(&seq); err != nil {
			return fmt.Errorf("allocate invoice number: %w", err)
		}
		inv.Number = domain.FormatInvoiceNumber(inv.IssueDate, seq)

		query := `
			INSERT INTO invoices (id, organization_id, client_id, number, status, currency, issue_date,
				due_date, tax_rate_bp, discount_cents, subtotal_cents, tax_cents, total_cents, notes, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			inv.ID, inv.OrganizationID, inv.ClientID, inv.Number, inv.Status, inv.Currency, inv.IssueDate,
			inv.DueDate, inv.TaxRateBP, inv.DiscountCents, inv.SubtotalCents, inv.TaxCents, inv.TotalCents,
			inv.Notes, inv.CreatedBy,
		).Scan(&inv.CreatedAt, &inv.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", mapError(err))
		}
		return insertItems(ctx, tx, inv)
	})
	if err != nil {
		r.logger.Error("failed to create invoice",
			slog.String("org_id", inv.OrganizationID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, tx *sqlx.Tx, inv *domain.Invoice) error {
	for i := range inv.Items {
		it := &inv.Items[i]
		it.ID = newID()
		it.InvoiceID = inv.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (id, invoice_id, position, description, quantity, unit_price_cents, amount_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, it.ID, it.InvoiceID, it.Position, it.Description, it.Quantity, it.UnitPriceCents, it.AmountCents)
		if err != nil {
			return fmt.Errorf("insert invoice item %d: %w", it.Position, err)
		}
	}
	return nil
}

func (r *PostgresInvoiceRepository) selectInvoices() sq.SelectBuilder {
	return psql.Select(invoiceColumns...).From("invoices i").Join("clients c ON c.id = i.client_id")
}

// GetByID returns an invoice with its items in position order
func (r *PostgresInvoiceRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Invoice, error) {
	query, args, err := r.selectInvoices().Where(sq.Eq{"i.organization_id": orgID, "i.id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	inv := &domain.Invoice{}
	if err := r.db.GetContext(ctx, inv, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", mapError(err))
	}

	inv.Items = []domain.LineItem{}
	err = r.db.SelectContext(ctx, &inv.Items, `
		SELECT id, invoice_id, position, description, quantity, unit_price_cents, amount_cents
		FROM invoice_items WHERE invoice_id = $1 ORDER BY position
	`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice items: %w", err)
	}
	return inv, nil
}

// List returns one page of invoices without items
func (r *PostgresInvoiceRepository) List(ctx context.Context, orgID string, f domain.InvoiceFilter) ([]*domain.Invoice, int, error) {
	where := sq.And{sq.Eq{"i.organization_id": orgID}}
	if f.Status != "" {
		where = append(where, sq.Eq{"i.status": f.Status})
	}
	if f.ClientID != "" {
		where = append(where, sq.Eq{"i.client_id": f.ClientID})
	}
	if f.From != nil {
		where = append(where, sq.GtOrEq{"i.issue_date": *f.From})
	}
	if f.To != nil {
		where = append(where, sq.LtOrEq{"i.issue_date": *f.To})
	}

	total, err := count(ctx, r.db, "invoices i", where)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	page := f.Page.Normalize()
	query, args, err := r.selectInvoices().Where(where).
		OrderBy("i.issue_date DESC", "i.number DESC").
		Limit(uint64(page.Limit)).Offset(uint64(page.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	out := []*domain.Invoice{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	return out, total, nil
}

// Update replaces the content of a draft invoice and its items
func (r *PostgresInvoiceRepository) Update(ctx context.Context, inv *domain.Invoice) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			UPDATE invoices
			SET client_id = $3, currency = $4, issue_date = $5, due_date = $6, tax_rate_bp = $7,
				discount_cents = $8, subtotal_cents = $9, tax_cents = $10, total_cents = $11,
				notes = $12, updated_at = now()
			WHERE organization_id = $1 AND id = $2 AND status = 'draft'
			RETURNING updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			inv.OrganizationID, inv.ID, inv.ClientID, inv.Currency, inv.IssueDate, inv.DueDate,
			inv.TaxRateBP, inv.DiscountCents, inv.SubtotalCents, inv.TaxCents, inv.TotalCents, inv.Notes,
		).Scan(&inv.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return staleStatus("invoice", inv.ID, domain.InvoiceDraft)
		}
		if err != nil {
			return fmt.Errorf("failed to update invoice: %w", mapError(err))
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
			return fmt.Errorf("failed to replace invoice items: %w", err)
		}
		return insertItems(ctx, tx, inv)
	})
}

// UpdateStatus saves the lifecycle fields if the invoice is still in status from
func (r *PostgresInvoiceRepository) UpdateStatus(ctx context.Context, inv *domain.Invoice, from domain.InvoiceStatus) error {
	query := `
		UPDATE invoices
		SET status = $3, sent_at = $4, paid_at = $5, voided_at = $6, updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND status = $7
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		inv.OrganizationID, inv.ID, inv.Status, inv.SentAt, inv.PaidAt, inv.VoidedAt, from,
	).Scan(&inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return staleStatus("invoice", inv.ID, from)
	}
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", mapError(err))
	}
	return nil
}

// Delete removes a draft invoice
func (r *PostgresInvoiceRepository) Delete(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM invoices WHERE organization_id = $1 AND id = $2 AND status = 'draft'`, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return expectRows(res)
}

// MarkOverdue flips sent invoices due before today to overdue and returns them
func (r *PostgresInvoiceRepository) MarkOverdue(ctx context.Context, today time.Time) ([]*domain.Invoice, error) {
	out := []*domain.Invoice{}
	err := r.db.SelectContext(ctx, &out, `
		UPDATE invoices SET status = 'overdue', updated_at = now()
		WHERE status = 'sent' AND due_date < $1
		RETURNING id, organization_id, client_id, number, status, currency, due_date, total_cents, updated_at
	`, today)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invoices overdue: %w", err)
	}
	return out, nil
}
