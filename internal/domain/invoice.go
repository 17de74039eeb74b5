package domain

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// InvoiceStatus is the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
	InvoiceVoid    InvoiceStatus = "void"
)

// ParseInvoiceStatus validates a status filter value
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch st := InvoiceStatus(strings.ToLower(s)); st {
	case InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceVoid:
		return st, nil
	}
	return "", Invalid("status", "unknown invoice status")
}

// MaxTaxRateBasisPoints caps tax at 100%
const MaxTaxRateBasisPoints = 10000

// Invoice is a bill issued by an organization to a client.
// Amounts are in minor currency units (cents).
type Invoice struct {
	ID             string        `json:"id" db:"id"`
	OrganizationID string        `json:"organizationId" db:"organization_id"`
	ClientID       string        `json:"clientId" db:"client_id"`
	ClientName     string        `json:"clientName,omitempty" db:"client_name"`
	Number         string        `json:"number" db:"number"`
	Status         InvoiceStatus `json:"status" db:"status"`
	Currency       string        `json:"currency" db:"currency"`
	IssueDate      time.Time     `json:"issueDate" db:"issue_date"`
	DueDate        time.Time     `json:"dueDate" db:"due_date"`
	TaxRateBP      int           `json:"taxRateBasisPoints" db:"tax_rate_bp"`
	DiscountCents  int64         `json:"discountCents" db:"discount_cents"`
	SubtotalCents  int64         `json:"subtotalCents" db:"subtotal_cents"`
	TaxCents       int64         `json:"taxCents" db:"tax_cents"`
	TotalCents     int64         `json:"totalCents" db:"total_cents"`
	Notes          string        `json:"notes" db:"notes"`
	SentAt         *time.Time    `json:"sentAt,omitempty" db:"sent_at"`
	PaidAt         *time.Time    `json:"paidAt,omitempty" db:"paid_at"`
	VoidedAt       *time.Time    `json:"voidedAt,omitempty" db:"voided_at"`
	CreatedBy      string        `json:"createdBy" db:"created_by"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time     `json:"updatedAt" db:"updated_at"`
	Items          []LineItem    `json:"items,omitempty" db:"-"`
}

// LineItem is one billed row of an invoice
type LineItem struct {
	ID             string  `json:"id" db:"id"`
	InvoiceID      string  `json:"-" db:"invoice_id"`
	Position       int     `json:"position" db:"position"`
	Description    string  `json:"description" db:"description"`
	Quantity       float64 `json:"quantity" db:"quantity"`
	UnitPriceCents int64   `json:"unitPriceCents" db:"unit_price_cents"`
	AmountCents    int64   `json:"amountCents" db:"amount_cents"`
}

// Validate checks invoice input before totals are computed
func (inv *Invoice) Validate() error {
	if inv.ClientID == "" {
		return Invalid("clientId", "is required")
	}
	if inv.IssueDate.IsZero() {
		return Invalid("issueDate", "is required")
	}
	if inv.DueDate.IsZero() {
		return Invalid("dueDate", "is required")
	}
	if inv.DueDate.Before(inv.IssueDate) {
		return Invalid("dueDate", "must not be before issueDate")
	}
	if !ValidCurrency(inv.Currency) {
		return Invalid("currency", "must be a 3-letter ISO code")
	}
	inv.Currency = strings.ToUpper(inv.Currency)
	if inv.TaxRateBP < 0 || inv.TaxRateBP > MaxTaxRateBasisPoints {
		return Invalid("taxRateBasisPoints", "must be between 0 and 10000")
	}
	if inv.DiscountCents < 0 {
		return Invalid("discountCents", "must not be negative")
	}
	if len(inv.Items) == 0 {
		return Invalid("items", "at least one line item is required")
	}
	for i, it := range inv.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(it.Description) == "" {
			return Invalid(field+".description", "is required")
		}
		if it.Quantity <= 0 || math.IsNaN(it.Quantity) || math.IsInf(it.Quantity, 0) {
			return Invalid(field+".quantity", "must be positive")
		}
		if it.UnitPriceCents < 0 {
			return Invalid(field+".unitPriceCents", "must not be negative")
		}
	}
	return nil
}

// Recalculate derives line amounts and invoice totals from the items
func (inv *Invoice) Recalculate() error {
	var subtotal int64
	for i := range inv.Items {
		it := &inv.Items[i]
		it.Position = i + 1
		it.Description = strings.TrimSpace(it.Description)
		it.AmountCents = roundCents(it.Quantity * float64(it.UnitPriceCents))
		subtotal += it.AmountCents
	}
	if inv.DiscountCents > subtotal {
		return Invalid("discountCents", "must not exceed the subtotal")
	}
	taxable := subtotal - inv.DiscountCents
	inv.SubtotalCents = subtotal
	inv.TaxCents = roundCents(float64(taxable) * float64(inv.TaxRateBP) / MaxTaxRateBasisPoints)
	inv.TotalCents = taxable + inv.TaxCents
	return nil
}

// Editable reports whether content changes are allowed
func (inv *Invoice) Editable() bool {
	return inv.Status == InvoiceDraft
}

// Send issues a draft invoice to the client
func (inv *Invoice) Send(now time.Time) error {
	if inv.Status != InvoiceDraft {
		return transitionError("invoice", inv.Status, InvoiceSent)
	}
	inv.Status = InvoiceSent
	inv.SentAt = &now
	return nil
}

// MarkPaid records payment of an outstanding invoice
func (inv *Invoice) MarkPaid(at time.Time) error {
	if inv.Status != InvoiceSent && inv.Status != InvoiceOverdue {
		return transitionError("invoice", inv.Status, InvoicePaid)
	}
	inv.Status = InvoicePaid
	inv.PaidAt = &at
	return nil
}

// Void cancels an unpaid invoice
func (inv *Invoice) Void(now time.Time) error {
	switch inv.Status {
	case InvoiceDraft, InvoiceSent, InvoiceOverdue:
	default:
		return transitionError("invoice", inv.Status, InvoiceVoid)
	}
	inv.Status = InvoiceVoid
	inv.VoidedAt = &now
	return nil
}

// IsOverdue reports whether a sent invoice's due date has passed
func (inv *Invoice) IsOverdue(today time.Time) bool {
	return inv.Status == InvoiceSent && inv.DueDate.Before(truncateDay(today))
}

// FormatInvoiceNumber renders the per-organization sequence value
func FormatInvoiceNumber(issue time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%04d", issue.Format("200601"), seq)
}

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	Status   InvoiceStatus
	ClientID string
	From     *time.Time
	To       *time.Time
	Page
}

// InvoiceRepository defines data access for invoices
type InvoiceRepository interface {
	// Create allocates the invoice number and stores the invoice with its items atomically
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, orgID, id string) (*Invoice, error)
	List(ctx context.Context, orgID string, f InvoiceFilter) ([]*Invoice, int, error)
	Update(ctx context.Context, inv *Invoice) error
	// UpdateStatus fails with ErrInvalidTransition when the stored status is no longer from
	UpdateStatus(ctx context.Context, inv *Invoice, from InvoiceStatus) error
	Delete(ctx context.Context, orgID, id string) error
	MarkOverdue(ctx context.Context, today time.Time) ([]*Invoice, error)
}

func roundCents(v float64) int64 {
	return int64(math.Round(v))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
