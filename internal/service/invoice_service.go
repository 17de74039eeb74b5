package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/events"
	"github.com/aryan0dhankhar/bizdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/bizdesk/internal/security"
)

// InvoiceService manages invoices and their lifecycle
type InvoiceService struct {
	Common
	invoices domain.InvoiceRepository
	clients  domain.ClientRepository
}

// NewInvoiceService creates the invoice service
func NewInvoiceService(c Common, invoices domain.InvoiceRepository, clients domain.ClientRepository) *InvoiceService {
	return &InvoiceService{Common: c.withDefaults(), invoices: invoices, clients: clients}
}

// InvoiceInput carries the editable invoice fields
type InvoiceInput struct {
	ClientID      string
	IssueDate     time.Time
	DueDate       time.Time
	Currency      string
	TaxRateBP     int
	DiscountCents int64
	Notes         string
	Items         []domain.LineItem
}

func (in InvoiceInput) apply(inv *domain.Invoice, defaultCurrency string) {
	inv.ClientID = in.ClientID
	inv.IssueDate = in.IssueDate
	inv.DueDate = in.DueDate
	inv.Currency = strings.TrimSpace(in.Currency)
	if inv.Currency == "" {
		inv.Currency = defaultCurrency
	}
	inv.TaxRateBP = in.TaxRateBP
	inv.DiscountCents = in.DiscountCents
	inv.Notes = strings.TrimSpace(in.Notes)
	inv.Items = append([]domain.LineItem(nil), in.Items...)
}

// List returns one page of invoices and the total match count
func (s *InvoiceService) List(ctx context.Context, m *domain.Membership, f domain.InvoiceFilter) ([]*domain.Invoice, int, error) {
	if err := s.Authz.Require(m, security.PermReadRecords); err != nil {
		return nil, 0, err
	}
	f.Page = f.Page.Normalize()
	return s.invoices.List(ctx, m.OrganizationID, f)
}

// Get returns an invoice with its line items
func (s *InvoiceService) Get(ctx context.Context, m *domain.Membership, id string) (*domain.Invoice, error) {
	if err := s.Authz.Require(m, security.PermReadRecords); err != nil {
		return nil, err
	}
	return s.invoices.GetByID(ctx, m.OrganizationID, id)
}

// Create stores a draft invoice; the number is allocated by the repository
func (s *InvoiceService) Create(ctx context.Context, m *domain.Membership, in InvoiceInput) (*domain.Invoice, error) {
	org, err := s.requireWrite(ctx, m, security.PermWriteRecords)
	if err != nil {
		return nil, err
	}
	inv := &domain.Invoice{
		OrganizationID: m.OrganizationID,
		Status:         domain.InvoiceDraft,
		CreatedBy:      m.UserID,
	}
	in.apply(inv, org.Currency)
	if err := s.prepare(ctx, inv); err != nil {
		return nil, err
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	metrics.ObserveInvoiceTransition(string(inv.Status))
	s.emit(ctx, m.OrganizationID, m.UserID, events.InvoiceCreated, "invoice", inv.ID,
		map[string]any{"number": inv.Number, "totalCents": inv.TotalCents, "currency": inv.Currency})
	return inv, nil
}

// prepare validates input, checks the client and computes the totals
func (s *InvoiceService) prepare(ctx context.Context, inv *domain.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	client, err := s.clients.GetByID(ctx, inv.OrganizationID, inv.ClientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Invalid("clientId", "unknown client")
		}
		return err
	}
	if client.Archived {
		return domain.Invalid("clientId", "client is archived")
	}
	inv.ClientName = client.Name
	return inv.Recalculate()
}

// Update replaces the content of a draft invoice
func (s *InvoiceService) Update(ctx context.Context, m *domain.Membership, id string, in InvoiceInput) (*domain.Invoice, error) {
	org, err := s.requireWrite(ctx, m, security.PermWriteRecords)
	if err != nil {
		return nil, err
	}
	inv, err := s.invoices.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if !inv.Editable() {
		return nil, fmt.Errorf("only draft invoices can be edited: %w", domain.ErrInvalidTransition)
	}
	in.apply(inv, org.Currency)
	if err := s.prepare(ctx, inv); err != nil {
		return nil, err
	}
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.InvoiceUpdated, "invoice", inv.ID,
		map[string]any{"number": inv.Number, "totalCents": inv.TotalCents})
	return inv, nil
}

// Delete removes a draft invoice
func (s *InvoiceService) Delete(ctx context.Context, m *domain.Membership, id string) error {
	if _, err := s.requireWrite(ctx, m, security.PermWriteRecords); err != nil {
		return err
	}
	inv, err := s.invoices.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return err
	}
	if !inv.Editable() {
		return fmt.Errorf("only draft invoices can be deleted: %w", domain.ErrInvalidTransition)
	}
	if err := s.invoices.Delete(ctx, m.OrganizationID, id); err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.InvoiceDeleted, "invoice", id, map[string]string{"number": inv.Number})
	return nil
}

// Send issues a draft invoice
func (s *InvoiceService) Send(ctx context.Context, m *domain.Membership, id string) (*domain.Invoice, error) {
	return s.transition(ctx, m, id, events.InvoiceSent, func(inv *domain.Invoice, now time.Time) error {
		return inv.Send(now)
	})
}

// MarkPaid records payment; paidAt defaults to now
func (s *InvoiceService) MarkPaid(ctx context.Context, m *domain.Membership, id string, paidAt *time.Time) (*domain.Invoice, error) {
	return s.transition(ctx, m, id, events.InvoicePaid, func(inv *domain.Invoice, now time.Time) error {
		at := now
		if paidAt != nil {
			if paidAt.After(now) {
				return domain.Invalid("paidAt", "must not be in the future")
			}
			at = paidAt.UTC()
		}
		return inv.MarkPaid(at)
	})
}

// Void cancels an unpaid invoice
func (s *InvoiceService) Void(ctx context.Context, m *domain.Membership, id string) (*domain.Invoice, error) {
	return s.transition(ctx, m, id, events.InvoiceVoided, func(inv *domain.Invoice, now time.Time) error {
		return inv.Void(now)
	})
}

func (s *InvoiceService) transition(ctx context.Context, m *domain.Membership, id, eventType string, apply func(*domain.Invoice, time.Time) error) (*domain.Invoice, error) {
	if _, err := s.requireWrite(ctx, m, security.PermWriteRecords); err != nil {
		return nil, err
	}
	inv, err := s.invoices.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	from := inv.Status
	if err := apply(inv, s.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.invoices.UpdateStatus(ctx, inv, from); err != nil {
		return nil, fmt.Errorf("update invoice status: %w", err)
	}
	metrics.ObserveInvoiceTransition(string(inv.Status))
	s.emit(ctx, m.OrganizationID, m.UserID, eventType, "invoice", inv.ID,
		map[string]any{"number": inv.Number, "from": from, "to": inv.Status})
	return inv, nil
}

// MarkOverdue moves sent invoices past their due date to overdue
func (s *InvoiceService) MarkOverdue(ctx context.Context) (int, error) {
	overdue, err := s.invoices.MarkOverdue(ctx, today(s.Now()))
	if err != nil {
		return 0, err
	}
	for _, inv := range overdue {
		metrics.ObserveInvoiceTransition(string(domain.InvoiceOverdue))
		s.emit(ctx, inv.OrganizationID, SystemActor, events.InvoiceOverdue, "invoice", inv.ID,
			map[string]any{"number": inv.Number, "dueDate": inv.DueDate, "totalCents": inv.TotalCents})
	}
	if len(overdue) > 0 {
		s.Logger.Info("invoices marked overdue", slog.Int("count", len(overdue)))
	}
	return len(overdue), nil
}
