package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/events"
	"github.com/aryan0dhankhar/bizdesk/internal/security"
)

// ExpenseService manages expense submission and review
type ExpenseService struct {
	Common
	expenses domain.ExpenseRepository
}

// NewExpenseService creates the expense service
func NewExpenseService(c Common, expenses domain.ExpenseRepository) *ExpenseService {
	return &ExpenseService{Common: c.withDefaults(), expenses: expenses}
}

// ExpenseInput carries the editable expense fields
type ExpenseInput struct {
	Category    string
	Vendor      string
	Description string
	AmountCents int64
	Currency    string
	IncurredOn  time.Time
}

func (in ExpenseInput) apply(e *domain.Expense, defaultCurrency string) {
	e.Category = in.Category
	e.Vendor = in.Vendor
	e.Description = strings.TrimSpace(in.Description)
	e.AmountCents = in.AmountCents
	e.Currency = strings.TrimSpace(in.Currency)
	if e.Currency == "" {
		e.Currency = defaultCurrency
	}
	e.IncurredOn = in.IncurredOn
}

// List returns one page of expenses and the total match count
func (s *ExpenseService) List(ctx context.Context, m *domain.Membership, f domain.ExpenseFilter) ([]*domain.Expense, int, error) {
	if err := s.Authz.Require(m, security.PermReadRecords); err != nil {
		return nil, 0, err
	}
	f.Page = f.Page.Normalize()
	return s.expenses.List(ctx, m.OrganizationID, f)
}

// Get returns a single expense
func (s *ExpenseService) Get(ctx context.Context, m *domain.Membership, id string) (*domain.Expense, error) {
	if err := s.Authz.Require(m, security.PermReadRecords); err != nil {
		return nil, err
	}
	return s.expenses.GetByID(ctx, m.OrganizationID, id)
}

// Submit records a pending expense on behalf of the caller
func (s *ExpenseService) Submit(ctx context.Context, m *domain.Membership, in ExpenseInput) (*domain.Expense, error) {
	org, err := s.requireWrite(ctx, m, security.PermSubmitExpense)
	if err != nil {
		return nil, err
	}
	e := &domain.Expense{
		OrganizationID: m.OrganizationID,
		SubmittedBy:    m.UserID,
		Status:         domain.ExpensePending,
	}
	in.apply(e, org.Currency)
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.expenses.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.ExpenseSubmitted, "expense", e.ID,
		map[string]any{"category": e.Category, "amountCents": e.AmountCents})
	return e, nil
}

// Update edits a pending expense. Submitters may edit their own; reviewers any.
func (s *ExpenseService) Update(ctx context.Context, m *domain.Membership, id string, in ExpenseInput) (*domain.Expense, error) {
	if _, err := s.writableOrg(ctx, m.OrganizationID); err != nil {
		return nil, err
	}
	e, err := s.expenses.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if err := s.Authz.RequireOwnerOr(m, e.SubmittedBy, security.PermReviewExpenses); err != nil {
		return nil, err
	}
	if e.Status != domain.ExpensePending {
		return nil, fmt.Errorf("%s expenses cannot be edited: %w", e.Status, domain.ErrInvalidTransition)
	}
	in.apply(e, e.Currency)
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.expenses.Update(ctx, e, domain.ExpensePending); err != nil {
		return nil, fmt.Errorf("update expense: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.ExpenseUpdated, "expense", e.ID,
		map[string]any{"category": e.Category, "amountCents": e.AmountCents})
	return e, nil
}

// Delete removes an expense. Submitters may delete their own pending
// expenses; reviewers may delete any.
func (s *ExpenseService) Delete(ctx context.Context, m *domain.Membership, id string) error {
	if _, err := s.writableOrg(ctx, m.OrganizationID); err != nil {
		return err
	}
	e, err := s.expenses.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return err
	}
	reviewer := s.Authz.HasPermission(m.Role, security.PermReviewExpenses)
	if !reviewer {
		if e.SubmittedBy != m.UserID {
			return fmt.Errorf("not the submitter: %w", domain.ErrForbidden)
		}
		if e.Status != domain.ExpensePending {
			return fmt.Errorf("%s expenses cannot be deleted: %w", e.Status, domain.ErrInvalidTransition)
		}
	}
	if err := s.expenses.Delete(ctx, m.OrganizationID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.ExpenseDeleted, "expense", id,
		map[string]any{"amountCents": e.AmountCents, "status": e.Status})
	return nil
}

// Approve accepts a pending expense
func (s *ExpenseService) Approve(ctx context.Context, m *domain.Membership, id string) (*domain.Expense, error) {
	return s.review(ctx, m, id, events.ExpenseApproved, func(e *domain.Expense, now time.Time) error {
		return e.Approve(m.UserID, now)
	})
}

// Reject declines a pending expense with a reason
func (s *ExpenseService) Reject(ctx context.Context, m *domain.Membership, id, reason string) (*domain.Expense, error) {
	return s.review(ctx, m, id, events.ExpenseRejected, func(e *domain.Expense, now time.Time) error {
		return e.Reject(m.UserID, reason, now)
	})
}

func (s *ExpenseService) review(ctx context.Context, m *domain.Membership, id, eventType string, apply func(*domain.Expense, time.Time) error) (*domain.Expense, error) {
	if _, err := s.requireWrite(ctx, m, security.PermReviewExpenses); err != nil {
		return nil, err
	}
	e, err := s.expenses.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	from := e.Status
	if err := apply(e, s.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.expenses.Update(ctx, e, from); err != nil {
		return nil, fmt.Errorf("review expense: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, eventType, "expense", e.ID,
		map[string]any{"status": e.Status, "submittedBy": e.SubmittedBy, "reason": e.RejectionReason})
	return e, nil
}
