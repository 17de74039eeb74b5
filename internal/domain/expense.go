package domain

import (
	"context"
	"strings"
	"time"
)

// ExpenseStatus is the approval state of an expense
type ExpenseStatus string

const (
	ExpensePending  ExpenseStatus = "pending"
	ExpenseApproved ExpenseStatus = "approved"
	ExpenseRejected ExpenseStatus = "rejected"
)

// ParseExpenseStatus validates a status filter value
func ParseExpenseStatus(s string) (ExpenseStatus, error) {
	switch st := ExpenseStatus(strings.ToLower(s)); st {
	case ExpensePending, ExpenseApproved, ExpenseRejected:
		return st, nil
	}
	return "", Invalid("status", "unknown expense status")
}

// ExpenseCategories lists the accepted expense categories
var ExpenseCategories = []string{
	"travel", "meals", "software", "hardware", "office",
	"marketing", "contractors", "utilities", "other",
}

// ValidExpenseCategory reports whether c is a known category
func ValidExpenseCategory(c string) bool {
	for _, known := range ExpenseCategories {
		if known == c {
			return true
		}
	}
	return false
}

// Expense is money spent on behalf of an organization
type Expense struct {
	ID              string        `json:"id" db:"id"`
	OrganizationID  string        `json:"organizationId" db:"organization_id"`
	SubmittedBy     string        `json:"submittedBy" db:"submitted_by"`
	Category        string        `json:"category" db:"category"`
	Vendor          string        `json:"vendor" db:"vendor"`
	Description     string        `json:"description" db:"description"`
	AmountCents     int64         `json:"amountCents" db:"amount_cents"`
	Currency        string        `json:"currency" db:"currency"`
	IncurredOn      time.Time     `json:"incurredOn" db:"incurred_on"`
	Status          ExpenseStatus `json:"status" db:"status"`
	ReviewedBy      *string       `json:"reviewedBy,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time    `json:"reviewedAt,omitempty" db:"reviewed_at"`
	RejectionReason string        `json:"rejectionReason,omitempty" db:"rejection_reason"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" db:"updated_at"`
}

// Validate checks expense fields
func (e *Expense) Validate() error {
	e.Category = strings.ToLower(strings.TrimSpace(e.Category))
	e.Vendor = strings.TrimSpace(e.Vendor)
	if !ValidExpenseCategory(e.Category) {
		return Invalid("category", "unknown category")
	}
	if e.AmountCents <= 0 {
		return Invalid("amountCents", "must be positive")
	}
	if !ValidCurrency(e.Currency) {
		return Invalid("currency", "must be a 3-letter ISO code")
	}
	e.Currency = strings.ToUpper(e.Currency)
	if e.IncurredOn.IsZero() {
		return Invalid("incurredOn", "is required")
	}
	return nil
}

// Approve accepts a pending expense
func (e *Expense) Approve(reviewer string, now time.Time) error {
	if e.Status != ExpensePending {
		return transitionError("expense", e.Status, ExpenseApproved)
	}
	e.Status = ExpenseApproved
	e.ReviewedBy = &reviewer
	e.ReviewedAt = &now
	return nil
}

// Reject declines a pending expense with a reason
func (e *Expense) Reject(reviewer, reason string, now time.Time) error {
	if e.Status != ExpensePending {
		return transitionError("expense", e.Status, ExpenseRejected)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Invalid("reason", "is required")
	}
	e.Status = ExpenseRejected
	e.ReviewedBy = &reviewer
	e.ReviewedAt = &now
	e.RejectionReason = reason
	return nil
}

// ExpenseFilter narrows expense listings
type ExpenseFilter struct {
	Status      ExpenseStatus
	Category    string
	SubmittedBy string
	From        *time.Time
	To          *time.Time
	Page
}

// ExpenseRepository defines data access for expenses
type ExpenseRepository interface {
	Create(ctx context.Context, e *Expense) error
	GetByID(ctx context.Context, orgID, id string) (*Expense, error)
	List(ctx context.Context, orgID string, f ExpenseFilter) ([]*Expense, int, error)
	// Update fails with ErrInvalidTransition when the stored status is no longer from
	Update(ctx context.Context, e *Expense, from ExpenseStatus) error
	Delete(ctx context.Context, orgID, id string) error
}
