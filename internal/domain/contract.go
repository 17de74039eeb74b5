package domain

import (
	"context"
	"strings"
	"time"
)

// ContractStatus is the lifecycle state of a contract
type ContractStatus string

const (
	ContractDraft      ContractStatus = "draft"
	ContractActive     ContractStatus = "active"
	ContractCompleted  ContractStatus = "completed"
	ContractTerminated ContractStatus = "terminated"
	ContractExpired    ContractStatus = "expired"
)

// ParseContractStatus validates a status filter value
func ParseContractStatus(s string) (ContractStatus, error) {
	switch st := ContractStatus(strings.ToLower(s)); st {
	case ContractDraft, ContractActive, ContractCompleted, ContractTerminated, ContractExpired:
		return st, nil
	}
	return "", Invalid("status", "unknown contract status")
}

// Contract is an agreement between an organization and a client
type Contract struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organizationId" db:"organization_id"`
	ClientID       string         `json:"clientId" db:"client_id"`
	ClientName     string         `json:"clientName,omitempty" db:"client_name"`
	Title          string         `json:"title" db:"title"`
	Description    string         `json:"description" db:"description"`
	ValueCents     int64          `json:"valueCents" db:"value_cents"`
	Currency       string         `json:"currency" db:"currency"`
	StartDate      time.Time      `json:"startDate" db:"start_date"`
	EndDate        *time.Time     `json:"endDate,omitempty" db:"end_date"`
	Status         ContractStatus `json:"status" db:"status"`
	SignedAt       *time.Time     `json:"signedAt,omitempty" db:"signed_at"`
	TerminatedAt   *time.Time     `json:"terminatedAt,omitempty" db:"terminated_at"`
	CreatedBy      string         `json:"createdBy" db:"created_by"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
}

// Validate checks contract fields
func (c *Contract) Validate() error {
	c.Title = strings.TrimSpace(c.Title)
	if c.ClientID == "" {
		return Invalid("clientId", "is required")
	}
	if c.Title == "" {
		return Invalid("title", "is required")
	}
	if c.ValueCents < 0 {
		return Invalid("valueCents", "must not be negative")
	}
	if !ValidCurrency(c.Currency) {
		return Invalid("currency", "must be a 3-letter ISO code")
	}
	c.Currency = strings.ToUpper(c.Currency)
	if c.StartDate.IsZero() {
		return Invalid("startDate", "is required")
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return Invalid("endDate", "must not be before startDate")
	}
	return nil
}

// Activate marks a draft contract as signed and in force
func (c *Contract) Activate(now time.Time) error {
	if c.Status != ContractDraft {
		return transitionError("contract", c.Status, ContractActive)
	}
	c.Status = ContractActive
	c.SignedAt = &now
	return nil
}

// Complete closes an active contract successfully
func (c *Contract) Complete() error {
	if c.Status != ContractActive {
		return transitionError("contract", c.Status, ContractCompleted)
	}
	c.Status = ContractCompleted
	return nil
}

// Terminate ends an active contract early
func (c *Contract) Terminate(now time.Time) error {
	if c.Status != ContractActive {
		return transitionError("contract", c.Status, ContractTerminated)
	}
	c.Status = ContractTerminated
	c.TerminatedAt = &now
	return nil
}

// ContractFilter narrows contract listings
type ContractFilter struct {
	Status   ContractStatus
	ClientID string
	Page
}

// ContractRepository defines data access for contracts
type ContractRepository interface {
	Create(ctx context.Context, c *Contract) error
	GetByID(ctx context.Context, orgID, id string) (*Contract, error)
	List(ctx context.Context, orgID string, f ContractFilter) ([]*Contract, int, error)
	// Update fails with ErrInvalidTransition when the stored status is no longer from
	Update(ctx context.Context, c *Contract, from ContractStatus) error
	Delete(ctx context.Context, orgID, id string) error
	ExpireEnded(ctx context.Context, today time.Time) ([]*Contract, error)
	CountActive(ctx context.Context, orgID string) (int, error)
}
