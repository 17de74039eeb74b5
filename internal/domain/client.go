package domain

import (
	"context"
	"net/mail"
	"strings"
	"time"
)

// Client is a customer of an organization
type Client struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organizationId" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email" db:"email"`
	Phone          string    `json:"phone" db:"phone"`
	Company        string    `json:"company" db:"company"`
	Address        string    `json:"address" db:"address"`
	TaxID          string    `json:"taxId" db:"tax_id"`
	Notes          string    `json:"notes" db:"notes"`
	Archived       bool      `json:"archived" db:"archived"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// Validate normalizes and checks client fields
func (c *Client) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = NormalizeEmail(c.Email)
	if c.Name == "" {
		return Invalid("name", "is required")
	}
	if len(c.Name) > 200 {
		return Invalid("name", "must be at most 200 characters")
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return Invalid("email", "is not a valid address")
		}
	}
	return nil
}

// ClientFilter narrows client listings
type ClientFilter struct {
	Query    string
	Archived *bool
	Page
}

// ClientRepository defines data access for clients
type ClientRepository interface {
	Create(ctx context.Context, c *Client) error
	GetByID(ctx context.Context, orgID, id string) (*Client, error)
	List(ctx context.Context, orgID string, f ClientFilter) ([]*Client, int, error)
	Update(ctx context.Context, c *Client) error
	Delete(ctx context.Context, orgID, id string) error
	HasDependents(ctx context.Context, orgID, id string) (bool, error)
	Count(ctx context.Context, orgID string) (int, error)
}

// Page is limit/offset pagination
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Normalize clamps the page into allowed bounds
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// NormalizeEmail trims and lowercases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
