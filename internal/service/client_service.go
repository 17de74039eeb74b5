package service

import (
	"context"
	"fmt"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/events"
	"github.com/aryan0dhankhar/bizdesk/internal/security"
)

// ClientService manages an organization's customers
type ClientService struct {
	Common
	clients domain.ClientRepository
}

// NewClientService creates the client service
func NewClientService(c Common, clients domain.ClientRepository) *ClientService {
	return &ClientService{Common: c.withDefaults(), clients: clients}
}

// ClientInput carries the editable client fields
type ClientInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
	Address  string `json:"address"`
	TaxID    string `json:"taxId"`
	Notes    string `json:"notes"`
	Archived *bool  `json:"archived,omitempty"`
}

func (in ClientInput) apply(c *domain.Client) {
	c.Name = in.Name
	c.Email = in.Email
	c.Phone = in.Phone
	c.Company = in.Company
	c.Address = in.Address
	c.TaxID = in.TaxID
	c.Notes = in.Notes
	if in.Archived != nil {
		c.Archived = *in.Archived
	}
}

// List returns one page of clients and the total match count
func (s *ClientService) List(ctx context.Context, m *domain.Membership, f domain.ClientFilter) ([]*domain.Client, int, error) {
	if err := s.Authz.Require(m, security.PermReadRecords); err != nil {
		return nil, 0, err
	}
	f.Page = f.Page.Normalize()
	return s.clients.List(ctx, m.OrganizationID, f)
}

// Get returns a single client
func (s *ClientService) Get(ctx context.Context, m *domain.Membership, id string) (*domain.Client, error) {
	if err := s.Authz.Require(m, security.PermReadRecords); err != nil {
		return nil, err
	}
	return s.clients.GetByID(ctx, m.OrganizationID, id)
}

// Create adds a client
func (s *ClientService) Create(ctx context.Context, m *domain.Membership, in ClientInput) (*domain.Client, error) {
	if _, err := s.requireWrite(ctx, m, security.PermWriteRecords); err != nil {
		return nil, err
	}
	c := &domain.Client{OrganizationID: m.OrganizationID}
	in.apply(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.clients.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.ClientCreated, "client", c.ID, c)
	return c, nil
}

// Update replaces a client's fields
func (s *ClientService) Update(ctx context.Context, m *domain.Membership, id string, in ClientInput) (*domain.Client, error) {
	if _, err := s.requireWrite(ctx, m, security.PermWriteRecords); err != nil {
		return nil, err
	}
	c, err := s.clients.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	in.apply(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.clients.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.ClientUpdated, "client", c.ID, c)
	return c, nil
}

// Delete removes a client, or archives it when invoices or contracts still
// reference it. The returned flag reports whether it was archived.
func (s *ClientService) Delete(ctx context.Context, m *domain.Membership, id string) (archived bool, err error) {
	if _, err := s.requireWrite(ctx, m, security.PermWriteRecords); err != nil {
		return false, err
	}
	c, err := s.clients.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return false, err
	}
	hasDependents, err := s.clients.HasDependents(ctx, m.OrganizationID, id)
	if err != nil {
		return false, fmt.Errorf("check client references: %w", err)
	}

	if hasDependents {
		c.Archived = true
		if err := s.clients.Update(ctx, c); err != nil {
			return false, fmt.Errorf("archive client: %w", err)
		}
		s.emit(ctx, m.OrganizationID, m.UserID, events.ClientArchived, "client", id, nil)
		return true, nil
	}

	if err := s.clients.Delete(ctx, m.OrganizationID, id); err != nil {
		return false, fmt.Errorf("delete client: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.ClientDeleted, "client", id, map[string]string{"name": c.Name})
	return false, nil
}
