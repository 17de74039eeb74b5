package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/events"
	"github.com/aryan0dhankhar/bizdesk/internal/security"
)

// ContractService manages client contracts
type ContractService struct {
	Common
	contracts domain.ContractRepository
	clients   domain.ClientRepository
}

// NewContractService creates the contract service
func NewContractService(c Common, contracts domain.ContractRepository, clients domain.ClientRepository) *ContractService {
	return &ContractService{Common: c.withDefaults(), contracts: contracts, clients: clients}
}

// ContractInput carries the editable contract fields
type ContractInput struct {
	ClientID    string
	Title       string
	Description string
	ValueCents  int64
	Currency    string
	StartDate   time.Time
	EndDate     *time.Time
}

// List returns one page of contracts and the total match count
func (s *ContractService) List(ctx context.Context, m *domain.Membership, f domain.ContractFilter) ([]*domain.Contract, int, error) {
	if err := s.Authz.Require(m, security.PermReadRecords); err != nil {
		return nil, 0, err
	}
	f.Page = f.Page.Normalize()
	return s.contracts.List(ctx, m.OrganizationID, f)
}

// Get returns a single contract
func (s *ContractService) Get(ctx context.Context, m *domain.Membership, id string) (*domain.Contract, error) {
	if err := s.Authz.Require(m, security.PermReadRecords); err != nil {
		return nil, err
	}
	return s.contracts.GetByID(ctx, m.OrganizationID, id)
}

// Create stores a draft contract
func (s *ContractService) Create(ctx context.Context, m *domain.Membership, in ContractInput) (*domain.Contract, error) {
	org, err := s.requireWrite(ctx, m, security.PermWriteRecords)
	if err != nil {
		return nil, err
	}
	c := &domain.Contract{
		OrganizationID: m.OrganizationID,
		ClientID:       in.ClientID,
		Title:          in.Title,
		Description:    strings.TrimSpace(in.Description),
		ValueCents:     in.ValueCents,
		Currency:       strings.TrimSpace(in.Currency),
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Status:         domain.ContractDraft,
		CreatedBy:      m.UserID,
	}
	if c.Currency == "" {
		c.Currency = org.Currency
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkClient(ctx, c); err != nil {
		return nil, err
	}
	if err := s.contracts.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create contract: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.ContractCreated, "contract", c.ID,
		map[string]any{"title": c.Title, "valueCents": c.ValueCents})
	return c, nil
}

func (s *ContractService) checkClient(ctx context.Context, c *domain.Contract) error {
	client, err := s.clients.GetByID(ctx, c.OrganizationID, c.ClientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Invalid("clientId", "unknown client")
		}
		return err
	}
	if client.Archived {
		return domain.Invalid("clientId", "client is archived")
	}
	c.ClientName = client.Name
	return nil
}

// Update edits a contract. Drafts accept every field; active contracts only
// their title and description.
func (s *ContractService) Update(ctx context.Context, m *domain.Membership, id string, in ContractInput) (*domain.Contract, error) {
	if _, err := s.requireWrite(ctx, m, security.PermWriteRecords); err != nil {
		return nil, err
	}
	c, err := s.contracts.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return nil, err
	}

	switch c.Status {
	case domain.ContractDraft:
		c.ClientID = in.ClientID
		c.ValueCents = in.ValueCents
		if cur := strings.TrimSpace(in.Currency); cur != "" {
			c.Currency = cur
		}
		c.StartDate = in.StartDate
		c.EndDate = in.EndDate
	case domain.ContractActive:
		if in.ClientID != c.ClientID || in.ValueCents != c.ValueCents ||
			!in.StartDate.Equal(c.StartDate) || !sameDate(in.EndDate, c.EndDate) ||
			(in.Currency != "" && !strings.EqualFold(in.Currency, c.Currency)) {
			return nil, domain.Invalid("contract", "only title and description can change once active")
		}
	default:
		return nil, fmt.Errorf("%s contracts cannot be edited: %w", c.Status, domain.ErrInvalidTransition)
	}
	c.Title = in.Title
	c.Description = strings.TrimSpace(in.Description)
	status := c.Status

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Status == domain.ContractDraft {
		if err := s.checkClient(ctx, c); err != nil {
			return nil, err
		}
	}
	if err := s.contracts.Update(ctx, c, status); err != nil {
		return nil, fmt.Errorf("update contract: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.ContractUpdated, "contract", c.ID,
		map[string]any{"title": c.Title, "valueCents": c.ValueCents})
	return c, nil
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Delete removes a draft contract
func (s *ContractService) Delete(ctx context.Context, m *domain.Membership, id string) error {
	if _, err := s.requireWrite(ctx, m, security.PermWriteRecords); err != nil {
		return err
	}
	c, err := s.contracts.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.ContractDraft {
		return fmt.Errorf("only draft contracts can be deleted: %w", domain.ErrInvalidTransition)
	}
	if err := s.contracts.Delete(ctx, m.OrganizationID, id); err != nil {
		return fmt.Errorf("delete contract: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.ContractDeleted, "contract", id, map[string]string{"title": c.Title})
	return nil
}

// Activate marks a draft contract signed
func (s *ContractService) Activate(ctx context.Context, m *domain.Membership, id string) (*domain.Contract, error) {
	return s.transition(ctx, m, id, events.ContractActivated, func(c *domain.Contract, now time.Time) error {
		return c.Activate(now)
	})
}

// Complete closes an active contract
func (s *ContractService) Complete(ctx context.Context, m *domain.Membership, id string) (*domain.Contract, error) {
	return s.transition(ctx, m, id, events.ContractCompleted, func(c *domain.Contract, _ time.Time) error {
		return c.Complete()
	})
}

// Terminate ends an active contract early
func (s *ContractService) Terminate(ctx context.Context, m *domain.Membership, id string) (*domain.Contract, error) {
	return s.transition(ctx, m, id, events.ContractTerminated, func(c *domain.Contract, now time.Time) error {
		return c.Terminate(now)
	})
}

func (s *ContractService) transition(ctx context.Context, m *domain.Membership, id, eventType string, apply func(*domain.Contract, time.Time) error) (*domain.Contract, error) {
	if _, err := s.requireWrite(ctx, m, security.PermWriteRecords); err != nil {
		return nil, err
	}
	c, err := s.contracts.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	from := c.Status
	if err := apply(c, s.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.contracts.Update(ctx, c, from); err != nil {
		return nil, fmt.Errorf("update contract: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, eventType, "contract", c.ID,
		map[string]any{"from": from, "to": c.Status})
	return c, nil
}

// ExpireEnded moves active contracts whose end date has passed to expired
func (s *ContractService) ExpireEnded(ctx context.Context) (int, error) {
	expired, err := s.contracts.ExpireEnded(ctx, today(s.Now()))
	if err != nil {
		return 0, err
	}
	for _, c := range expired {
		s.emit(ctx, c.OrganizationID, SystemActor, events.ContractExpired, "contract", c.ID,
			map[string]any{"title": c.Title, "endDate": c.EndDate})
	}
	return len(expired), nil
}
