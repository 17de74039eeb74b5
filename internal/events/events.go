// Package events fans organization change notifications out over Redis pub/sub.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/bizdesk/internal/observability/metrics"
)

// Event types
const (
	ClientCreated  = "client.created"
	ClientUpdated  = "client.updated"
	ClientArchived = "client.archived"
	ClientDeleted  = "client.deleted"

	InvoiceCreated = "invoice.created"
	InvoiceUpdated = "invoice.updated"
	InvoiceDeleted = "invoice.deleted"
	InvoiceSent    = "invoice.sent"
	InvoicePaid    = "invoice.paid"
	InvoiceOverdue = "invoice.overdue"
	InvoiceVoided  = "invoice.voided"

	ContractCreated    = "contract.created"
	ContractUpdated    = "contract.updated"
	ContractDeleted    = "contract.deleted"
	ContractActivated  = "contract.activated"
	ContractCompleted  = "contract.completed"
	ContractTerminated = "contract.terminated"
	ContractExpired    = "contract.expired"

	ExpenseSubmitted = "expense.submitted"
	ExpenseUpdated   = "expense.updated"
	ExpenseDeleted   = "expense.deleted"
	ExpenseApproved  = "expense.approved"
	ExpenseRejected  = "expense.rejected"

	AttachmentUploaded = "attachment.uploaded"
	AttachmentDeleted  = "attachment.deleted"

	MemberJoined      = "member.joined"
	MemberRoleChanged = "member.role_changed"
	MemberRemoved     = "member.removed"
	MemberInvited     = "member.invited"
	InvitationExpired = "invitation.expired"

	OrganizationUpdated = "organization.updated"

	SubscriptionActivated = "subscription.activated"
	SubscriptionCanceling = "subscription.canceling"
	SubscriptionResumed   = "subscription.resumed"
	SubscriptionRenewed   = "subscription.renewed"
	SubscriptionChanged   = "subscription.changed"
)

// Channel is the Redis channel carrying an organization's events
func Channel(orgID string) string {
	return "org-events:" + orgID
}

// DashboardInvalidator drops cached analytics for an organization
type DashboardInvalidator interface {
	Invalidate(ctx context.Context, orgID string) error
}

// Publisher implements domain.EventPublisher on Redis pub/sub
type Publisher struct {
	redis     *redis.Client
	dashboard DashboardInvalidator
	logger    *slog.Logger
	now       func() time.Time
}

// NewPublisher creates a publisher; dashboard may be nil
func NewPublisher(rc *redis.Client, dashboard DashboardInvalidator, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{redis: rc, dashboard: dashboard, logger: logger, now: time.Now}
}

// Publish broadcasts e to the organization's channel and invalidates its
// cached dashboard since every event may change the aggregates
func (p *Publisher) Publish(ctx context.Context, e domain.Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = p.now().UTC()
	}
	if p.dashboard != nil {
		if err := p.dashboard.Invalidate(ctx, e.OrganizationID); err != nil {
			p.logger.Warn("dashboard invalidation failed",
				slog.String("org_id", e.OrganizationID),
				slog.String("error", err.Error()),
			)
		}
	}

	err := p.redis.Publish(ctx, Channel(e.OrganizationID), e)
	metrics.ObserveEvent(e.Type, err)
	if err != nil {
		p.logger.Error("event publish failed",
			slog.String("type", e.Type),
			slog.String("org_id", e.OrganizationID),
			slog.String("error", err.Error()),
		)
		return err
	}
	p.logger.Debug("event published", slog.String("type", e.Type), slog.String("org_id", e.OrganizationID))
	return nil
}

// Subscription delivers raw JSON events for one organization
type Subscription struct {
	ps   *goredis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
}

// Subscribe opens a stream of the organization's events. The subscription is
// confirmed before returning so nothing published afterwards is missed.
func (p *Publisher) Subscribe(ctx context.Context, orgID string) (*Subscription, error) {
	ps := p.redis.Subscribe(ctx, Channel(orgID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	s := &Subscription{ps: ps, out: make(chan []byte, 16), done: make(chan struct{})}
	go func() {
		defer close(s.out)
		for msg := range ps.Channel() {
			select {
			case s.out <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		}
	}()
	return s, nil
}

// Messages returns the event payloads; it is closed after Close
func (s *Subscription) Messages() <-chan []byte {
	return s.out
}

// Close ends the subscription
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
