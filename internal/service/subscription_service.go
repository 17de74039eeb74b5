package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/events"
	"github.com/aryan0dhankhar/bizdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/bizdesk/internal/security"
)

// Webhook event types sent by the billing provider
const (
	WebhookCheckoutCompleted   = "checkout.completed"
	WebhookSubscriptionRenewed = "subscription.renewed"
)

// SubscriptionService runs the subscription state machine: checkout and
// activation, cancellation, resumption and the time-based sweep
type SubscriptionService struct {
	Common
	checkouts     domain.CheckoutRepository
	members       domain.MembershipRepository
	invitations   domain.InvitationRepository
	plans         map[string]domain.Plan
	checkoutURL   string
	webhookSecret []byte
}

// NewSubscriptionService creates the subscription service
func NewSubscriptionService(
	c Common,
	checkouts domain.CheckoutRepository,
	members domain.MembershipRepository,
	invitations domain.InvitationRepository,
	plans map[string]domain.Plan,
	checkoutURL, webhookSecret string,
) *SubscriptionService {
	return &SubscriptionService{
		Common:        c.withDefaults(),
		checkouts:     checkouts,
		members:       members,
		invitations:   invitations,
		plans:         plans,
		checkoutURL:   checkoutURL,
		webhookSecret: []byte(webhookSecret),
	}
}

// SubscriptionView is the billing state shown to members
type SubscriptionView struct {
	Status           domain.SubscriptionStatus `json:"status"`
	Plan             string                    `json:"plan,omitempty"`
	TrialEndsAt      *time.Time                `json:"trialEndsAt,omitempty"`
	CurrentPeriodEnd *time.Time                `json:"currentPeriodEnd,omitempty"`
	CanWrite         bool                      `json:"canWrite"`
	Seats            SeatUsage                 `json:"seats"`
}

// SeatUsage counts members and pending invitations; Limit 0 means unlimited
type SeatUsage struct {
	Members int `json:"members"`
	Pending int `json:"pending"`
	Limit   int `json:"limit"`
}

// CheckoutResult points the owner at the hosted checkout page
type CheckoutResult struct {
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Get returns the organization's subscription state and seat usage
func (s *SubscriptionService) Get(ctx context.Context, m *domain.Membership) (*SubscriptionView, error) {
	if err := s.Authz.Require(m, security.PermReadOrganization); err != nil {
		return nil, err
	}
	org, err := s.Orgs.GetByID(ctx, m.OrganizationID)
	if err != nil {
		return nil, err
	}
	now := s.Now().UTC()
	membersCount, err := s.members.Count(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	pending, err := s.invitations.CountPending(ctx, org.ID, now)
	if err != nil {
		return nil, fmt.Errorf("count invitations: %w", err)
	}
	return &SubscriptionView{
		Status:           org.SubscriptionStatus,
		Plan:             org.Plan,
		TrialEndsAt:      org.TrialEndsAt,
		CurrentPeriodEnd: org.CurrentPeriodEnd,
		CanWrite:         org.CanWrite(now),
		Seats:            SeatUsage{Members: membersCount, Pending: pending, Limit: org.SeatLimit(s.plans)},
	}, nil
}

// Checkout opens a hosted checkout session for planID
func (s *SubscriptionService) Checkout(ctx context.Context, m *domain.Membership, planID string) (*CheckoutResult, error) {
	if err := s.Authz.Require(m, security.PermManageBilling); err != nil {
		return nil, err
	}
	planID = strings.ToLower(strings.TrimSpace(planID))
	if _, ok := s.plans[planID]; !ok {
		return nil, domain.Invalid("plan", "unknown plan")
	}
	org, err := s.Orgs.GetByID(ctx, m.OrganizationID)
	if err != nil {
		return nil, err
	}
	switch org.SubscriptionStatus {
	case domain.SubscriptionActive, domain.SubscriptionCanceling:
		return nil, fmt.Errorf("subscription is already %s: %w", org.SubscriptionStatus, domain.ErrConflict)
	}

	now := s.Now().UTC()
	session := &domain.CheckoutSession{
		ID:             uuid.NewString(),
		OrganizationID: org.ID,
		Plan:           planID,
		Status:         domain.CheckoutPending,
		CreatedBy:      m.UserID,
		ExpiresAt:      now.Add(domain.CheckoutTTL),
		CreatedAt:      now,
	}
	if err := s.checkouts.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	s.Audit.LogAction(ctx, org.ID, m.UserID, "subscription.checkout_started", "checkout_session", session.ID,
		map[string]string{"plan": planID})
	return &CheckoutResult{
		SessionID: session.ID,
		URL:       s.hostedURL(session),
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *SubscriptionService) hostedURL(session *domain.CheckoutSession) string {
	q := url.Values{}
	q.Set("session_id", session.ID)
	q.Set("org", session.OrganizationID)
	q.Set("plan", session.Plan)
	sep := "?"
	if strings.Contains(s.checkoutURL, "?") {
		sep = "&"
	}
	return s.checkoutURL + sep + q.Encode()
}

// Cancel schedules the subscription to end with the paid period
func (s *SubscriptionService) Cancel(ctx context.Context, m *domain.Membership) (*domain.Organization, error) {
	return s.transition(ctx, m, events.SubscriptionCanceling, func(org *domain.Organization) error {
		return org.Cancel()
	})
}

// Resume reverses a scheduled cancellation before the period ends
func (s *SubscriptionService) Resume(ctx context.Context, m *domain.Membership) (*domain.Organization, error) {
	return s.transition(ctx, m, events.SubscriptionResumed, func(org *domain.Organization) error {
		return org.Resume(s.Now().UTC())
	})
}

func (s *SubscriptionService) transition(ctx context.Context, m *domain.Membership, eventType string, apply func(*domain.Organization) error) (*domain.Organization, error) {
	if err := s.Authz.Require(m, security.PermManageBilling); err != nil {
		return nil, err
	}
	org, err := s.Orgs.GetByID(ctx, m.OrganizationID)
	if err != nil {
		return nil, err
	}
	from := org.SubscriptionStatus
	if err := apply(org); err != nil {
		return nil, err
	}
	if err := s.Orgs.UpdateSubscription(ctx, org); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	metrics.ObserveSubscriptionTransition(string(org.SubscriptionStatus))
	s.emit(ctx, org.ID, m.UserID, eventType, "organization", org.ID,
		map[string]domain.SubscriptionStatus{"from": from, "to": org.SubscriptionStatus})
	return org, nil
}

type webhookEnvelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type checkoutCompleted struct {
	SessionID       string `json:"sessionId"`
	CustomerRef     string `json:"customerRef"`
	SubscriptionRef string `json:"subscriptionRef"`
}

type subscriptionRenewed struct {
	SubscriptionRef string    `json:"subscriptionRef"`
	PeriodEnd       time.Time `json:"periodEnd"`
}

// VerifySignature checks the hex HMAC-SHA256 of payload in constant time
func (s *SubscriptionService) VerifySignature(payload []byte, signature string) error {
	if len(s.webhookSecret) == 0 {
		return fmt.Errorf("webhook secret not configured: %w", domain.ErrUnauthenticated)
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return fmt.Errorf("malformed signature: %w", domain.ErrUnauthenticated)
	}
	mac := hmac.New(sha256.New, s.webhookSecret)
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return fmt.Errorf("signature mismatch: %w", domain.ErrUnauthenticated)
	}
	return nil
}

// SignPayload returns the signature the billing provider would send
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// HandleWebhook verifies and applies a billing provider notification
func (s *SubscriptionService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := s.VerifySignature(payload, signature); err != nil {
		s.Logger.Warn("billing webhook rejected", slog.String("error", err.Error()))
		return err
	}
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return domain.Invalid("body", "is not valid JSON")
	}

	switch env.Type {
	case WebhookCheckoutCompleted:
		var data checkoutCompleted
		if err := json.Unmarshal(env.Data, &data); err != nil || data.SessionID == "" {
			return domain.Invalid("data.sessionId", "is required")
		}
		return s.completeCheckout(ctx, data)
	case WebhookSubscriptionRenewed:
		var data subscriptionRenewed
		if err := json.Unmarshal(env.Data, &data); err != nil || data.SubscriptionRef == "" || data.PeriodEnd.IsZero() {
			return domain.Invalid("data", "subscriptionRef and periodEnd are required")
		}
		return s.renew(ctx, data)
	default:
		s.Logger.Info("ignoring billing webhook", slog.String("type", env.Type), slog.String("id", env.ID))
		return nil
	}
}

// completeCheckout is the activation: the owner finished paying for a plan
func (s *SubscriptionService) completeCheckout(ctx context.Context, data checkoutCompleted) error {
	session, err := s.checkouts.GetByID(ctx, data.SessionID)
	if err != nil {
		return err
	}
	now := s.Now().UTC()
	switch {
	case session.Status == domain.CheckoutCompleted:
		s.Logger.Info("checkout already completed", slog.String("session_id", session.ID))
		return nil
	case session.Status == domain.CheckoutExpired || !now.Before(session.ExpiresAt):
		return fmt.Errorf("checkout session expired: %w", domain.ErrConflict)
	}
	plan, ok := s.plans[session.Plan]
	if !ok {
		return fmt.Errorf("checkout references unknown plan %q: %w", session.Plan, domain.ErrConflict)
	}
	org, err := s.Orgs.GetByID(ctx, session.OrganizationID)
	if err != nil {
		return err
	}
	from := org.SubscriptionStatus
	if err := org.Activate(plan, now, data.CustomerRef, data.SubscriptionRef); err != nil {
		return err
	}

	if err := s.checkouts.Complete(ctx, session.ID, now, org); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// a concurrent delivery of the same event won
			if cur, gerr := s.checkouts.GetByID(ctx, session.ID); gerr == nil && cur.Status == domain.CheckoutCompleted {
				return nil
			}
		}
		return fmt.Errorf("activate subscription: %w", err)
	}

	metrics.ObserveSubscriptionTransition(string(org.SubscriptionStatus))
	s.Logger.Info("subscription activated",
		slog.String("org_id", org.ID),
		slog.String("plan", plan.ID),
		slog.String("session_id", session.ID),
	)
	s.emit(ctx, org.ID, session.CreatedBy, events.SubscriptionActivated, "organization", org.ID,
		map[string]any{"from": from, "plan": plan.ID, "currentPeriodEnd": org.CurrentPeriodEnd})
	return nil
}

func (s *SubscriptionService) renew(ctx context.Context, data subscriptionRenewed) error {
	org, err := s.Orgs.GetBySubscriptionRef(ctx, data.SubscriptionRef)
	if err != nil {
		return err
	}
	from := org.SubscriptionStatus
	if err := org.Renew(data.PeriodEnd.UTC()); err != nil {
		return err
	}
	if err := s.Orgs.UpdateSubscription(ctx, org); err != nil {
		return fmt.Errorf("renew subscription: %w", err)
	}
	metrics.ObserveSubscriptionTransition(string(org.SubscriptionStatus))
	s.emit(ctx, org.ID, SystemActor, events.SubscriptionRenewed, "organization", org.ID,
		map[string]any{"from": from, "currentPeriodEnd": org.CurrentPeriodEnd})
	return nil
}

// Sweep applies time-based transitions: expired trials, ended cancellations
// and lapsed payments
func (s *SubscriptionService) Sweep(ctx context.Context) (int, error) {
	now := s.Now().UTC()
	due, err := s.Orgs.ListSubscriptionsDue(ctx, now)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, org := range due {
		from := org.SubscriptionStatus
		if !org.Sweep(now) {
			continue
		}
		if err := s.Orgs.UpdateSubscription(ctx, org); err != nil {
			s.Logger.Error("failed to sweep subscription",
				slog.String("org_id", org.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		changed++
		metrics.ObserveSubscriptionTransition(string(org.SubscriptionStatus))
		s.emit(ctx, org.ID, SystemActor, events.SubscriptionChanged, "organization", org.ID,
			map[string]domain.SubscriptionStatus{"from": from, "to": org.SubscriptionStatus})
	}
	return changed, nil
}

// ExpireCheckouts closes checkout sessions nobody completed in time
func (s *SubscriptionService) ExpireCheckouts(ctx context.Context) (int, error) {
	n, err := s.checkouts.ExpireStale(ctx, s.Now().UTC())
	return int(n), err
}
