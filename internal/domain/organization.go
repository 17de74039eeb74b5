package domain

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// SubscriptionStatus is the billing state of an organization
type SubscriptionStatus string

const (
	SubscriptionTrialing  SubscriptionStatus = "trialing"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCanceling SubscriptionStatus = "canceling"
	SubscriptionCanceled  SubscriptionStatus = "canceled"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
)

// Plan describes a purchasable subscription tier
type Plan struct {
	ID       string        `json:"id" mapstructure:"id"`
	Name     string        `json:"name" mapstructure:"name"`
	Seats    int           `json:"seats" mapstructure:"seats"` // 0 means unlimited
	Interval time.Duration `json:"-" mapstructure:"interval"` // exposed as intervalDays by the plans catalog
}

// TrialSeats caps membership while an organization is trialing.
const TrialSeats = 3

// Organization represents a tenant
type Organization struct {
	ID                 string             `json:"id" db:"id"`
	Name               string             `json:"name" db:"name"`
	Slug               string             `json:"slug" db:"slug"`
	BillingEmail       string             `json:"billingEmail" db:"billing_email"`
	Address            string             `json:"address" db:"address"`
	Currency           string             `json:"currency" db:"currency"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus" db:"subscription_status"`
	Plan               string             `json:"plan" db:"plan"`
	TrialEndsAt        *time.Time         `json:"trialEndsAt,omitempty" db:"trial_ends_at"`
	CurrentPeriodEnd   *time.Time         `json:"currentPeriodEnd,omitempty" db:"current_period_end"`
	BillingCustomerRef string             `json:"-" db:"billing_customer_ref"`
	SubscriptionRef    string             `json:"-" db:"subscription_ref"`
	CreatedBy          string             `json:"createdBy" db:"created_by"`
	CreatedAt          time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time          `json:"updatedAt" db:"updated_at"`
	DeletedAt          *time.Time         `json:"-" db:"deleted_at"`
}

// OrganizationRepository defines data access for organizations
type OrganizationRepository interface {
	Create(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id string) (*Organization, error)
	GetBySubscriptionRef(ctx context.Context, ref string) (*Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Update(ctx context.Context, org *Organization) error
	UpdateSubscription(ctx context.Context, org *Organization) error
	SoftDelete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]*OrganizationWithRole, error)
	ListSubscriptionsDue(ctx context.Context, now time.Time) ([]*Organization, error)
}

// OrganizationWithRole pairs an organization with the caller's role in it
type OrganizationWithRole struct {
	Organization
	Role Role `json:"role" db:"role"`
}

// Validate checks the mutable organization fields
func (o *Organization) Validate() error {
	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		return Invalid("name", "is required")
	}
	if len(o.Name) > 120 {
		return Invalid("name", "must be at most 120 characters")
	}
	if o.Currency == "" {
		o.Currency = "USD"
	}
	if !ValidCurrency(o.Currency) {
		return Invalid("currency", "must be a 3-letter ISO code")
	}
	o.Currency = strings.ToUpper(o.Currency)
	return nil
}

// StartTrial puts a new organization in the trialing state
func (o *Organization) StartTrial(now time.Time, days int) {
	end := now.AddDate(0, 0, days)
	o.SubscriptionStatus = SubscriptionTrialing
	o.TrialEndsAt = &end
	o.CurrentPeriodEnd = nil
}

// CanWrite reports whether business data may be modified at the given time
func (o *Organization) CanWrite(now time.Time) bool {
	switch o.SubscriptionStatus {
	case SubscriptionActive, SubscriptionCanceling:
		return true
	case SubscriptionTrialing:
		return o.TrialEndsAt == nil || now.Before(*o.TrialEndsAt)
	default:
		return false
	}
}

// SeatLimit returns the member cap for the current state; 0 means unlimited
func (o *Organization) SeatLimit(plans map[string]Plan) int {
	if o.SubscriptionStatus == SubscriptionTrialing || o.Plan == "" {
		return TrialSeats
	}
	if p, ok := plans[o.Plan]; ok {
		return p.Seats
	}
	return TrialSeats
}

// Activate marks the organization subscribed to plan after a completed checkout
func (o *Organization) Activate(plan Plan, now time.Time, customerRef, subscriptionRef string) error {
	switch o.SubscriptionStatus {
	case SubscriptionTrialing, SubscriptionExpired, SubscriptionCanceled, SubscriptionPastDue:
	default:
		return transitionError("subscription", o.SubscriptionStatus, SubscriptionActive)
	}
	end := now.Add(plan.Interval)
	o.SubscriptionStatus = SubscriptionActive
	o.Plan = plan.ID
	o.CurrentPeriodEnd = &end
	o.TrialEndsAt = nil
	if customerRef != "" {
		o.BillingCustomerRef = customerRef
	}
	if subscriptionRef != "" {
		o.SubscriptionRef = subscriptionRef
	}
	return nil
}

// Cancel schedules the subscription to end at the current period end
func (o *Organization) Cancel() error {
	if o.SubscriptionStatus != SubscriptionActive {
		return transitionError("subscription", o.SubscriptionStatus, SubscriptionCanceling)
	}
	o.SubscriptionStatus = SubscriptionCanceling
	return nil
}

// Resume undoes a scheduled cancellation while the paid period is still running
func (o *Organization) Resume(now time.Time) error {
	if o.SubscriptionStatus != SubscriptionCanceling {
		return transitionError("subscription", o.SubscriptionStatus, SubscriptionActive)
	}
	if o.CurrentPeriodEnd == nil || !now.Before(*o.CurrentPeriodEnd) {
		return transitionError("subscription", SubscriptionCanceled, SubscriptionActive)
	}
	o.SubscriptionStatus = SubscriptionActive
	return nil
}

// Renew extends the paid period, recovering from past_due
func (o *Organization) Renew(periodEnd time.Time) error {
	switch o.SubscriptionStatus {
	case SubscriptionActive, SubscriptionPastDue, SubscriptionCanceling:
	default:
		return transitionError("subscription", o.SubscriptionStatus, SubscriptionActive)
	}
	if o.SubscriptionStatus == SubscriptionPastDue {
		o.SubscriptionStatus = SubscriptionActive
	}
	o.CurrentPeriodEnd = &periodEnd
	return nil
}

// Sweep applies time-based transitions and reports whether the status changed
func (o *Organization) Sweep(now time.Time) bool {
	switch o.SubscriptionStatus {
	case SubscriptionTrialing:
		if o.TrialEndsAt != nil && !now.Before(*o.TrialEndsAt) {
			o.SubscriptionStatus = SubscriptionExpired
			return true
		}
	case SubscriptionCanceling:
		if o.CurrentPeriodEnd != nil && !now.Before(*o.CurrentPeriodEnd) {
			o.SubscriptionStatus = SubscriptionCanceled
			return true
		}
	case SubscriptionActive:
		if o.CurrentPeriodEnd != nil && !now.Before(*o.CurrentPeriodEnd) {
			o.SubscriptionStatus = SubscriptionPastDue
			return true
		}
	}
	return false
}

// Slugify derives a URL-safe slug from a display name
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if len(s) > 48 {
		s = strings.TrimSuffix(s[:48], "-")
	}
	if s == "" {
		s = "org"
	}
	return s
}

// ValidCurrency reports whether c looks like an ISO 4217 code
func ValidCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
