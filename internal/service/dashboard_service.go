package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/bizdesk/internal/security"
)

const (
	DefaultDashboardMonths = 12
	MaxDashboardMonths     = 24
	topClientLimit         = 5
)

// DashboardCache stores computed summaries per organization and window
type DashboardCache interface {
	Get(ctx context.Context, orgID string, months int) (*domain.DashboardSummary, bool, error)
	Set(ctx context.Context, s *domain.DashboardSummary, months int) error
}

// DashboardService aggregates an organization's financial overview
type DashboardService struct {
	Common
	analytics domain.AnalyticsRepository
	clients   domain.ClientRepository
	contracts domain.ContractRepository
	cache     DashboardCache
}

// NewDashboardService creates the dashboard service; cache may be nil
func NewDashboardService(c Common, analytics domain.AnalyticsRepository, clients domain.ClientRepository, contracts domain.ContractRepository, cache DashboardCache) *DashboardService {
	return &DashboardService{
		Common:    c.withDefaults(),
		analytics: analytics,
		clients:   clients,
		contracts: contracts,
		cache:     cache,
	}
}

// Summary returns the dashboard for the trailing number of months,
// including the current one. Zero selects the default window.
func (s *DashboardService) Summary(ctx context.Context, m *domain.Membership, months int) (*domain.DashboardSummary, error) {
	if err := s.Authz.Require(m, security.PermReadRecords); err != nil {
		return nil, err
	}
	if months == 0 {
		months = DefaultDashboardMonths
	}
	if months < 1 || months > MaxDashboardMonths {
		return nil, domain.Invalid("months", fmt.Sprintf("must be between 1 and %d", MaxDashboardMonths))
	}
	orgID := m.OrganizationID

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, orgID, months)
		if err != nil {
			s.Logger.Warn("dashboard cache read failed", slog.String("org_id", orgID), slog.String("error", err.Error()))
		}
		metrics.ObserveDashboardCache(ok)
		if ok {
			return cached, nil
		}
	}

	org, err := s.Orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}

	now := s.Now().UTC()
	since := monthStart(now).AddDate(0, -(months - 1), 0)

	summary := &domain.DashboardSummary{
		OrganizationID:     orgID,
		SubscriptionStatus: org.SubscriptionStatus,
		GeneratedAt:        now,
	}
	var revenue, spent []domain.MonthlyAmount

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		revenue, err = s.analytics.RevenueByMonth(gctx, orgID, since)
		return err
	})
	g.Go(func() error {
		var err error
		spent, err = s.analytics.ExpensesByMonth(gctx, orgID, since)
		return err
	})
	g.Go(func() error {
		var err error
		summary.ExpensesByCategory, err = s.analytics.ExpensesByCategory(gctx, orgID, since)
		return err
	})
	g.Go(func() error {
		var err error
		summary.TopClients, err = s.analytics.TopClients(gctx, orgID, since, topClientLimit)
		return err
	})
	g.Go(func() error {
		var err error
		summary.Receivables, err = s.analytics.Receivables(gctx, orgID)
		return err
	})
	g.Go(func() error {
		var err error
		summary.ClientCount, err = s.clients.Count(gctx, orgID)
		return err
	})
	g.Go(func() error {
		var err error
		summary.ActiveContracts, err = s.contracts.CountActive(gctx, orgID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build dashboard: %w", err)
	}

	summary.Months = monthSeries(since, months, revenue, spent)
	if summary.ExpensesByCategory == nil {
		summary.ExpensesByCategory = []domain.CategoryAmount{}
	}
	if summary.TopClients == nil {
		summary.TopClients = []domain.ClientRevenue{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, summary, months); err != nil {
			s.Logger.Warn("dashboard cache write failed", slog.String("org_id", orgID), slog.String("error", err.Error()))
		}
	}
	return summary, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// monthSeries fills every month of the window, including empty ones
func monthSeries(since time.Time, months int, revenue, spent []domain.MonthlyAmount) []domain.MonthlyNet {
	rev := make(map[string]int64, len(revenue))
	for _, r := range revenue {
		rev[r.Month] = r.AmountCents
	}
	exp := make(map[string]int64, len(spent))
	for _, e := range spent {
		exp[e.Month] = e.AmountCents
	}
	out := make([]domain.MonthlyNet, 0, months)
	for i := 0; i < months; i++ {
		key := since.AddDate(0, i, 0).Format("2006-01")
		out = append(out, domain.MonthlyNet{
			Month:         key,
			RevenueCents:  rev[key],
			ExpensesCents: exp[key],
			NetCents:      rev[key] - exp[key],
		})
	}
	return out
}
