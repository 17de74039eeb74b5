package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

type fakeAnalytics struct {
	mu      sync.Mutex
	calls   int
	since   time.Time
	revenue []domain.MonthlyAmount
	spent   []domain.MonthlyAmount
	err     error
}

func (a *fakeAnalytics) record(since time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.since = since
}

func (a *fakeAnalytics) RevenueByMonth(_ context.Context, _ string, since time.Time) ([]domain.MonthlyAmount, error) {
	a.record(since)
	return a.revenue, a.err
}

func (a *fakeAnalytics) ExpensesByMonth(_ context.Context, _ string, since time.Time) ([]domain.MonthlyAmount, error) {
	a.record(since)
	return a.spent, nil
}

func (a *fakeAnalytics) ExpensesByCategory(context.Context, string, time.Time) ([]domain.CategoryAmount, error) {
	return nil, nil
}

func (a *fakeAnalytics) TopClients(_ context.Context, _ string, _ time.Time, limit int) ([]domain.ClientRevenue, error) {
	return []domain.ClientRevenue{{ClientID: "c1", ClientName: "Globex", AmountCents: 5000}}, nil
}

func (a *fakeAnalytics) Receivables(context.Context, string) (domain.Receivables, error) {
	return domain.Receivables{OutstandingCents: 900, OutstandingCount: 1}, nil
}

type fakeDashboardCache struct {
	stored map[int]*domain.DashboardSummary
	sets   int
}

func (c *fakeDashboardCache) Get(_ context.Context, _ string, months int) (*domain.DashboardSummary, bool, error) {
	s, ok := c.stored[months]
	return s, ok, nil
}

func (c *fakeDashboardCache) Set(_ context.Context, s *domain.DashboardSummary, months int) error {
	if c.stored == nil {
		c.stored = map[int]*domain.DashboardSummary{}
	}
	c.stored[months] = s
	c.sets++
	return nil
}

func TestDashboardSummary(t *testing.T) {
	f := newFixture()
	analytics := &fakeAnalytics{
		revenue: []domain.MonthlyAmount{{Month: "2026-03", AmountCents: 10000}, {Month: "2025-12", AmountCents: 4000}},
		spent:   []domain.MonthlyAmount{{Month: "2026-03", AmountCents: 2500}},
	}
	s := NewDashboardService(f.common, analytics, f.clients, f.contracts, nil)
	org := f.seedOrg(domain.SubscriptionActive)
	member := f.member(org, "member-1", domain.RoleMember)
	f.seedClient(org, "Globex")

	summary, err := s.Summary(context.Background(), member, 0)
	require.NoError(t, err)

	require.Len(t, summary.Months, DefaultDashboardMonths)
	assert.Equal(t, "2025-04", summary.Months[0].Month)
	last := summary.Months[len(summary.Months)-1]
	assert.Equal(t, domain.MonthlyNet{Month: "2026-03", RevenueCents: 10000, ExpensesCents: 2500, NetCents: 7500}, last)
	assert.Equal(t, int64(4000), summary.Months[8].NetCents)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), analytics.since)

	assert.Equal(t, 1, summary.ClientCount)
	assert.Equal(t, int64(900), summary.Receivables.OutstandingCents)
	assert.NotNil(t, summary.ExpensesByCategory)
	assert.Len(t, summary.TopClients, 1)
	assert.Equal(t, domain.SubscriptionActive, summary.SubscriptionStatus)
}

func TestDashboardMonthsBounds(t *testing.T) {
	f := newFixture()
	s := NewDashboardService(f.common, &fakeAnalytics{}, f.clients, f.contracts, nil)
	org := f.seedOrg(domain.SubscriptionActive)
	owner := f.member(org, "owner-1", domain.RoleOwner)

	for _, months := range []int{-1, MaxDashboardMonths + 1} {
		_, err := s.Summary(context.Background(), owner, months)
		assert.True(t, domain.IsValidation(err), "months=%d", months)
	}

	summary, err := s.Summary(context.Background(), owner, 1)
	require.NoError(t, err)
	assert.Len(t, summary.Months, 1)
}

func TestDashboardUsesCache(t *testing.T) {
	f := newFixture()
	analytics := &fakeAnalytics{}
	cache := &fakeDashboardCache{}
	s := NewDashboardService(f.common, analytics, f.clients, f.contracts, cache)
	org := f.seedOrg(domain.SubscriptionActive)
	owner := f.member(org, "owner-1", domain.RoleOwner)
	ctx := context.Background()

	first, err := s.Summary(ctx, owner, 6)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	calls := analytics.calls

	second, err := s.Summary(ctx, owner, 6)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, calls, analytics.calls, "a cached summary must not hit the database")
}

func TestDashboardQueryFailure(t *testing.T) {
	f := newFixture()
	cache := &fakeDashboardCache{}
	s := NewDashboardService(f.common, &fakeAnalytics{err: errors.New("db down")}, f.clients, f.contracts, cache)
	org := f.seedOrg(domain.SubscriptionActive)
	owner := f.member(org, "owner-1", domain.RoleOwner)

	_, err := s.Summary(context.Background(), owner, 3)
	require.Error(t, err)
	assert.Zero(t, cache.sets)
}

func TestAuditListRequiresAdmin(t *testing.T) {
	f := newFixture()
	s := NewAuditService(f.common)
	clients := NewClientService(f.common, f.clients)
	ctx := context.Background()
	org := f.seedOrg(domain.SubscriptionActive)
	admin := f.member(org, "admin-1", domain.RoleAdmin)
	manager := f.member(org, "manager-1", domain.RoleManager)

	_, err := clients.Create(ctx, admin, ClientInput{Name: "Initech"})
	require.NoError(t, err)

	entries, total, err := s.List(ctx, admin, domain.AuditFilter{Action: "client.created"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "admin-1", entries[0].ActorID)

	_, _, err = s.List(ctx, manager, domain.AuditFilter{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
