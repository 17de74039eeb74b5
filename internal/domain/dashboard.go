package domain

import (
	"context"
	"time"
)

// MonthlyAmount is a total for a calendar month ("2006-01")
type MonthlyAmount struct {
	Month       string `json:"month" db:"month"`
	AmountCents int64  `json:"amountCents" db:"amount_cents"`
}

// CategoryAmount is a total for an expense category
type CategoryAmount struct {
	Category    string `json:"category" db:"category"`
	AmountCents int64  `json:"amountCents" db:"amount_cents"`
}

// ClientRevenue is paid revenue attributed to a client
type ClientRevenue struct {
	ClientID    string `json:"clientId" db:"client_id"`
	ClientName  string `json:"clientName" db:"client_name"`
	AmountCents int64  `json:"amountCents" db:"amount_cents"`
}

// Receivables summarizes unpaid invoices
type Receivables struct {
	OutstandingCents int64 `json:"outstandingCents" db:"outstanding_cents"`
	OutstandingCount int   `json:"outstandingCount" db:"outstanding_count"`
	OverdueCents     int64 `json:"overdueCents" db:"overdue_cents"`
	OverdueCount     int   `json:"overdueCount" db:"overdue_count"`
}

// MonthlyNet is revenue minus expenses for one month
type MonthlyNet struct {
	Month         string `json:"month"`
	RevenueCents  int64  `json:"revenueCents"`
	ExpensesCents int64  `json:"expensesCents"`
	NetCents      int64  `json:"netCents"`
}

// DashboardSummary is the analytics payload for an organization
type DashboardSummary struct {
	OrganizationID     string             `json:"organizationId"`
	Months             []MonthlyNet       `json:"months"`
	Receivables        Receivables        `json:"receivables"`
	ExpensesByCategory []CategoryAmount   `json:"expensesByCategory"`
	TopClients         []ClientRevenue    `json:"topClients"`
	ClientCount        int                `json:"clientCount"`
	ActiveContracts    int                `json:"activeContracts"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	GeneratedAt        time.Time          `json:"generatedAt"`
}

// AnalyticsRepository runs the aggregate queries behind the dashboard
type AnalyticsRepository interface {
	RevenueByMonth(ctx context.Context, orgID string, since time.Time) ([]MonthlyAmount, error)
	ExpensesByMonth(ctx context.Context, orgID string, since time.Time) ([]MonthlyAmount, error)
	ExpensesByCategory(ctx context.Context, orgID string, since time.Time) ([]CategoryAmount, error)
	TopClients(ctx context.Context, orgID string, since time.Time, limit int) ([]ClientRevenue, error)
	Receivables(ctx context.Context, orgID string) (Receivables, error)
}
