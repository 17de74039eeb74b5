package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/handler"
	"github.com/aryan0dhankhar/bizdesk/internal/service"
)

// Globals are shared by every command
type Globals struct {
	API *apiClient
	Out io.Writer
}

type LoginCmd struct {
	Email    string `help:"Account email" required:""`
	Password string `help:"Account password" env:"BIZDESK_PASSWORD" required:""`
}

func (l *LoginCmd) Run(ctx context.Context, g *Globals) error {
	var result service.AuthResult
	err := g.API.do(ctx, http.MethodPost, "/api/auth/login", false,
		handler.LoginRequest{Email: l.Email, Password: l.Password}, &result)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := g.API.saveSession(session{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Email:        l.Email,
	}); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	fmt.Fprintf(g.Out, "✓ Logged in as: %s\n", l.Email)
	return nil
}

type LogoutCmd struct{}

func (l *LogoutCmd) Run(ctx context.Context, g *Globals) error {
	if err := g.API.do(ctx, http.MethodPost, "/api/auth/logout", true, nil, nil); err != nil && !errors.Is(err, errNotLoggedIn) {
		fmt.Fprintf(g.Out, "server sign-out failed: %v\n", err)
	}
	if err := g.API.clearSession(); err != nil {
		return err
	}
	fmt.Fprintln(g.Out, "✓ Logged out")
	return nil
}

type WhoamiCmd struct{}

func (c *WhoamiCmd) Run(ctx context.Context, g *Globals) error {
	var profile service.Profile
	if err := g.API.do(ctx, http.MethodGet, "/api/auth/me", true, nil, &profile); err != nil {
		return err
	}
	if profile.User != nil {
		fmt.Fprintf(g.Out, "%s (%s)\n\n", profile.User.Email, profile.User.ID)
	}
	w := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORGANIZATION\tID\tROLE\tSUBSCRIPTION")
	for _, o := range profile.Organizations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.Name, o.ID, o.Role, o.SubscriptionStatus)
	}
	return w.Flush()
}

type OrgsCmd struct{}

func (c *OrgsCmd) Run(ctx context.Context, g *Globals) error {
	var page handler.ListResponse[domain.OrganizationWithRole]
	if err := g.API.do(ctx, http.MethodGet, "/api/organizations", true, nil, &page); err != nil {
		return err
	}
	w := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSLUG\tROLE\tSUBSCRIPTION\tPLAN")
	for _, o := range page.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", o.ID, o.Name, o.Slug, o.Role, o.SubscriptionStatus, o.Plan)
	}
	return w.Flush()
}

type PlansCmd struct{}

func (c *PlansCmd) Run(ctx context.Context, g *Globals) error {
	var body struct {
		Plans []handler.PlanResponse `json:"plans"`
	}
	if err := g.API.do(ctx, http.MethodGet, "/api/plans", false, nil, &body); err != nil {
		return err
	}
	w := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAN\tNAME\tSEATS\tINTERVAL")
	for _, p := range body.Plans {
		seats := strconv.Itoa(p.Seats)
		if p.Seats == 0 {
			seats = "unlimited"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%dd\n", p.ID, p.Name, seats, p.IntervalDays)
	}
	return w.Flush()
}

type ClientsCmd struct {
	Org      string `help:"Organization ID" required:"" env:"BIZDESK_ORG"`
	Query    string `help:"Filter by name" short:"q"`
	Archived bool   `help:"Show archived clients instead of active ones"`
	Limit    int    `help:"Page size" default:"50"`
	Offset   int    `help:"Page offset" default:"0"`
}

func (c *ClientsCmd) Run(ctx context.Context, g *Globals) error {
	q := url.Values{}
	q.Set("archived", strconv.FormatBool(c.Archived))
	q.Set("limit", strconv.Itoa(c.Limit))
	q.Set("offset", strconv.Itoa(c.Offset))
	if c.Query != "" {
		q.Set("q", c.Query)
	}
	var page handler.ListResponse[domain.Client]
	if err := g.API.do(ctx, http.MethodGet, orgPath(c.Org, "/clients?"+q.Encode()), true, nil, &page); err != nil {
		return err
	}
	w := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMAIL\tCOMPANY\tID")
	for _, cl := range page.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cl.Name, cl.Email, cl.Company, cl.ID)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "\n%d of %d clients\n", len(page.Items), page.Total)
	return nil
}

type InvoicesCmd struct {
	Org    string `help:"Organization ID" required:"" env:"BIZDESK_ORG"`
	Status string `help:"Filter by status (draft, sent, paid, overdue, void)"`
	Client string `help:"Filter by client ID"`
	Limit  int    `help:"Page size" default:"50"`
	Offset int    `help:"Page offset" default:"0"`
}

func (c *InvoicesCmd) Run(ctx context.Context, g *Globals) error {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.Limit))
	q.Set("offset", strconv.Itoa(c.Offset))
	if c.Status != "" {
		q.Set("status", c.Status)
	}
	if c.Client != "" {
		q.Set("clientId", c.Client)
	}
	var page handler.ListResponse[domain.Invoice]
	if err := g.API.do(ctx, http.MethodGet, orgPath(c.Org, "/invoices?"+q.Encode()), true, nil, &page); err != nil {
		return err
	}
	w := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tCLIENT\tSTATUS\tDUE\tTOTAL")
	for _, inv := range page.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			inv.Number, inv.ClientName, inv.Status, inv.DueDate.Format("2006-01-02"), money(inv.TotalCents, inv.Currency))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "\n%d of %d invoices\n", len(page.Items), page.Total)
	return nil
}

type DashboardCmd struct {
	Org    string `help:"Organization ID" required:"" env:"BIZDESK_ORG"`
	Months int    `help:"Number of months to chart" default:"12"`
}

func (c *DashboardCmd) Run(ctx context.Context, g *Globals) error {
	var s domain.DashboardSummary
	path := orgPath(c.Org, "/dashboard?months="+strconv.Itoa(c.Months))
	if err := g.API.do(ctx, http.MethodGet, path, true, nil, &s); err != nil {
		return err
	}

	fmt.Fprintf(g.Out, "Subscription: %s\n", s.SubscriptionStatus)
	fmt.Fprintf(g.Out, "Clients: %d  Active contracts: %d\n", s.ClientCount, s.ActiveContracts)
	fmt.Fprintf(g.Out, "Outstanding: %s (%d)  Overdue: %s (%d)\n\n",
		money(s.Receivables.OutstandingCents, ""), s.Receivables.OutstandingCount,
		money(s.Receivables.OverdueCents, ""), s.Receivables.OverdueCount)

	w := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "MONTH\tREVENUE\tEXPENSES\tNET\t")
	for _, m := range s.Months {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", m.Month,
			money(m.RevenueCents, ""), money(m.ExpensesCents, ""), money(m.NetCents, ""))
	}
	return w.Flush()
}

func orgPath(orgID, suffix string) string {
	return "/api/organizations/" + url.PathEscape(orgID) + suffix
}

// money renders integer cents as a decimal amount
func money(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	s := fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
	if currency != "" {
		s += " " + currency
	}
	return s
}
