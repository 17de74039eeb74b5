package handler

import (
	"net/http"
)

// Handlers groups every handler the API serves
type Handlers struct {
	Health        *HealthHandler
	Auth          *AuthHandler
	Organizations *OrganizationHandler
	Members       *MemberHandler
	Subscriptions *SubscriptionHandler
	Clients       *ClientHandler
	Invoices      *InvoiceHandler
	Contracts     *ContractHandler
	Expenses      *ExpenseHandler
	Attachments   *AttachmentHandler
	Dashboard     *DashboardHandler
	Events        *EventsHandler
	Plans         *PlansHandler
	Metrics       http.Handler
}

// Routes registers the API on a new ServeMux. Routes under
// /api/organizations/{orgId} run behind requireMember, which resolves the
// caller's membership into the request context.
func (hs *Handlers) Routes(requireMember func(http.Handler) http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	org := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, requireMember(fn))
	}

	mux.HandleFunc("GET /healthz", hs.Health.Health)
	mux.HandleFunc("GET /readyz", hs.Health.Ready)
	if hs.Metrics != nil {
		mux.Handle("GET /metrics", hs.Metrics)
	}

	mux.HandleFunc("POST /api/auth/signup", hs.Auth.SignUp)
	mux.HandleFunc("POST /api/auth/login", hs.Auth.Login)
	mux.HandleFunc("POST /api/auth/refresh", hs.Auth.Refresh)
	mux.HandleFunc("POST /api/auth/logout", hs.Auth.Logout)
	mux.HandleFunc("POST /api/auth/callback", hs.Auth.Callback)
	mux.HandleFunc("POST /api/auth/recover", hs.Auth.Recover)
	mux.HandleFunc("GET /api/auth/me", hs.Auth.Me)

	if hs.Plans != nil {
		mux.Handle("GET /api/plans", hs.Plans)
	}
	mux.HandleFunc("POST /api/billing/webhook", hs.Subscriptions.Webhook)
	mux.HandleFunc("POST /api/invitations/accept", hs.Members.Accept)

	mux.HandleFunc("POST /api/organizations", hs.Organizations.Create)
	mux.HandleFunc("GET /api/organizations", hs.Organizations.List)
	org("GET /api/organizations/{orgId}", hs.Organizations.Get)
	org("PATCH /api/organizations/{orgId}", hs.Organizations.Update)
	org("DELETE /api/organizations/{orgId}", hs.Organizations.Delete)

	org("GET /api/organizations/{orgId}/members", hs.Members.List)
	org("PATCH /api/organizations/{orgId}/members/{userId}", hs.Members.ChangeRole)
	org("DELETE /api/organizations/{orgId}/members/{userId}", hs.Members.Remove)
	org("POST /api/organizations/{orgId}/leave", hs.Members.Leave)
	org("GET /api/organizations/{orgId}/invitations", hs.Members.ListInvitations)
	org("POST /api/organizations/{orgId}/invitations", hs.Members.Invite)
	org("DELETE /api/organizations/{orgId}/invitations/{id}", hs.Members.RevokeInvitation)

	org("GET /api/organizations/{orgId}/subscription", hs.Subscriptions.Get)
	org("POST /api/organizations/{orgId}/subscription/checkout", hs.Subscriptions.Checkout)
	org("POST /api/organizations/{orgId}/subscription/cancel", hs.Subscriptions.Cancel)
	org("POST /api/organizations/{orgId}/subscription/resume", hs.Subscriptions.Resume)

	org("GET /api/organizations/{orgId}/clients", hs.Clients.List)
	org("POST /api/organizations/{orgId}/clients", hs.Clients.Create)
	org("GET /api/organizations/{orgId}/clients/{id}", hs.Clients.Get)
	org("PUT /api/organizations/{orgId}/clients/{id}", hs.Clients.Update)
	org("DELETE /api/organizations/{orgId}/clients/{id}", hs.Clients.Delete)

	org("GET /api/organizations/{orgId}/invoices", hs.Invoices.List)
	org("POST /api/organizations/{orgId}/invoices", hs.Invoices.Create)
	org("GET /api/organizations/{orgId}/invoices/{id}", hs.Invoices.Get)
	org("PUT /api/organizations/{orgId}/invoices/{id}", hs.Invoices.Update)
	org("DELETE /api/organizations/{orgId}/invoices/{id}", hs.Invoices.Delete)
	org("POST /api/organizations/{orgId}/invoices/{id}/send", hs.Invoices.Send)
	org("POST /api/organizations/{orgId}/invoices/{id}/mark-paid", hs.Invoices.MarkPaid)
	org("POST /api/organizations/{orgId}/invoices/{id}/void", hs.Invoices.Void)

	org("GET /api/organizations/{orgId}/contracts", hs.Contracts.List)
	org("POST /api/organizations/{orgId}/contracts", hs.Contracts.Create)
	org("GET /api/organizations/{orgId}/contracts/{id}", hs.Contracts.Get)
	org("PUT /api/organizations/{orgId}/contracts/{id}", hs.Contracts.Update)
	org("DELETE /api/organizations/{orgId}/contracts/{id}", hs.Contracts.Delete)
	org("POST /api/organizations/{orgId}/contracts/{id}/activate", hs.Contracts.Activate)
	org("POST /api/organizations/{orgId}/contracts/{id}/complete", hs.Contracts.Complete)
	org("POST /api/organizations/{orgId}/contracts/{id}/terminate", hs.Contracts.Terminate)

	org("GET /api/organizations/{orgId}/expenses", hs.Expenses.List)
	org("POST /api/organizations/{orgId}/expenses", hs.Expenses.Submit)
	org("GET /api/organizations/{orgId}/expenses/{id}", hs.Expenses.Get)
	org("PUT /api/organizations/{orgId}/expenses/{id}", hs.Expenses.Update)
	org("DELETE /api/organizations/{orgId}/expenses/{id}", hs.Expenses.Delete)
	org("POST /api/organizations/{orgId}/expenses/{id}/approve", hs.Expenses.Approve)
	org("POST /api/organizations/{orgId}/expenses/{id}/reject", hs.Expenses.Reject)

	org("GET /api/organizations/{orgId}/attachments", hs.Attachments.List)
	org("POST /api/organizations/{orgId}/attachments", hs.Attachments.Upload)
	org("GET /api/organizations/{orgId}/attachments/{id}", hs.Attachments.Get)
	org("DELETE /api/organizations/{orgId}/attachments/{id}", hs.Attachments.Delete)

	org("GET /api/organizations/{orgId}/dashboard", hs.Dashboard.Summary)
	org("GET /api/organizations/{orgId}/audit", hs.Dashboard.Audit)

	mux.Handle("GET /ws/organizations/{orgId}/events", requireMember(hs.Events))

	return mux
}
