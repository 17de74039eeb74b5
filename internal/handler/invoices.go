package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/service"
)

// InvoiceHandler serves an organization's invoices
type InvoiceHandler struct {
	invoices *service.InvoiceService
	logger   *slog.Logger
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(invoices *service.InvoiceService, logger *slog.Logger) *InvoiceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceHandler{invoices: invoices, logger: logger}
}

// InvoiceRequest is the body of invoice create and update
type InvoiceRequest struct {
	ClientID      string            `json:"clientId"`
	IssueDate     string            `json:"issueDate"`
	DueDate       string            `json:"dueDate"`
	Currency      string            `json:"currency"`
	TaxRateBP     int               `json:"taxRateBp"`
	DiscountCents int64             `json:"discountCents"`
	Notes         string            `json:"notes"`
	Items         []domain.LineItem `json:"items"`
}

func (req InvoiceRequest) input() (service.InvoiceInput, error) {
	issue, err := parseDate("issueDate", req.IssueDate)
	if err != nil {
		return service.InvoiceInput{}, err
	}
	due, err := parseDate("dueDate", req.DueDate)
	if err != nil {
		return service.InvoiceInput{}, err
	}
	return service.InvoiceInput{
		ClientID:      req.ClientID,
		IssueDate:     issue,
		DueDate:       due,
		Currency:      req.Currency,
		TaxRateBP:     req.TaxRateBP,
		DiscountCents: req.DiscountCents,
		Notes:         req.Notes,
		Items:         req.Items,
	}, nil
}

// MarkPaidRequest optionally backdates the payment
type MarkPaidRequest struct {
	PaidAt string `json:"paidAt"`
}

// List handles GET /api/organizations/{orgId}/invoices?status=&clientId=&from=&to=
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	f, err := invoiceFilter(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	invoices, total, err := h.invoices.List(r.Context(), m, f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(invoices, total, f.Page))
}

func invoiceFilter(r *http.Request) (domain.InvoiceFilter, error) {
	q := r.URL.Query()
	f := domain.InvoiceFilter{ClientID: q.Get("clientId")}
	var err error
	if f.Page, err = pageFrom(r); err != nil {
		return f, err
	}
	if v := q.Get("status"); v != "" {
		if f.Status, err = domain.ParseInvoiceStatus(v); err != nil {
			return f, err
		}
	}
	f.From, f.To, err = dateRange(r)
	return f, err
}

// Get handles GET /api/organizations/{orgId}/invoices/{id}
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	inv, err := h.invoices.Get(r.Context(), m, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// Create handles POST /api/organizations/{orgId}/invoices
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err := h.decode(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	inv, err := h.invoices.Create(r.Context(), m, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// Update handles PUT /api/organizations/{orgId}/invoices/{id}
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err := h.decode(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	inv, err := h.invoices.Update(r.Context(), m, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) decode(w http.ResponseWriter, r *http.Request) (service.InvoiceInput, error) {
	var req InvoiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return service.InvoiceInput{}, err
	}
	return req.input()
}

// Delete handles DELETE /api/organizations/{orgId}/invoices/{id}
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.invoices.Delete(r.Context(), m, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Send handles POST /api/organizations/{orgId}/invoices/{id}/send
func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.invoices.Send)
}

// Void handles POST /api/organizations/{orgId}/invoices/{id}/void
func (h *InvoiceHandler) Void(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.invoices.Void)
}

// MarkPaid handles POST /api/organizations/{orgId}/invoices/{id}/mark-paid
func (h *InvoiceHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	var req MarkPaidRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	paidAt, err := optionalDate("paidAt", req.PaidAt)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, m *domain.Membership, id string) (*domain.Invoice, error) {
		return h.invoices.MarkPaid(ctx, m, id, paidAt)
	})
}

func (h *InvoiceHandler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, *domain.Membership, string) (*domain.Invoice, error)) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	inv, err := apply(r.Context(), m, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
