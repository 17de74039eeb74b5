package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/service"
)

// ExpenseHandler serves expense submission and review
type ExpenseHandler struct {
	expenses *service.ExpenseService
	logger   *slog.Logger
}

// NewExpenseHandler creates a new expense handler
func NewExpenseHandler(expenses *service.ExpenseService, logger *slog.Logger) *ExpenseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpenseHandler{expenses: expenses, logger: logger}
}

// ExpenseRequest is the body of expense submit and update
type ExpenseRequest struct {
	Category    string `json:"category"`
	Vendor      string `json:"vendor"`
	Description string `json:"description"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
	IncurredOn  string `json:"incurredOn"`
}

func (req ExpenseRequest) input() (service.ExpenseInput, error) {
	incurred, err := parseDate("incurredOn", req.IncurredOn)
	if err != nil {
		return service.ExpenseInput{}, err
	}
	return service.ExpenseInput{
		Category:    req.Category,
		Vendor:      req.Vendor,
		Description: req.Description,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		IncurredOn:  incurred,
	}, nil
}

// RejectRequest carries the reviewer's reason
type RejectRequest struct {
	Reason string `json:"reason"`
}

// List handles GET /api/organizations/{orgId}/expenses?status=&category=&submittedBy=&from=&to=
func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	f, err := expenseFilter(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	expenses, total, err := h.expenses.List(r.Context(), m, f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(expenses, total, f.Page))
}

func expenseFilter(r *http.Request) (domain.ExpenseFilter, error) {
	q := r.URL.Query()
	f := domain.ExpenseFilter{Category: q.Get("category"), SubmittedBy: q.Get("submittedBy")}
	var err error
	if f.Page, err = pageFrom(r); err != nil {
		return f, err
	}
	if v := q.Get("status"); v != "" {
		if f.Status, err = domain.ParseExpenseStatus(v); err != nil {
			return f, err
		}
	}
	f.From, f.To, err = dateRange(r)
	return f, err
}

// Get handles GET /api/organizations/{orgId}/expenses/{id}
func (h *ExpenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	e, err := h.expenses.Get(r.Context(), m, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Submit handles POST /api/organizations/{orgId}/expenses
func (h *ExpenseHandler) Submit(w http.ResponseWriter, r *http.Request) {
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
	e, err := h.expenses.Submit(r.Context(), m, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// Update handles PUT /api/organizations/{orgId}/expenses/{id}
func (h *ExpenseHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	e, err := h.expenses.Update(r.Context(), m, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *ExpenseHandler) decode(w http.ResponseWriter, r *http.Request) (service.ExpenseInput, error) {
	var req ExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return service.ExpenseInput{}, err
	}
	return req.input()
}

// Delete handles DELETE /api/organizations/{orgId}/expenses/{id}
func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.expenses.Delete(r.Context(), m, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Approve handles POST /api/organizations/{orgId}/expenses/{id}/approve
func (h *ExpenseHandler) Approve(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	e, err := h.expenses.Approve(r.Context(), m, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Reject handles POST /api/organizations/{orgId}/expenses/{id}/reject
func (h *ExpenseHandler) Reject(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req RejectRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	e, err := h.expenses.Reject(r.Context(), m, r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
