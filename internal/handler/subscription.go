package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/service"
)

// SignatureHeader carries the hex HMAC of a billing webhook body
const SignatureHeader = "X-Billing-Signature"

// SubscriptionHandler serves the subscription lifecycle and billing webhook
type SubscriptionHandler struct {
	subs   *service.SubscriptionService
	logger *slog.Logger
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subs *service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionHandler{subs: subs, logger: logger}
}

// CheckoutRequest selects the plan to buy
type CheckoutRequest struct {
	Plan string `json:"plan"`
}

// Get handles GET /api/organizations/{orgId}/subscription
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.subs.Get(r.Context(), m)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Checkout handles POST /api/organizations/{orgId}/subscription/checkout
func (h *SubscriptionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.subs.Checkout(r.Context(), m, req.Plan)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Cancel handles POST /api/organizations/{orgId}/subscription/cancel
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.subs.Cancel)
}

// Resume handles POST /api/organizations/{orgId}/subscription/resume
func (h *SubscriptionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.subs.Resume)
}

func (h *SubscriptionHandler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, *domain.Membership) (*domain.Organization, error)) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	org, err := apply(r.Context(), m)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// Webhook handles POST /api/billing/webhook. The signature covers the raw
// body, so it is read in full before decoding.
func (h *SubscriptionHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		writeError(w, r, h.logger, domain.Invalid("body", "is too large"))
		return
	}
	if err := h.subs.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
