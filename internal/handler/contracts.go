package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/service"
)

// ContractHandler serves an organization's contracts
type ContractHandler struct {
	contracts *service.ContractService
	logger    *slog.Logger
}

// NewContractHandler creates a new contract handler
func NewContractHandler(contracts *service.ContractService, logger *slog.Logger) *ContractHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContractHandler{contracts: contracts, logger: logger}
}

// ContractRequest is the body of contract create and update
type ContractRequest struct {
	ClientID    string `json:"clientId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ValueCents  int64  `json:"valueCents"`
	Currency    string `json:"currency"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
}

func (req ContractRequest) input() (service.ContractInput, error) {
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		return service.ContractInput{}, err
	}
	end, err := optionalDate("endDate", req.EndDate)
	if err != nil {
		return service.ContractInput{}, err
	}
	return service.ContractInput{
		ClientID:    req.ClientID,
		Title:       req.Title,
		Description: req.Description,
		ValueCents:  req.ValueCents,
		Currency:    req.Currency,
		StartDate:   start,
		EndDate:     end,
	}, nil
}

// List handles GET /api/organizations/{orgId}/contracts?status=&clientId=
func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page, err := pageFrom(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	f := domain.ContractFilter{ClientID: r.URL.Query().Get("clientId"), Page: page}
	if v := r.URL.Query().Get("status"); v != "" {
		if f.Status, err = domain.ParseContractStatus(v); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	contracts, total, err := h.contracts.List(r.Context(), m, f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(contracts, total, page))
}

// Get handles GET /api/organizations/{orgId}/contracts/{id}
func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.contracts.Get(r.Context(), m, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Create handles POST /api/organizations/{orgId}/contracts
func (h *ContractHandler) Create(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req ContractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.contracts.Create(r.Context(), m, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Update handles PUT /api/organizations/{orgId}/contracts/{id}
func (h *ContractHandler) Update(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req ContractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.contracts.Update(r.Context(), m, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /api/organizations/{orgId}/contracts/{id}
func (h *ContractHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.contracts.Delete(r.Context(), m, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activate handles POST /api/organizations/{orgId}/contracts/{id}/activate
func (h *ContractHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.contracts.Activate)
}

// Complete handles POST /api/organizations/{orgId}/contracts/{id}/complete
func (h *ContractHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.contracts.Complete)
}

// Terminate handles POST /api/organizations/{orgId}/contracts/{id}/terminate
func (h *ContractHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.contracts.Terminate)
}

func (h *ContractHandler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, *domain.Membership, string) (*domain.Contract, error)) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := apply(r.Context(), m, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
