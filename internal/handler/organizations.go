package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/bizdesk/internal/service"
)

// OrganizationHandler serves tenant management
type OrganizationHandler struct {
	orgs   *service.OrganizationService
	logger *slog.Logger
}

// NewOrganizationHandler creates a new organization handler
func NewOrganizationHandler(orgs *service.OrganizationService, logger *slog.Logger) *OrganizationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrganizationHandler{orgs: orgs, logger: logger}
}

// Create handles POST /api/organizations
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.OrganizationInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	org, err := h.orgs.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

// List handles GET /api/organizations
func (h *OrganizationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	orgs, err := h.orgs.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(orgs, len(orgs), pageAll(len(orgs))))
}

// Get handles GET /api/organizations/{orgId}
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	org, err := h.orgs.Get(r.Context(), m)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// Update handles PATCH /api/organizations/{orgId}
func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.OrganizationInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	org, err := h.orgs.Update(r.Context(), m, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// Delete handles DELETE /api/organizations/{orgId}
func (h *OrganizationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.orgs.Delete(r.Context(), m); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("organization deleted",
		slog.String("org_id", m.OrganizationID),
		slog.String("user_id", m.UserID),
	)
	w.WriteHeader(http.StatusNoContent)
}
