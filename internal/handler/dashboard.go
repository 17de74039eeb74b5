package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/service"
)

// DashboardHandler serves analytics and the audit trail
type DashboardHandler struct {
	dashboard *service.DashboardService
	audit     *service.AuditService
	logger    *slog.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard *service.DashboardService, audit *service.AuditService, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{dashboard: dashboard, audit: audit, logger: logger}
}

// Summary handles GET /api/organizations/{orgId}/dashboard?months=N
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	months := 0
	if v := r.URL.Query().Get("months"); v != "" {
		if months, err = strconv.Atoi(v); err != nil {
			writeError(w, r, h.logger, domain.Invalid("months", "must be an integer"))
			return
		}
	}

	summary, err := h.dashboard.Summary(r.Context(), m, months)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Audit handles GET /api/organizations/{orgId}/audit?action=&resource=&actorId=
func (h *DashboardHandler) Audit(w http.ResponseWriter, r *http.Request) {
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
	q := r.URL.Query()
	entries, total, err := h.audit.List(r.Context(), m, domain.AuditFilter{
		Action:   q.Get("action"),
		Resource: q.Get("resource"),
		ActorID:  q.Get("actorId"),
		Page:     page,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(entries, total, page))
}
