package handler

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// PlansHandler returns the billing plans an organization can subscribe to
type PlansHandler struct {
	plans map[string]domain.Plan
	log   *slog.Logger
}

// NewPlansHandler creates a new plans handler
func NewPlansHandler(plans map[string]domain.Plan, log *slog.Logger) *PlansHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PlansHandler{plans: plans, log: log}
}

// PlanResponse describes one plan in the public catalog
type PlanResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Seats        int    `json:"seats"`
	IntervalDays int    `json:"intervalDays"`
}

// ServeHTTP handles GET /api/plans
func (h *PlansHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	plans := make([]PlanResponse, 0, len(h.plans))
	for id, plan := range h.plans {
		plans = append(plans, PlanResponse{
			ID:           id,
			Name:         plan.Name,
			Seats:        plan.Seats,
			IntervalDays: int(plan.Interval / (24 * time.Hour)),
		})
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}
