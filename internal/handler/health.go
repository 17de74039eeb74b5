package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Check reports whether one dependency is reachable
type Check func(ctx context.Context) error

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks map[string]Check
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler; checks are keyed by
// dependency name, e.g. "postgres" and "redis"
func NewHealthHandler(checks map[string]Check, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthHandler{
		checks: checks,
		logger: logger,
	}
}

// HealthResponse represents the health status response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health handles GET /healthz - Simple liveness check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready handles GET /readyz
// Returns 200 only if all dependencies are healthy
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	allHealthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = "error: " + err.Error()
			allHealthy = false
			continue
		}
		results[name] = "ok"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		h.logger.Warn("readiness check failed", slog.Any("checks", results))
	}

	writeJSON(w, statusCode, ReadinessResponse{
		Status: status,
		Checks: results,
	})
}
