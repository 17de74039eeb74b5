package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/service"
)

// ClientHandler serves an organization's clients
type ClientHandler struct {
	clients *service.ClientService
	logger  *slog.Logger
}

// NewClientHandler creates a new client handler
func NewClientHandler(clients *service.ClientService, logger *slog.Logger) *ClientHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientHandler{clients: clients, logger: logger}
}

// DeleteClientResponse tells the caller whether the client was archived
// instead of deleted because invoices or contracts still reference it
type DeleteClientResponse struct {
	Archived bool `json:"archived"`
}

// List handles GET /api/organizations/{orgId}/clients?q=&archived=&limit=&offset=
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
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
	f := domain.ClientFilter{Query: r.URL.Query().Get("q"), Page: page}
	if v := r.URL.Query().Get("archived"); v != "" {
		archived, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, h.logger, domain.Invalid("archived", "must be true or false"))
			return
		}
		f.Archived = &archived
	}

	clients, total, err := h.clients.List(r.Context(), m, f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(clients, total, page))
}

// Get handles GET /api/organizations/{orgId}/clients/{id}
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.clients.Get(r.Context(), m, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Create handles POST /api/organizations/{orgId}/clients
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.ClientInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.clients.Create(r.Context(), m, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Update handles PUT /api/organizations/{orgId}/clients/{id}
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.ClientInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.clients.Update(r.Context(), m, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /api/organizations/{orgId}/clients/{id}
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	archived, err := h.clients.Delete(r.Context(), m, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if archived {
		writeJSON(w, http.StatusOK, DeleteClientResponse{Archived: true})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
