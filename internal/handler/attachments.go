package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/service"
)

// multipartOverhead is the allowance for form fields and part headers
const multipartOverhead = 64 << 10

// AttachmentHandler serves file uploads backed by object storage
type AttachmentHandler struct {
	attachments *service.AttachmentService
	maxBytes    int64
	logger      *slog.Logger
}

// NewAttachmentHandler creates a new attachment handler accepting files up to maxBytes
func NewAttachmentHandler(attachments *service.AttachmentService, maxBytes int64, logger *slog.Logger) *AttachmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentHandler{attachments: attachments, maxBytes: maxBytes, logger: logger}
}

// Upload handles POST /api/organizations/{orgId}/attachments as
// multipart/form-data with fields entityType, entityId and file
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, h.logger, domain.Invalid("file", "exceeds the upload limit"))
			return
		}
		writeError(w, r, h.logger, domain.Invalid("body", "must be multipart/form-data"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.logger, domain.Invalid("file", "is required"))
		return
	}
	defer file.Close()

	a, err := h.attachments.Upload(r.Context(), m, service.UploadInput{
		EntityType:  r.FormValue("entityType"),
		EntityID:    r.FormValue("entityId"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// List handles GET /api/organizations/{orgId}/attachments?entityType=&entityId=
func (h *AttachmentHandler) List(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	items, err := h.attachments.List(r.Context(), m, q.Get("entityType"), q.Get("entityId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items, len(items), pageAll(len(items))))
}

// Get handles GET /api/organizations/{orgId}/attachments/{id} and returns a
// time-limited download URL
func (h *AttachmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	link, err := h.attachments.Get(r.Context(), m, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// Delete handles DELETE /api/organizations/{orgId}/attachments/{id}
func (h *AttachmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.attachments.Delete(r.Context(), m, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
