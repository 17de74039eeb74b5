package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/events"
	"github.com/aryan0dhankhar/bizdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/bizdesk/internal/security"
)

const maxFileNameLength = 120

// AttachmentLimits bounds what may be uploaded
type AttachmentLimits struct {
	MaxBytes     int64
	AllowedTypes []string
	SignedURLTTL time.Duration
}

// AttachmentService stores files in object storage and links them to records
type AttachmentService struct {
	Common
	attachments domain.AttachmentRepository
	storage     domain.ObjectStorage
	clients     domain.ClientRepository
	invoices    domain.InvoiceRepository
	contracts   domain.ContractRepository
	expenses    domain.ExpenseRepository
	maxBytes    int64
	allowed     map[string]bool
	urlTTL      time.Duration
}

// NewAttachmentService creates the attachment service
func NewAttachmentService(
	c Common,
	attachments domain.AttachmentRepository,
	storage domain.ObjectStorage,
	clients domain.ClientRepository,
	invoices domain.InvoiceRepository,
	contracts domain.ContractRepository,
	expenses domain.ExpenseRepository,
	limits AttachmentLimits,
) *AttachmentService {
	allowed := make(map[string]bool, len(limits.AllowedTypes))
	for _, t := range limits.AllowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = 10 << 20
	}
	if limits.SignedURLTTL <= 0 {
		limits.SignedURLTTL = 15 * time.Minute
	}
	return &AttachmentService{
		Common:      c.withDefaults(),
		attachments: attachments,
		storage:     storage,
		clients:     clients,
		invoices:    invoices,
		contracts:   contracts,
		expenses:    expenses,
		maxBytes:    limits.MaxBytes,
		allowed:     allowed,
		urlTTL:      limits.SignedURLTTL,
	}
}

// UploadInput describes one uploaded file
type UploadInput struct {
	EntityType  string
	EntityID    string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachmentLink is an attachment with a time-limited download URL
type AttachmentLink struct {
	*domain.Attachment
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Upload validates the owning record and the file, stores the object and records it
func (s *AttachmentService) Upload(ctx context.Context, m *domain.Membership, in UploadInput) (*domain.Attachment, error) {
	entityType, err := domain.ParseEntityType(in.EntityType)
	if err != nil {
		return nil, err
	}
	if _, err := s.writableOrg(ctx, m.OrganizationID); err != nil {
		return nil, err
	}
	if err := s.authorizeEntity(ctx, m, entityType, in.EntityID); err != nil {
		return nil, err
	}
	if in.Body == nil {
		return nil, domain.Invalid("file", "is required")
	}
	if in.Size > s.maxBytes {
		return nil, domain.Invalid("file", fmt.Sprintf("must not exceed %d bytes", s.maxBytes))
	}

	body := bufio.NewReaderSize(io.LimitReader(in.Body, s.maxBytes+1), 512)
	contentType, err := s.contentType(in.ContentType, body)
	if err != nil {
		return nil, err
	}
	counted := &countingReader{r: body}

	id := uuid.NewString()
	a := &domain.Attachment{
		ID:             id,
		OrganizationID: m.OrganizationID,
		EntityType:     entityType,
		EntityID:       in.EntityID,
		FileName:       SanitizeFileName(in.FileName),
		ContentType:    contentType,
		UploadedBy:     m.UserID,
	}
	a.StoragePath = fmt.Sprintf("orgs/%s/%s/%s/%s-%s", m.OrganizationID, entityType, in.EntityID, id, a.FileName)

	err = s.storage.Upload(ctx, a.StoragePath, contentType, counted)
	metrics.ObserveStorage("upload", err)
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	if counted.n > s.maxBytes {
		s.removeObject(ctx, a.StoragePath)
		return nil, domain.Invalid("file", fmt.Sprintf("must not exceed %d bytes", s.maxBytes))
	}
	a.SizeBytes = counted.n

	if err := s.attachments.Create(ctx, a); err != nil {
		s.removeObject(ctx, a.StoragePath)
		return nil, fmt.Errorf("record attachment: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.AttachmentUploaded, "attachment", a.ID,
		map[string]any{"entityType": a.EntityType, "entityId": a.EntityID, "fileName": a.FileName, "sizeBytes": a.SizeBytes})
	return a, nil
}

// List returns the attachments of one record
func (s *AttachmentService) List(ctx context.Context, m *domain.Membership, entityType, entityID string) ([]*domain.Attachment, error) {
	if err := s.Authz.Require(m, security.PermReadRecords); err != nil {
		return nil, err
	}
	t, err := domain.ParseEntityType(entityType)
	if err != nil {
		return nil, err
	}
	if entityID == "" {
		return nil, domain.Invalid("entityId", "is required")
	}
	return s.attachments.ListByEntity(ctx, m.OrganizationID, t, entityID)
}

// Get returns an attachment with a signed download URL
func (s *AttachmentService) Get(ctx context.Context, m *domain.Membership, id string) (*AttachmentLink, error) {
	if err := s.Authz.Require(m, security.PermReadRecords); err != nil {
		return nil, err
	}
	a, err := s.attachments.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	url, err := s.storage.SignedURL(ctx, a.StoragePath, s.urlTTL)
	metrics.ObserveStorage("signed_url", err)
	if err != nil {
		return nil, fmt.Errorf("sign attachment url: %w", err)
	}
	return &AttachmentLink{Attachment: a, URL: url, ExpiresAt: s.Now().UTC().Add(s.urlTTL)}, nil
}

// Delete removes the stored object, then the row
func (s *AttachmentService) Delete(ctx context.Context, m *domain.Membership, id string) error {
	if _, err := s.writableOrg(ctx, m.OrganizationID); err != nil {
		return err
	}
	a, err := s.attachments.GetByID(ctx, m.OrganizationID, id)
	if err != nil {
		return err
	}
	if err := s.authorizeEntity(ctx, m, a.EntityType, a.EntityID); err != nil {
		return err
	}
	err = s.storage.Remove(ctx, a.StoragePath)
	metrics.ObserveStorage("remove", err)
	if err != nil {
		return fmt.Errorf("remove attachment object: %w", err)
	}
	if err := s.attachments.Delete(ctx, m.OrganizationID, id); err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	s.emit(ctx, m.OrganizationID, m.UserID, events.AttachmentDeleted, "attachment", id,
		map[string]any{"entityType": a.EntityType, "entityId": a.EntityID, "fileName": a.FileName})
	return nil
}

// authorizeEntity checks the record exists in the organization and that the
// caller may write to it. Submitters may attach to their own expenses.
func (s *AttachmentService) authorizeEntity(ctx context.Context, m *domain.Membership, t domain.EntityType, id string) error {
	if id == "" {
		return domain.Invalid("entityId", "is required")
	}
	var err error
	switch t {
	case domain.EntityClient:
		_, err = s.clients.GetByID(ctx, m.OrganizationID, id)
	case domain.EntityInvoice:
		_, err = s.invoices.GetByID(ctx, m.OrganizationID, id)
	case domain.EntityContract:
		_, err = s.contracts.GetByID(ctx, m.OrganizationID, id)
	case domain.EntityExpense:
		var e *domain.Expense
		e, err = s.expenses.GetByID(ctx, m.OrganizationID, id)
		if err == nil && e.SubmittedBy == m.UserID {
			return s.Authz.Require(m, security.PermSubmitExpense)
		}
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Invalid("entityId", fmt.Sprintf("unknown %s", t))
		}
		return err
	}
	return s.Authz.Require(m, security.PermWriteRecords)
}

// contentType resolves the declared type, sniffing the body when none is
// given, and checks it against the allow list
func (s *AttachmentService) contentType(declared string, body *bufio.Reader) (string, error) {
	ct := declared
	if ct == "" || ct == "application/octet-stream" {
		head, _ := body.Peek(512)
		ct = http.DetectContentType(head)
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", domain.Invalid("file", "unreadable content type")
	}
	mediaType = strings.ToLower(mediaType)
	if len(s.allowed) > 0 && !s.allowed[mediaType] {
		return "", domain.Invalid("file", fmt.Sprintf("content type %s is not allowed", mediaType))
	}
	return mediaType, nil
}

func (s *AttachmentService) removeObject(ctx context.Context, p string) {
	err := s.storage.Remove(context.WithoutCancel(ctx), p)
	metrics.ObserveStorage("remove", err)
	if err != nil {
		s.Logger.Error("failed to remove orphaned object", slog.String("path", p), slog.String("error", err.Error()))
	}
}

// SanitizeFileName keeps a safe base name for object keys
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		out = "file"
	}
	if len(out) > maxFileNameLength {
		out = out[len(out)-maxFileNameLength:]
	}
	return out
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
