package domain

import (
	"context"
	"io"
	"time"
)

// EntityType names the records attachments can belong to
type EntityType string

const (
	EntityContract EntityType = "contract"
	EntityExpense  EntityType = "expense"
	EntityInvoice  EntityType = "invoice"
	EntityClient   EntityType = "client"
)

// ParseEntityType validates an attachment owner type
func ParseEntityType(s string) (EntityType, error) {
	switch t := EntityType(s); t {
	case EntityContract, EntityExpense, EntityInvoice, EntityClient:
		return t, nil
	}
	return "", Invalid("entityType", "must be one of contract, expense, invoice, client")
}

// Attachment is a file stored in object storage and linked to a record
type Attachment struct {
	ID             string     `json:"id" db:"id"`
	OrganizationID string     `json:"organizationId" db:"organization_id"`
	EntityType     EntityType `json:"entityType" db:"entity_type"`
	EntityID       string     `json:"entityId" db:"entity_id"`
	FileName       string     `json:"fileName" db:"file_name"`
	ContentType    string     `json:"contentType" db:"content_type"`
	SizeBytes      int64      `json:"sizeBytes" db:"size_bytes"`
	StoragePath    string     `json:"-" db:"storage_path"`
	UploadedBy     string     `json:"uploadedBy" db:"uploaded_by"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
}

// AttachmentRepository defines data access for attachment metadata
type AttachmentRepository interface {
	Create(ctx context.Context, a *Attachment) error
	GetByID(ctx context.Context, orgID, id string) (*Attachment, error)
	ListByEntity(ctx context.Context, orgID string, t EntityType, entityID string) ([]*Attachment, error)
	Delete(ctx context.Context, orgID, id string) error
}

// ObjectStorage stores attachment bytes in the hosted object store
type ObjectStorage interface {
	Upload(ctx context.Context, path, contentType string, body io.Reader) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, paths ...string) error
}
