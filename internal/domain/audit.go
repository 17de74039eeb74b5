package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AuditEntry records who changed what within an organization
type AuditEntry struct {
	ID             string          `json:"id" db:"id"`
	OrganizationID string          `json:"organizationId" db:"organization_id"`
	ActorID        string          `json:"actorId" db:"actor_id"`
	Action         string          `json:"action" db:"action"`
	Resource       string          `json:"resource" db:"resource"`
	ResourceID     string          `json:"resourceId" db:"resource_id"`
	Details        json.RawMessage `json:"details,omitempty" db:"details"`
	RequestID      string          `json:"requestId,omitempty" db:"request_id"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

// AuditFilter narrows audit listings
type AuditFilter struct {
	Action   string
	Resource string
	ActorID  string
	Page
}

// AuditRepository defines persistence for audit entries
type AuditRepository interface {
	Insert(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, orgID string, f AuditFilter) ([]*AuditEntry, int, error)
}
