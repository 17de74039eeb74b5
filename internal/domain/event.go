package domain

import (
	"context"
	"time"
)

// Event is a change notification fanned out to connected organization members
type Event struct {
	Type           string    `json:"type"`
	OrganizationID string    `json:"organizationId"`
	ResourceID     string    `json:"resourceId,omitempty"`
	ActorID        string    `json:"actorId,omitempty"`
	Data           any       `json:"data,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// EventPublisher broadcasts organization events
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}
