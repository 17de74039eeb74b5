package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/requestid"
)

// Logger writes audit entries to the log and to the audit table
type Logger struct {
	repo   domain.AuditRepository
	logger *slog.Logger
}

// NewLogger creates an audit logger; repo may be nil to only log
func NewLogger(repo domain.AuditRepository, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{repo: repo, logger: logger}
}

// LogAction records a completed business operation. Persistence failures are
// logged and never fail the operation that triggered them.
func (al *Logger) LogAction(ctx context.Context, orgID, actorID, action, resource, resourceID string, details any) {
	entry := &domain.AuditEntry{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         action,
		Resource:       resource,
		ResourceID:     resourceID,
		RequestID:      requestid.From(ctx),
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = raw
		}
	}

	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("org_id", orgID),
		slog.String("user_id", actorID),
		slog.String("request_id", entry.RequestID),
	)

	if al.repo == nil || orgID == "" {
		return
	}
	// audit rows must survive a cancelled request
	if err := al.repo.Insert(context.WithoutCancel(ctx), entry); err != nil {
		al.logger.Error("failed to persist audit entry",
			slog.String("action", action),
			slog.String("org_id", orgID),
			slog.String("error", err.Error()),
		)
	}
}

// LogDenied records an authorization failure in the log only
func (al *Logger) LogDenied(ctx context.Context, orgID, actorID, method, path, reason string) {
	al.logger.Warn("access denied",
		slog.String("org_id", orgID),
		slog.String("user_id", actorID),
		slog.String("method", method),
		slog.String("path", path),
		slog.String("reason", reason),
		slog.String("request_id", requestid.From(ctx)),
	)
}

// List returns persisted entries for an organization
func (al *Logger) List(ctx context.Context, orgID string, f domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	if al.repo == nil {
		return []*domain.AuditEntry{}, 0, nil
	}
	return al.repo.List(ctx, orgID, f)
}
