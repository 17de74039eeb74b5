// Package requestid carries the per-request correlation id through contexts.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the inbound and outbound request id header
const Header = "X-Request-ID"

type ctxKey struct{}

// New returns a fresh request id
func New() string { return uuid.NewString() }

// With stores id in ctx
func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// From returns the request id or ""
func From(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}
