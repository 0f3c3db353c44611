package context

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

// CorrelationIDKey is the context key for correlation IDs.
const CorrelationIDKey contextKey = "correlation_id"

// WithCorrelationID adds a correlation ID to the context. The id ties one
// submission to every identity provider and ministry call it triggered, and
// to the audit rows they produce.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// GetCorrelationID retrieves the correlation ID from the context.
// Returns an empty string if no correlation ID is present.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// NewCorrelationID mints a fresh correlation id.
func NewCorrelationID() string {
	return uuid.NewString()
}

// EnsureCorrelationID returns ctx unchanged when it already carries a
// correlation id, otherwise attaches a fresh one.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := GetCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := NewCorrelationID()
	return WithCorrelationID(ctx, id), id
}
