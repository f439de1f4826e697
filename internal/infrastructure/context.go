package infrastructure

import (
	"context"

	"github.com/google/uuid"
)

// GenerateTraceID creates a new trace ID for a request that arrived
// without one
func GenerateTraceID() string {
	return uuid.New().String()
}

// EnsureTraceID returns a context that carries a trace ID, generating
// one when the incoming context has none
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		return WithTraceID(ctx, GenerateTraceID())
	}
	return ctx
}
