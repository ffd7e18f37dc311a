package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey represents keys used for context values
type ContextKey string

// RequestIDKey is the context key for request IDs
const RequestIDKey ContextKey = "request_id"

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// NewRequestID generates a unique request ID
func NewRequestID() string {
	return "req_" + uuid.NewString()
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
