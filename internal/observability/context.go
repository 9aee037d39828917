package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	queryTypeKey contextKey = "query_type"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithQueryType adds the routed query type to the context.
func WithQueryType(ctx context.Context, queryType string) context.Context {
	return context.WithValue(ctx, queryTypeKey, queryType)
}

// QueryTypeFromContext retrieves the routed query type from context.
// Returns empty string if not present.
func QueryTypeFromContext(ctx context.Context) string {
	if v := ctx.Value(queryTypeKey); v != nil {
		if qt, ok := v.(string); ok {
			return qt
		}
	}
	return ""
}
