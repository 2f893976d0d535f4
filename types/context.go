package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID   contextKey = "trace_id"
	keyRequestID contextKey = "request_id"
	keySubject   contextKey = "subject"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRequestID adds the HTTP request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts the HTTP request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithSubject adds the authenticated caller (JWT subject) to context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, keySubject, subject)
}

// Subject extracts the authenticated caller from context.
func Subject(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keySubject).(string)
	return v, ok && v != ""
}
