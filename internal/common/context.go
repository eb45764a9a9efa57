package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyRecordID  contextKey = "record_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithRecordID adds the health record ID being processed to the context
func WithRecordID(ctx context.Context, recordID string) context.Context {
	return context.WithValue(ctx, ContextKeyRecordID, recordID)
}

// RecordIDFromContext extracts the record ID from context
func RecordIDFromContext(ctx context.Context) string {
	if recordID, ok := ctx.Value(ContextKeyRecordID).(string); ok {
		return recordID
	}
	return ""
}

// Logger returns base annotated with the request and record IDs carried by ctx.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	var attrs []any
	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "req_id", id)
	}
	if id := RecordIDFromContext(ctx); id != "" {
		attrs = append(attrs, "record_id", id)
	}
	if len(attrs) == 0 {
		return base
	}
	return base.With(attrs...)
}
