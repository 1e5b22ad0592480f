package logging

import (
	"context"
	"log/slog"

	"quizqa/internal/services"
)

// Field keys shared across packages so log lines stay greppable.
const (
	FieldComponent     = "component"
	FieldItemID        = "item_id"
	FieldBackend       = "backend"
	FieldCheck         = "check"
	FieldRunID         = "run_id"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	FieldImpact        = "impact"
	FieldAlert         = "alert"
	FieldAttempt       = "attempt"
	FieldErrorKind     = "error_kind"
)

// ContextFields extracts the identifiers stored on ctx as attributes.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	attrs := make([]Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldRunID, id))
	}
	if id, ok := services.ItemIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldItemID, id))
	}
	if name, ok := services.BackendFromContext(ctx); ok {
		attrs = append(attrs, String(FieldBackend, name))
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldCorrelationID, id))
	}
	return attrs
}

// WithContext returns a logger enriched with identifiers from ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
