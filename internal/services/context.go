package services

import "context"

type contextKey string

const (
	itemIDKey    contextKey = "item_id"
	backendKey   contextKey = "backend"
	runIDKey     contextKey = "run_id"
	requestIDKey contextKey = "request_id"
)

// WithItemID annotates context with the item identifier under evaluation.
func WithItemID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, itemIDKey, id)
}

// ItemIDFromContext extracts the item identifier if present.
func ItemIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(itemIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithBackend annotates context with the evaluation backend name.
func WithBackend(ctx context.Context, backend string) context.Context {
	if backend == "" {
		return ctx
	}
	return context.WithValue(ctx, backendKey, backend)
}

// BackendFromContext returns the backend name if present.
func BackendFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(backendKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with the run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
