package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Attr is a convenience alias for slog attributes.
type Attr = slog.Attr

// String creates a string attribute.
func String(key, value string) Attr { return slog.String(key, value) }

// Int creates an int attribute.
func Int(key string, value int) Attr { return slog.Int(key, value) }

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

// Float64 creates a float attribute.
func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

// Bool creates a bool attribute.
func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

// Duration creates a duration attribute.
func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// Time creates a time attribute.
func Time(key string, value time.Time) Attr { return slog.Time(key, value) }

// Any creates an attribute with arbitrary value.
func Any(key string, value any) Attr { return slog.Any(key, value) }

// Error creates an error attribute using the conventional "error" key.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.Any("error", err)
}

// Args converts attributes into variadic arguments accepted by slog.Logger methods.
func Args(attrs ...Attr) []any {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]any, len(attrs))
	for i, attr := range attrs {
		out[i] = attr
	}
	return out
}

// NewNop returns a logger that discards all output.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 10}))
}

// NewComponentLogger returns a logger tagged with the given component name.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if component == "" {
		return logger
	}
	return logger.With(String(FieldComponent, component))
}

// WarnWithContext logs a warning that carries event, hint and impact fields.
// Every degraded-mode warning goes through here so operators can grep for
// event_type without knowing individual messages.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	all := make([]Attr, 0, len(attrs)+1)
	if eventType != "" {
		all = append(all, String(FieldEventType, eventType))
	}
	all = append(all, attrs...)
	logger.Warn(msg, Args(all...)...)
}

// ErrorWithContext logs an error with the same structure as WarnWithContext.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	all := make([]Attr, 0, len(attrs)+1)
	if eventType != "" {
		all = append(all, String(FieldEventType, eventType))
	}
	all = append(all, attrs...)
	logger.Error(msg, Args(all...)...)
}

// Loud renders a banner-style message used for conditions that must not
// scroll past unnoticed, such as an unsaved checkpoint.
func Loud(logger *slog.Logger, msg string, attrs ...Attr) {
	if logger == nil {
		return
	}
	all := append([]Attr{Bool(FieldAlert, true)}, attrs...)
	logger.Error(fmt.Sprintf("!!! %s !!!", msg), Args(all...)...)
}

// NoopHandler drops every record.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }
func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler        { return NoopHandler{} }
func (NoopHandler) WithGroup(string) slog.Handler             { return NoopHandler{} }
