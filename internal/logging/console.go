package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one human-readable line per record:
//
//	2026-01-02T15:04:05Z WARN dispatch: [alpha q-001] call throttled attempt=2
//
// The component, backend and item fields are lifted out of the key=value tail
// into the line prefix. Records carrying alert=true are labelled ALERT.
type consoleHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// subject holds the fields printed ahead of the message.
type subject struct {
	component string
	backend   string
	item      string
	alert     bool
}

func (s subject) tag() string {
	parts := make([]string, 0, 2)
	if s.backend != "" {
		parts = append(parts, s.backend)
	}
	if s.item != "" {
		parts = append(parts, s.item)
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := make([]field, 0, record.NumAttrs()+len(h.attrs))
	for _, attr := range h.attrs {
		appendField(&fields, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendField(&fields, h.groups, attr)
		return true
	})
	subj, rest := liftSubject(fields)

	var buf bytes.Buffer
	buf.Grow(128 + len(rest)*24)

	buf.WriteString(ts.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	if subj.alert {
		buf.WriteString("ALERT")
	} else {
		buf.WriteString(levelLabel(record.Level))
	}
	buf.WriteByte(' ')
	if subj.component != "" {
		buf.WriteString(subj.component)
		buf.WriteString(": ")
	}
	if tag := subj.tag(); tag != "" {
		buf.WriteString(tag)
		buf.WriteByte(' ')
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		buf.WriteString(msg)
	} else {
		buf.WriteString("(no message)")
	}

	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&buf, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}

	for _, f := range rest {
		if f.key == "" {
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(f.key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(f.value))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

// liftSubject removes the prefix fields from fields. The first value of each
// wins, so a component logger cannot be renamed by a later attribute.
func liftSubject(fields []field) (subject, []field) {
	var subj subject
	rest := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			if subj.component == "" {
				subj.component = valueString(f.value)
			}
		case FieldBackend:
			if subj.backend == "" {
				subj.backend = valueString(f.value)
			}
		case FieldItemID:
			if subj.item == "" {
				subj.item = valueString(f.value)
			}
		case FieldAlert:
			subj.alert = subj.alert || (f.value.Kind() == slog.KindBool && f.value.Bool())
		default:
			rest = append(rest, f)
		}
	}
	return subj, rest
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

// clone shares the write mutex so derived loggers never interleave lines.
func (h *consoleHandler) clone() *consoleHandler {
	return &consoleHandler{
		mu:        h.mu,
		writer:    h.writer,
		level:     h.level,
		addSource: h.addSource,
		attrs:     append([]slog.Attr(nil), h.attrs...),
		groups:    append([]string(nil), h.groups...),
	}
}

type field struct {
	key   string
	value slog.Value
}

func appendField(dst *[]field, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append([]string(nil), prefix...), attr.Key)
		}
		for _, member := range attr.Value.Group() {
			appendField(dst, next, member)
		}
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		key = strings.Join(append(append([]string(nil), prefix...), key), ".")
		key = strings.TrimSuffix(key, ".")
	}
	*dst = append(*dst, field{key: key, value: attr.Value})
}

func valueString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	}
	s := valueString(v)
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
