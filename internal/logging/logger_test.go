package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quizqa/internal/config"
	"quizqa/internal/services"
)

func TestConsoleHandlerPrefixesSubject(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))
	logger = NewComponentLogger(logger, "dispatch")

	logger.Info("sub-batch complete", String(FieldBackend, "alpha"), Int("items", 3), String("note", "two words"))

	line := buf.String()
	if !strings.Contains(line, " INFO dispatch: [alpha] sub-batch complete") {
		t.Fatalf("expected component and backend prefix, got %q", line)
	}
	if strings.Contains(line, "backend=") || !strings.Contains(line, "items=3") {
		t.Fatalf("expected backend lifted and remaining key=value pairs kept, got %q", line)
	}
	if !strings.Contains(line, `note="two words"`) {
		t.Fatalf("expected quoted value, got %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should not repeat as a field, got %q", line)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "WARN shown") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestJSONHandlerRenamesTime(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl, false))
	logger.Info("hello", String(FieldItemID, "q1"))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
	if payload["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", payload["level"])
	}
	if payload[FieldItemID] != "q1" {
		t.Fatalf("expected item_id field, got %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesRunLog(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Logging.Format = "json"

	logger, path, err := NewFromConfig(&cfg, "run-123")
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if filepath.Base(path) != "quizqa-run-123.log" {
		t.Fatalf("unexpected log path %q", path)
	}
	logger.Info("written")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"written"`) {
		t.Fatalf("expected message in log file, got %q", data)
	}
}

func TestWithContextAddsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	base := slog.New(newConsoleHandler(&buf, lvl, false))

	ctx := services.WithRunID(context.Background(), "r1")
	ctx = services.WithItemID(ctx, "item-7")
	ctx = services.WithBackend(ctx, "beta")

	WithContext(ctx, base).Info("evaluating")

	out := buf.String()
	for _, want := range []string{"[beta item-7] evaluating", "run_id=r1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestWarnWithContextSetsEventType(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	WarnWithContext(logger, "checkpoint write failed", "checkpoint_unsaved",
		String(FieldErrorHint, "check disk space"),
		String(FieldImpact, "results kept in memory only"),
	)

	out := buf.String()
	if !strings.Contains(out, "event_type=checkpoint_unsaved") {
		t.Fatalf("expected event_type, got %q", out)
	}
	if !strings.Contains(out, `error_hint="check disk space"`) {
		t.Fatalf("expected error_hint, got %q", out)
	}
}

func TestConsoleHandlerLabelsAlerts(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	Loud(logger, "CHECKPOINT NOT SAVED", String("checkpoint", "/tmp/cp.json"))

	out := buf.String()
	if !strings.Contains(out, " ALERT !!! CHECKPOINT NOT SAVED !!!") {
		t.Fatalf("expected ALERT label, got %q", out)
	}
	if strings.Contains(out, "alert=") {
		t.Fatalf("alert flag should not repeat as a field, got %q", out)
	}
}
