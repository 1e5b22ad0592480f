package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quizqa/internal/config"
)

const userAgent = "quizqa/0.1.0"

// Event identifies a run milestone worth telling someone about.
type Event string

const (
	EventRunFinished       Event = "run_finished"
	EventRunInterrupted    Event = "run_interrupted"
	EventCheckpointUnsaved Event = "checkpoint_unsaved"
	EventError             Event = "error"
	EventTest              Event = "test"
)

// Payload carries event fields. Unknown keys are ignored.
type Payload map[string]any

// Service publishes run events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunFinished:
		total := payload.count("total")
		failed := payload.count("failed")
		duration := payload.duration("duration")
		title := "quizqa - Run Complete"
		body := fmt.Sprintf("✅ %d items evaluated, all passed in %s", total, duration)
		if failed > 0 {
			title = "quizqa - Run Complete (with failures)"
			body = fmt.Sprintf("%d items evaluated, %d failed at least one check in %s", total, failed, duration)
		}
		if score, ok := payload["average_score"].(float64); ok {
			body = fmt.Sprintf("%s\nAverage score: %.3f", body, score)
		}
		return message{title: title, body: body, tags: []string{"quizqa", "run", "completed"}}, true
	case EventRunInterrupted:
		return message{
			title: "quizqa - Run Interrupted",
			body: fmt.Sprintf("⏸️ Run %s interrupted with %d calls not made. Re-run to resume",
				payload.text("run_id"), payload.count("skipped")),
			tags: []string{"quizqa", "run", "interrupted"},
		}, true
	case EventCheckpointUnsaved:
		return message{
			title:    "quizqa - Checkpoint Not Saved",
			body:     fmt.Sprintf("❌ Results of run %s were not written to %s", payload.text("run_id"), payload.text("checkpoint")),
			tags:     []string{"quizqa", "checkpoint", "alert"},
			priority: "high",
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payload.text("context"); label != "" {
			builder.WriteString(" during ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if text := payload.text("error"); text != "" {
			builder.WriteString(text)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "quizqa - Error",
			body:     builder.String(),
			tags:     []string{"quizqa", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "quizqa - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"quizqa", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (p Payload) duration(key string) time.Duration {
	d, _ := p[key].(time.Duration)
	d = d.Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
