package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quizqa/internal/config"
	"quizqa/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventRunFinished, notifications.Payload{"total": 3}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("expected nil config to yield a noop notifier, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "run finished clean",
			event: notifications.EventRunFinished,
			payload: notifications.Payload{
				"total":    12,
				"failed":   0,
				"duration": 90*time.Second + 400*time.Millisecond,
			},
			expectTitle:   "quizqa - Run Complete",
			expectMessage: "✅ 12 items evaluated, all passed in 1m30s",
			expectTags:    "quizqa,run,completed",
		},
		{
			name:  "run finished with failures",
			event: notifications.EventRunFinished,
			payload: notifications.Payload{
				"total":         10,
				"failed":        4,
				"duration":      5 * time.Second,
				"average_score": 0.625,
			},
			expectTitle:   "quizqa - Run Complete (with failures)",
			expectMessage: "10 items evaluated, 4 failed at least one check in 5s\nAverage score: 0.625",
			expectTags:    "quizqa,run,completed",
		},
		{
			name:          "interrupted",
			event:         notifications.EventRunInterrupted,
			payload:       notifications.Payload{"run_id": "r-1", "skipped": 7},
			expectTitle:   "quizqa - Run Interrupted",
			expectMessage: "⏸️ Run r-1 interrupted with 7 calls not made. Re-run to resume",
			expectTags:    "quizqa,run,interrupted",
		},
		{
			name:           "checkpoint unsaved",
			event:          notifications.EventCheckpointUnsaved,
			payload:        notifications.Payload{"run_id": "r-2", "checkpoint": "/data/cp.json"},
			expectTitle:    "quizqa - Checkpoint Not Saved",
			expectMessage:  "❌ Results of run r-2 were not written to /data/cp.json",
			expectTags:     "quizqa,checkpoint,alert",
			expectPriority: "high",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "preflight",
				"error":   "no backend reachable",
			},
			expectTitle:    "quizqa - Error",
			expectMessage:  "❌ Error during preflight: no backend reachable",
			expectTags:     "quizqa,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeoutSeconds = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresUnknownEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for unknown event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.Event("batch_flushed"), notifications.Payload{"value": "ignored"}); err != nil {
		t.Fatalf("expected no error for unknown event, got %v", err)
	}
}

func TestNtfyServiceSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected an error for a 403 response")
	}
}
