package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quizqa/internal/backend"
	"quizqa/internal/services"
)

func messageBody(text string) map[string]any {
	return map[string]any{
		"id":          "msg_1",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-test",
		"stop_reason": "end_turn",
		"content": []any{
			map[string]any{"type": "text", "text": text},
		},
		"usage": map[string]any{
			"input_tokens":                200,
			"output_tokens":               40,
			"cache_read_input_tokens":     150,
			"cache_creation_input_tokens": 0,
		},
	}
}

func sampleRequest() backend.Request {
	return backend.Request{
		ItemID:        "q-1",
		CorrelationID: "corr-1",
		System:        "Evaluate the item.",
		Shared:        "Passage text.",
		Prompt:        "Item q-1",
		Checks:        []string{"answerable_from_passage"},
	}
}

func TestClientEvaluate(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("X-Request-Id") != "corr-1" {
			t.Errorf("missing correlation header")
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageBody(`{"checks":{}}`))
	}))
	defer server.Close()

	client := NewClient(Config{Name: "claude", APIKey: "secret", BaseURL: server.URL, Model: "claude-test"})
	resp, err := client.Evaluate(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if resp.Text != `{"checks":{}}` || resp.Model != "claude-test" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Usage.InputTokens != 200 || resp.Usage.CacheReadTokens != 150 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}

	system, ok := received["system"].([]any)
	if !ok || len(system) != 2 {
		t.Fatalf("expected two system blocks, got %v", received["system"])
	}
	shared, _ := system[1].(map[string]any)
	if shared["text"] != "Passage text." || shared["cache_control"] == nil {
		t.Fatalf("shared context must be a cacheable block: %v", shared)
	}
	if first, _ := system[0].(map[string]any); first["cache_control"] != nil {
		t.Fatalf("instructions block must not carry its own breakpoint when a shared block exists: %v", first)
	}
}

func TestClientErrorTagging(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		kind   services.Kind
		hint   time.Duration
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "3"}, kind: services.KindThrottled, hint: 3 * time.Second},
		{name: "overloaded", status: statusOverloaded, kind: services.KindThrottled},
		{name: "server error", status: http.StatusInternalServerError, kind: services.KindTransient},
		{name: "invalid request", status: http.StatusBadRequest, kind: services.KindPermanent},
		{name: "auth", status: http.StatusUnauthorized, kind: services.KindPermanent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.header {
					w.Header().Set(k, v)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
			_, err := client.Evaluate(context.Background(), sampleRequest())
			if kind := services.KindOf(err); kind != tc.kind {
				t.Fatalf("expected %s, got %s (%v)", tc.kind, kind, err)
			}
			if tc.hint > 0 {
				if hint, ok := services.RetryAfter(err); !ok || hint != tc.hint {
					t.Fatalf("expected hint %v, got %v (%v)", tc.hint, hint, ok)
				}
			}
		})
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageBody("```json\n{\"ok\": true}\n```"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestClientHealthCheckRequiresKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if err := client.HealthCheck(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRetryAfterHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After-Ms", "1500")
	if d, ok := retryAfter(h); !ok || d != 1500*time.Millisecond {
		t.Fatalf("ms form: %v %v", d, ok)
	}
	h = http.Header{}
	h.Set("Retry-After", "2")
	if d, ok := retryAfter(h); !ok || d != 2*time.Second {
		t.Fatalf("seconds form: %v %v", d, ok)
	}
	if _, ok := retryAfter(http.Header{}); ok {
		t.Fatal("expected no hint")
	}
}
