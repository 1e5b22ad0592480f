package testsupport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"quizqa/internal/backend"
	"quizqa/internal/services"
)

// Script decides the outcome of the n-th call (1-based) to a FakeBackend.
type Script func(call int, req backend.Request) (backend.Response, error)

// FakeBackend is a scripted, concurrency-safe backend.Backend.
type FakeBackend struct {
	name   string
	script Script

	mu       sync.Mutex
	calls    int
	requests []backend.Request
	health   error
}

// NewFakeBackend returns a backend that runs script for every call. A nil
// script answers every check with a pass.
func NewFakeBackend(name string, script Script) *FakeBackend {
	if script == nil {
		script = func(_ int, req backend.Request) (backend.Response, error) {
			return PassingResponse(req), nil
		}
	}
	return &FakeBackend{name: name, script: script}
}

// Name implements backend.Backend.
func (f *FakeBackend) Name() string { return f.name }

// Evaluate implements backend.Backend.
func (f *FakeBackend) Evaluate(_ context.Context, req backend.Request) (backend.Response, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.script(n, req)
}

// HealthCheck implements backend.Backend.
func (f *FakeBackend) HealthCheck(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

// SetHealth sets the error HealthCheck reports.
func (f *FakeBackend) SetHealth(err error) {
	f.mu.Lock()
	f.health = err
	f.mu.Unlock()
}

// Calls returns the number of Evaluate calls so far.
func (f *FakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Requests returns a copy of every request received.
func (f *FakeBackend) Requests() []backend.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Request(nil), f.requests...)
}

// ItemIDs returns the item id of every request received, in call order.
func (f *FakeBackend) ItemIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.requests))
	for i, req := range f.requests {
		ids[i] = req.ItemID
	}
	return ids
}

// PassingResponse answers every requested check with a pass.
func PassingResponse(req backend.Request) backend.Response {
	verdicts := make(map[string]bool, len(req.Checks))
	for _, name := range req.Checks {
		verdicts[name] = true
	}
	return Response(verdicts)
}

// Response renders a conforming reply with the given pass/fail verdicts.
func Response(verdicts map[string]bool) backend.Response {
	type entry struct {
		Score     int    `json:"score"`
		Passed    bool   `json:"passed"`
		Rationale string `json:"rationale"`
	}
	checks := make(map[string]entry, len(verdicts))
	for name, passed := range verdicts {
		score := 0
		rationale := "does not hold"
		if passed {
			score = 1
			rationale = "holds"
		}
		checks[name] = entry{Score: score, Passed: passed, Rationale: rationale}
	}
	data, _ := json.Marshal(map[string]any{"checks": checks})
	return backend.Response{Text: string(data), Model: "fake"}
}

// ThrottledError is a tagged rate-limit error with an optional Retry-After.
func ThrottledError(retryAfter time.Duration) error {
	return services.WithRetryAfter(services.Wrap(services.ErrThrottled, "fake", "evaluate", "http 429", nil), retryAfter)
}

// TransientError is a tagged retryable error.
func TransientError() error {
	return services.Wrap(services.ErrTransient, "fake", "evaluate", "http 503", nil)
}

// PermanentError is a tagged non-retryable error.
func PermanentError() error {
	return services.Wrap(services.ErrPermanent, "fake", "evaluate", "http 400", nil)
}
