package backend

import (
	"context"
)

// Request is one evaluation call: every check a single backend owes for a
// single item, batched into one prompt.
type Request struct {
	ItemID        string
	CorrelationID string
	// System carries the stable instructions and response contract.
	System string
	// Shared is context common to a group of items (for example a reading
	// passage). Backends that support prompt caching mark it cacheable.
	Shared string
	// Prompt is the item-specific part of the request.
	Prompt string
	// Checks lists the check names the response must cover.
	Checks []string
}

// Usage is token accounting reported by the backend, when available.
type Usage struct {
	InputTokens       int64
	OutputTokens      int64
	CacheReadTokens   int64
	CacheCreateTokens int64
}

// Response is the raw text a backend produced for a Request.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Backend is an external evaluation service. Implementations must tag every
// error with one of the services sentinels so the retry loop can classify it:
// ErrThrottled for rate-limit signals, ErrTransient for timeouts and server
// faults, ErrPermanent for request errors that will not succeed on retry.
type Backend interface {
	Name() string
	Evaluate(ctx context.Context, req Request) (Response, error)
	HealthCheck(ctx context.Context) error
}

// Verdict is one check's decoded outcome.
type Verdict struct {
	Score     int
	Passed    bool
	Rationale string
}

// Verdicts maps check name to outcome.
type Verdicts map[string]Verdict
