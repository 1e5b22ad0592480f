package backoff

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"quizqa/internal/ratelimit"
	"quizqa/internal/services"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = time.Second
	defaultMaxDelay   = 60 * time.Second
)

// Policy is the per-backend retry envelope.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     time.Duration
}

// Controller retries a single logical call on transient failures.
type Controller struct {
	policy Policy
	sleep  func(context.Context, time.Duration) error
	jitter func(n int64) int64
}

// Option customizes a Controller.
type Option func(*Controller)

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Controller) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithJitterSource overrides the random source; it must return a value in [0, n).
func WithJitterSource(fn func(n int64) int64) Option {
	return func(c *Controller) {
		if fn != nil {
			c.jitter = fn
		}
	}
}

// New builds a Controller. Zero fields in policy fall back to defaults; a
// negative MaxRetries disables retries.
func New(policy Policy, opts ...Option) *Controller {
	if policy.MaxRetries == 0 {
		policy.MaxRetries = defaultMaxRetries
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = defaultBaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = defaultMaxDelay
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}
	if policy.Jitter < 0 {
		policy.Jitter = 0
	}
	c := &Controller{
		policy: policy,
		sleep:  ratelimit.SleepWithContext,
		jitter: rand.Int64N,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the effective policy.
func (c *Controller) Policy() Policy { return c.policy }

// Delay returns the wait before retry number attempt+1, where attempt is the
// zero-based index of the attempt that just failed. The delay is
// base*2^attempt plus uniform jitter, raised to any server Retry-After hint,
// and capped at MaxDelay.
func (c *Controller) Delay(attempt int, err error) time.Duration {
	delay := c.policy.BaseDelay
	for i := 0; i < attempt; i++ {
		if delay > c.policy.MaxDelay/2 {
			delay = c.policy.MaxDelay
			break
		}
		delay *= 2
	}
	if c.policy.Jitter > 0 {
		delay += time.Duration(c.jitter(int64(c.policy.Jitter) + 1))
	}
	if hint, ok := services.RetryAfter(err); ok && hint > delay {
		delay = hint
	}
	if delay > c.policy.MaxDelay {
		delay = c.policy.MaxDelay
	}
	return delay
}

// Outcome describes how a call ended.
type Outcome struct {
	// Attempts is the number of calls issued.
	Attempts int
	// Kind is empty on success.
	Kind services.Kind
	Err  error
	// Exhausted is set when retries ran out on a retryable error.
	Exhausted bool
	// Salvaged is set when the strict decode failed and salvage succeeded.
	Salvaged bool
	// Unparseable is set when both strict decode and salvage failed.
	Unparseable bool
	Raw         string
}

// OK reports whether the call produced a value.
func (o Outcome) OK() bool { return o.Kind == "" && o.Err == nil }

// Call bundles the steps of one logical evaluation.
type Call[T any] struct {
	// Attempt issues one request and returns the raw response text. The
	// attempt index is zero-based.
	Attempt func(ctx context.Context, attempt int) (string, error)
	// Decode is the strict parser.
	Decode func(raw string) (T, error)
	// Salvage is tried exactly once when Decode fails.
	Salvage func(raw string) (T, error)
	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Execute runs call under the controller's policy. ctx gates admission of
// new attempts and retry sleeps; once it is done no further attempt starts.
// Non-retryable errors return immediately. A response that fails to decode is
// never retried: it gets one salvage pass and is otherwise unparseable.
func Execute[T any](ctx context.Context, c *Controller, call Call[T]) (T, Outcome) {
	var zero T
	var out Outcome
	var lastErr error

	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, canceled(out, lastErr, err)
		}
		out.Attempts++
		raw, err := call.Attempt(ctx, attempt)
		if err == nil {
			return decode(call, raw, out)
		}
		lastErr = err

		kind := services.KindOf(err)
		if !kind.Retryable() {
			out.Kind = kind
			out.Err = err
			return zero, out
		}
		if attempt == c.policy.MaxRetries {
			break
		}
		delay := c.Delay(attempt, err)
		if call.OnRetry != nil {
			call.OnRetry(attempt, delay, err)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return zero, canceled(out, lastErr, err)
		}
	}

	out.Kind = services.KindOf(lastErr)
	out.Exhausted = true
	out.Err = fmt.Errorf("retries exhausted after %d attempts: %w", out.Attempts, lastErr)
	return zero, out
}

func decode[T any](call Call[T], raw string, out Outcome) (T, Outcome) {
	var zero T
	out.Raw = raw
	value, err := call.Decode(raw)
	if err == nil {
		return value, out
	}
	if call.Salvage != nil {
		if salvaged, serr := call.Salvage(raw); serr == nil {
			out.Salvaged = true
			return salvaged, out
		}
	}
	out.Unparseable = true
	out.Kind = services.KindMalformed
	out.Err = services.Wrap(services.ErrMalformed, "backoff", "decode", "unparseable response", err)
	return zero, out
}

func canceled(out Outcome, lastErr, ctxErr error) Outcome {
	out.Kind = services.KindCanceled
	if lastErr != nil {
		out.Err = errors.Join(ctxErr, lastErr)
	} else {
		out.Err = ctxErr
	}
	return out
}
