package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Defaults for the adaptive envelope.
const (
	DefaultIncreaseAfter  = 10
	DefaultIncreaseFactor = 1.2
	DefaultDecreaseFactor = 0.7
)

// Config describes one backend's throughput envelope. Rates are calls per minute.
type Config struct {
	RatePerMinute    float64
	MinRatePerMinute float64
	MaxRatePerMinute float64
	Burst            int
	IncreaseAfter    int
	IncreaseFactor   float64
	DecreaseFactor   float64
}

func (c Config) withDefaults() Config {
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = 60
	}
	if c.MinRatePerMinute <= 0 || c.MinRatePerMinute > c.RatePerMinute {
		c.MinRatePerMinute = math.Min(c.RatePerMinute, math.Max(c.MinRatePerMinute, c.RatePerMinute/10))
	}
	if c.MaxRatePerMinute < c.RatePerMinute {
		c.MaxRatePerMinute = c.RatePerMinute
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.IncreaseAfter <= 0 {
		c.IncreaseAfter = DefaultIncreaseAfter
	}
	if c.IncreaseFactor < 1 {
		c.IncreaseFactor = DefaultIncreaseFactor
	}
	if c.DecreaseFactor <= 0 || c.DecreaseFactor >= 1 {
		c.DecreaseFactor = DefaultDecreaseFactor
	}
	return c
}

// Snapshot is a point-in-time view of a governor's state.
type Snapshot struct {
	Backend       string
	RatePerMinute float64
	Tokens        float64
	Throttles     int
	Increases     int
	Admitted      int64
}

// Observer is notified whenever the effective rate changes.
type Observer func(backend string, ratePerMinute float64)

// Governor is a token bucket whose refill rate adapts to backend feedback:
// multiplicative increase after a run of successes, multiplicative decrease on
// every throttle signal. One Governor is shared by all workers calling the
// same backend; every mutation happens under its mutex.
type Governor struct {
	name     string
	cfg      Config
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	observer Observer

	mu        sync.Mutex
	rate      float64
	tokens    float64
	last      time.Time
	successes int
	throttles int
	increases int
	admitted  int64
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		if now != nil {
			g.now = now
		}
	}
}

// WithSleeper injects the function used to wait for a token.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(g *Governor) {
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// WithObserver registers a callback for rate changes.
func WithObserver(observer Observer) Option {
	return func(g *Governor) {
		g.observer = observer
	}
}

// New returns a governor with a full bucket.
func New(name string, cfg Config, opts ...Option) *Governor {
	cfg = cfg.withDefaults()
	g := &Governor{
		name:  name,
		cfg:   cfg,
		now:   time.Now,
		sleep: SleepWithContext,
		rate:  cfg.RatePerMinute,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.tokens = float64(cfg.Burst)
	g.last = g.now()
	if g.observer != nil {
		g.observer(g.name, g.rate)
	}
	return g
}

// Name returns the backend the governor guards.
func (g *Governor) Name() string { return g.name }

// Acquire blocks until a token is available and debits it. The wait is
// computed once from the current deficit and slept in a single step; the token
// is reserved before sleeping so concurrent callers queue behind each other
// instead of racing for the same refill. If ctx ends first the reservation is
// returned and ctx's error is reported.
func (g *Governor) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	g.refillLocked(g.now())
	g.tokens--
	var wait time.Duration
	if g.tokens < 0 {
		wait = durationForTokens(-g.tokens, g.rate)
	}
	g.mu.Unlock()

	if wait > 0 {
		if err := g.sleep(ctx, wait); err != nil {
			g.mu.Lock()
			g.tokens = math.Min(g.tokens+1, float64(g.cfg.Burst))
			g.mu.Unlock()
			return err
		}
	}

	g.mu.Lock()
	g.admitted++
	g.mu.Unlock()
	return nil
}

// ReportSuccess records a successful call. After IncreaseAfter consecutive
// successes the rate grows by IncreaseFactor, up to the ceiling.
func (g *Governor) ReportSuccess() {
	g.mu.Lock()
	g.successes++
	changed := false
	if g.successes >= g.cfg.IncreaseAfter {
		g.successes = 0
		next := math.Min(g.cfg.MaxRatePerMinute, g.rate*g.cfg.IncreaseFactor)
		if next != g.rate {
			g.refillLocked(g.now())
			g.rate = next
			g.increases++
			changed = true
		}
	}
	rate := g.rate
	g.mu.Unlock()
	if changed {
		g.notify(rate)
	}
}

// ReportThrottled records an explicit throttle signal from the backend. The
// rate drops by DecreaseFactor immediately, down to the floor, and the
// success streak resets.
func (g *Governor) ReportThrottled() {
	g.mu.Lock()
	g.successes = 0
	g.throttles++
	g.refillLocked(g.now())
	g.rate = math.Max(g.cfg.MinRatePerMinute, g.rate*g.cfg.DecreaseFactor)
	rate := g.rate
	g.mu.Unlock()
	g.notify(rate)
}

// Rate returns the current effective rate in calls per minute.
func (g *Governor) Rate() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rate
}

// Snapshot returns the governor's current state.
func (g *Governor) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refillLocked(g.now())
	return Snapshot{
		Backend:       g.name,
		RatePerMinute: g.rate,
		Tokens:        g.tokens,
		Throttles:     g.throttles,
		Increases:     g.increases,
		Admitted:      g.admitted,
	}
}

func (g *Governor) refillLocked(now time.Time) {
	elapsed := now.Sub(g.last)
	if elapsed <= 0 {
		return
	}
	g.last = now
	g.tokens = math.Min(float64(g.cfg.Burst), g.tokens+elapsed.Minutes()*g.rate)
}

func (g *Governor) notify(rate float64) {
	if g.observer != nil {
		g.observer(g.name, rate)
	}
}

func durationForTokens(tokens, ratePerMinute float64) time.Duration {
	if ratePerMinute <= 0 {
		return time.Minute
	}
	return time.Duration(math.Ceil(tokens / ratePerMinute * float64(time.Minute)))
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
