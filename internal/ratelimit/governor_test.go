package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func TestAcquireRespectsTokenBucketBound(t *testing.T) {
	clock := newFakeClock()
	var slept []time.Duration
	sleeper := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return clock.Sleep(ctx, d)
	}
	cfg := Config{RatePerMinute: 60, MinRatePerMinute: 6, MaxRatePerMinute: 120, Burst: 5}
	g := New("alpha", cfg, WithClock(clock.Now), WithSleeper(sleeper))
	start := clock.Now()

	for i := 1; i <= 200; i++ {
		if err := g.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		elapsed := clock.Now().Sub(start).Minutes()
		bound := float64(cfg.Burst) + cfg.RatePerMinute*elapsed
		if float64(i) > bound+1e-9 {
			t.Fatalf("call %d exceeded token bucket bound %.4f", i, bound)
		}
	}
	if len(slept) != 195 {
		t.Fatalf("expected the first %d calls to pass without sleeping, got %d sleeps", cfg.Burst, len(slept))
	}
	for _, d := range slept {
		if d < 999*time.Millisecond || d > 1001*time.Millisecond {
			t.Fatalf("expected one computed one-second wait per call at 60/min, got %v", d)
		}
	}
}

func TestThrottleDecreasesMonotonicallyToFloor(t *testing.T) {
	clock := newFakeClock()
	g := New("alpha", Config{RatePerMinute: 100, MinRatePerMinute: 10, MaxRatePerMinute: 200, Burst: 1},
		WithClock(clock.Now), WithSleeper(clock.Sleep))

	prev := g.Rate()
	for i := 0; i < 20; i++ {
		g.ReportThrottled()
		rate := g.Rate()
		if rate > prev {
			t.Fatalf("rate increased after throttle: %v -> %v", prev, rate)
		}
		if rate < 10 {
			t.Fatalf("rate fell below floor: %v", rate)
		}
		prev = rate
	}
	if prev != 10 {
		t.Fatalf("expected rate to settle at floor 10, got %v", prev)
	}
}

func TestSuccessStreakIncreasesRate(t *testing.T) {
	g := New("alpha", Config{RatePerMinute: 100, MinRatePerMinute: 10, MaxRatePerMinute: 130, Burst: 1})

	for i := 0; i < 9; i++ {
		g.ReportSuccess()
	}
	if g.Rate() != 100 {
		t.Fatalf("rate must not change before the streak completes, got %v", g.Rate())
	}
	g.ReportSuccess()
	if got := g.Rate(); got < 119.999 || got > 120.001 {
		t.Fatalf("expected x1.2 after 10 successes, got %v", got)
	}
	for i := 0; i < 10; i++ {
		g.ReportSuccess()
	}
	if g.Rate() != 130 {
		t.Fatalf("expected rate capped at ceiling 130, got %v", g.Rate())
	}
}

func TestThrottleResetsSuccessStreak(t *testing.T) {
	g := New("alpha", Config{RatePerMinute: 100, MinRatePerMinute: 10, MaxRatePerMinute: 200, Burst: 1})
	for i := 0; i < 9; i++ {
		g.ReportSuccess()
	}
	g.ReportThrottled()
	afterThrottle := g.Rate()
	for i := 0; i < 9; i++ {
		g.ReportSuccess()
	}
	if g.Rate() != afterThrottle {
		t.Fatalf("streak should have restarted after throttle; rate moved to %v", g.Rate())
	}
	g.ReportSuccess()
	if g.Rate() <= afterThrottle {
		t.Fatalf("expected increase after a fresh streak of 10")
	}
}

func TestAcquireRefundsOnCancel(t *testing.T) {
	clock := newFakeClock()
	interrupted := func(context.Context, time.Duration) error { return context.Canceled }
	g := New("alpha", Config{RatePerMinute: 60, Burst: 1}, WithClock(clock.Now), WithSleeper(interrupted))

	if err := g.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := g.Acquire(context.Background()); err == nil {
		t.Fatal("expected the interrupted wait to surface an error")
	}

	if snap := g.Snapshot(); snap.Tokens != 0 || snap.Admitted != 1 {
		t.Fatalf("cancelled acquire must not consume a token: %+v", snap)
	}
}

func TestObserverSeesRateChanges(t *testing.T) {
	var mu sync.Mutex
	var seen []float64
	g := New("alpha", Config{RatePerMinute: 100, MinRatePerMinute: 10, MaxRatePerMinute: 200, Burst: 1},
		WithObserver(func(name string, rate float64) {
			mu.Lock()
			defer mu.Unlock()
			if name != "alpha" {
				t.Errorf("unexpected backend %q", name)
			}
			seen = append(seen, rate)
		}))
	g.ReportThrottled()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 100 || seen[1] != 70 {
		t.Fatalf("unexpected observed rates %v", seen)
	}
}

func TestConcurrentAcquire(t *testing.T) {
	g := New("alpha", Config{RatePerMinute: 60000, MaxRatePerMinute: 60000, Burst: 10})

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs <- g.Acquire(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
	if snap := g.Snapshot(); snap.Admitted != 50 {
		t.Fatalf("expected 50 admissions, got %d", snap.Admitted)
	}
}
