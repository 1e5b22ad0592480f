package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"quizqa/internal/backend"
	"quizqa/internal/backoff"
	"quizqa/internal/checkpoint"
	"quizqa/internal/checks"
	"quizqa/internal/evaluation"
	"quizqa/internal/logging"
	"quizqa/internal/ratelimit"
	"quizqa/internal/services"
)

// Lane bundles everything needed to call one backend: the client, its shared
// rate governor, its retry policy and its concurrency bound.
type Lane struct {
	Backend     backend.Backend
	Governor    *ratelimit.Governor
	Retry       *backoff.Controller
	Concurrency int
}

type lane struct {
	Lane
	sem *semaphore.Weighted
}

// Summary describes what a dispatch pass did.
type Summary struct {
	Tasks       int
	Batches     int
	Calls       int
	Committed   int
	Failed      int
	Skipped     int
	FlushErrors int
	Interrupted bool
}

// Dispatcher drives pending tasks through their backends and streams merged
// results into the checkpoint store.
type Dispatcher struct {
	catalog   *checks.Catalog
	store     *checkpoint.Store
	lanes     map[string]*lane
	logger    *slog.Logger
	observer  Observer
	runID     string
	batchSize int
	now       func() time.Time
	newID     func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver registers a metrics observer.
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		if observer != nil {
			d.observer = observer
		}
	}
}

// WithRunID stamps every stored result with runID.
func WithRunID(runID string) Option {
	return func(d *Dispatcher) { d.runID = runID }
}

// WithBatchSize sets how many tasks run between checkpoint flushes.
func WithBatchSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.batchSize = size
		}
	}
}

// WithClock overrides the time source for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New builds a dispatcher. Every backend referenced by the catalog must have a
// lane.
func New(catalog *checks.Catalog, store *checkpoint.Store, lanes map[string]Lane, opts ...Option) (*Dispatcher, error) {
	if catalog == nil || store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "dispatch", "new", "catalog and store are required", nil)
	}
	d := &Dispatcher{
		catalog:   catalog,
		store:     store,
		lanes:     make(map[string]*lane, len(lanes)),
		logger:    logging.NewNop(),
		observer:  nopObserver{},
		batchSize: 10,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "dispatch")

	for name, l := range lanes {
		if l.Backend == nil || l.Governor == nil || l.Retry == nil {
			return nil, services.Wrap(services.ErrConfiguration, "dispatch", "new", fmt.Sprintf("lane %q is incomplete", name), nil)
		}
		concurrency := l.Concurrency
		if concurrency <= 0 {
			concurrency = 1
		}
		l.Concurrency = concurrency
		d.lanes[name] = &lane{Lane: l, sem: semaphore.NewWeighted(int64(concurrency))}
	}
	for _, name := range catalog.Backends() {
		if _, ok := d.lanes[name]; !ok {
			return nil, services.Wrap(services.ErrConfiguration, "dispatch", "new", fmt.Sprintf("no backend configured for %q", name), nil)
		}
	}
	return d, nil
}

// Run executes tasks in sub-batches, flushing the store after each. ctx is the
// admission context: once it ends no new call starts, calls already on the
// wire run to completion, and the current sub-batch is still merged and
// flushed. Per-item failures are recorded, never returned.
func (d *Dispatcher) Run(ctx context.Context, tasks []Task) Summary {
	summary := Summary{Tasks: len(tasks)}
	batches := Partition(tasks, d.batchSize)
	summary.Batches = len(batches)

	var mu sync.Mutex
	tally := func(calls, committed, failed, skipped int) {
		mu.Lock()
		summary.Calls += calls
		summary.Committed += committed
		summary.Failed += failed
		summary.Skipped += skipped
		mu.Unlock()
	}

	for index, batch := range batches {
		if ctx.Err() != nil {
			for _, task := range batch {
				tally(0, 0, 0, task.Calls())
			}
			for _, rest := range batches[index+1:] {
				for _, task := range rest {
					tally(0, 0, 0, task.Calls())
				}
			}
			break
		}

		var g errgroup.Group
		for _, task := range batch {
			for _, backendName := range task.Pending.Backends() {
				task, backendName := task, backendName
				g.Go(func() error {
					outcome := d.evaluate(ctx, task, backendName)
					tally(outcome.calls, boolInt(outcome.committed), outcome.failed, boolInt(outcome.skipped))
					return nil
				})
			}
		}
		_ = g.Wait()

		if err := d.store.Flush(ctx); err != nil {
			summary.FlushErrors++
			d.observer.Flushed(false)
		} else {
			d.observer.Flushed(true)
		}
		d.logger.Debug("sub-batch complete",
			logging.Int("batch", index+1),
			logging.Int("batches", len(batches)),
			logging.Int("tasks", len(batch)))
	}

	summary.Interrupted = ctx.Err() != nil
	return summary
}

type callOutcome struct {
	calls     int
	committed bool
	failed    int
	skipped   bool
}

// evaluate runs one backend call for one task and merges the result.
func (d *Dispatcher) evaluate(ctx context.Context, task Task, backendName string) callOutcome {
	l := d.lanes[backendName]
	names := task.Pending[backendName]
	correlationID := d.newID()

	callCtx := services.WithItemID(ctx, task.Item.ID)
	callCtx = services.WithBackend(callCtx, backendName)
	callCtx = services.WithRequestID(callCtx, correlationID)
	if d.runID != "" {
		callCtx = services.WithRunID(callCtx, d.runID)
	}
	logger := logging.WithContext(callCtx, d.logger)

	if err := l.sem.Acquire(ctx, 1); err != nil {
		logger.Debug("call not admitted", logging.Error(err))
		return callOutcome{skipped: true}
	}
	defer l.sem.Release(1)

	req, err := d.catalog.BuildRequest(task.Item, backendName, names, correlationID)
	if err != nil {
		results := d.failAll(backendName, names, evaluation.FailurePermanent, err.Error(), false)
		return d.commit(logger, task, results, 0)
	}

	var usage backend.Usage
	issued := 0
	started := d.now()
	verdicts, outcome := backoff.Execute(callCtx, l.Retry, backoff.Call[backend.Verdicts]{
		Attempt: func(actx context.Context, attempt int) (string, error) {
			if err := l.Governor.Acquire(actx); err != nil {
				return "", err
			}
			issued++
			d.observer.CallStarted(backendName)
			// The request itself must not be cut off by an interruption.
			resp, err := l.Backend.Evaluate(context.WithoutCancel(actx), req)
			kind := services.KindOf(err)
			switch {
			case err == nil:
				l.Governor.ReportSuccess()
				usage = resp.Usage
			case kind == services.KindThrottled:
				l.Governor.ReportThrottled()
				d.observer.Throttled(backendName)
			}
			d.observer.CallFinished(backendName, kind)
			return resp.Text, err
		},
		Decode:  func(raw string) (backend.Verdicts, error) { return backend.Decode(raw, names) },
		Salvage: func(raw string) (backend.Verdicts, error) { return backend.Salvage(raw, names) },
		OnRetry: func(attempt int, delay time.Duration, err error) {
			kind := services.KindOf(err)
			d.observer.Retried(backendName, kind)
			logger.Info("retrying backend call",
				logging.Int(logging.FieldAttempt, attempt+1),
				logging.Duration("delay", delay),
				logging.String(logging.FieldErrorKind, string(kind)),
				logging.Error(err))
		},
	})
	d.observer.Usage(backendName, usage)

	var results map[string]evaluation.CheckResult
	switch {
	case outcome.OK():
		results = d.verdictResults(backendName, names, verdicts)
		if outcome.Salvaged {
			logging.WarnWithContext(logger, "salvaged loosely formatted response", "response_salvaged",
				logging.Int("recovered", len(verdicts)),
				logging.Int("requested", len(names)),
				logging.String(logging.FieldErrorHint, "tighten the prompt or model settings if this recurs"),
				logging.String(logging.FieldImpact, "checks missing from the response are recorded as unparseable"))
		}
	case outcome.Kind == services.KindCanceled && issued == 0:
		logger.Debug("call canceled before admission")
		return callOutcome{skipped: true}
	case outcome.Kind == services.KindCanceled:
		results = d.failAll(backendName, names, evaluation.FailureCanceled, outcome.Err.Error(), true)
	case outcome.Unparseable, outcome.Kind == services.KindMalformed:
		results = d.failAll(backendName, names, evaluation.FailureUnparseable, "unparseable response: "+backend.Snippet(outcome.Raw), false)
		logging.WarnWithContext(logger, "unparseable backend response", "response_unparseable",
			logging.String("response_snippet", backend.Snippet(outcome.Raw)),
			logging.String(logging.FieldErrorHint, "inspect the raw response; rerun with --retry-failed after fixing the prompt"),
			logging.String(logging.FieldImpact, "the item's checks for this backend are recorded as failed"))
	case outcome.Kind.Retryable():
		results = d.failAll(backendName, names, evaluation.FailureTransient, outcome.Err.Error(), true)
		logging.WarnWithContext(logger, "backend call exhausted retries", "retries_exhausted",
			logging.Int("attempts", issued),
			logging.String(logging.FieldErrorKind, string(outcome.Kind)),
			logging.Error(outcome.Err),
			logging.String(logging.FieldErrorHint, "lower rate_per_minute or raise max_retries for this backend"),
			logging.String(logging.FieldImpact, "checks are stored as retryable failures and rerun next time"))
	default:
		results = d.failAll(backendName, names, evaluation.FailurePermanent, outcome.Err.Error(), false)
		logging.WarnWithContext(logger, "backend rejected request", "backend_permanent_failure",
			logging.String(logging.FieldErrorKind, string(outcome.Kind)),
			logging.Error(outcome.Err),
			logging.String(logging.FieldErrorHint, "check the backend's model name, key and request limits"),
			logging.String(logging.FieldImpact, "the item's checks for this backend are recorded as failed"))
	}

	co := d.commit(logger, task, results, issued)
	logger.Debug("backend call finished",
		logging.Int("attempts", issued),
		logging.Duration("elapsed", d.now().Sub(started)),
		logging.Int("failed_checks", co.failed))
	return co
}

func (d *Dispatcher) commit(logger *slog.Logger, task Task, results map[string]evaluation.CheckResult, calls int) callOutcome {
	record := d.store.Apply(evaluation.Partial{
		ItemID:      task.Item.ID,
		Fingerprint: task.Fingerprint,
		ItemType:    task.Item.Type,
		Group:       task.Item.Group,
		Checks:      results,
	}, task.Required)

	failed := 0
	for _, name := range sortedKeys(results) {
		result := results[name]
		if !result.Passed {
			failed++
		}
		d.observer.CheckRecorded(result.Backend, name, result.Passed, result.Failure)
	}
	d.observer.RecordCommitted(record.Status)
	logger.Debug("record merged",
		logging.String("status", string(record.Status)),
		logging.Float64("score", record.Score),
		logging.Int("checks", len(record.Checks)))
	return callOutcome{calls: calls, committed: true, failed: failed}
}

func (d *Dispatcher) verdictResults(backendName string, names []string, verdicts backend.Verdicts) map[string]evaluation.CheckResult {
	now := d.now().UTC()
	results := make(map[string]evaluation.CheckResult, len(names))
	for _, name := range names {
		verdict, ok := verdicts[name]
		if !ok {
			result := evaluation.Failed(backendName, evaluation.FailureUnparseable, "unparseable response: check missing from reply", false)
			result.RunID = d.runID
			result.EvaluatedAt = now
			results[name] = result
			continue
		}
		results[name] = evaluation.CheckResult{
			Score:       verdict.Score,
			Passed:      verdict.Passed,
			Rationale:   verdict.Rationale,
			Backend:     backendName,
			RunID:       d.runID,
			EvaluatedAt: now,
		}
	}
	return results
}

func (d *Dispatcher) failAll(backendName string, names []string, failure evaluation.Failure, reason string, retryable bool) map[string]evaluation.CheckResult {
	now := d.now().UTC()
	results := make(map[string]evaluation.CheckResult, len(names))
	for _, name := range names {
		result := evaluation.Failed(backendName, failure, reason, retryable)
		result.RunID = d.runID
		result.EvaluatedAt = now
		results[name] = result
	}
	return results
}

func sortedKeys(m map[string]evaluation.CheckResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
