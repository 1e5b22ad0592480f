package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizqa/internal/backend"
	"quizqa/internal/checkpoint"
	"quizqa/internal/checks"
	"quizqa/internal/config"
	"quizqa/internal/dispatch"
	"quizqa/internal/evaluation"
	"quizqa/internal/items"
	"quizqa/internal/logging"
	"quizqa/internal/metrics"
	"quizqa/internal/notifications"
	"quizqa/internal/preflight"
	"quizqa/internal/report"
	"quizqa/internal/services"
)

// Options are per-invocation overrides of the configuration.
type Options struct {
	ItemsFile      string
	CheckpointFile string
	// RetryFailed re-evaluates permanent and unparseable failures.
	RetryFailed bool
}

// Result describes a finished run.
type Result struct {
	RunID      string
	Plan       Plan
	Summary    dispatch.Summary
	Report     report.Report
	ReportPath string
	// Interrupted is set when cancellation or the run timeout stopped the
	// run before every pending call was made.
	Interrupted bool
	// Unsaved is set when the checkpoint could not be written.
	Unsaved bool
}

// Runner wires configuration, items, checkpoint, backends and the dispatcher
// into one run.
type Runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	factory  Factory
	metrics  *metrics.Metrics
	notifier notifications.Service
	now      func() time.Time
	newRunID func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithFactory overrides how backend clients are built.
func WithFactory(factory Factory) Option {
	return func(r *Runner) {
		if factory != nil {
			r.factory = factory
		}
	}
}

// WithMetrics supplies the registry the run reports into.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithNotifier overrides where run milestones are published.
func WithNotifier(svc notifications.Service) Option {
	return func(r *Runner) {
		if svc != nil {
			r.notifier = svc
		}
	}
}

// WithClock overrides the time source for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(next func() string) Option {
	return func(r *Runner) {
		if next != nil {
			r.newRunID = next
		}
	}
}

// NewRunner constructs a runner for cfg.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		logger:   logging.NewNop(),
		factory:  DefaultFactory,
		now:      time.Now,
		newRunID: NewRunID,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "workflow")
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	if r.notifier == nil {
		r.notifier = notifications.NewService(cfg)
	}
	return r
}

// Metrics returns the registry the runner reports into.
func (r *Runner) Metrics() *metrics.Metrics { return r.metrics }

// NewRunID returns a time-ordered run identifier.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type prepared struct {
	items   []items.Item
	catalog *checks.Catalog
	store   *checkpoint.Store
	plan    Plan
}

func (r *Runner) prepare(opts Options, logger *slog.Logger) (*prepared, error) {
	if r.cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "prepare", "configuration missing", nil)
	}
	catalog, err := checks.New(r.cfg.Checks)
	if err != nil {
		return nil, err
	}

	itemsFile := firstNonEmpty(opts.ItemsFile, r.cfg.Paths.ItemsFile)
	list, err := items.LoadCSV(itemsFile, items.SchemaFromConfig(r.cfg.Items))
	if err != nil {
		return nil, err
	}

	checkpointFile := r.cfg.Paths.CheckpointFile
	if strings.TrimSpace(opts.CheckpointFile) != "" {
		checkpointFile = opts.CheckpointFile
	}
	store := checkpoint.Open(checkpointFile, logger)

	plan := BuildPlan(list, catalog, store, evaluation.Policy{RetryFailed: opts.RetryFailed})
	return &prepared{items: list, catalog: catalog, store: store, plan: plan}, nil
}

// Plan loads items and the checkpoint and classifies every item without
// contacting any backend.
func (r *Runner) Plan(opts Options) (Plan, error) {
	p, err := r.prepare(opts, r.logger)
	if err != nil {
		return Plan{}, err
	}
	return p.plan, nil
}

// Run evaluates every item that is not complete. ctx governs admission: once
// it is done no new backend call starts, in-flight calls finish, results are
// flushed and a partial report is written. Only configuration problems and
// a preflight with no reachable backend return an error; per-item failures
// are recorded in the checkpoint.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	runID := r.newRunID()
	started := r.now()
	ctx = services.WithRunID(ctx, runID)
	logger := r.logger.With(logging.String(logging.FieldRunID, runID))

	p, err := r.prepare(opts, logger)
	if err != nil {
		return Result{RunID: runID}, err
	}
	result := Result{RunID: runID, Plan: p.plan}

	logger.Info("run planned",
		logging.String(logging.FieldEventType, "run_planned"),
		logging.Int("items", p.plan.Items),
		logging.Int("complete", p.plan.Counts[evaluation.Complete]),
		logging.Int("needs_backend", p.plan.Counts[evaluation.NeedsBackend]),
		logging.Int("stale", p.plan.Counts[evaluation.Stale]),
		logging.Int("new", p.plan.Counts[evaluation.New]),
		logging.Int("pending_calls", p.plan.TotalCalls()))

	if err := r.cfg.EnsureDirectories(); err != nil {
		logging.WarnWithContext(logger, "could not prepare output directories", "directories_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the paths section of the config"),
			logging.String(logging.FieldImpact, "checkpoint or report may not be saved"))
	}

	lanes, clients, err := buildLanes(r.cfg, p.catalog.Backends(), r.factory, r.metrics.ObserveRate)
	if err != nil {
		return result, err
	}

	if r.cfg.Run.Preflight && len(p.plan.Tasks) > 0 {
		if err := r.runPreflight(ctx, logger, clients); err != nil {
			r.notify(ctx, logger, notifications.EventError, notifications.Payload{
				"context": "preflight",
				"error":   err.Error(),
			})
			return result, err
		}
	}

	if r.cfg.Metrics.Enabled {
		srv, err := metrics.Serve(r.cfg.Metrics.Bind, r.metrics, logger)
		if err != nil {
			logging.WarnWithContext(logger, "metrics endpoint unavailable", "metrics_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "choose a free address in metrics.bind"),
				logging.String(logging.FieldImpact, "metrics are not exposed for this run"))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				_ = srv.Close(shutdownCtx)
			}()
		}
	}

	runCtx := ctx
	if timeout := r.cfg.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dispatcher, err := dispatch.New(p.catalog, p.store, lanes,
		dispatch.WithLogger(logger),
		dispatch.WithObserver(r.metrics),
		dispatch.WithRunID(runID),
		dispatch.WithBatchSize(r.cfg.Run.BatchSize))
	if err != nil {
		return result, err
	}
	result.Summary = dispatcher.Run(runCtx, p.plan.Tasks)
	result.Interrupted = result.Summary.Interrupted

	r.metrics.Flushed(p.store.Flush(context.WithoutCancel(ctx)) == nil)
	result.Unsaved = p.store.Degraded()

	finished := r.now()
	records := make([]evaluation.Record, 0, len(p.items))
	for _, item := range p.items {
		if rec, ok := p.store.Get(item.ID); ok {
			records = append(records, rec)
		}
	}
	result.Report = report.Build(records, report.Meta{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		Partial:    result.Interrupted,
		Unsaved:    result.Unsaved,
		Checkpoint: p.store.Path(),
		Expected:   p.plan.Items - p.plan.Unchecked,
		Activity: &report.Activity{
			Tasks:     result.Summary.Tasks,
			Calls:     result.Summary.Calls,
			Committed: result.Summary.Committed,
			Failed:    result.Summary.Failed,
			Skipped:   result.Summary.Skipped,
		},
	})
	if dir := strings.TrimSpace(r.cfg.Paths.ReportDir); dir != "" {
		path, err := report.Write(dir, result.Report)
		if err != nil {
			logging.WarnWithContext(logger, "run report not written", "report_unsaved",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on paths.report_dir"),
				logging.String(logging.FieldImpact, "the summary is only shown on the terminal"))
		} else {
			result.ReportPath = path
		}
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "run_finished"),
		logging.Int("calls", result.Summary.Calls),
		logging.Int("committed", result.Summary.Committed),
		logging.Int("failed_checks", result.Summary.Failed),
		logging.Int("skipped_calls", result.Summary.Skipped),
		logging.Int("passed_items", result.Report.Passed),
		logging.Int("failed_items", result.Report.Failed),
		logging.Duration("elapsed", finished.Sub(started)),
		logging.String("report", result.ReportPath),
	}
	if result.Interrupted {
		logging.WarnWithContext(logger, "run interrupted", "run_interrupted",
			append(attrs,
				logging.String(logging.FieldErrorHint, "re-run the same command to resume"),
				logging.String(logging.FieldImpact, "remaining items were not evaluated; completed work is checkpointed"))...)
	} else {
		logger.Info("run finished", logging.Args(attrs...)...)
	}
	if result.Unsaved {
		cause := p.store.LastError()
		logging.Loud(logger, "CHECKPOINT NOT SAVED: results of this run exist only in memory",
			logging.Error(cause),
			logging.String("checkpoint", p.store.Path()),
			logging.String(logging.FieldErrorHint, "fix the checkpoint path or permissions and re-run"),
			logging.String(logging.FieldImpact, "a re-run will repeat this run's backend calls"))
		r.notify(ctx, logger, notifications.EventCheckpointUnsaved, notifications.Payload{
			"run_id":     runID,
			"checkpoint": p.store.Path(),
		})
	}
	if result.Interrupted {
		r.notify(ctx, logger, notifications.EventRunInterrupted, notifications.Payload{
			"run_id":  runID,
			"skipped": result.Summary.Skipped,
		})
	} else if len(p.plan.Tasks) > 0 {
		r.notify(ctx, logger, notifications.EventRunFinished, notifications.Payload{
			"total":         result.Report.Total,
			"failed":        result.Report.Failed,
			"average_score": result.Report.AverageScore,
			"duration":      finished.Sub(started),
		})
	}
	return result, nil
}

// notify publishes best effort; delivery failures only warn.
func (r *Runner) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := r.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.String("notification", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "run status was not pushed"))
	}
}

func (r *Runner) runPreflight(ctx context.Context, logger *slog.Logger, clients map[string]backend.Backend) error {
	results := preflight.RunAll(ctx, r.cfg, clients)
	for _, res := range results {
		if res.Passed {
			logger.Info("preflight check passed",
				logging.String("check", res.Name),
				logging.String("detail", res.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", res.Name),
			logging.String("detail", res.Detail),
			logging.String(logging.FieldErrorHint, preflightHint(res.Kind)),
			logging.String(logging.FieldImpact, preflightImpact(res.Kind)))
	}
	if _, err := preflight.Assess(results); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	return nil
}

func preflightHint(kind preflight.Kind) string {
	if kind == preflight.KindDirectory {
		return "create the directory or fix its permissions"
	}
	return "check the backend's api key, base_url and network access"
}

func preflightImpact(kind preflight.Kind) string {
	if kind == preflight.KindDirectory {
		return "results may not be saved"
	}
	return "checks assigned to this backend will record failures"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
