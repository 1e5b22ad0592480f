package testsupport

import (
	"path/filepath"
	"testing"

	"quizqa/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// Backend and check names used by NewConfig.
const (
	BackendA = "alpha"
	BackendB = "beta"

	CheckSingleAnswer = "single_correct_answer"
	CheckDistractors  = "plausible_distractors"
	CheckAnswerable   = "answerable_from_passage"
)

// NewConfig produces a validated-shape config seeded with unique temp
// directories per test: two backends, two checks on BackendA and one on
// BackendB, and retry delays short enough for unit tests.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ItemsFile = filepath.Join(base, "items.csv")
	cfgVal.Paths.CheckpointFile = filepath.Join(base, "state", "checkpoint.json")
	cfgVal.Paths.ReportDir = filepath.Join(base, "reports")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Run.Preflight = false
	cfgVal.Metrics.Enabled = false

	alpha := config.DefaultBackend(config.KindOpenAI)
	alpha.APIKey = "test-alpha"
	alpha.BaseURL = "http://127.0.0.1:0"
	beta := config.DefaultBackend(config.KindAnthropic)
	beta.APIKey = "test-beta"
	for _, b := range []*config.Backend{&alpha, &beta} {
		b.RatePerMinute = 60000
		b.MinRatePerMinute = 600
		b.MaxRatePerMinute = 120000
		b.Burst = 1000
		b.BaseDelayMS = 1
		b.MaxDelayMS = 5
		b.JitterMS = 0
	}
	cfgVal.Backends = map[string]config.Backend{BackendA: alpha, BackendB: beta}
	cfgVal.Checks = []config.Check{
		{Name: CheckSingleAnswer, Backend: BackendA, Instruction: "Exactly one choice is correct."},
		{Name: CheckDistractors, Backend: BackendA, Instruction: "Every distractor is plausible."},
		{Name: CheckAnswerable, Backend: BackendB, Instruction: "Answerable from the passage alone."},
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBatchSize overrides the incremental save granularity.
func WithBatchSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Run.BatchSize = size
	}
}

// WithCheckpointFile overrides the checkpoint path; "" disables persistence.
func WithCheckpointFile(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.CheckpointFile = path
	}
}

// WithBackend edits one backend's settings in place.
func WithBackend(name string, edit func(*config.Backend)) ConfigOption {
	return func(b *configBuilder) {
		backend, ok := b.cfg.Backends[name]
		if !ok {
			b.t.Fatalf("unknown test backend %q", name)
		}
		edit(&backend)
		b.cfg.Backends[name] = backend
	}
}

// WithChecks replaces the check list.
func WithChecks(checks ...config.Check) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Checks = checks
	}
}
