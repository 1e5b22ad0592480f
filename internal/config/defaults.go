package config

const (
	defaultConfigPath     = "~/.config/quizqa/config.toml"
	defaultItemsFile      = "items.csv"
	defaultCheckpointFile = "~/.local/share/quizqa/checkpoint.json"
	defaultReportDir      = "~/.local/share/quizqa/reports"
	defaultLogDir         = "~/.local/share/quizqa/logs"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultBatchSize      = 10
	defaultMetricsBind    = "127.0.0.1:9464"
	defaultNtfyTimeout    = 10

	defaultIDColumn      = "id"
	defaultTypeColumn    = "type"
	defaultGroupColumn   = "passage_id"
	defaultContextColumn = "passage"

	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"

	defaultOpenAIBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenAIModel       = "google/gemini-3-flash-preview"
	defaultOpenAIKeyEnv      = "OPENROUTER_API_KEY"
	defaultOpenAIConcurrency = 8
	defaultAnthropicModel    = "claude-sonnet-4-5"
	defaultAnthropicKeyEnv   = "ANTHROPIC_API_KEY"
	defaultAnthropicParallel = 4
	defaultBackendTimeout    = 60
	defaultBackendMaxTokens  = 1024
	defaultRatePerMinute     = 60
	defaultBurst             = 5
	defaultIncreaseAfter     = 10
	defaultIncreaseFactor    = 1.2
	defaultDecreaseFactor    = 0.7
	defaultMaxRetries        = 5
	defaultBaseDelayMS       = 1000
	defaultMaxDelayMS        = 60000
	defaultJitterMS          = 250
	defaultMinRateDivisor    = 10
	defaultMaxRateMultiplier = 2
)

var defaultContentColumns = []string{
	"question",
	"choice_a",
	"choice_b",
	"choice_c",
	"choice_d",
	"correct_answer",
}

// Default returns a Config populated with repository defaults. Backends and
// checks have no defaults; the sample config shows a working pair.
func Default() Config {
	return Config{
		Paths: Paths{
			ItemsFile:      defaultItemsFile,
			CheckpointFile: defaultCheckpointFile,
			ReportDir:      defaultReportDir,
			LogDir:         defaultLogDir,
		},
		Items: Items{
			IDColumn:       defaultIDColumn,
			TypeColumn:     defaultTypeColumn,
			GroupColumn:    defaultGroupColumn,
			ContextColumn:  defaultContextColumn,
			ContentColumns: append([]string(nil), defaultContentColumns...),
		},
		Run: Run{
			BatchSize: defaultBatchSize,
			Preflight: true,
		},
		Backends: map[string]Backend{},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeout,
		},
	}
}

// DefaultBackend returns the defaults applied to a backend of the given kind.
func DefaultBackend(kind string) Backend {
	b := Backend{
		Kind:           kind,
		TimeoutSeconds: defaultBackendTimeout,
		MaxTokens:      defaultBackendMaxTokens,
		RatePerMinute:  defaultRatePerMinute,
		Burst:          defaultBurst,
		IncreaseAfter:  defaultIncreaseAfter,
		IncreaseFactor: defaultIncreaseFactor,
		DecreaseFactor: defaultDecreaseFactor,
		MaxRetries:     defaultMaxRetries,
		BaseDelayMS:    defaultBaseDelayMS,
		MaxDelayMS:     defaultMaxDelayMS,
		JitterMS:       defaultJitterMS,
	}
	switch kind {
	case KindAnthropic:
		b.Model = defaultAnthropicModel
		b.APIKeyEnv = defaultAnthropicKeyEnv
		b.Concurrency = defaultAnthropicParallel
	default:
		b.Kind = KindOpenAI
		b.BaseURL = defaultOpenAIBaseURL
		b.Model = defaultOpenAIModel
		b.APIKeyEnv = defaultOpenAIKeyEnv
		b.Concurrency = defaultOpenAIConcurrency
	}
	b.MinRatePerMinute = b.RatePerMinute / defaultMinRateDivisor
	b.MaxRatePerMinute = b.RatePerMinute * defaultMaxRateMultiplier
	return b
}
