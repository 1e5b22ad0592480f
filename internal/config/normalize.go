package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeItems()
	c.normalizeRun()
	c.normalizeBackends()
	c.normalizeChecks()
	c.normalizeLogging()
	c.normalizeMetrics()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ItemsFile) == "" {
		c.Paths.ItemsFile = defaultItemsFile
	}
	if c.Paths.ItemsFile, err = expandPath(strings.TrimSpace(c.Paths.ItemsFile)); err != nil {
		return fmt.Errorf("paths.items_file: %w", err)
	}
	// An empty checkpoint path is allowed and means in-memory only.
	if c.Paths.CheckpointFile, err = expandPath(strings.TrimSpace(c.Paths.CheckpointFile)); err != nil {
		return fmt.Errorf("paths.checkpoint_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.ReportDir) == "" {
		c.Paths.ReportDir = defaultReportDir
	}
	if c.Paths.ReportDir, err = expandPath(strings.TrimSpace(c.Paths.ReportDir)); err != nil {
		return fmt.Errorf("paths.report_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeItems() {
	c.Items.IDColumn = strings.TrimSpace(c.Items.IDColumn)
	if c.Items.IDColumn == "" {
		c.Items.IDColumn = defaultIDColumn
	}
	c.Items.TypeColumn = strings.TrimSpace(c.Items.TypeColumn)
	c.Items.GroupColumn = strings.TrimSpace(c.Items.GroupColumn)
	c.Items.ContextColumn = strings.TrimSpace(c.Items.ContextColumn)
	c.Items.ContentColumns = trimList(c.Items.ContentColumns)
	c.Items.FingerprintColumns = trimList(c.Items.FingerprintColumns)
	if len(c.Items.FingerprintColumns) == 0 {
		c.Items.FingerprintColumns = append([]string(nil), c.Items.ContentColumns...)
	}
}

func (c *Config) normalizeRun() {
	if c.Run.BatchSize <= 0 {
		c.Run.BatchSize = defaultBatchSize
	}
}

func (c *Config) normalizeBackends() {
	if c.Backends == nil {
		c.Backends = map[string]Backend{}
	}
	for name, b := range c.Backends {
		c.Backends[name] = normalizeBackend(b)
	}
}

func normalizeBackend(b Backend) Backend {
	b.Kind = strings.ToLower(strings.TrimSpace(b.Kind))
	if b.Kind == "" {
		b.Kind = KindOpenAI
	}
	def := DefaultBackend(b.Kind)
	if b.Kind != KindOpenAI && b.Kind != KindAnthropic {
		// Leave unknown kinds for Validate to reject with a clear message.
		def.Kind = b.Kind
	}

	b.BaseURL = strings.TrimSpace(b.BaseURL)
	if b.BaseURL == "" {
		b.BaseURL = def.BaseURL
	}
	b.Model = strings.TrimSpace(b.Model)
	if b.Model == "" {
		b.Model = def.Model
	}
	b.APIKeyEnv = strings.TrimSpace(b.APIKeyEnv)
	if b.APIKeyEnv == "" {
		b.APIKeyEnv = def.APIKeyEnv
	}
	b.APIKey = strings.TrimSpace(b.APIKey)
	if b.APIKey == "" && b.APIKeyEnv != "" {
		if value, ok := os.LookupEnv(b.APIKeyEnv); ok {
			b.APIKey = strings.TrimSpace(value)
		}
	}
	if b.TimeoutSeconds <= 0 {
		b.TimeoutSeconds = def.TimeoutSeconds
	}
	if b.MaxTokens <= 0 {
		b.MaxTokens = def.MaxTokens
	}
	if b.Concurrency <= 0 {
		b.Concurrency = def.Concurrency
	}
	if b.RatePerMinute <= 0 {
		b.RatePerMinute = def.RatePerMinute
	}
	if b.MinRatePerMinute <= 0 {
		b.MinRatePerMinute = b.RatePerMinute / defaultMinRateDivisor
	}
	if b.MaxRatePerMinute <= 0 {
		b.MaxRatePerMinute = b.RatePerMinute * defaultMaxRateMultiplier
	}
	if b.Burst <= 0 {
		b.Burst = def.Burst
	}
	if b.IncreaseAfter <= 0 {
		b.IncreaseAfter = def.IncreaseAfter
	}
	if b.IncreaseFactor == 0 {
		b.IncreaseFactor = def.IncreaseFactor
	}
	if b.DecreaseFactor == 0 {
		b.DecreaseFactor = def.DecreaseFactor
	}
	if b.MaxRetries == 0 {
		b.MaxRetries = def.MaxRetries
	}
	if b.BaseDelayMS <= 0 {
		b.BaseDelayMS = def.BaseDelayMS
	}
	if b.MaxDelayMS <= 0 {
		b.MaxDelayMS = def.MaxDelayMS
	}
	if b.JitterMS < 0 {
		b.JitterMS = 0
	}
	return b
}

func (c *Config) normalizeChecks() {
	for i := range c.Checks {
		c.Checks[i].Name = strings.TrimSpace(c.Checks[i].Name)
		c.Checks[i].Backend = strings.TrimSpace(c.Checks[i].Backend)
		c.Checks[i].Instruction = strings.TrimSpace(c.Checks[i].Instruction)
		c.Checks[i].ItemTypes = trimList(c.Checks[i].ItemTypes)
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	if c.Metrics.Bind == "" {
		c.Metrics.Bind = defaultMetricsBind
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds == 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeout
	}
}

func trimList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
