package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateItems(); err != nil {
		return err
	}
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := c.validateBackends(); err != nil {
		return err
	}
	if err := c.validateChecks(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeoutSeconds < 0 {
		return errors.New("notifications.request_timeout_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateItems() error {
	if c.Items.IDColumn == "" {
		return errors.New("items.id_column must be set")
	}
	if len(c.Items.ContentColumns) == 0 {
		return errors.New("items.content_columns must list at least one column")
	}
	if len(c.Items.FingerprintColumns) == 0 {
		return errors.New("items.fingerprint_columns must list at least one column")
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Run.BatchSize <= 0 {
		return errors.New("run.batch_size must be positive")
	}
	if c.Run.TimeoutMinutes < 0 {
		return errors.New("run.timeout_minutes must be zero or positive")
	}
	return nil
}

func (c *Config) validateBackends() error {
	if len(c.Backends) == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("at least one [backends.<name>] section is required. Edit %s (create with 'quizqa config init')", defaultPath)
	}
	for _, name := range c.BackendNames() {
		if err := validateBackend(name, c.Backends[name]); err != nil {
			return err
		}
	}
	return nil
}

func validateBackend(name string, b Backend) error {
	prefix := "backends." + name
	if strings.TrimSpace(name) == "" {
		return errors.New("backend names must not be empty")
	}
	switch b.Kind {
	case KindOpenAI, KindAnthropic:
	default:
		return fmt.Errorf("%s.kind: unsupported value %q (want %q or %q)", prefix, b.Kind, KindOpenAI, KindAnthropic)
	}
	if b.APIKey == "" {
		return fmt.Errorf("%s.api_key is required. Set %s or edit the config file", prefix, b.APIKeyEnv)
	}
	if b.Model == "" {
		return fmt.Errorf("%s.model must be set", prefix)
	}
	if err := ensurePositiveMap(map[string]int{
		prefix + ".timeout_seconds": b.TimeoutSeconds,
		prefix + ".max_tokens":      b.MaxTokens,
		prefix + ".concurrency":     b.Concurrency,
		prefix + ".burst":           b.Burst,
		prefix + ".increase_after":  b.IncreaseAfter,
		prefix + ".base_delay_ms":   b.BaseDelayMS,
		prefix + ".max_delay_ms":    b.MaxDelayMS,
	}); err != nil {
		return err
	}
	if b.MinRatePerMinute <= 0 || b.RatePerMinute <= 0 || b.MaxRatePerMinute <= 0 {
		return fmt.Errorf("%s rates must be positive", prefix)
	}
	if b.MinRatePerMinute > b.RatePerMinute || b.RatePerMinute > b.MaxRatePerMinute {
		return fmt.Errorf("%s: require min_rate_per_minute <= rate_per_minute <= max_rate_per_minute (got %.2f, %.2f, %.2f)",
			prefix, b.MinRatePerMinute, b.RatePerMinute, b.MaxRatePerMinute)
	}
	if b.IncreaseFactor < 1 {
		return fmt.Errorf("%s.increase_factor must be at least 1", prefix)
	}
	if b.DecreaseFactor <= 0 || b.DecreaseFactor >= 1 {
		return fmt.Errorf("%s.decrease_factor must be between 0 and 1", prefix)
	}
	if b.MaxDelayMS < b.BaseDelayMS {
		return fmt.Errorf("%s.max_delay_ms must be at least base_delay_ms", prefix)
	}
	if b.JitterMS < 0 {
		return fmt.Errorf("%s.jitter_ms must be zero or positive", prefix)
	}
	return nil
}

func (c *Config) validateChecks() error {
	if len(c.Checks) == 0 {
		return errors.New("at least one [[checks]] entry is required")
	}
	seen := make(map[string]struct{}, len(c.Checks))
	for i, check := range c.Checks {
		if check.Name == "" {
			return fmt.Errorf("checks[%d].name must be set", i)
		}
		if _, ok := seen[check.Name]; ok {
			return fmt.Errorf("checks: duplicate name %q", check.Name)
		}
		seen[check.Name] = struct{}{}
		if check.Backend == "" {
			return fmt.Errorf("checks.%s.backend must be set", check.Name)
		}
		if _, ok := c.Backends[check.Backend]; !ok {
			return fmt.Errorf("checks.%s.backend references unknown backend %q", check.Name, check.Backend)
		}
		if check.Instruction == "" {
			return fmt.Errorf("checks.%s.instruction must be set", check.Name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && c.Metrics.Bind == "" {
		return errors.New("metrics.bind must be set when metrics.enabled is true")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
