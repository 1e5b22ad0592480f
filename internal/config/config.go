package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory locations.
type Paths struct {
	ItemsFile      string `toml:"items_file"`
	CheckpointFile string `toml:"checkpoint_file"`
	ReportDir      string `toml:"report_dir"`
	LogDir         string `toml:"log_dir"`
}

// Items maps columns of the tabular item source onto item fields.
type Items struct {
	IDColumn      string `toml:"id_column"`
	TypeColumn    string `toml:"type_column"`
	GroupColumn   string `toml:"group_column"`
	ContextColumn string `toml:"context_column"`
	// ContentColumns are sent to backends.
	ContentColumns []string `toml:"content_columns"`
	// FingerprintColumns are covered by the content hash. Defaults to
	// ContentColumns when empty.
	FingerprintColumns []string `toml:"fingerprint_columns"`
}

// Run contains per-invocation knobs.
type Run struct {
	BatchSize      int  `toml:"batch_size"`
	Preflight      bool `toml:"preflight"`
	TimeoutMinutes int  `toml:"timeout_minutes"`
}

// Backend describes one evaluation provider and its throughput envelope.
type Backend struct {
	Kind             string  `toml:"kind"`
	APIKey           string  `toml:"api_key"`
	APIKeyEnv        string  `toml:"api_key_env"`
	BaseURL          string  `toml:"base_url"`
	Model            string  `toml:"model"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
	MaxTokens        int     `toml:"max_tokens"`
	Concurrency      int     `toml:"concurrency"`
	RatePerMinute    float64 `toml:"rate_per_minute"`
	MinRatePerMinute float64 `toml:"min_rate_per_minute"`
	MaxRatePerMinute float64 `toml:"max_rate_per_minute"`
	Burst            int     `toml:"burst"`
	IncreaseAfter    int     `toml:"increase_after"`
	IncreaseFactor   float64 `toml:"increase_factor"`
	DecreaseFactor   float64 `toml:"decrease_factor"`
	// MaxRetries of 0 takes the default; a negative value disables retries.
	MaxRetries  int `toml:"max_retries"`
	BaseDelayMS int `toml:"base_delay_ms"`
	MaxDelayMS  int `toml:"max_delay_ms"`
	JitterMS    int `toml:"jitter_ms"`
}

// Timeout returns the per-call HTTP timeout.
func (b Backend) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// BaseDelay returns the first backoff step.
func (b Backend) BaseDelay() time.Duration {
	return time.Duration(b.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the backoff ceiling.
func (b Backend) MaxDelay() time.Duration {
	return time.Duration(b.MaxDelayMS) * time.Millisecond
}

// Jitter returns the upper bound of the uniform jitter added to each delay.
func (b Backend) Jitter() time.Duration {
	return time.Duration(b.JitterMS) * time.Millisecond
}

// Check declares one named quality dimension evaluated by one backend.
type Check struct {
	Name        string   `toml:"name"`
	Backend     string   `toml:"backend"`
	ItemTypes   []string `toml:"item_types"`
	Instruction string   `toml:"instruction"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications configures ntfy run notifications. An empty topic disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Metrics controls the optional Prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Config encapsulates all configuration values for quizqa.
//
// Configuration sections:
//   - Paths: item source, checkpoint, reports and logs
//   - Items: column mapping for the item source
//   - Run: incremental save granularity, preflight, timeout
//   - Backends: evaluation providers keyed by name
//   - Checks: the battery of checks and which backend runs each
//   - Logging: log format and level
//   - Metrics: Prometheus endpoint
//   - Notifications: ntfy topic for run milestones
type Config struct {
	Paths    Paths              `toml:"paths"`
	Items    Items              `toml:"items"`
	Run      Run                `toml:"run"`
	Backends map[string]Backend `toml:"backends"`
	Checks   []Check            `toml:"checks"`
	Logging  Logging            `toml:"logging"`
	Metrics  Metrics            `toml:"metrics"`

	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg, resolvedPath, exists, err := LoadUnvalidated(path)
	if err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return cfg, resolvedPath, exists, nil
}

// LoadUnvalidated parses and normalizes configuration without validating it.
// The config validate command uses it to report problems instead of failing early.
func LoadUnvalidated(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("quizqa.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the report and log directories plus the parent
// of the checkpoint file.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.ReportDir, c.Paths.LogDir}
	if c.Paths.CheckpointFile != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.CheckpointFile))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// BackendNames returns configured backend names in sorted order.
func (c *Config) BackendNames() []string {
	names := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReferencedBackends returns the sorted set of backends at least one check uses.
func (c *Config) ReferencedBackends() []string {
	seen := make(map[string]struct{})
	for _, check := range c.Checks {
		seen[check.Backend] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunTimeout returns the overall run deadline, or zero for none.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Run.TimeoutMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
