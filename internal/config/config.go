// Package config loads and validates the engine's configuration: the
// provider roster, retry policy, circuit breaker thresholds, and the
// directories the Plan Store, Checkpoint Store, and Telemetry sinks
// use.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/conductor/internal/models"
)

// ConsoleConfig controls terminal telemetry output.
type ConsoleConfig struct {
	// EnableColor is loaded from the file and CONDUCTOR_CONSOLE_COLOR.
	// The console telemetry sink does not read it; it colors output only
	// when writing to a terminal.
	EnableColor bool `yaml:"enable_color"`
}

// RetryConfig configures the Error Classifier's retry policy.
type RetryConfig struct {
	// MaxRetries bounds transient/unknown-class retries (0 selects the
	// classifier's built-in default of 3).
	MaxRetries int `yaml:"max_retries"`
}

// CircuitConfig configures the Provider Pool's circuit breaker.
type CircuitConfig struct {
	// ConsecutiveFailureThreshold is how many consecutive failures open
	// a provider's circuit.
	ConsecutiveFailureThreshold int `yaml:"consecutive_failure_threshold"`

	// CooldownSeconds is how long an open circuit waits before moving
	// to half-open.
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

// Config represents the engine's top-level configuration.
type Config struct {
	// ProjectPath is the working directory tasks execute against.
	ProjectPath string `yaml:"project_path"`

	// PlanPath is the plan document's path.
	PlanPath string `yaml:"plan_path"`

	// CheckpointDir is the directory checkpoints are written to.
	CheckpointDir string `yaml:"checkpoint_dir"`

	// TelemetryDir is the directory the file telemetry sink writes to.
	TelemetryDir string `yaml:"telemetry_dir"`

	// LogLevel is validated against trace, debug, info, warn, error. No
	// telemetry sink filters events by it.
	LogLevel string `yaml:"log_level"`

	// Providers is the ordered roster of external CLI assistants.
	Providers []models.ProviderSpec `yaml:"providers"`

	// ValidatorStepTimeout bounds each check-step command.
	ValidatorStepTimeout time.Duration `yaml:"validator_step_timeout"`

	// Retry holds the Error Classifier's retry policy.
	Retry RetryConfig `yaml:"retry"`

	// Circuit holds the Provider Pool's circuit breaker thresholds.
	Circuit CircuitConfig `yaml:"circuit"`

	// Console holds terminal telemetry configuration.
	Console ConsoleConfig `yaml:"console"`
}

// DefaultConfig returns a Config with sensible default values. It
// carries no providers; callers must configure at least one.
func DefaultConfig() *Config {
	return &Config{
		CheckpointDir:        ".conductor/checkpoints",
		TelemetryDir:         ".conductor/telemetry",
		LogLevel:             "info",
		ValidatorStepTimeout: 2 * time.Minute,
		Retry:                RetryConfig{MaxRetries: 3},
		Circuit:              CircuitConfig{ConsecutiveFailureThreshold: 3, CooldownSeconds: 300},
		Console:              ConsoleConfig{EnableColor: true},
	}
}

// applyConsoleEnvOverrides applies CONDUCTOR_CONSOLE_COLOR, taking
// precedence over any config file value. Only "true" or "1" are
// recognised as true; any other non-empty value is false. When the
// variable is unset or empty, the existing value is kept.
func applyConsoleEnvOverrides(cfg *ConsoleConfig) {
	if val := os.Getenv("CONDUCTOR_CONSOLE_COLOR"); val != "" {
		cfg.EnableColor = val == "true" || val == "1"
	}
}

// LoadConfig loads configuration from path. If the file doesn't exist,
// returns defaults (with environment overrides applied) and no error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		applyConsoleEnvOverrides(&cfg.Console)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Decode onto the defaults so fields absent from the file keep
	// their default values rather than being zeroed.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyConsoleEnvOverrides(&cfg.Console)

	return cfg, nil
}

// Validate validates the configuration values, returning an error
// describing the first invalid field found.
func (c *Config) Validate() error {
	if c.ProjectPath == "" {
		return fmt.Errorf("project_path is required")
	}
	if c.PlanPath == "" {
		return fmt.Errorf("plan_path is required")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if p.Command == "" {
			return fmt.Errorf("providers[%d]: command is required", i)
		}
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Circuit.ConsecutiveFailureThreshold <= 0 {
		return fmt.Errorf("circuit.consecutive_failure_threshold must be > 0, got %d", c.Circuit.ConsecutiveFailureThreshold)
	}
	if c.Circuit.CooldownSeconds < 0 {
		return fmt.Errorf("circuit.cooldown_seconds must be >= 0, got %d", c.Circuit.CooldownSeconds)
	}
	if c.ValidatorStepTimeout < 0 {
		return fmt.Errorf("validator_step_timeout must be >= 0, got %v", c.ValidatorStepTimeout)
	}

	return nil
}
