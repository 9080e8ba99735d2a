// Package config handles configuration loading and management for Maestro.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Maestro.
type Config struct {
	Execution    ExecutionConfig    `mapstructure:"execution"`
	Subprocess   SubprocessConfig   `mapstructure:"subprocess"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Pressure     PressureConfig     `mapstructure:"pressure"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Log          LogConfig          `mapstructure:"log"`
}

// ExecutionConfig holds execution-mode settings.
type ExecutionConfig struct {
	// ForceSubprocess makes every delegation run in subprocess mode,
	// overriding per-request mode selection.
	ForceSubprocess bool `mapstructure:"force_subprocess"`
}

// SubprocessConfig holds subprocess memory ceilings and termination settings.
type SubprocessConfig struct {
	// ProcessLimitMB is the per-process resident memory ceiling.
	ProcessLimitMB int `mapstructure:"process_limit_mb"`
	// AggregateLimitMB is the ceiling across all tracked subprocesses.
	AggregateLimitMB int `mapstructure:"aggregate_limit_mb"`
	// GracePeriod is how long a process gets after SIGTERM before SIGKILL.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// SampleInterval is how often tracked processes are sampled.
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// CacheConfig holds prompt cache bounds.
type CacheConfig struct {
	// TTL is the default time-to-live for cache entries.
	TTL time.Duration `mapstructure:"ttl"`
	// MaxEntries bounds the number of cached entries.
	MaxEntries int `mapstructure:"max_entries"`
	// MaxMemoryMB bounds the estimated aggregate size of cached values.
	MaxMemoryMB int `mapstructure:"max_memory_mb"`
	// SweepInterval is how often expired entries are physically purged.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// PressureConfig holds memory pressure thresholds and cleanup pacing.
type PressureConfig struct {
	// WarningPercent is the used-memory percentage that classifies WARNING.
	WarningPercent float64 `mapstructure:"warning_percent"`
	// CriticalPercent is the used-memory percentage that classifies CRITICAL.
	CriticalPercent float64 `mapstructure:"critical_percent"`
	// Cooldown suppresses repeated cleanup after any cleanup ran.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// TickInterval is how often memory is sampled and classified.
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// OrchestratorConfig holds delegation behavior settings.
type OrchestratorConfig struct {
	// DefaultTimeout applies when a request carries no timeout.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// FallbackEnabled retries a failed local delegation once in
	// subprocess mode before giving up.
	FallbackEnabled bool `mapstructure:"fallback_enabled"`
}

// LogConfig holds debug logging settings.
type LogConfig struct {
	// Path is the debug log file; empty disables file logging.
	Path string `mapstructure:"path"`
}

// setDefaults installs built-in defaults on a viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("execution.force_subprocess", false)

	v.SetDefault("subprocess.process_limit_mb", 1500)
	v.SetDefault("subprocess.aggregate_limit_mb", 4096)
	v.SetDefault("subprocess.grace_period", 5*time.Second)
	v.SetDefault("subprocess.sample_interval", 10*time.Second)

	v.SetDefault("cache.ttl", 30*time.Minute)
	v.SetDefault("cache.max_entries", 500)
	v.SetDefault("cache.max_memory_mb", 100)
	v.SetDefault("cache.sweep_interval", time.Minute)

	v.SetDefault("pressure.warning_percent", 70.0)
	v.SetDefault("pressure.critical_percent", 85.0)
	v.SetDefault("pressure.cooldown", 30*time.Second)
	v.SetDefault("pressure.tick_interval", 15*time.Second)

	v.SetDefault("orchestrator.default_timeout", 5*time.Minute)
	v.SetDefault("orchestrator.fallback_enabled", true)

	v.SetDefault("log.path", "")
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (MAESTRO_*)
// 2. Project config (.maestro/config.yaml in current directory or parent)
// 3. User config (~/.config/maestro/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Load user config from XDG path
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides: MAESTRO_SUBPROCESS_PROCESS_LIMIT_MB etc.
	v.SetEnvPrefix("MAESTRO")
	v.AutomaticEnv()
	bindEnvKeys(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	v.SetEnvPrefix("MAESTRO")
	v.AutomaticEnv()
	bindEnvKeys(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in defaults without touching the filesystem.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	cfg := &Config{}
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(cfg)
	return cfg
}

// bindEnvKeys maps nested config keys to MAESTRO_* environment variables.
// AutomaticEnv alone does not see nested keys that are absent from the
// config file, so each recognized option is bound explicitly.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"execution.force_subprocess",
		"subprocess.process_limit_mb",
		"subprocess.aggregate_limit_mb",
		"subprocess.grace_period",
		"subprocess.sample_interval",
		"cache.ttl",
		"cache.max_entries",
		"cache.max_memory_mb",
		"cache.sweep_interval",
		"pressure.warning_percent",
		"pressure.critical_percent",
		"pressure.cooldown",
		"pressure.tick_interval",
		"orchestrator.default_timeout",
		"orchestrator.fallback_enabled",
		"log.path",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// getUserConfigDir returns the XDG config directory for maestro.
func getUserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "maestro")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "maestro")
}

// findProjectConfig walks up from the working directory looking for
// .maestro/config.yaml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ".maestro", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Validate checks threshold ordering and positive bounds.
func (c *Config) Validate() error {
	if c.Pressure.WarningPercent <= 0 || c.Pressure.WarningPercent >= 100 {
		return fmt.Errorf("pressure.warning_percent must be in (0, 100), got %v", c.Pressure.WarningPercent)
	}
	if c.Pressure.CriticalPercent <= c.Pressure.WarningPercent {
		return fmt.Errorf("pressure.critical_percent (%v) must exceed warning_percent (%v)",
			c.Pressure.CriticalPercent, c.Pressure.WarningPercent)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.Cache.MaxMemoryMB <= 0 {
		return fmt.Errorf("cache.max_memory_mb must be positive, got %d", c.Cache.MaxMemoryMB)
	}
	if c.Subprocess.ProcessLimitMB <= 0 {
		return fmt.Errorf("subprocess.process_limit_mb must be positive, got %d", c.Subprocess.ProcessLimitMB)
	}
	if c.Subprocess.AggregateLimitMB < c.Subprocess.ProcessLimitMB {
		return fmt.Errorf("subprocess.aggregate_limit_mb (%d) must be at least process_limit_mb (%d)",
			c.Subprocess.AggregateLimitMB, c.Subprocess.ProcessLimitMB)
	}
	return nil
}
