package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Target    string          `yaml:"target,omitempty"`
	Output    OutputConfig    `yaml:"output"`
	Build     BuildConfig     `yaml:"build"`
	Exclusion ExclusionConfig `yaml:"exclusion"`
	Cache     CacheConfig     `yaml:"cache"`
	Watch     WatchConfig     `yaml:"watch"`
	History   HistoryConfig   `yaml:"history"`
}

// OutputConfig controls where compiled artifacts are placed
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Fresh     bool   `yaml:"fresh"` // Remove the output directory before build
}

// RetryBackoffMode selects the backoff curve for transient compile retries
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// BuildConfig controls compilation behaviour
type BuildConfig struct {
	Jobs              int              `yaml:"jobs"`          // Worker count; 0 means available hardware parallelism
	CompilerPath      string           `yaml:"compiler_path"` // Override for the cythonize binary
	Force             bool             `yaml:"force"`         // Ignore the fingerprint store and rebuild everything
	MaxRetries        int              `yaml:"max_retries"`   // Retries for transient compile failures
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff"` // fixed|linear|exponential
	RetryInitialDelay string           `yaml:"retry_initial_delay"`
	RetryMaxDelay     string           `yaml:"retry_max_delay"`
}

// ExclusionConfig controls which source files are skipped during scan
type ExclusionConfig struct {
	File         string   `yaml:"file"`          // Exclusion file name relative to the target root
	UseGitignore *bool    `yaml:"use_gitignore"` // Fall back to/merge .gitignore patterns (default true)
	Extra        []string `yaml:"extra"`         // Additional patterns appended after file rules
}

// CacheConfig controls the durable fingerprint store
type CacheConfig struct {
	Path string `yaml:"path"` // Store file; relative paths resolve against the target root
}

// WatchConfig controls watch-mode rebuild behaviour
type WatchConfig struct {
	Debounce       string `yaml:"debounce"`        // Quiet period after the last fs event
	RescanInterval string `yaml:"rescan_interval"` // Periodic full rescan; empty disables
}

// HistoryConfig controls the SQLite run-history log
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled"` // Default true
	Path    string `yaml:"path"`    // Database file; relative paths resolve against the target root
}

// Defaults applied when a field is absent from the config file.
const (
	DefaultExclusionFile = "exclude.txt"
	DefaultCachePath     = ".cybuild-fingerprints.json"
	DefaultHistoryPath   = ".cybuild-history.db"
	DefaultOutputDir     = "build_lib"
	DefaultWatchDebounce = 2 * time.Second
	DefaultRetryInitial  = time.Second
	DefaultRetryMax      = 30 * time.Second
	DefaultMaxRetries    = 0
)

// Default returns a configuration with all defaults applied, as if an
// empty config file had been loaded.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from the specified file. A missing file is not an
// error: all fields fall back to defaults so the CLI works without any config.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists; absence is fine.
	_ = godotenv.Load()

	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			// Expand environment variables in the YAML content before parsing.
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
			}
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Output.Directory == "" {
		c.Output.Directory = DefaultOutputDir
	}
	if c.Build.Jobs <= 0 {
		c.Build.Jobs = runtime.NumCPU()
	}
	if c.Build.RetryBackoff == "" {
		c.Build.RetryBackoff = RetryBackoffLinear
	}
	if c.Exclusion.File == "" {
		c.Exclusion.File = DefaultExclusionFile
	}
	if c.Exclusion.UseGitignore == nil {
		t := true
		c.Exclusion.UseGitignore = &t
	}
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCachePath
	}
	if c.Watch.Debounce == "" {
		c.Watch.Debounce = DefaultWatchDebounce.String()
	}
	if c.History.Enabled == nil {
		t := true
		c.History.Enabled = &t
	}
	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath
	}
}

// Validate checks invariants that cannot be repaired by defaulting.
func (c *Config) Validate() error {
	switch c.Build.RetryBackoff {
	case RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential:
	default:
		return fmt.Errorf("invalid retry_backoff %q (want fixed|linear|exponential)", c.Build.RetryBackoff)
	}
	if c.Build.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.Build.MaxRetries)
	}
	for _, field := range []struct{ name, val string }{
		{"retry_initial_delay", c.Build.RetryInitialDelay},
		{"retry_max_delay", c.Build.RetryMaxDelay},
		{"watch.debounce", c.Watch.Debounce},
		{"watch.rescan_interval", c.Watch.RescanInterval},
	} {
		if field.val == "" {
			continue
		}
		if _, err := time.ParseDuration(field.val); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", field.name, err)
		}
	}
	return nil
}

// WatchDebounce returns the parsed debounce duration.
func (c *Config) WatchDebounce() time.Duration {
	if d, err := time.ParseDuration(c.Watch.Debounce); err == nil && d > 0 {
		return d
	}
	return DefaultWatchDebounce
}

// RescanInterval returns the periodic rescan interval, or zero when disabled.
func (c *Config) RescanInterval() time.Duration {
	if c.Watch.RescanInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Watch.RescanInterval)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// HistoryEnabled reports whether run-history logging is on.
func (c *Config) HistoryEnabled() bool {
	return c.History.Enabled == nil || *c.History.Enabled
}

// MergeGitignore reports whether .gitignore patterns should be merged in.
func (c *Config) MergeGitignore() bool {
	return c.Exclusion.UseGitignore == nil || *c.Exclusion.UseGitignore
}
