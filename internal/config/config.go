package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all laserlens configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Generation model
	Model ModelConfig `yaml:"model"`

	// Recursive loop behaviour
	Loop LoopConfig `yaml:"loop"`

	// Context aggregation
	Context ContextConfig `yaml:"context"`

	// Sandbox for directive handlers
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Durable state and stream mirror
	State StateConfig `yaml:"state"`

	// SQLite turn archive
	Archive ArchiveConfig `yaml:"archive"`

	// External directive plugins
	Plugins PluginsConfig `yaml:"plugins"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig configures the generation capability.
type ModelConfig struct {
	Name        string  `yaml:"name"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	Seed        *int    `yaml:"seed,omitempty"`
	RPM         int     `yaml:"rpm"`     // requests per minute
	Timeout     string  `yaml:"timeout"` // per-call streaming timeout
}

// LoopConfig configures the recursive driver.
type LoopConfig struct {
	Loops         int    `yaml:"loops"`
	StreamDelim   string `yaml:"stream_delim"` // delimiter for stream mirror segments
	ThinkingMode  bool   `yaml:"thinking_mode"`
	HistoryWindow int    `yaml:"history_window"` // recent turns shown in the prompt

	// Retry policy
	MaxRetries    int    `yaml:"max_retries"`
	BackoffBase   string `yaml:"backoff_base"`
	OverloadDelay string `yaml:"overload_delay"`
}

// ContextConfig configures the context aggregator.
type ContextConfig struct {
	MaxChars      int  `yaml:"max_chars"`
	SaveTruncated bool `yaml:"save_truncated"` // keep the untruncated original in the sandbox
}

// SandboxConfig configures directive handlers.
type SandboxConfig struct {
	OutputDir         string   `yaml:"output_dir"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	ExecTimeout       string   `yaml:"exec_timeout"`
	Interpreter       string   `yaml:"interpreter"`     // used by RUN_PYTHON
	DeniedPatterns    []string `yaml:"denied_patterns"` // added to EXEC's built-in denylist
	MaxStemLength     int      `yaml:"max_stem_length"`
}

// StateConfig configures the durable state store.
type StateConfig struct {
	Dir          string `yaml:"dir"`
	StreamSuffix string `yaml:"stream_suffix"`
}

// ArchiveConfig configures the SQLite turn archive.
type ArchiveConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// PluginsConfig configures plugin directive discovery.
type PluginsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	File       string          `yaml:"file"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "laserlens",
		Version: "2.0.0",

		Model: ModelConfig{
			Name:        "gemini-2.5-flash",
			Temperature: 0.7,
			RPM:         20,
			Timeout:     "180s",
		},

		Loop: LoopConfig{
			Loops:         3,
			StreamDelim:   "###",
			HistoryWindow: 3,
			MaxRetries:    3,
			BackoffBase:   "2s",
			OverloadDelay: "5s",
		},

		Context: ContextConfig{
			MaxChars:      8000,
			SaveTruncated: true,
		},

		Sandbox: SandboxConfig{
			OutputDir:         "./outputs/",
			AllowedExtensions: []string{".md", ".txt", ".log", ".tmp"},
			ExecTimeout:       "10s",
			Interpreter:       "python3",
			MaxStemLength:     100,
		},

		State: StateConfig{
			Dir:          "./agent_state/",
			StreamSuffix: ".tmp",
		},

		Archive: ArchiveConfig{
			Enabled:      true,
			DatabasePath: "./agent_state/archive.db",
		},

		Plugins: PluginsConfig{
			Enabled: true,
			Dir:     "./.lens/plugins",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "",
		},
	}
}

// DefaultConfigPath returns the workspace-relative config path.
func DefaultConfigPath(workspace string) string {
	return filepath.Join(workspace, ".lens", "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// GEMINI_API_KEY wins over the legacy GOOGLE_API_KEY
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Model.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Model.APIKey = key
	}
	if model := os.Getenv("LENS_MODEL"); model != "" {
		c.Model.Name = model
	}
	if dir := os.Getenv("LENS_OUTPUT_DIR"); dir != "" {
		c.Sandbox.OutputDir = dir
	}
	if dir := os.Getenv("LENS_STATE_DIR"); dir != "" {
		c.State.Dir = dir
	}
}

// Resolve makes relative directories absolute against the workspace.
func (c *Config) Resolve(workspace string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(workspace, p)
	}
	c.Sandbox.OutputDir = abs(c.Sandbox.OutputDir)
	c.State.Dir = abs(c.State.Dir)
	c.Archive.DatabasePath = abs(c.Archive.DatabasePath)
	c.Plugins.Dir = abs(c.Plugins.Dir)
	c.Logging.File = abs(c.Logging.File)
}

// GetModelTimeout returns the streaming timeout as a duration.
func (c *Config) GetModelTimeout() time.Duration {
	return parseDuration(c.Model.Timeout, 180*time.Second)
}

// GetBackoffBase returns the base exponential backoff delay.
func (c *Config) GetBackoffBase() time.Duration {
	return parseDuration(c.Loop.BackoffBase, 2*time.Second)
}

// GetOverloadDelay returns the fixed retry delay for overloaded-service errors.
func (c *Config) GetOverloadDelay() time.Duration {
	return parseDuration(c.Loop.OverloadDelay, 5*time.Second)
}

// GetExecTimeout returns the subprocess timeout for EXEC and RUN_PYTHON.
func (c *Config) GetExecTimeout() time.Duration {
	return parseDuration(c.Sandbox.ExecTimeout, 10*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("model name not configured")
	}
	if c.Model.RPM <= 0 {
		return fmt.Errorf("model rpm must be positive, got %d", c.Model.RPM)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model temperature must be within [0, 2], got %v", c.Model.Temperature)
	}
	if c.Loop.Loops <= 0 {
		return fmt.Errorf("loop count must be positive, got %d", c.Loop.Loops)
	}
	if c.Loop.StreamDelim == "" {
		return fmt.Errorf("stream delimiter cannot be empty")
	}
	if c.Loop.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Context.MaxChars <= 0 {
		return fmt.Errorf("context budget must be positive, got %d", c.Context.MaxChars)
	}
	if c.Sandbox.OutputDir == "" {
		return fmt.Errorf("sandbox output directory not configured")
	}
	if c.State.Dir == "" {
		return fmt.Errorf("state directory not configured")
	}
	return nil
}

// RequireAPIKey reports a descriptive error when no model key is available.
func (c *Config) RequireAPIKey() error {
	if c.Model.APIKey == "" {
		return fmt.Errorf("model API key not configured (set GEMINI_API_KEY or GOOGLE_API_KEY)")
	}
	return nil
}
