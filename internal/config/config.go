package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig       `yaml:"log"`
	Database        DatabaseConfig  `yaml:"database"`
	Plan            PlanConfig      `yaml:"plan"`
	Script          string          `yaml:"script"` // Optional Lua script, empty = disabled
	Evaluator       EvaluatorConfig `yaml:"evaluator"`
	HTTP            HTTPConfig      `yaml:"http"`
	EventBus        EventBusConfig  `yaml:"eventbus"`
	Hue             HueConfig       `yaml:"hue"`
	Ledger          LedgerConfig    `yaml:"ledger"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the configured level name
func (c LogConfig) GetLevel() string {
	return c.Level
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PlanConfig tells the daemon where the initial plan comes from
type PlanConfig struct {
	File string `yaml:"file"` // YAML plan file
	// SeedFromFile loads the file only when the database holds no channels.
	// When false the file always replaces the stored plan on startup.
	SeedFromFile *bool `yaml:"seed_from_file"`
}

// IsSeedOnly returns whether the plan file only seeds an empty store (default: true)
func (c PlanConfig) IsSeedOnly() bool {
	return c.SeedFromFile == nil || *c.SeedFromFile
}

// EvaluatorConfig contains settings for the periodic level evaluation
type EvaluatorConfig struct {
	Interval Duration `yaml:"interval"`
	Timezone string   `yaml:"timezone"`
}

// Location resolves the configured timezone, falling back to UTC
func (c EvaluatorConfig) Location() *time.Location {
	tz, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return tz
}

// HTTPConfig contains API server settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// HueConfig contains Hue bridge output settings
type HueConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bridge  string `yaml:"bridge"`
	Token   string `yaml:"token"`
	// Channel id -> light / group ids driven by that channel
	Lights map[string][]int `yaml:"lights"`
	Groups map[string][]int `yaml:"groups"`
	// Transition time in deciseconds sent with each update (0 = bridge default)
	TransitionTime uint16 `yaml:"transition_time"`
}

// LedgerConfig contains audit ledger settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// IsEnabled returns whether the ledger is enabled (default: true)
func (c LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// GetShutdownTimeout returns the shutdown timeout as time.Duration
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./dimplan.sqlite"
	}

	// Evaluator defaults
	if cfg.Evaluator.Interval == 0 {
		cfg.Evaluator.Interval = Duration(time.Minute)
	}
	if cfg.Evaluator.Timezone == "" {
		cfg.Evaluator.Timezone = "Local"
	}

	// HTTP defaults
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// validate rejects values that defaults cannot repair
func (cfg *Config) validate() error {
	durations := []struct {
		name string
		d    Duration
	}{
		{"evaluator.interval", cfg.Evaluator.Interval},
		{"ledger.cleanup_interval", cfg.Ledger.CleanupInterval},
		{"shutdown_timeout", cfg.ShutdownTimeout},
	}
	for _, f := range durations {
		if f.d <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %s", f.name, f.d.Duration())
		}
	}
	if cfg.Ledger.RetentionDays < 0 {
		return fmt.Errorf("invalid config: ledger.retention_days must not be negative, got %d", cfg.Ledger.RetentionDays)
	}
	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("invalid config: http.port %d out of range", cfg.HTTP.Port)
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
