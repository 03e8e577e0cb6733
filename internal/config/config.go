// Package config provides configuration types for the villagehub client.
//
// Configuration comes from a villagehub.yaml file, VILLAGEHUB_* environment
// variables and command-line flags, in increasing order of precedence.
// Only api.base_url is essential; everything else has a default.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/tinyvillage/villagehub/internal/domain/session"
)

// Session backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// DefaultBaseURL is used when api.base_url is not configured.
const DefaultBaseURL = "http://localhost:8080/api"

// Config is the top-level configuration.
type Config struct {
	// API configures the hub API endpoint.
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Session configures where the Token Store persists its entries.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Telemetry configures optional tracing and metrics output.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Output is the default rendering of command results: table, json or yaml.
	Output string `yaml:"output" mapstructure:"output" validate:"oneof=table json yaml"`
}

// APIConfig configures the hub API endpoint.
type APIConfig struct {
	// BaseURL is the API root, e.g. "https://hub.example.org/api".
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	// Timeout bounds each HTTP round trip (e.g. "30s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"duration"`
	// RefreshTimeout bounds a shared token refresh (e.g. "15s").
	RefreshTimeout string `yaml:"refresh_timeout" mapstructure:"refresh_timeout" validate:"duration"`
}

// SessionConfig configures the session backend.
type SessionConfig struct {
	// Backend is one of file, sqlite, redis, memory. Default: file.
	Backend string `yaml:"backend" mapstructure:"backend" validate:"oneof=file sqlite redis memory"`
	// Path is the session file (file) or database (sqlite).
	Path string `yaml:"path" mapstructure:"path"`
	// RedisURL is the redis:// or rediss:// URL for the redis backend.
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url" validate:"omitempty,redis_url"`
	// Namespace separates sessions for different hubs sharing a backend.
	// Default: a hash of the base URL.
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: warn.
	Level string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	// Format is text or json. Default: text.
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=text json"`
}

// TelemetryConfig configures optional tracing and metrics output.
type TelemetryConfig struct {
	// Trace writes spans to stderr.
	Trace bool `yaml:"trace" mapstructure:"trace"`
	// MetricsFile, when set, receives the Prometheus text exposition on exit.
	MetricsFile string `yaml:"metrics_file" mapstructure:"metrics_file"`
}

// TimeoutDuration returns the parsed API timeout. Call after Validate.
func (c APIConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// RefreshTimeoutDuration returns the parsed refresh timeout. Call after Validate.
func (c APIConfig) RefreshTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RefreshTimeout)
	return d
}

// DataDir returns ~/.villagehub, or .villagehub when the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".villagehub"
	}
	return filepath.Join(home, ".villagehub")
}

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == "" {
		c.API.Timeout = "30s"
	}
	if c.API.RefreshTimeout == "" {
		c.API.RefreshTimeout = "15s"
	}

	if c.Session.Backend == "" {
		c.Session.Backend = BackendFile
	}
	if c.Session.Path == "" {
		switch c.Session.Backend {
		case BackendFile:
			c.Session.Path = filepath.Join(DataDir(), "session.json")
		case BackendSQLite:
			c.Session.Path = filepath.Join(DataDir(), "session.db")
		}
	}
	if c.Session.Namespace == "" {
		c.Session.Namespace = session.Namespace(c.API.BaseURL)
	}

	if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Output == "" {
		c.Output = "table"
	}
}
