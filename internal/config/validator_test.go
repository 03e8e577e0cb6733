package config

import (
	"strings"
	"testing"
)

// validConfig returns a defaulted, valid Config for testing.
func validConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }, "BaseURL is required"},
		{"bad base url", func(c *Config) { c.API.BaseURL = "not a url" }, "must be a valid URL"},
		{"bad timeout", func(c *Config) { c.API.Timeout = "soon" }, "positive duration"},
		{"negative refresh timeout", func(c *Config) { c.API.RefreshTimeout = "-1s" }, "positive duration"},
		{"bad backend", func(c *Config) { c.Session.Backend = "floppy" }, "Backend must be one of"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "Level must be one of"},
		{"bad output", func(c *Config) { c.Output = "xml" }, "Output must be one of"},
		{"redis without url", func(c *Config) { c.Session.Backend = BackendRedis }, "redis_url is required"},
		{"redis bad scheme", func(c *Config) {
			c.Session.Backend = BackendRedis
			c.Session.RedisURL = "http://localhost:6379"
		}, "redis:// or rediss://"},
		{"redis ok", func(c *Config) {
			c.Session.Backend = BackendRedis
			c.Session.RedisURL = "redis://localhost:6379/0"
		}, ""},
		{"file without path", func(c *Config) { c.Session.Path = "" }, "session.path is required"},
		{"memory without path", func(c *Config) {
			c.Session.Backend = BackendMemory
			c.Session.Path = ""
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
