package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for villagehub.yaml/.yml in standard locations.
// The search requires an explicit YAML extension so the binary itself never matches.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No file anywhere: ReadInConfig reports ConfigFileNotFoundError,
		// which LoadConfig tolerates.
		viper.SetConfigName("villagehub")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: VILLAGEHUB_API_BASE_URL
	viper.SetEnvPrefix("VILLAGEHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches ., ~/.villagehub and the system directory.
func findConfigFile() string {
	paths := []string{".", DataDir()}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "villagehub"))
		}
	} else {
		paths = append(paths, "/etc/villagehub")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths returns the first villagehub.yaml or .yml found in
// paths, or "".
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "villagehub"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every config key so it can be overridden from the
// environment. Example: VILLAGEHUB_SESSION_BACKEND overrides session.backend.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("api.base_url")
	_ = viper.BindEnv("api.timeout")
	_ = viper.BindEnv("api.refresh_timeout")

	_ = viper.BindEnv("session.backend")
	_ = viper.BindEnv("session.path")
	_ = viper.BindEnv("session.redis_url")
	_ = viper.BindEnv("session.namespace")

	_ = viper.BindEnv("log.level")
	_ = viper.BindEnv("log.format")

	_ = viper.BindEnv("telemetry.trace")
	_ = viper.BindEnv("telemetry.metrics_file")

	_ = viper.BindEnv("output")
}

// LoadConfig reads the configuration file, applies environment and flag
// overrides bound into viper, sets defaults and validates.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT validate.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: run on env vars, flags and defaults.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
