// Package config loads and validates the deadratbot YAML configuration.
//
// Configuration sections:
//
//   - api_key / base_url: credentials and endpoint for the bot API
//   - timeouts: long-poll and backoff durations as Go duration strings
//   - logging: log level, file rotation and stdout mirroring
//
// ${VAR} patterns anywhere in the file are expanded from the
// environment before parsing; a missing variable is an error.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/exelus-space/deadrat-go/pkg/constants"
)

const (
	DefaultLogLevel      = "info"
	DefaultLogMaxBackups = 5
)

// Config is the top-level configuration structure
type Config struct {
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Logging  LoggingConfig `yaml:"logging"`

	// Durations holds the parsed timeout values; populated during
	// validation.
	Durations Durations `yaml:"-"`
}

// TimeoutConfig holds the raw duration strings from the YAML file
type TimeoutConfig struct {
	Sync              string `yaml:"sync"`
	Poll              string `yaml:"poll"`
	ConnectionBackoff string `yaml:"connection_backoff"`
	ServerBackoff     string `yaml:"server_backoff"`
	ErrorBackoff      string `yaml:"error_backoff"`
}

// Durations is the parsed form of TimeoutConfig
type Durations struct {
	Sync              time.Duration
	Poll              time.Duration
	ConnectionBackoff time.Duration
	ServerBackoff     time.Duration
	ErrorBackoff      time.Duration
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level        string `yaml:"level"`
	File         string `yaml:"file"`
	MaxSize      int    `yaml:"max_size"`
	MaxBackups   int    `yaml:"max_backups"`
	MaxAge       int    `yaml:"max_age"`
	Compress     bool   `yaml:"compress"`
	EnableStdout bool   `yaml:"enable_stdout"`
}

// Load loads configuration from file and expands environment variables
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// expandEnv replaces ${VAR_NAME} patterns with environment variable values
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := os.Expand(input, func(key string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return ""
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// validateConfig applies defaults and parses the duration strings
func validateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = constants.DefaultLogMaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = constants.DefaultLogMaxAge
	}

	durations := []struct {
		name     string
		raw      string
		fallback time.Duration
		out      *time.Duration
	}{
		{"timeouts.sync", config.Timeouts.Sync, constants.DefaultSyncTimeout, &config.Durations.Sync},
		{"timeouts.poll", config.Timeouts.Poll, constants.DefaultPollTimeout, &config.Durations.Poll},
		{"timeouts.connection_backoff", config.Timeouts.ConnectionBackoff, constants.DefaultConnectionBackoff, &config.Durations.ConnectionBackoff},
		{"timeouts.server_backoff", config.Timeouts.ServerBackoff, constants.DefaultServerBackoff, &config.Durations.ServerBackoff},
		{"timeouts.error_backoff", config.Timeouts.ErrorBackoff, constants.DefaultErrorBackoff, &config.Durations.ErrorBackoff},
	}

	for _, d := range durations {
		if d.raw == "" {
			*d.out = d.fallback
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive (got %v)", d.name, parsed)
		}
		*d.out = parsed
	}

	if config.Durations.Poll < config.Durations.Sync {
		return fmt.Errorf("timeouts.poll must not be shorter than timeouts.sync")
	}

	return nil
}
