// Package config loads the receiptvault YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds the local database location.
type DatabaseConfig struct {
	// Path of the SQLite file. Empty disables durable storage: stores then
	// run in memory only.
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PersistConfig holds persistence configuration.
type PersistConfig struct {
	SharedPrefix string `yaml:"shared_prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the complete configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	DevTools bool           `yaml:"devtools"`
	Persist  PersistConfig  `yaml:"persist"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// Defaults.
const (
	DefaultDatabasePath = "receiptvault.db"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultSharedPrefix = "persist:"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Database: DatabaseConfig{Path: DefaultDatabasePath}}
	setDefaults(cfg)
	return cfg
}

// Load reads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from YAML. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{Database: DatabaseConfig{Path: DefaultDatabasePath}}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults fills unspecified values.
func setDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Persist.SharedPrefix == "" {
		cfg.Persist.SharedPrefix = DefaultSharedPrefix
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
