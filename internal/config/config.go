// Package config provides configuration management for indentrecon.
// Configurations are loaded from TOML files with XDG-compliant paths.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete application configuration.
type Config struct {
	Sweep    SweepConfig    `toml:"sweep"`
	HTTP     HTTPConfig     `toml:"http"`
	Events   EventsConfig   `toml:"events"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Display  DisplayConfig  `toml:"display"`
	Logging  LoggingConfig  `toml:"logging"`
	Database DatabaseConfig `toml:"database"`
}

// SweepConfig controls the shortfall sweep.
type SweepConfig struct {
	// Workers bounds how many (route, date) groups are processed at once.
	Workers int `toml:"workers"`
	// ClaimTimeoutSeconds bounds the claim-and-create transaction of one indent.
	ClaimTimeoutSeconds int `toml:"claim_timeout_seconds"`
}

// ClaimTimeout returns the per-indent claim timeout.
func (s *SweepConfig) ClaimTimeout() time.Duration {
	return time.Duration(s.ClaimTimeoutSeconds) * time.Second
}

// HTTPConfig controls the API server.
type HTTPConfig struct {
	Addr               string `toml:"addr"`
	ReadTimeoutSeconds int    `toml:"read_timeout_seconds"`
}

// ReadTimeout returns the server read timeout.
func (h *HTTPConfig) ReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeoutSeconds) * time.Second
}

// EventsConfig controls publication of adjusted indent events.
type EventsConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// DisplayConfig controls TUI appearance.
type DisplayConfig struct {
	ColorScheme ColorScheme `toml:"color_scheme"`
	DateFormat  string      `toml:"date_format"`
}

// ColorScheme defines the terminal color palette.
type ColorScheme string

const (
	ColorSchemeDefault ColorScheme = "default"
	ColorSchemeAmber   ColorScheme = "amber"
	ColorSchemeMono    ColorScheme = "mono"
)

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  LogLevel `toml:"level"`
	File   string   `toml:"file"`
	Format string   `toml:"format"`
}

// LogLevel defines logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// DatabaseConfig controls SQLite database settings.
type DatabaseConfig struct {
	Path                string `toml:"path"`
	BackupDir           string `toml:"backup_dir"`
	BackupIntervalHours int    `toml:"backup_interval_hours"`
	BackupRetentionDays int    `toml:"backup_retention_days"`
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Sweep.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sweep: %w", err))
	}

	if err := c.HTTP.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}

	if err := c.Events.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("events: %w", err))
	}

	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}

	if err := c.Display.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("display: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks that the sweep configuration is valid.
func (s *SweepConfig) Validate() error {
	var errs []error

	if s.Workers < 1 || s.Workers > 64 {
		errs = append(errs, errors.New("workers must be between 1 and 64"))
	}

	if s.ClaimTimeoutSeconds < 1 {
		errs = append(errs, errors.New("claim_timeout_seconds must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks that the HTTP configuration is valid.
func (h *HTTPConfig) Validate() error {
	var errs []error

	if h.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}

	if h.ReadTimeoutSeconds < 0 {
		errs = append(errs, errors.New("read_timeout_seconds must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks that the events configuration is valid. Brokers and topic
// are only required when publishing is enabled.
func (e *EventsConfig) Validate() error {
	if !e.Enabled {
		return nil
	}

	var errs []error

	if len(e.Brokers) == 0 {
		errs = append(errs, errors.New("brokers are required when events are enabled"))
	}
	for _, b := range e.Brokers {
		if strings.TrimSpace(b) == "" {
			errs = append(errs, errors.New("broker address must not be empty"))
			break
		}
	}

	if e.Topic == "" {
		errs = append(errs, errors.New("topic is required when events are enabled"))
	}

	return errors.Join(errs...)
}

// Validate checks that the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled && !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("path must start with '/': %q", m.Path)
	}
	return nil
}

// Validate checks that the display configuration is valid.
func (d *DisplayConfig) Validate() error {
	validSchemes := map[ColorScheme]bool{
		ColorSchemeDefault: true,
		ColorSchemeAmber:   true,
		ColorSchemeMono:    true,
	}

	if !validSchemes[d.ColorScheme] && d.ColorScheme != "" {
		return fmt.Errorf("invalid color_scheme: %s", d.ColorScheme)
	}

	return nil
}

// Validate checks that the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	validLevels := map[LogLevel]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}

	if !validLevels[l.Level] && l.Level != "" {
		errs = append(errs, fmt.Errorf("invalid log level: %s", l.Level))
	}

	if l.Format != "" && l.Format != "json" && l.Format != "text" {
		errs = append(errs, fmt.Errorf("invalid log format: %s", l.Format))
	}

	return errors.Join(errs...)
}

// Validate checks that the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	var errs []error

	if d.Path == "" {
		errs = append(errs, errors.New("path is required"))
	}

	if d.BackupIntervalHours < 0 {
		errs = append(errs, errors.New("backup_interval_hours must be non-negative"))
	}

	if d.BackupRetentionDays < 0 {
		errs = append(errs, errors.New("backup_retention_days must be non-negative"))
	}

	return errors.Join(errs...)
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Sweep: SweepConfig{
			Workers:             4,
			ClaimTimeoutSeconds: 30,
		},
		HTTP: HTTPConfig{
			Addr:               "127.0.0.1:8088",
			ReadTimeoutSeconds: 15,
		},
		Events: EventsConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "indentrecon.adjusted-indents",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Display: DisplayConfig{
			ColorScheme: ColorSchemeDefault,
			DateFormat:  "2006-01-02",
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			File:   "",
			Format: "text",
		},
		Database: DatabaseConfig{
			Path:                "indentrecon.db",
			BackupDir:           "backups",
			BackupIntervalHours: 24,
			BackupRetentionDays: 14,
		},
	}
}
