package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero workers", func(c *Config) { c.Sweep.Workers = 0 }, "workers"},
		{"no claim timeout", func(c *Config) { c.Sweep.ClaimTimeoutSeconds = 0 }, "claim_timeout_seconds"},
		{"empty addr", func(c *Config) { c.HTTP.Addr = "" }, "addr"},
		{"events without brokers", func(c *Config) {
			c.Events.Enabled = true
			c.Events.Brokers = nil
		}, "brokers"},
		{"events without topic", func(c *Config) {
			c.Events.Enabled = true
			c.Events.Topic = ""
		}, "topic"},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "path"},
		{"bad color scheme", func(c *Config) { c.Display.ColorScheme = "neon" }, "color_scheme"},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }, "log level"},
		{"no database path", func(c *Config) { c.Database.Path = "" }, "path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDisabledEventsSkipBrokerChecks(t *testing.T) {
	cfg := Default()
	cfg.Events.Enabled = false
	cfg.Events.Brokers = nil
	cfg.Events.Topic = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	content := `
[sweep]
workers = 8

[events]
enabled = true
brokers = ["kafka-1:9092", "kafka-2:9092"]
topic = "recon"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, got, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	if cfg.Sweep.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Sweep.Workers)
	}
	if len(cfg.Events.Brokers) != 2 || cfg.Events.Topic != "recon" {
		t.Errorf("events = %+v", cfg.Events)
	}
	if cfg.HTTP.Addr != Default().HTTP.Addr {
		t.Errorf("unset values should keep defaults, addr = %q", cfg.HTTP.Addr)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()

	tests := map[string]string{
		"bad toml":    "[sweep\nworkers = 2",
		"invalid":     "[sweep]\nworkers = 0",
		"unknown key": "[sweep]\nthreads = 2",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".toml")
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				t.Fatal(err)
			}
			_, _, err := Load(path, false)
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected *LoadError, got %v", err)
			}
			if loadErr.Path != path {
				t.Errorf("LoadError.Path = %q", loadErr.Path)
			}
		})
	}
}

func TestLoadWritesDefault(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, path, err := Load("", true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if path == "" || !fileExists(path) {
		t.Fatalf("default config not written, path = %q", path)
	}
	if cfg.Sweep.Workers != Default().Sweep.Workers {
		t.Errorf("unexpected workers %d", cfg.Sweep.Workers)
	}

	again, againPath, err := Load("", false)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if againPath != path {
		t.Errorf("reload path = %q, want %q", againPath, path)
	}
	if again.Database.Path != cfg.Database.Path {
		t.Errorf("reload database path = %q", again.Database.Path)
	}
}

func TestApplyOverrides(t *testing.T) {
	t.Setenv("INDENTRECON_HTTP_ADDR", "0.0.0.0:9000")
	t.Setenv("INDENTRECON_SWEEP_WORKERS", "2")
	t.Setenv("INDENTRECON_EVENTS_ENABLED", "true")
	t.Setenv("INDENTRECON_EVENTS_BROKERS", "a:9092, b:9092")

	cfg := Default()
	if err := ApplyOverrides(cfg, NewViper()); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}

	if cfg.HTTP.Addr != "0.0.0.0:9000" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Sweep.Workers != 2 {
		t.Errorf("workers = %d", cfg.Sweep.Workers)
	}
	if !cfg.Events.Enabled || len(cfg.Events.Brokers) != 2 || cfg.Events.Brokers[1] != "b:9092" {
		t.Errorf("events = %+v", cfg.Events)
	}
}

func TestApplyOverridesValidates(t *testing.T) {
	t.Setenv("INDENTRECON_SWEEP_WORKERS", "0")
	if err := ApplyOverrides(Default(), NewViper()); err == nil {
		t.Fatal("expected validation error")
	}
}
