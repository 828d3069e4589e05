package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. INDENTRECON_HTTP_ADDR.
const EnvPrefix = "INDENTRECON"

// NewViper returns a viper instance reading INDENTRECON_* variables, with
// dotted keys mapped to underscores. Command flags are bound onto it by the
// caller.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key set in v onto cfg and revalidates.
func ApplyOverrides(cfg *Config, v *viper.Viper) error {
	if v.IsSet("database.path") {
		cfg.Database.Path = v.GetString("database.path")
	}
	if v.IsSet("database.backup_dir") {
		cfg.Database.BackupDir = v.GetString("database.backup_dir")
	}
	if v.IsSet("http.addr") {
		cfg.HTTP.Addr = v.GetString("http.addr")
	}
	if v.IsSet("sweep.workers") {
		cfg.Sweep.Workers = v.GetInt("sweep.workers")
	}
	if v.IsSet("events.enabled") {
		cfg.Events.Enabled = v.GetBool("events.enabled")
	}
	if v.IsSet("events.brokers") {
		cfg.Events.Brokers = splitList(v.GetString("events.brokers"))
	}
	if v.IsSet("events.topic") {
		cfg.Events.Topic = v.GetString("events.topic")
	}
	if v.IsSet("metrics.enabled") {
		cfg.Metrics.Enabled = v.GetBool("metrics.enabled")
	}
	if v.IsSet("logging.level") {
		cfg.Logging.Level = LogLevel(v.GetString("logging.level"))
	}
	if v.IsSet("logging.file") {
		cfg.Logging.File = v.GetString("logging.file")
	}
	return cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
