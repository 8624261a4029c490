package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// QueueConfig bounds one named execution lane.
type QueueConfig struct {
	Name  string `yaml:"name"`
	Slots int    `yaml:"slots"`
}

// ArchiveConfig enables archival of terminal instances to S3.
type ArchiveConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
}

// fileConfig is the on-disk YAML shape. Durations are explicit-unit integers
// because yaml.v3 does not decode time.Duration.
type fileConfig struct {
	Addr      string `yaml:"addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	DBPath    string `yaml:"db_path"`

	Catalog string `yaml:"catalog"`

	TickSeconds      int `yaml:"tick_seconds"`
	KillGraceSeconds int `yaml:"kill_grace_seconds"`

	DefaultPendingTimeoutMinutes int `yaml:"default_pending_timeout_minutes"`
	DefaultRunningTimeoutMinutes int `yaml:"default_running_timeout_minutes"`

	Queues  []QueueConfig `yaml:"queues"`
	Archive ArchiveConfig `yaml:"archive"`
}

// Config holds configuration for the tempo daemon.
type Config struct {
	Addr      string // status API listen address
	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json
	DBPath    string // SQLite path (":memory:" for testing)

	CatalogPath string // YAML task catalog file

	TickInterval time.Duration
	KillGrace    time.Duration

	// Fallbacks for tasks that declare no timeout of their own.
	DefaultPendingTimeout time.Duration
	DefaultRunningTimeout time.Duration

	Queues  []QueueConfig
	Archive ArchiveConfig
}

// Default returns sensible defaults. The "default" queue always exists so
// tasks that name no queue still dispatch.
func Default() Config {
	return Config{
		Addr:                  ":8080",
		LogLevel:              "info",
		LogFormat:             "text",
		TickInterval:          10 * time.Second,
		KillGrace:             time.Minute,
		DefaultPendingTimeout: 30 * time.Minute,
		DefaultRunningTimeout: 2 * time.Hour,
		Queues:                []QueueConfig{{Name: "default", Slots: 4}},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// plain defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.Catalog != "" {
		cfg.CatalogPath = fc.Catalog
	}
	if fc.TickSeconds > 0 {
		cfg.TickInterval = time.Duration(fc.TickSeconds) * time.Second
	}
	if fc.KillGraceSeconds > 0 {
		cfg.KillGrace = time.Duration(fc.KillGraceSeconds) * time.Second
	}
	if fc.DefaultPendingTimeoutMinutes > 0 {
		cfg.DefaultPendingTimeout = time.Duration(fc.DefaultPendingTimeoutMinutes) * time.Minute
	}
	if fc.DefaultRunningTimeoutMinutes > 0 {
		cfg.DefaultRunningTimeout = time.Duration(fc.DefaultRunningTimeoutMinutes) * time.Minute
	}
	if len(fc.Queues) > 0 {
		cfg.Queues = fc.Queues
	}
	cfg.Archive = fc.Archive

	if !cfg.hasQueue("default") {
		cfg.Queues = append(cfg.Queues, QueueConfig{Name: "default", Slots: 4})
	}
	for i, q := range cfg.Queues {
		if q.Slots <= 0 {
			cfg.Queues[i].Slots = 1
		}
	}
	return cfg, nil
}

// QueueSlots returns the slot map keyed by queue name.
func (c Config) QueueSlots() map[string]int {
	m := make(map[string]int, len(c.Queues))
	for _, q := range c.Queues {
		m[q.Name] = q.Slots
	}
	return m
}

func (c Config) hasQueue(name string) bool {
	for _, q := range c.Queues {
		if q.Name == name {
			return true
		}
	}
	return false
}
