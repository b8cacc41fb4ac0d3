// Package config loads the layered application configuration (defaults,
// then an optional YAML file, then environment overrides) for an
// eventstore deployment, using koanf.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application config.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Schema     SchemaConfig     `koanf:"schema"`
	EventStore EventStoreConfig `koanf:"eventstore"`
	Projector  ProjectorConfig  `koanf:"projector"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// SchemaConfig names the tables/columns the engine reads and writes.
// Empty fields fall back to eventstore.DefaultSchema.
type SchemaConfig struct {
	EventTable    string `koanf:"event_table"`
	SnapshotTable string `koanf:"snapshot_table"`
}

// EventStoreConfig carries the engine's tunable batching/gap-tracking
// knobs. Zero values fall back to eventstore.DefaultOptions.
type EventStoreConfig struct {
	BatchSize            int    `koanf:"batch_size"`
	MaxGapOffset         int64  `koanf:"max_gap_offset"`
	LowestGlobalSequence int64  `koanf:"lowest_global_sequence"`
	GapTimeoutMS         int64  `koanf:"gap_timeout_ms"`
	GapCleaningThreshold int    `koanf:"gap_cleaning_threshold"`
	PayloadDataType      string `koanf:"payload_data_type"` // bytes | object
}

// ProjectorConfig drives the poll-loop surface that consumes the tracked
// reader.
type ProjectorConfig struct {
	PollInterval   string `koanf:"poll_interval"`
	BatchSize      int    `koanf:"batch_size"`
	WorkerCount    int    `koanf:"worker_count"`
	CheckpointPath string `koanf:"checkpoint_path"`
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}

	switch c.EventStore.PayloadDataType {
	case "", "bytes", "object":
	default:
		return fmt.Errorf("unsupported eventstore.payload_data_type %q", c.EventStore.PayloadDataType)
	}

	if c.Projector.WorkerCount < 0 {
		return fmt.Errorf("projector.worker_count must be >= 0")
	}

	return nil
}

// Load parses config from an optional YAML file plus EVENTSTORE_-prefixed
// environment overrides, then validates it. Defaults are set before the
// file/env layers so either layer can override them.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                        8080,
		"server.host":                        "0.0.0.0",
		"server.max_body_size_mb":            4,
		"server.mode":                        "release",
		"database.dsn":                       "postgres://localhost:5432/eventstore?sslmode=disable",
		"database.max_open_conns":            25,
		"database.max_idle_conns":            25,
		"database.auto_migrate":              true,
		"schema.event_table":                 "domain_event_entry",
		"schema.snapshot_table":               "snapshot_event_entry",
		"eventstore.batch_size":              100,
		"eventstore.max_gap_offset":          10000,
		"eventstore.lowest_global_sequence":  1,
		"eventstore.gap_timeout_ms":          60000,
		"eventstore.gap_cleaning_threshold":  250,
		"eventstore.payload_data_type":       "bytes",
		"projector.poll_interval":            "500ms",
		"projector.batch_size":               100,
		"projector.worker_count":             1,
		"projector.checkpoint_path":          "",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("EVENTSTORE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "EVENTSTORE_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
