package config

import (
	"fmt"
	"log/slog"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/aevon-lab/eventstore/internal/eventstore"
)

// WatchEventStoreOptions re-reads the eventstore.* block of configPath
// whenever the file changes on disk and hands the rebuilt Options to apply,
// so gap_timeout_ms, gap_cleaning_threshold and the other tunables can be
// adjusted without restarting the process. configPath == "" is a no-op:
// there's nothing to watch. apply is called once up front with the current
// on-disk value before Watch returns, then again on every subsequent change.
func WatchEventStoreOptions(configPath string, apply func(eventstore.Options)) error {
	if configPath == "" {
		return nil
	}

	provider := file.Provider(configPath)

	reload := func() error {
		k := koanf.New(".")
		if err := k.Load(provider, yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		var ec EventStoreConfig
		if err := k.Unmarshal("eventstore", &ec); err != nil {
			return fmt.Errorf("failed to unmarshal eventstore config: %w", err)
		}
		options := buildOptions(ec)
		if err := options.Validate(); err != nil {
			return fmt.Errorf("invalid eventstore config reload: %w", err)
		}
		apply(options)
		return nil
	}

	if err := reload(); err != nil {
		return err
	}

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			slog.Error("[Config] Watch error", "error", err)
			return
		}
		if err := reload(); err != nil {
			slog.Error("[Config] Failed to reload eventstore options, keeping prior values", "error", err)
			return
		}
		slog.Info("[Config] Reloaded eventstore options from file", "path", configPath)
	})
}
