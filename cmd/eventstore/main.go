// Command eventstore wires the engine, its Postgres storage hooks, and the
// HTTP surface together in the usual order: config, then storage, then
// migrations, then services, then signal-driven shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aevon-lab/eventstore/internal/eventstore"
	"github.com/aevon-lab/eventstore/internal/eventstore/config"
	"github.com/aevon-lab/eventstore/internal/eventstore/migrations"
	"github.com/aevon-lab/eventstore/internal/eventstore/postgres"
	"github.com/aevon-lab/eventstore/internal/eventstore/server"
)

func main() {
	configPath := flag.String("config", "eventstore.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("[Main] Loaded config", "server_addr", fmtAddr(cfg.Server.Host, cfg.Server.Port))

	schema := cfg.BuildSchema()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter, err := postgres.Open(ctx, cfg.Database.DSN, schema, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer adapter.Close()

	if err := migrations.RunMigrations(adapter.DB(), cfg.Database.AutoMigrate, schema); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	store, err := eventstore.New(adapter.DB(), adapter, cfg.Options(), nil, postgres.IsDuplicateKeyError)
	if err != nil {
		slog.Error("Failed to construct event storage engine", "error", err)
		os.Exit(1)
	}

	if err := config.WatchEventStoreOptions(*configPath, func(o eventstore.Options) {
		if err := store.SetOptions(o); err != nil {
			slog.Error("[Main] Rejected reloaded eventstore options, keeping prior values", "error", err)
			return
		}
		slog.Info("[Main] Applied reloaded eventstore options", "batch_size", o.BatchSize, "gap_timeout_ms", o.GapTimeoutMS, "gap_cleaning_threshold", o.GapCleaningThreshold)
	}); err != nil {
		slog.Error("Failed to watch config file for live options reload", "error", err)
		os.Exit(1)
	}

	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), adapter.DB(), store, cfg.Server.Mode)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("[Main] Signal received, shutting down...")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		slog.Error("[Main] Server stopped with error", "error", err)
	}
	slog.Info("[Main] Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
