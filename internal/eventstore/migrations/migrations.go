// Package migrations embeds and runs the DDL for the default event/snapshot
// schema. A deployment using a custom eventstore.Schema (renamed tables) owns
// its own DDL — these migrations only create eventstore.DefaultSchema's
// tables, and RunMigrations refuses to run against a Schema that renames
// them rather than silently creating tables the engine won't look at.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/aevon-lab/eventstore/internal/eventstore"
)

//go:embed *.sql
var MigrationFiles embed.FS

// requireDefaultTableNames rejects a schema that renames either table away
// from eventstore.DefaultSchema, before RunMigrations opens a driver against
// db. Pulled out of RunMigrations so the check is unit-testable without a
// real *sql.DB.
func requireDefaultTableNames(schema eventstore.Schema) error {
	def := eventstore.DefaultSchema()
	if schema.EventTable != def.EventTable || schema.SnapshotTable != def.SnapshotTable {
		return fmt.Errorf("eventstore/migrations: schema renames %s/%s to %s/%s; these migrations only create the default table names, author custom DDL instead",
			def.EventTable, def.SnapshotTable, schema.EventTable, schema.SnapshotTable)
	}
	return nil
}

// RunMigrations applies every pending migration against db, creating
// schema.EventTable/schema.SnapshotTable. A dirty migration state is forced
// back to its recorded version first, whatever autoMigrate says; if
// autoMigrate is false, it then reports the current version and returns
// without applying anything. Returns an error immediately,
// before touching the database, if schema renames either table away from
// eventstore.DefaultSchema — this package's embedded DDL has no way to honor
// a custom name, and running it anyway would leave the configured tables
// empty.
func RunMigrations(db *sql.DB, autoMigrate bool, schema eventstore.Schema) error {
	if err := requireDefaultTableNames(schema); err != nil {
		return err
	}

	sourceDriver, err := iofs.New(MigrationFiles, ".")
	if err != nil {
		return fmt.Errorf("eventstore/migrations: create source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("eventstore/migrations: create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("eventstore/migrations: create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("eventstore/migrations: get version: %w", err)
	}

	if dirty {
		slog.Warn("[Migrations] Database is in dirty state - migration was interrupted",
			"version", version, "action", "attempting automatic recovery")
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("eventstore/migrations: recover dirty state at version %d: %w", version, err)
		}
		slog.Info("[Migrations] Recovered dirty migration state", "version", version)
	}

	if !autoMigrate {
		slog.Info("[Migrations] Auto-migration disabled, skipping", "current_version", version, "dirty", dirty)
		return nil
	}

	slog.Info("[Migrations] Running database migrations",
		"current_version", version, "event_table", schema.EventTable, "snapshot_table", schema.SnapshotTable)

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			slog.Info("[Migrations] Database schema is up to date", "version", version)
			return nil
		}
		return fmt.Errorf("eventstore/migrations: run migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("eventstore/migrations: get updated version: %w", err)
	}
	slog.Info("[Migrations] Database migrations completed successfully",
		"from_version", version, "to_version", newVersion)
	return nil
}
