package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
)

// Standalone migration helpers driven by a database URL rather than an open
// Connection. The apiserver migrates through Connection.RunMigrations on
// startup; these back the `respool migrate` CLI subcommands, which run
// without the rest of the platform.

// ─────────────────────────────────────────────────────────────────────────────
// MigrateUp — apply all pending migrations
// ─────────────────────────────────────────────────────────────────────────────

// MigrateUp applies every pending migration from migrationsPath (a source URL
// such as "file://migrations"). An already-current schema returns nil.
func MigrateUp(dbURL, migrationsPath string) error {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MigrateDown — roll back by steps
// ─────────────────────────────────────────────────────────────────────────────

// MigrateDown rolls the schema back by steps migrations. Development and test
// environments only.
func MigrateDown(dbURL, migrationsPath string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be greater than 0, got %d", steps)
	}

	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("no migrations to roll back")
		}
		return fmt.Errorf("failed to roll back %d step(s): %w", steps, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MigrationStatus — current version and dirty flag
// ─────────────────────────────────────────────────────────────────────────────

// MigrationStatus reports the applied migration version and whether the schema
// is dirty (a previous migration failed mid-way). A database with no applied
// migrations reports version 0, clean.
func MigrationStatus(dbURL, migrationsPath string) (version uint, dirty bool, err error) {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ForceMigrationVersion — recover from a dirty state
// ─────────────────────────────────────────────────────────────────────────────

// ForceMigrationVersion sets the recorded schema version without running any
// migrations. Only for manual recovery after a failed migration; it can leave
// the schema inconsistent if the version does not match reality.
func ForceMigrationVersion(dbURL, migrationsPath string, version int) error {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}
