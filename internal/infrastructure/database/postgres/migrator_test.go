// Tests for the URL-driven migration helpers. The round-trip tests require
// Docker and are gated behind the RESPOOL_INTEGRATION environment variable;
// the guard tests always run.
package postgres_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/postgres"
)

// migrationsURL points at the repository's real migration files, relative to
// this package directory.
const migrationsURL = "file://../../../../migrations"

func TestMigrateDown_RejectsNonPositiveSteps(t *testing.T) {
	t.Parallel()

	err := postgres.MigrateDown("postgres://localhost/ignored", migrationsURL, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps must be greater than 0")

	err = postgres.MigrateDown("postgres://localhost/ignored", migrationsURL, -3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps must be greater than 0")
}

func TestMigrations_RoundTrip(t *testing.T) {
	skipUnlessIntegration(t)
	dbURL, _ := startPostgresInstance(t)

	// Fresh database reports version 0, clean.
	version, dirty, err := postgres.MigrationStatus(dbURL, migrationsURL)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	// Applying moves the version forward.
	require.NoError(t, postgres.MigrateUp(dbURL, migrationsURL))
	version, dirty, err = postgres.MigrationStatus(dbURL, migrationsURL)
	require.NoError(t, err)
	assert.Greater(t, version, uint(0))
	assert.False(t, dirty)

	// Applying again is a no-op, not an error.
	require.NoError(t, postgres.MigrateUp(dbURL, migrationsURL))

	// Rolling back one step lands on the previous version.
	require.NoError(t, postgres.MigrateDown(dbURL, migrationsURL, 1))
	rolled, dirty, err := postgres.MigrationStatus(dbURL, migrationsURL)
	require.NoError(t, err)
	assert.Less(t, rolled, version)
	assert.False(t, dirty)

	// Rolling back past the first migration is an error.
	err = postgres.MigrateDown(dbURL, migrationsURL, 100)
	require.Error(t, err)
}

func TestForceMigrationVersion(t *testing.T) {
	skipUnlessIntegration(t)
	dbURL, _ := startPostgresInstance(t)

	require.NoError(t, postgres.ForceMigrationVersion(dbURL, migrationsURL, 1))

	version, dirty, err := postgres.MigrationStatus(dbURL, migrationsURL)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}
