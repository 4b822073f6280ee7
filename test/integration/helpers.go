// Package integration exercises the harvesting pipeline end to end against a
// real PostgreSQL pool: container lifecycle, schema migration, pipeline
// assembly with in-memory upstream connectors, and seeding utilities. Tests
// require Docker and are gated behind the RESPOOL_INTEGRATION environment
// variable.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/harvest"
	"github.com/turtacn/ResearchPool-Intelligence/internal/application/pipeline"
	"github.com/turtacn/ResearchPool-Intelligence/internal/config"
	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

const (
	// EnvIntegrationEnabled controls whether integration tests run.
	EnvIntegrationEnabled = "RESPOOL_INTEGRATION"

	// SetupTimeout bounds container startup and migration.
	SetupTimeout = 120 * time.Second
)

// SkipIfNoIntegration skips the calling test when the integration flag is unset.
func SkipIfNoIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(EnvIntegrationEnabled) == "" {
		t.Skipf("skipping integration test: set %s=1 to enable", EnvIntegrationEnabled)
	}
}

// ---------------------------------------------------------------------------
// Container and schema
// ---------------------------------------------------------------------------

// StartPool launches a PostgreSQL container, applies the real migration
// files, and returns a connected pgx pool plus the repository over it.
func StartPool(t *testing.T) (*pgxpool.Pool, *repositories.ResearchItemRepository) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), SetupTimeout)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "respool_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/respool_test?sslmode=disable", host, port.Port())

	applyMigrations(t, dsn)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := repositories.NewResearchItemRepository(pool, logging.NewNopLogger())
	return pool, repo
}

// applyMigrations runs the checked-in migration files against the container,
// the same path the `respool migrate up` command takes.
func applyMigrations(t *testing.T, dsn string) {
	t.Helper()
	dir, err := filepath.Abs(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)

	m, err := migrate.New("file://"+dir, dsn)
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Up())
}

// ---------------------------------------------------------------------------
// In-memory upstream connectors
// ---------------------------------------------------------------------------

// FakeSearch serves canned discovery hits, or a fixed error when Err is set.
// It implements harvest.SearchClient.
type FakeSearch struct {
	mu      sync.Mutex
	Records []harvest.RawRecord
	Err     error
	Calls   int
}

func (f *FakeSearch) Search(_ context.Context, _ harvest.SearchRequest) ([]harvest.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]harvest.RawRecord, len(f.Records))
	copy(out, f.Records)
	return out, nil
}

// FakeDetail serves canned detail payloads keyed by external id. Ids listed
// in FailWith return that error on every fetch. It implements
// harvest.DetailClient.
type FakeDetail struct {
	mu       sync.Mutex
	Bodies   map[string]harvest.Detail
	FailWith map[string]error
	Fetches  int
}

func (f *FakeDetail) Fetch(_ context.Context, raw harvest.RawRecord) (harvest.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetches++
	if err, ok := f.FailWith[raw.ExternalID]; ok {
		return harvest.Detail{}, err
	}
	d, ok := f.Bodies[raw.ExternalID]
	if !ok {
		return harvest.Detail{Removed: true}, nil
	}
	return d, nil
}

// ---------------------------------------------------------------------------
// Pipeline assembly
// ---------------------------------------------------------------------------

// BiomedConfig returns a minimal configuration with a single enabled biomed
// source. Analysis stays off so runs need no language-model client.
func BiomedConfig() *config.Config {
	return &config.Config{
		Worker: config.WorkerConfig{Concurrency: 4},
		Sources: map[string]config.SourceConfig{
			"biomed": {
				Enabled:       true,
				Queries:       []string{"lion's mane cognition"},
				Window:        30 * 24 * time.Hour,
				RatePerMinute: 120,
				RatePatience:  50 * time.Millisecond,
				MaxItems:      50,
			},
		},
	}
}

// NewBiomedPipeline assembles a pipeline service whose biomed source is
// backed by the given fakes and publishes into repo.
func NewBiomedPipeline(t *testing.T, repo research.Repository, search *FakeSearch, detail *FakeDetail) *pipeline.Service {
	t.Helper()
	registry := harvest.NewConnectorRegistry()
	registry.Register(rtypes.SourceBiomed, harvest.Connectors{Search: search, Detail: detail})

	svc, err := pipeline.NewServiceFromConfig(BiomedConfig(), pipeline.Deps{
		Repo:       repo,
		Connectors: registry,
		Logger:     logging.NewNopLogger(),
	})
	require.NoError(t, err)
	return svc
}

// BiomedRaw builds one discovery hit published a day ago.
func BiomedRaw(externalID, title string) harvest.RawRecord {
	published := time.Now().UTC().Add(-24 * time.Hour)
	return harvest.RawRecord{
		Source:      rtypes.SourceBiomed,
		ExternalID:  externalID,
		Title:       title,
		URL:         "https://pubmed.ncbi.nlm.nih.gov/" + externalID,
		PublishedAt: &published,
		Engagement:  12,
	}
}

// ---------------------------------------------------------------------------
// Seeding
// ---------------------------------------------------------------------------

// SeedItem builds one valid pool item ready for insertion.
func SeedItem(t *testing.T, source rtypes.Source, externalID, title, content string, tags []string, createdAt time.Time) *research.ResearchItem {
	t.Helper()
	item, err := research.NewResearchItem(source, title, content,
		"https://example.org/research/"+externalID, tags,
		map[string]interface{}{"external_id": externalID}, createdAt)
	require.NoError(t, err)
	item.Events()
	return item
}

// BulkSeed inserts items through the repository in transaction-sized batches
// and fails the test unless every item lands.
func BulkSeed(t *testing.T, repo research.Repository, items []*research.ResearchItem) {
	t.Helper()
	ctx := context.Background()
	const batch = 500
	inserted := 0
	for start := 0; start < len(items); start += batch {
		end := start + batch
		if end > len(items) {
			end = len(items)
		}
		n, err := repo.BulkAdd(ctx, items[start:end])
		require.NoError(t, err)
		inserted += n
	}
	require.Equal(t, len(items), inserted)
}
