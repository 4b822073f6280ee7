// Command respool is the operator CLI for the ResearchPool-Intelligence
// platform: it triggers harvest runs, queries and searches the pool, reports
// pool statistics, and manages schema migrations.
//
// Source connector modules are linked into deployment builds and register
// their upstream clients with harvest.RegisterConnectors at init time; this
// open tree ships none, so harvest reports every source as not configured.
package main

import (
	"context"
	"os"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/pipeline"
	"github.com/turtacn/ResearchPool-Intelligence/internal/config"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/ResearchPool-Intelligence/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	if err := cli.Execute(buildDependencies); err != nil {
		os.Exit(1)
	}
}

// buildDependencies opens the platform services behind the CLI: the pool
// repository and the pipeline service over it. It runs once, on the first
// command that needs the platform; --help, completion, and migrate never
// reach it.
func buildDependencies(ctx context.Context, cliCtx *cli.CLIContext) (*cli.Dependencies, error) {
	cfg := cliCtx.Config
	logger := cliCtx.Logger

	var closers []func() error
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	pg, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	closers = append(closers, pg.Close)

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		_ = closeAll()
		return nil, err
	}
	closers = append(closers, redisClient.Close)

	producer := kafka.NewProducer(cfg.Kafka, logger)
	closers = append(closers, producer.Close)

	var llmClient llm.Client
	if analysisConfigured(cfg) {
		gemini, err := llm.NewGeminiClient(ctx, cfg.LLM, logger)
		if err != nil {
			_ = closeAll()
			return nil, err
		}
		llmClient = gemini
	}

	repo := repositories.NewResearchItemRepository(pg.Pool(), logger)

	svc, err := pipeline.NewServiceFromConfig(cfg, pipeline.Deps{
		Repo:   repo,
		Seen:   redis.NewSeenStore(redisClient, 0, logger),
		Lock:   pipeline.LockFromRedis(redis.NewRunLock(redisClient, 0, logger)),
		Events: kafka.NewEvents(producer, cfg.Kafka.ClientID, logger),
		LLM:    llmClient,
		Logger: logger,
	})
	if err != nil {
		_ = closeAll()
		return nil, err
	}

	return &cli.Dependencies{Repo: repo, Runner: svc, Close: closeAll}, nil
}

// analysisConfigured reports whether any enabled source wants the model
// stage. The Gemini client is dialed only when something will use it.
func analysisConfigured(cfg *config.Config) bool {
	for _, src := range cfg.Sources {
		if src.Enabled && src.AnalysisEnabled {
			return true
		}
	}
	return false
}
