// Command apiserver serves the research pool over HTTP: the item query and
// search API, the pipeline run trigger, health probes, and the prometheus
// exposition endpoint.
//
// Source connector modules are linked into deployment builds and register
// their upstream clients with harvest.RegisterConnectors at init time; this
// open tree ships none, so pipeline triggers answer 404 for every source.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/pipeline"
	"github.com/turtacn/ResearchPool-Intelligence/internal/config"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/llm"
	httpapi "github.com/turtacn/ResearchPool-Intelligence/internal/interfaces/http"
	"github.com/turtacn/ResearchPool-Intelligence/internal/interfaces/http/handlers"
)

const defaultConfigPath = "configs/config.yaml"

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            cfg.Log.Level,
		Format:           cfg.Log.Format,
		OutputPaths:      cfg.Log.OutputPaths,
		ErrorOutputPaths: cfg.Log.ErrorOutputPaths,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	logger.Info("starting apiserver",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.Int("port", cfg.Server.Port))

	if err := run(cfg, logger); err != nil {
		logger.Error("apiserver exited with error", logging.Err(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(cfg *config.Config, logger logging.Logger) error {
	ctx := context.Background()

	pg, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.RunMigrations(cfg.Database.MigrationPath); err != nil {
		return err
	}

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.Kafka, logger)
	defer producer.Close()

	var llmClient llm.Client
	if analysisConfigured(cfg) {
		gemini, err := llm.NewGeminiClient(ctx, cfg.LLM, logger)
		if err != nil {
			return err
		}
		llmClient = gemini
	}

	// Metrics are registered even when exposition is disabled; the nop
	// collector keeps the instrumented paths identical.
	var collector prometheus.MetricsCollector = prometheus.NewNopCollector()
	if cfg.Metrics.Enabled {
		collector = prometheus.NewCollector(cfg.Metrics.Namespace, logger)
	}
	metrics := prometheus.NewAppMetrics(collector)

	repo := repositories.NewInstrumentedRepository(
		repositories.NewResearchItemRepository(pg.Pool(), logger), metrics)

	svc, err := pipeline.NewServiceFromConfig(cfg, pipeline.Deps{
		Repo:    repo,
		Seen:    redis.NewSeenStore(redisClient, 0, logger),
		Lock:    pipeline.LockFromRedis(redis.NewRunLock(redisClient, 0, logger)),
		Events:  kafka.NewEvents(producer, cfg.Kafka.ClientID, logger),
		LLM:     llmClient,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		ItemHandler:     handlers.NewItemHandler(repo),
		PipelineHandler: handlers.NewPipelineHandler(svc, repo),
		HealthHandler: handlers.NewHealthHandler(version,
			handlers.NewCheckFunc("postgres", pg.HealthCheck),
			handlers.NewCheckFunc("redis", redisClient.Healthy),
		),
		Logger:           logger,
		MetricsCollector: exposedCollector(cfg, collector),
	})
	httpapi.SetMode(cfg.Server.Mode)
	server := httpapi.NewServer(cfg.Server, router, logger)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		logger.Info("shutdown signal received", logging.String("signal", sig.String()))
	}

	if err := server.Shutdown(context.Background()); err != nil {
		return err
	}
	return <-serveErr
}

// exposedCollector hides /metrics when exposition is disabled while the
// internal instrumentation keeps running against the nop collector.
func exposedCollector(cfg *config.Config, collector prometheus.MetricsCollector) prometheus.MetricsCollector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return collector
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

// loadConfig reads the file at path when it exists and falls back to
// RESPOOL_* environment variables otherwise, so containerized deployments
// can run without a mounted config file.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}
