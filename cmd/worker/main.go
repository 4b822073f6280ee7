// Command worker runs the harvest pipeline on a schedule: one ticker per
// enabled source at its configured interval, with a health endpoint for
// orchestration probes. The redis run lock keeps replicas from running the
// same source concurrently, so the worker treats a conflict as "another
// replica got there first" rather than a failure.
//
// Source connector modules are linked into deployment builds and register
// their upstream clients with harvest.RegisterConnectors at init time; this
// open tree ships none, so the worker comes up with nothing to schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/pipeline"
	"github.com/turtacn/ResearchPool-Intelligence/internal/config"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/llm"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultHealthAddr = ":8081"
)

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

	logger.Info("starting worker",
		logging.String("version", version),
		logging.String("commit", commit))

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", logging.Err(err))
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

	sources := svc.Sources()
	if len(sources) == 0 {
		logger.Warn("no sources are schedulable, the worker will only serve health probes")
	}

	healthSrv := startHealthServer(cfg, pg, redisClient, collector, logger)

	// Two contexts: schedCtx stops the tickers so no new run starts, runCtx
	// is canceled only when the drain deadline passes.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	schedCtx, stopSched := context.WithCancel(context.Background())
	defer stopSched()

	var wg sync.WaitGroup
	for _, source := range sources {
		interval := cfg.Sources[string(source)].Interval
		wg.Add(1)
		go func(source rtypes.Source, interval time.Duration) {
			defer wg.Done()
			scheduleSource(schedCtx, runCtx, svc, source, interval, logger)
		}(source, interval)
	}
	logger.Info("scheduler started", logging.Int("sources", len(sources)))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", logging.String("signal", sig.String()))

	stopSched()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("in-flight runs drained")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		logger.Warn("drain deadline exceeded, canceling in-flight runs")
		cancelRuns()
		<-done
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", logging.Err(err))
	}

	logger.Info("worker stopped")
	return nil
}

// scheduleSource runs the source once at startup and then on every tick until
// the scheduler context is canceled. Ticks are consumed sequentially, so a
// long run delays the next one instead of overlapping it.
func scheduleSource(schedCtx, runCtx context.Context, svc *pipeline.Service, source rtypes.Source, interval time.Duration, logger logging.Logger) {
	logger.Info("scheduling source",
		logging.String("source", string(source)),
		logging.String("interval", interval.String()))

	runOnce(runCtx, svc, source, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-schedCtx.Done():
			return
		case <-ticker.C:
			runOnce(runCtx, svc, source, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *pipeline.Service, source rtypes.Source, logger logging.Logger) {
	result, err := svc.Run(ctx, source)
	switch {
	case appErrors.IsConflict(err):
		logger.Info("run already in flight, skipping",
			logging.String("source", string(source)))
	case err != nil:
		logger.Error("pipeline run failed",
			logging.String("source", string(source)),
			logging.Err(err))
	default:
		logger.Info("pipeline run finished",
			logging.String("source", string(source)),
			logging.String("outcome", string(result.Outcome)),
			logging.Int64("published", result.Stats.Published),
			logging.Int64("failed", result.Stats.Failed),
			logging.Duration("duration", result.Duration()))
	}
}

// startHealthServer serves the orchestration probes on the worker health
// address, and the metrics exposition when enabled. Readiness pings the
// stores the pipeline writes to.
func startHealthServer(cfg *config.Config, pg *postgres.Connection, redisClient *redis.Client, collector prometheus.MetricsCollector, logger logging.Logger) *http.Server {
	addr := cfg.Worker.HealthAddr
	if addr == "" {
		addr = defaultHealthAddr
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pg.HealthCheck(ctx); err != nil {
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Healthy(ctx); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, collector.Handler())
	}

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("health server listening", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", logging.Err(err))
		}
	}()
	return srv
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
// RESPOOL_* environment variables otherwise.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}
