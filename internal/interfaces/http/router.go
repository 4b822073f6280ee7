// Package http wires the gin route tree: global middleware, public probes
// and the /api/v1 resource groups.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResearchPool-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/ResearchPool-Intelligence/internal/interfaces/http/middleware"
)

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the complete HTTP route tree.
type RouterConfig struct {
	// Handlers
	ItemHandler     *handlers.ItemHandler
	PipelineHandler *handlers.PipelineHandler
	HealthHandler   *handlers.HealthHandler

	// Middleware overrides; nil means the package default.
	Logging *middleware.LoggingConfig
	CORS    *middleware.CORSConfig

	// Infrastructure
	Logger           logging.Logger
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter constructs the complete route tree from the given configuration:
// request-id, request logging, panic recovery and CORS on every request, the
// probes and /metrics public, the resource groups under /api/v1.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logCfg := middleware.DefaultLoggingConfig()
	if cfg.Logging != nil {
		logCfg = *cfg.Logging
	}
	corsCfg := middleware.DefaultCORSConfig()
	if cfg.CORS != nil {
		corsCfg = *cfg.CORS
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogging(logger, logCfg),
		middleware.Recovery(logger),
		middleware.CORS(corsCfg),
	)

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
		r.GET("/healthz/detail", cfg.HealthHandler.Detailed)
	}
	if cfg.MetricsCollector != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	api := r.Group("/api/v1")
	registerItemRoutes(api, cfg.ItemHandler)
	registerPipelineRoutes(api, cfg.PipelineHandler)

	return r
}

// registerItemRoutes mounts the pool endpoints under /items.
func registerItemRoutes(api *gin.RouterGroup, h *handlers.ItemHandler) {
	if h == nil {
		return
	}
	items := api.Group("/items")
	items.GET("", h.List)
	items.GET("/count", h.Count)
	items.GET("/search", h.Search)
	items.GET("/:id", h.Get)
	items.PATCH("/:id/score", h.PatchScore)
	items.PATCH("/:id/compliance", h.PatchCompliance)
	items.DELETE("/:id", h.Delete)
}

// registerPipelineRoutes mounts the run trigger and stats under /pipeline.
func registerPipelineRoutes(api *gin.RouterGroup, h *handlers.PipelineHandler) {
	if h == nil {
		return
	}
	pipe := api.Group("/pipeline")
	pipe.GET("/stats", h.Stats)
	pipe.POST("/:source/run", h.Run)
}
