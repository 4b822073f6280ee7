package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/pipeline"
	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// PipelineRunner triggers a harvesting run for one configured source.
// pipeline.Service implements it.
type PipelineRunner interface {
	Run(ctx context.Context, source rtypes.Source) (*pipeline.Result, error)
	Sources() []rtypes.Source
}

// PipelineHandler exposes pipeline runs and the pool dashboard numbers.
type PipelineHandler struct {
	runner PipelineRunner
	repo   research.Repository
}

// NewPipelineHandler creates a PipelineHandler.
func NewPipelineHandler(runner PipelineRunner, repo research.Repository) *PipelineHandler {
	return &PipelineHandler{runner: runner, repo: repo}
}

// Run handles POST /api/v1/pipeline/:source/run. The run executes
// synchronously; the per-source lock turns concurrent triggers into 409s.
func (h *PipelineHandler) Run(c *gin.Context) {
	source, err := rtypes.ParseSource(c.Param("source"))
	if err != nil {
		respondError(c, appErrors.InvalidParam(err.Error()))
		return
	}

	result, err := h.runner.Run(c.Request.Context(), source)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PipelineStatsResponse pairs the pool aggregates with the sources that are
// configured for harvesting.
type PipelineStatsResponse struct {
	Sources []rtypes.Source     `json:"sources"`
	Pool    *research.PoolStats `json:"pool"`
}

// Stats handles GET /api/v1/pipeline/stats.
func (h *PipelineHandler) Stats(c *gin.Context) {
	stats, err := h.repo.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, PipelineStatsResponse{
		Sources: h.runner.Sources(),
		Pool:    stats,
	})
}
