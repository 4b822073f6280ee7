package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	"github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ItemHandler serves the pool read surface plus the manual score and
// compliance overrides an operator occasionally needs.
type ItemHandler struct {
	repo research.Repository
}

// NewItemHandler creates an ItemHandler backed by the given repository.
func NewItemHandler(repo research.Repository) *ItemHandler {
	return &ItemHandler{repo: repo}
}

// List handles GET /api/v1/items.
func (h *ItemHandler) List(c *gin.Context) {
	filter, err := parseQueryFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	items, total, err := h.repo.Query(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQueryResponse(items, total, filter))
}

// Get handles GET /api/v1/items/:id.
func (h *ItemHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	item, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item.ToDTO())
}

// Search handles GET /api/v1/items/search?q=….
func (h *ItemHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		respondError(c, appErrors.InvalidParam("search requires a non-empty q parameter"))
		return
	}

	filter, err := parseQueryFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	items, total, err := h.repo.Search(c.Request.Context(), query, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQueryResponse(items, total, filter))
}

// Count handles GET /api/v1/items/count.
func (h *ItemHandler) Count(c *gin.Context) {
	filter, err := parseQueryFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	count, err := h.repo.Count(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

type scorePatch struct {
	Score *float64 `json:"score"`
}

// PatchScore handles PATCH /api/v1/items/:id/score.
func (h *ItemHandler) PatchScore(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req scorePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, appErrors.InvalidParam("request body must be JSON with a score field"))
		return
	}
	if req.Score == nil {
		respondError(c, appErrors.InvalidParam("score is required"))
		return
	}
	if *req.Score < rtypes.MinScore || *req.Score > rtypes.MaxScore {
		respondError(c, appErrors.Validation(fmt.Sprintf(
			"score out of range [%g, %g]: %g", rtypes.MinScore, rtypes.MaxScore, *req.Score)))
		return
	}

	if err := h.repo.UpdateScore(c.Request.Context(), id, *req.Score); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "score": *req.Score})
}

type compliancePatch struct {
	Status string `json:"status"`
}

// PatchCompliance handles PATCH /api/v1/items/:id/compliance.
func (h *ItemHandler) PatchCompliance(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req compliancePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, appErrors.InvalidParam("request body must be JSON with a status field"))
		return
	}
	status, err := rtypes.ParseComplianceStatus(req.Status)
	if err != nil {
		respondError(c, appErrors.InvalidParam(err.Error()))
		return
	}

	if err := h.repo.UpdateCompliance(c.Request.Context(), id, status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "compliance_status": status})
}

// Delete handles DELETE /api/v1/items/:id.
func (h *ItemHandler) Delete(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// pathID extracts and validates the :id path parameter.
func pathID(c *gin.Context) (common.ID, error) {
	id := common.ID(c.Param("id"))
	if err := id.Validate(); err != nil {
		return "", appErrors.InvalidParam(err.Error())
	}
	return id, nil
}
