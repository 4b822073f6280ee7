// Package handlers holds the gin handlers behind /api/v1: pool item queries,
// pipeline run triggers and the health probes.
package handlers

import (
	stderrors "errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	"github.com/turtacn/ResearchPool-Intelligence/internal/interfaces/http/middleware"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ErrorBody is the JSON error envelope every handler returns under "error".
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// respondError maps err onto the error-code HTTP status table and aborts the
// request. Client errors keep their message; server-side detail is scrubbed
// down to the code's default message so storage and model internals never
// leak to callers.
func respondError(c *gin.Context, err error) {
	code := appErrors.GetCode(err)
	status := appErrors.HTTPStatusForCode(code)

	message := appErrors.DefaultMessageForCode(code)
	var ae *appErrors.AppError
	if appErrors.IsClientError(code) && stderrors.As(err, &ae) && ae.Message != "" {
		message = ae.Message
	}

	if retryAfter, ok := appErrors.GetRetryAfter(err); ok {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}

	c.AbortWithStatusJSON(status, gin.H{"error": ErrorBody{
		Code:      string(code),
		Message:   message,
		RequestID: middleware.GetRequestID(c),
	}})
}

// parseQueryFilter binds the shared pool filter from query parameters.
// Unknown parameters are ignored; malformed values come back as a bad-request
// error naming the offending parameter.
func parseQueryFilter(c *gin.Context) (rtypes.QueryFilter, error) {
	filter := rtypes.NewQueryFilter()

	if raw := c.Query("source"); raw != "" {
		source, err := rtypes.ParseSource(raw)
		if err != nil {
			return filter, appErrors.InvalidParam(err.Error())
		}
		filter.Source = &source
	}
	for _, raw := range c.QueryArray("tag") {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}
	if raw := c.Query("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, appErrors.InvalidParam("min_score must be a number")
		}
		filter.MinScore = &v
	}
	if raw := c.Query("max_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, appErrors.InvalidParam("max_score must be a number")
		}
		filter.MaxScore = &v
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.InvalidParam("from must be an RFC 3339 timestamp")
		}
		filter.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.InvalidParam("to must be an RFC 3339 timestamp")
		}
		filter.To = &t
	}
	if raw := c.Query("compliance"); raw != "" {
		status, err := rtypes.ParseComplianceStatus(raw)
		if err != nil {
			return filter, appErrors.InvalidParam(err.Error())
		}
		filter.Compliance = &status
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return filter, appErrors.InvalidParam("limit must be an integer")
		}
		filter.Limit = v
	}
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return filter, appErrors.InvalidParam("offset must be an integer")
		}
		filter.Offset = v
	}
	if raw := c.Query("sort"); raw != "" {
		filter.Sort = rtypes.SortKey(strings.ToLower(strings.TrimSpace(raw)))
	}

	filter.Normalize()
	if err := filter.Validate(); err != nil {
		return filter, appErrors.InvalidParam(err.Error())
	}
	return filter, nil
}

// toQueryResponse converts a repository page into the transport envelope.
// Page numbering is derived from offset over limit, 1-based.
func toQueryResponse(items []*research.ResearchItem, total int64, filter rtypes.QueryFilter) rtypes.QueryResponse {
	dtos := make([]rtypes.ResearchItemDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, item.ToDTO())
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	}
	return rtypes.QueryResponse{
		Items:      dtos,
		Total:      total,
		Page:       filter.Offset/filter.Limit + 1,
		PageSize:   filter.Limit,
		TotalPages: totalPages,
	}
}
