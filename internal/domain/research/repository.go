package research

import (
	"context"

	"github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// PoolStats aggregates pool-wide counters for the stats endpoint and CLI.
type PoolStats struct {
	Total        int64                             `json:"total"`
	BySource     map[rtypes.Source]int64           `json:"by_source"`
	ByCompliance map[rtypes.ComplianceStatus]int64 `json:"by_compliance"`
	AverageScore float64                           `json:"average_score"`
	TopTags      []TagCount                        `json:"top_tags,omitempty"`
}

// TagCount pairs a normalized tag with its occurrence count.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// Repository defines the persistence contract for the research pool.
// Query and Search return the matching page plus the total match count so
// callers can paginate without a second round trip.
type Repository interface {
	// Writes
	Add(ctx context.Context, item *ResearchItem) error
	BulkAdd(ctx context.Context, items []*ResearchItem) (int, error)
	Update(ctx context.Context, item *ResearchItem) error
	UpdateScore(ctx context.Context, id common.ID, score float64) error
	UpdateCompliance(ctx context.Context, id common.ID, status rtypes.ComplianceStatus) error
	Delete(ctx context.Context, id common.ID) error

	// Reads
	Get(ctx context.Context, id common.ID) (*ResearchItem, error)
	GetByExternalID(ctx context.Context, source rtypes.Source, externalID string) (*ResearchItem, error)
	Query(ctx context.Context, filter rtypes.QueryFilter) ([]*ResearchItem, int64, error)
	Search(ctx context.Context, query string, filter rtypes.QueryFilter) ([]*ResearchItem, int64, error)
	Count(ctx context.Context, filter rtypes.QueryFilter) (int64, error)

	// Stats
	Stats(ctx context.Context) (*PoolStats, error)
}
