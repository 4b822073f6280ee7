// Package research defines the transport-level types of the research
// intelligence pool: source and compliance enums, the item DTO and the
// query filter shared by the repository, HTTP handlers and CLI.
package research

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
)

// Source identifies the upstream platform family a research item came from.
type Source string

const (
	SourceAggregator Source = "aggregator"
	SourceVideo      Source = "video"
	SourceImage      Source = "image"
	SourceNews       Source = "news"
	SourceBiomed     Source = "biomed"
)

// AllSources returns every supported source in declaration order.
func AllSources() []Source {
	return []Source{SourceAggregator, SourceVideo, SourceImage, SourceNews, SourceBiomed}
}

// IsValid checks if the Source is supported.
func (s Source) IsValid() bool {
	switch s {
	case SourceAggregator, SourceVideo, SourceImage, SourceNews, SourceBiomed:
		return true
	default:
		return false
	}
}

// ParseSource parses a case-insensitive source name.
func ParseSource(raw string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown source: %q", raw)
	}
	return s, nil
}

// ComplianceStatus is the regulatory verdict attached to every item.
type ComplianceStatus string

const (
	ComplianceCompliant ComplianceStatus = "COMPLIANT"
	ComplianceWarning   ComplianceStatus = "WARNING"
	ComplianceRejected  ComplianceStatus = "REJECTED"
)

// IsValid checks if the ComplianceStatus is one of the closed set.
func (c ComplianceStatus) IsValid() bool {
	switch c {
	case ComplianceCompliant, ComplianceWarning, ComplianceRejected:
		return true
	default:
		return false
	}
}

// ParseComplianceStatus parses a case-insensitive compliance status.
func ParseComplianceStatus(raw string) (ComplianceStatus, error) {
	c := ComplianceStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.IsValid() {
		return "", fmt.Errorf("unknown compliance status: %q", raw)
	}
	return c, nil
}

// ClaimUse classifies how harvested material may be used downstream.
type ClaimUse string

const (
	ClaimCitationOnly   ClaimUse = "citation_only"
	ClaimEducational    ClaimUse = "educational"
	ClaimTrendAwareness ClaimUse = "trend_awareness"
	ClaimNone           ClaimUse = "no_claim"
)

// IsValid checks if the ClaimUse is one of the closed set.
func (u ClaimUse) IsValid() bool {
	switch u {
	case ClaimCitationOnly, ClaimEducational, ClaimTrendAwareness, ClaimNone:
		return true
	default:
		return false
	}
}

// SortKey selects the ordering of query and search results.
type SortKey string

const (
	// SortByScore orders by score DESC, created_at DESC. The default.
	SortByScore SortKey = "score"
	// SortByDate orders by created_at DESC.
	SortByDate SortKey = "date"
	// SortByRelevance orders by text rank DESC, score DESC. Search only.
	SortByRelevance SortKey = "relevance"
)

// IsValid checks if the SortKey is supported.
func (k SortKey) IsValid() bool {
	switch k {
	case SortByScore, SortByDate, SortByRelevance:
		return true
	default:
		return false
	}
}

// Score bounds for every item in the pool.
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// Query pagination bounds.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 200
)

// ResearchItemDTO is the transport form of a pool item.
type ResearchItemDTO struct {
	ID               common.ID              `json:"id"`
	Source           Source                 `json:"source"`
	Title            string                 `json:"title"`
	Content          string                 `json:"content"`
	URL              string                 `json:"url"`
	Tags             []string               `json:"tags"`
	SourceMetadata   map[string]interface{} `json:"source_metadata,omitempty"`
	CreatedAt        common.Timestamp       `json:"created_at"`
	UpdatedAt        common.Timestamp       `json:"updated_at"`
	Score            float64                `json:"score"`
	ComplianceStatus ComplianceStatus       `json:"compliance_status"`
}

// QueryFilter narrows pool queries. All set predicates are combined with AND.
type QueryFilter struct {
	Source     *Source           `json:"source,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	MinScore   *float64          `json:"min_score,omitempty"`
	MaxScore   *float64          `json:"max_score,omitempty"`
	From       *time.Time        `json:"from,omitempty"`
	To         *time.Time        `json:"to,omitempty"`
	Compliance *ComplianceStatus `json:"compliance,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
	Sort       SortKey           `json:"sort,omitempty"`
}

// NewQueryFilter returns a filter with default pagination and ordering.
func NewQueryFilter() QueryFilter {
	return QueryFilter{
		Limit: DefaultQueryLimit,
		Sort:  SortByScore,
	}
}

// Normalize fills defaults and clamps pagination in place.
// Tags are lowercased and trimmed so they match stored normalized tags.
func (f *QueryFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.Limit > MaxQueryLimit {
		f.Limit = MaxQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Sort == "" {
		f.Sort = SortByScore
	}
	for i, tag := range f.Tags {
		f.Tags[i] = strings.ToLower(strings.TrimSpace(tag))
	}
}

// Validate checks filter consistency. Call Normalize first.
func (f QueryFilter) Validate() error {
	if f.Source != nil && !f.Source.IsValid() {
		return fmt.Errorf("invalid source: %q", *f.Source)
	}
	if f.Compliance != nil && !f.Compliance.IsValid() {
		return fmt.Errorf("invalid compliance status: %q", *f.Compliance)
	}
	if !f.Sort.IsValid() {
		return fmt.Errorf("invalid sort key: %q", f.Sort)
	}
	if f.MinScore != nil && (*f.MinScore < MinScore || *f.MinScore > MaxScore) {
		return fmt.Errorf("min_score out of range [%g, %g]: %g", MinScore, MaxScore, *f.MinScore)
	}
	if f.MaxScore != nil && (*f.MaxScore < MinScore || *f.MaxScore > MaxScore) {
		return fmt.Errorf("max_score out of range [%g, %g]: %g", MinScore, MaxScore, *f.MaxScore)
	}
	if f.MinScore != nil && f.MaxScore != nil && *f.MinScore > *f.MaxScore {
		return fmt.Errorf("min_score %g exceeds max_score %g", *f.MinScore, *f.MaxScore)
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return fmt.Errorf("date range 'from' must be before or equal to 'to'")
	}
	if f.Limit < 1 || f.Limit > MaxQueryLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxQueryLimit)
	}
	if f.Offset < 0 {
		return fmt.Errorf("offset cannot be negative")
	}
	return nil
}

// SearchRequest pairs a full-text query with an optional filter.
type SearchRequest struct {
	Query  string      `json:"query"`
	Filter QueryFilter `json:"filter"`
}

// QueryResponse is the paginated envelope for pool queries.
type QueryResponse = common.PageResponse[ResearchItemDTO]
