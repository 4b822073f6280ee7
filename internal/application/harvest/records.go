// Package harvest implements the front half of the ingestion pipeline:
// discovery across configured source queries, per-item detail enrichment
// behind the source rate budget, and normalization of harvested records
// into pool items. The types in this file are transient; nothing here is
// persisted, only the normalized ResearchItem reaches the pool.
package harvest

import (
	"time"

	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ──────────────────────────────────────────────────────────────────────────
// Discovery records
// ──────────────────────────────────────────────────────────────────────────

// RawRecord is one discovery hit before enrichment. ExternalID is the
// upstream identifier and, with Source, forms the pool's uniqueness key.
type RawRecord struct {
	Source      rtypes.Source
	ExternalID  string
	Title       string
	URL         string
	PublishedAt *time.Time
	Engagement  int64
	TypeHint    string
	Extra       map[string]string
}

// Detail is the per-item payload fetched during enrichment. Removed marks
// items the upstream has deleted since discovery.
type Detail struct {
	Body    string
	Author  string
	Removed bool
}

// HarvestedRecord is a raw record joined with its detail payload and, when
// the source has analysis enabled, the model's reading of it.
type HarvestedRecord struct {
	RawRecord

	Body    string
	Author  string
	Removed bool

	Summary *AnalysisSummary
	Claims  *ClaimAssessment
}

// ──────────────────────────────────────────────────────────────────────────
// Analysis results
// ──────────────────────────────────────────────────────────────────────────

// AnalysisSummary is the structured reading of a biomedical abstract.
// Strength is one of strong, moderate, weak.
type AnalysisSummary struct {
	Compound     string   `json:"compound"`
	Effect       string   `json:"effect"`
	Findings     string   `json:"key_findings"`
	Significance string   `json:"significance"`
	Strength     string   `json:"study_strength"`
	UsageTags    []string `json:"usage_tags"`
}

// ClaimAssessment says whether marketable claims can be drawn from an item
// and, when they cannot, which content uses remain.
type ClaimAssessment struct {
	CanMakeClaim     bool              `json:"can_make_claim"`
	ContentPotential []rtypes.ClaimUse `json:"content_potential"`
	Reason           string            `json:"reason"`
}

// DefaultClaimAssessment is the conservative fallback used when analysis is
// unavailable: no claim may be made.
func DefaultClaimAssessment() ClaimAssessment {
	return ClaimAssessment{
		CanMakeClaim:     false,
		ContentPotential: []rtypes.ClaimUse{rtypes.ClaimNone},
		Reason:           "analysis unavailable, defaulting to no claim",
	}
}

// Sanitize drops content-potential values outside the closed set and
// restores the conservative default when nothing valid remains.
func (a *ClaimAssessment) Sanitize() {
	valid := a.ContentPotential[:0]
	for _, u := range a.ContentPotential {
		if u.IsValid() {
			valid = append(valid, u)
		}
	}
	a.ContentPotential = valid
	if len(a.ContentPotential) == 0 {
		a.ContentPotential = []rtypes.ClaimUse{rtypes.ClaimNone}
	}
}

// ──────────────────────────────────────────────────────────────────────────
// Stage statistics
// ──────────────────────────────────────────────────────────────────────────

// ScanStats summarizes one discovery pass. FilteredOut counts records
// dropped by the engagement, recency, and type thresholds plus ids the
// seen-store reports as already published.
type ScanStats struct {
	QueriesExecuted  int `json:"queries_executed"`
	QueriesFailed    int `json:"queries_failed"`
	TotalFound       int `json:"total_found"`
	UniqueAfterDedup int `json:"unique_after_dedup"`
	FilteredOut      int `json:"filtered_out"`
}

// HarvestStats summarizes one enrichment pass. Dropped counts removed and
// empty-after-sanitize items; Failed counts per-item transport errors.
type HarvestStats struct {
	Attempted int `json:"attempted"`
	Enriched  int `json:"enriched"`
	Dropped   int `json:"dropped"`
	Failed    int `json:"failed"`
}
