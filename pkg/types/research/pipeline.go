package research

import "strings"

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline run outcome
// ─────────────────────────────────────────────────────────────────────────────

// Outcome classifies how a pipeline run ended.
type Outcome string

const (
	// OutcomeComplete: every stage ran and every surviving item published.
	OutcomeComplete Outcome = "COMPLETE"
	// OutcomePartial: the run finished but some items were dropped or failed.
	OutcomePartial Outcome = "PARTIAL"
	// OutcomeIncomplete: the run stopped early (cancellation); published work
	// is kept.
	OutcomeIncomplete Outcome = "INCOMPLETE"
	// OutcomeRateLimited: the source exhausted its rate budget beyond patience.
	OutcomeRateLimited Outcome = "RATE_LIMITED"
	// OutcomeFailed: a whole stage failed before anything could publish.
	OutcomeFailed Outcome = "FAILED"
)

// IsValid checks if the Outcome is one of the closed set.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeComplete, OutcomePartial, OutcomeIncomplete, OutcomeRateLimited, OutcomeFailed:
		return true
	default:
		return false
	}
}

// ParseOutcome parses a case-insensitive outcome name.
func ParseOutcome(s string) (Outcome, bool) {
	o := Outcome(strings.ToUpper(strings.TrimSpace(s)))
	return o, o.IsValid()
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline stats
// ─────────────────────────────────────────────────────────────────────────────

// PipelineStats are the monotonic per-run counters, incremented at stage
// exits and never reset within a run.
type PipelineStats struct {
	Found      int64 `json:"found"`
	Enriched   int64 `json:"enriched"`
	Analyzed   int64 `json:"analyzed"`
	Normalized int64 `json:"normalized"`
	Validated  int64 `json:"validated"`
	Scored     int64 `json:"scored"`
	Published  int64 `json:"published"`
	Failed     int64 `json:"failed"`
}
