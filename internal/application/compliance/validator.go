// Package compliance decides the regulatory verdict of normalized pool
// items. A phrase-lexicon classification produces a base status, local
// citation detection finds scientific identifiers, and a deterministic
// per-source state machine yields the final status. Verdicts are advisory:
// items stay in the pool regardless.
package compliance

import (
	"context"
	"fmt"

	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/common"
	"github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	ctypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// DefaultValidateConcurrency bounds the batch fan-out when the caller does
// not choose one.
const DefaultValidateConcurrency = 8

// ValidationResult is the verdict for one item.
type ValidationResult struct {
	ItemID                ctypes.ID               `json:"item_id"`
	Status                rtypes.ComplianceStatus `json:"status"`
	Flagged               []FlaggedPhrase         `json:"flagged,omitempty"`
	Citation              CitationInfo            `json:"citation"`
	Note                  string                  `json:"note"`
	HasScientificCitation bool                    `json:"has_scientific_citation"`
}

// ValidationStats summarizes one batch.
type ValidationStats struct {
	Total     int `json:"total"`
	Validated int `json:"validated"`
	Compliant int `json:"compliant"`
	Warned    int `json:"warned"`
	Rejected  int `json:"rejected"`
	Failed    int `json:"failed"`
}

// Validator runs the compliance decision for normalized items.
type Validator struct {
	classifier PhraseClassifier
	batch      *common.BatchProcessor[*research.ResearchItem, *ValidationResult]
	logger     logging.Logger
}

// NewValidator builds a validator around the given classifier. concurrency
// bounds ValidateBatch; values < 1 fall back to the default.
func NewValidator(classifier PhraseClassifier, concurrency int, logger logging.Logger) *Validator {
	if concurrency < 1 {
		concurrency = DefaultValidateConcurrency
	}
	v := &Validator{
		classifier: classifier,
		logger:     logger.With(logging.String("component", "compliance_validator")),
	}
	v.batch = common.NewBatchProcessor[*research.ResearchItem, *ValidationResult](
		concurrency, 0, common.NoRetry(), v.logger)
	return v
}

// Validate decides the verdict for one item. The work is local and fails
// only on a nil item or a cancelled context.
func (v *Validator) Validate(ctx context.Context, item *research.ResearchItem) (*ValidationResult, error) {
	if item == nil {
		return nil, errors.InvalidParam("item is required")
	}
	if ctx.Err() != nil {
		return nil, errors.Cancelled("validation cancelled")
	}

	composed := item.Title + "\n" + item.Content
	report := v.classifier.Classify(composed)
	citation := DetectCitations(composed, item.SourceMetadata)

	status := adjustStatus(item.Source, report.Overall, citation.HasCitation())

	return &ValidationResult{
		ItemID:                item.ID,
		Status:                status,
		Flagged:               report.Flagged,
		Citation:              citation,
		Note:                  buildNote(item.Source, report, citation, status),
		HasScientificCitation: citation.HasCitation(),
	}, nil
}

// ValidateBatch decides verdicts concurrently. Failures shrink the result
// list; callers reconcile by ItemID. Stats count every input exactly once.
func (v *Validator) ValidateBatch(ctx context.Context, items []*research.ResearchItem) ([]*ValidationResult, ValidationStats) {
	stats := ValidationStats{Total: len(items)}

	res := v.batch.Process(ctx, items, v.Validate)

	out := make([]*ValidationResult, 0, res.Succeeded)
	for _, item := range res.Results {
		if item.Status != common.ItemStatusOK {
			stats.Failed++
			if item.Error != nil && !errors.IsCancelled(item.Error) {
				v.logger.Warn("item validation failed",
					logging.Int("index", item.Index),
					logging.Err(item.Error))
			}
			continue
		}
		stats.Validated++
		switch item.Result.Status {
		case rtypes.ComplianceCompliant:
			stats.Compliant++
		case rtypes.ComplianceWarning:
			stats.Warned++
		case rtypes.ComplianceRejected:
			stats.Rejected++
		}
		out = append(out, item.Result)
	}
	return out, stats
}

// adjustStatus applies the per-source state machine. Biomedical sources are
// intrinsically citable: warnings lift to compliant and rejections soften to
// warnings. For every other source a verifiable scientific citation
// downgrades a rejection to a warning, so the study can be referenced even
// when its framing cannot be restated.
func adjustStatus(source rtypes.Source, base rtypes.ComplianceStatus, hasCitation bool) rtypes.ComplianceStatus {
	if source == rtypes.SourceBiomed {
		if base == rtypes.ComplianceRejected {
			return rtypes.ComplianceWarning
		}
		return rtypes.ComplianceCompliant
	}
	if base == rtypes.ComplianceRejected && hasCitation {
		return rtypes.ComplianceWarning
	}
	return base
}

func buildNote(source rtypes.Source, report PhraseReport, citation CitationInfo, final rtypes.ComplianceStatus) string {
	switch {
	case len(report.Flagged) == 0:
		return "no flagged phrases"
	case source == rtypes.SourceBiomed && report.Overall == rtypes.ComplianceRejected:
		return fmt.Sprintf("%d flagged phrase(s) downgraded to warning for biomedical source", len(report.Flagged))
	case source == rtypes.SourceBiomed:
		return fmt.Sprintf("%d borderline phrase(s) permitted for biomedical source", len(report.Flagged))
	case report.Overall == rtypes.ComplianceRejected && final == rtypes.ComplianceWarning:
		return fmt.Sprintf("%d prohibited phrase(s) downgraded to warning: scientific citation present", len(report.Flagged))
	case final == rtypes.ComplianceRejected:
		return fmt.Sprintf("%d prohibited phrase(s) without scientific citation", len(report.Flagged))
	default:
		return fmt.Sprintf("%d borderline phrase(s) flagged for review", len(report.Flagged))
	}
}
