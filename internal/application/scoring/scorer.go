// Package scoring computes the composite score of normalized pool items:
// a weighted average over five dimensions followed by a non-linear
// compliance adjustment. Every breakdown carries per-dimension notes so a
// score can always be explained.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/internal/config"
	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/common"
	"github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	ctypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// DefaultScoreConcurrency bounds ScoreBatch when the caller does not choose.
const DefaultScoreConcurrency = 8

// weightTolerance is how far a weight set may drift from summing to 1.
const weightTolerance = 1e-3

// ──────────────────────────────────────────────────────────────────────────
// Weights
// ──────────────────────────────────────────────────────────────────────────

// Weights is one complete dimension weighting.
type Weights struct {
	Relevance     float64 `json:"relevance"`
	Recency       float64 `json:"recency"`
	SourceQuality float64 `json:"source_quality"`
	Engagement    float64 `json:"engagement"`
	Compliance    float64 `json:"compliance"`
}

// DefaultWeights is the baseline weighting every source starts from.
func DefaultWeights() Weights {
	return Weights{
		Relevance:     0.25,
		Recency:       0.20,
		SourceQuality: 0.25,
		Engagement:    0.20,
		Compliance:    0.10,
	}
}

// biomedWeights is the shipped quality-heavy profile for biomedical items.
func biomedWeights() Weights {
	return Weights{
		Relevance:     0.25,
		Recency:       0.10,
		SourceQuality: 0.40,
		Engagement:    0.15,
		Compliance:    0.10,
	}
}

// Validate rejects negative weights and sums off 1.0 beyond the tolerance.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		DimRelevance:     w.Relevance,
		DimRecency:       w.Recency,
		DimSourceQuality: w.SourceQuality,
		DimEngagement:    w.Engagement,
		DimCompliance:    w.Compliance,
	} {
		if v < 0 {
			return errors.ConfigInvalid(fmt.Sprintf("scoring weight %s must not be negative", name))
		}
	}
	sum := w.Relevance + w.Recency + w.SourceQuality + w.Engagement + w.Compliance
	if math.Abs(sum-1.0) > weightTolerance {
		return errors.ConfigInvalid(fmt.Sprintf("scoring weights must sum to 1.0, got %.4f", sum))
	}
	return nil
}

// WeightsFromMap builds Weights from a dimension-keyed override map.
func WeightsFromMap(m map[string]float64) (Weights, error) {
	w := Weights{}
	for key, v := range m {
		switch key {
		case DimRelevance:
			w.Relevance = v
		case DimRecency:
			w.Recency = v
		case DimSourceQuality:
			w.SourceQuality = v
		case DimEngagement:
			w.Engagement = v
		case DimCompliance:
			w.Compliance = v
		default:
			return Weights{}, errors.ConfigInvalid(fmt.Sprintf("unknown scoring dimension %q", key))
		}
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}

// ──────────────────────────────────────────────────────────────────────────
// Breakdown
// ──────────────────────────────────────────────────────────────────────────

// DimensionScore is one dimension's contribution with its explanation.
type DimensionScore struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	Note   string  `json:"note"`
}

// ScoreBreakdown explains one item's final score.
type ScoreBreakdown struct {
	ItemID          ctypes.ID        `json:"item_id"`
	Dimensions      []DimensionScore `json:"dimensions"`
	WeightedAverage float64          `json:"weighted_average"`
	Adjustment      string           `json:"adjustment"`
	Final           float64          `json:"final"`
}

// ScoreStats summarizes one batch.
type ScoreStats struct {
	Total  int `json:"total"`
	Scored int `json:"scored"`
	Failed int `json:"failed"`
}

// ──────────────────────────────────────────────────────────────────────────
// Scorer
// ──────────────────────────────────────────────────────────────────────────

// Scorer computes composite scores. One instance serves every source; the
// per-source weight table is resolved at construction.
type Scorer struct {
	lexicon relevanceLexicon
	weights map[rtypes.Source]Weights
	now     func() time.Time
	batch   *common.BatchProcessor[*research.ResearchItem, *ScoreBreakdown]
	logger  logging.Logger
}

// NewScorer builds a scorer. Lexicons come from scoring configuration with
// built-in defaults; overrides is keyed by source name and replaces that
// source's complete weight set. concurrency bounds ScoreBatch.
func NewScorer(
	cfg config.ScoringConfig,
	overrides map[string]map[string]float64,
	concurrency int,
	logger logging.Logger,
) (*Scorer, error) {
	if concurrency < 1 {
		concurrency = DefaultScoreConcurrency
	}

	weights := map[rtypes.Source]Weights{
		rtypes.SourceBiomed: biomedWeights(),
	}
	for name, m := range overrides {
		if len(m) == 0 {
			continue
		}
		source, err := rtypes.ParseSource(name)
		if err != nil {
			return nil, errors.ConfigInvalid(fmt.Sprintf("weight override for unknown source %q", name))
		}
		w, err := WeightsFromMap(m)
		if err != nil {
			return nil, err
		}
		weights[source] = w
	}

	s := &Scorer{
		lexicon: newRelevanceLexicon(cfg.PrimaryConcepts, cfg.SecondaryConcepts),
		weights: weights,
		now:     time.Now,
		logger:  logger.With(logging.String("component", "scorer")),
	}
	s.batch = common.NewBatchProcessor[*research.ResearchItem, *ScoreBreakdown](
		concurrency, 0, common.NoRetry(), s.logger)
	return s, nil
}

func (s *Scorer) weightsFor(source rtypes.Source) Weights {
	if w, ok := s.weights[source]; ok {
		return w
	}
	return DefaultWeights()
}

// Score computes the breakdown for one item. The item's compliance verdict
// must already be decided; it drives the post-average adjustment.
func (s *Scorer) Score(ctx context.Context, item *research.ResearchItem) (*ScoreBreakdown, error) {
	if item == nil {
		return nil, errors.InvalidParam("item is required")
	}
	if ctx.Err() != nil {
		return nil, errors.Cancelled("scoring cancelled")
	}

	text := item.Title + "\n" + item.Content
	w := s.weightsFor(item.Source)

	relevance, relevanceNote := s.lexicon.relevance(text)
	recency, recencyNote := recencyScore(item.SourceMetadata, s.now())
	quality, qualityNote := sourceQualityScore(item.Source, item.SourceMetadata)
	engagement, engagementNote := engagementScore(item.Source, item.SourceMetadata)
	compliance, complianceNote := complianceFloor()

	dims := []DimensionScore{
		{Name: DimRelevance, Score: relevance, Weight: w.Relevance, Note: relevanceNote},
		{Name: DimRecency, Score: recency, Weight: w.Recency, Note: recencyNote},
		{Name: DimSourceQuality, Score: quality, Weight: w.SourceQuality, Note: qualityNote},
		{Name: DimEngagement, Score: engagement, Weight: w.Engagement, Note: engagementNote},
		{Name: DimCompliance, Score: compliance, Weight: w.Compliance, Note: complianceNote},
	}

	average := 0.0
	for _, d := range dims {
		average += d.Score * d.Weight
	}

	adjusted, adjustment := applyComplianceAdjustment(average, item.Compliance)

	return &ScoreBreakdown{
		ItemID:          item.ID,
		Dimensions:      dims,
		WeightedAverage: average,
		Adjustment:      adjustment,
		Final:           research.RoundScore(adjusted),
	}, nil
}

// ScoreBatch computes breakdowns concurrently. Failures shrink the result
// list; callers reconcile by ItemID.
func (s *Scorer) ScoreBatch(ctx context.Context, items []*research.ResearchItem) ([]*ScoreBreakdown, ScoreStats) {
	stats := ScoreStats{Total: len(items)}

	res := s.batch.Process(ctx, items, s.Score)

	out := make([]*ScoreBreakdown, 0, res.Succeeded)
	for _, item := range res.Results {
		if item.Status != common.ItemStatusOK {
			stats.Failed++
			if item.Error != nil && !errors.IsCancelled(item.Error) {
				s.logger.Warn("item scoring failed",
					logging.Int("index", item.Index),
					logging.Err(item.Error))
			}
			continue
		}
		stats.Scored++
		out = append(out, item.Result)
	}
	return out, stats
}

// applyComplianceAdjustment is the non-linear step after averaging: a
// compliant verdict earns a bonus, a rejected one dominates everything.
func applyComplianceAdjustment(average float64, status rtypes.ComplianceStatus) (float64, string) {
	switch status {
	case rtypes.ComplianceCompliant:
		return math.Min(maxDimensionScore, average+1), "compliant bonus +1"
	case rtypes.ComplianceRejected:
		return 0, "rejected, score forced to 0"
	default:
		return average, "warning, no adjustment"
	}
}
