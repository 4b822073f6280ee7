package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ──────────────────────────────────────────────────────────────────────────
// Dimension functions
// ──────────────────────────────────────────────────────────────────────────

// Dimension names, also the keys of a weight-override map.
const (
	DimRelevance     = "relevance"
	DimRecency       = "recency"
	DimSourceQuality = "source_quality"
	DimEngagement    = "engagement"
	DimCompliance    = "compliance"
)

const (
	// recencyDecayDays is the window over which recency decays to zero.
	recencyDecayDays = 30.0

	// defaultDimensionScore stands in when a signal is missing.
	defaultDimensionScore = 5.0

	maxDimensionScore = 10.0
)

// Engagement saturation points per source.
const (
	aggregatorSaturation = 100.0
	imageSaturation      = 500.0
	biomedSaturation     = 50.0
	videoSaturation      = 10_000.0
)

// relevance scores lexicon matches over the composed text: +2 per unique
// primary concept capped at +6, +1 per unique secondary concept capped
// at +4.
func (l relevanceLexicon) relevance(text string) (float64, string) {
	primary, secondary := l.matchUnique(text)

	score := math.Min(6, float64(primary)*2) + math.Min(4, float64(secondary))
	score = math.Min(maxDimensionScore, score)

	if primary == 0 && secondary == 0 {
		return 0, "no lexicon concepts matched"
	}
	return score, fmt.Sprintf("%d primary and %d secondary concepts matched", primary, secondary)
}

// recencyScore decays linearly from 10 to 0 over the decay window. Items
// without a publication timestamp score the neutral default.
func recencyScore(metadata map[string]interface{}, now time.Time) (float64, string) {
	raw := metadataString(metadata, "published_at")
	if raw == "" {
		return defaultDimensionScore, "no publication timestamp, default applied"
	}
	published, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return defaultDimensionScore, "unparseable publication timestamp, default applied"
	}

	days := now.Sub(published).Hours() / 24
	if days < 0 {
		days = 0
	}
	score := maxDimensionScore * math.Max(0, 1-days/recencyDecayDays)
	return score, fmt.Sprintf("published %.1f days ago", days)
}

var sourceQualityBase = map[rtypes.Source]float64{
	rtypes.SourceBiomed:     8,
	rtypes.SourceNews:       6,
	rtypes.SourceVideo:      4,
	rtypes.SourceAggregator: 3,
	rtypes.SourceImage:      3,
}

// studyTypeBonus rewards stronger biomedical designs.
var studyTypeBonus = map[string]float64{
	"rct":               2,
	"meta-analysis":     2,
	"systematic_review": 1,
}

// sourceQualityScore is the tiered base per source plus the biomedical
// study-design bonus, capped at 10.
func sourceQualityScore(source rtypes.Source, metadata map[string]interface{}) (float64, string) {
	base, ok := sourceQualityBase[source]
	if !ok {
		return defaultDimensionScore, "unknown source, default applied"
	}

	if source != rtypes.SourceBiomed {
		return base, fmt.Sprintf("base %.0f for %s", base, source)
	}

	studyType := strings.ToLower(metadataString(metadata, "study_type"))
	bonus, has := studyTypeBonus[studyType]
	if !has {
		return base, fmt.Sprintf("base %.0f for %s", base, source)
	}
	score := math.Min(maxDimensionScore, base+bonus)
	return score, fmt.Sprintf("base %.0f for %s, +%.0f %s bonus", base, source, bonus, studyType)
}

// engagementScore normalizes the source-specific engagement signal. Linear
// saturation for upvotes, likes, and citation counts; logarithmic for video
// views. News items and items without a signal score the neutral default; a
// reported count of zero scores zero.
func engagementScore(source rtypes.Source, metadata map[string]interface{}) (float64, string) {
	value, ok := metadataNumber(metadata, "engagement")
	if !ok || source == rtypes.SourceNews {
		return defaultDimensionScore, "no comparable engagement signal, default applied"
	}
	if value <= 0 {
		return 0, "zero engagement reported"
	}

	var score float64
	var note string
	switch source {
	case rtypes.SourceAggregator:
		score = value / aggregatorSaturation * maxDimensionScore
		note = fmt.Sprintf("%.0f upvotes, linear saturation %.0f", value, aggregatorSaturation)
	case rtypes.SourceImage:
		score = value / imageSaturation * maxDimensionScore
		note = fmt.Sprintf("%.0f likes, linear saturation %.0f", value, imageSaturation)
	case rtypes.SourceBiomed:
		score = value / biomedSaturation * maxDimensionScore
		note = fmt.Sprintf("%.0f citations, linear saturation %.0f", value, biomedSaturation)
	case rtypes.SourceVideo:
		score = math.Log10(value) / math.Log10(videoSaturation) * maxDimensionScore
		note = fmt.Sprintf("%.0f views, log saturation %.0f", value, videoSaturation)
	default:
		return defaultDimensionScore, "no comparable engagement signal, default applied"
	}

	return clampScore(score), note
}

// complianceFloor contributes a constant to the weighted average; the real
// compliance verdict acts after averaging.
func complianceFloor() (float64, string) {
	return defaultDimensionScore, "constant floor, verdict applied after averaging"
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(maxDimensionScore, v))
}

func metadataString(metadata map[string]interface{}, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}

// metadataNumber reads a numeric metadata value. Engagement is written as
// int64 in-process but comes back as float64 after a JSONB round trip.
func metadataNumber(metadata map[string]interface{}, key string) (float64, bool) {
	if metadata == nil {
		return 0, false
	}
	switch v := metadata[key].(type) {
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
