package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

func testItem(t *testing.T, source rtypes.Source, content string, metadata map[string]interface{}) *research.ResearchItem {
	t.Helper()
	item, err := research.NewResearchItem(
		source,
		"Magnesium and sleep quality",
		content,
		"https://example.com/item",
		nil,
		metadata,
		time.Time{},
	)
	require.NoError(t, err)
	return item
}

func TestValidator_Validate_StateMachine(t *testing.T) {
	v := NewValidator(NewLexiconClassifier(nil, nil), 1, logging.NewNopLogger())

	tests := []struct {
		name        string
		source      rtypes.Source
		content     string
		metadata    map[string]interface{}
		status      rtypes.ComplianceStatus
		hasCitation bool
	}{
		{
			name:    "biomed clean stays compliant",
			source:  rtypes.SourceBiomed,
			content: "Magnesium supplementation improved sleep onset latency.",
			status:  rtypes.ComplianceCompliant,
		},
		{
			name:    "biomed borderline lifts to compliant",
			source:  rtypes.SourceBiomed,
			content: "The intervention boosts immunity markers in older adults.",
			status:  rtypes.ComplianceCompliant,
		},
		{
			name:    "biomed prohibited softens to warning",
			source:  rtypes.SourceBiomed,
			content: "Authors conclude the compound cures insomnia.",
			status:  rtypes.ComplianceWarning,
		},
		{
			name:    "news clean stays compliant",
			source:  rtypes.SourceNews,
			content: "A new study examined magnesium and sleep.",
			status:  rtypes.ComplianceCompliant,
		},
		{
			name:        "news borderline warns regardless of citation",
			source:      rtypes.SourceNews,
			content:     "Clinically proven, says the report at 10.1001/jama.2025.1234.",
			status:      rtypes.ComplianceWarning,
			hasCitation: true,
		},
		{
			name:        "news prohibited with citation downgrades",
			source:      rtypes.SourceNews,
			content:     "It cures insomnia according to PMID: 39123456.",
			status:      rtypes.ComplianceWarning,
			hasCitation: true,
		},
		{
			name:        "news prohibited with metadata doi downgrades",
			source:      rtypes.SourceNews,
			content:     "It cures insomnia, experts say.",
			metadata:    map[string]interface{}{"doi": "10.5555/abc"},
			status:      rtypes.ComplianceWarning,
			hasCitation: true,
		},
		{
			name:    "news prohibited without citation rejects",
			source:  rtypes.SourceNews,
			content: "It cures insomnia, experts say.",
			status:  rtypes.ComplianceRejected,
		},
		{
			name:    "aggregator prohibited without citation rejects",
			source:  rtypes.SourceAggregator,
			content: "Guaranteed results in two weeks.",
			status:  rtypes.ComplianceRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := testItem(t, tt.source, tt.content, tt.metadata)

			result, err := v.Validate(context.Background(), item)

			require.NoError(t, err)
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, tt.hasCitation, result.HasScientificCitation)
			assert.Equal(t, item.ID, result.ItemID)
			assert.NotEmpty(t, result.Note)
		})
	}
}

func TestValidator_Validate_NoteExplainsDowngrade(t *testing.T) {
	v := NewValidator(NewLexiconClassifier(nil, nil), 1, logging.NewNopLogger())
	item := testItem(t, rtypes.SourceNews, "It cures insomnia according to PMID: 39123456.", nil)

	result, err := v.Validate(context.Background(), item)

	require.NoError(t, err)
	assert.Contains(t, result.Note, "scientific citation present")
	assert.Equal(t, "39123456", result.Citation.PMID)
}

func TestValidator_Validate_NilItem(t *testing.T) {
	v := NewValidator(NewLexiconClassifier(nil, nil), 1, logging.NewNopLogger())

	_, err := v.Validate(context.Background(), nil)

	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestValidator_Validate_Cancelled(t *testing.T) {
	v := NewValidator(NewLexiconClassifier(nil, nil), 1, logging.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Validate(ctx, testItem(t, rtypes.SourceNews, "plain text", nil))

	assert.True(t, errors.IsCancelled(err))
}

func TestValidator_ValidateBatch(t *testing.T) {
	v := NewValidator(NewLexiconClassifier(nil, nil), 4, logging.NewNopLogger())
	items := []*research.ResearchItem{
		testItem(t, rtypes.SourceBiomed, "Magnesium improved sleep onset latency.", nil),
		testItem(t, rtypes.SourceNews, "Clinically proven supplement hits shelves.", nil),
		testItem(t, rtypes.SourceNews, "It cures insomnia, experts say.", nil),
	}

	results, stats := v.ValidateBatch(context.Background(), items)

	require.Len(t, results, 3)
	assert.Equal(t, ValidationStats{
		Total:     3,
		Validated: 3,
		Compliant: 1,
		Warned:    1,
		Rejected:  1,
	}, stats)

	byID := make(map[string]*ValidationResult, len(results))
	for _, r := range results {
		byID[r.ItemID.String()] = r
	}
	assert.Equal(t, rtypes.ComplianceCompliant, byID[items[0].ID.String()].Status)
	assert.Equal(t, rtypes.ComplianceWarning, byID[items[1].ID.String()].Status)
	assert.Equal(t, rtypes.ComplianceRejected, byID[items[2].ID.String()].Status)
}

func TestValidator_ValidateBatch_Cancelled(t *testing.T) {
	v := NewValidator(NewLexiconClassifier(nil, nil), 2, logging.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, stats := v.ValidateBatch(ctx, []*research.ResearchItem{
		testItem(t, rtypes.SourceNews, "plain text", nil),
		testItem(t, rtypes.SourceNews, "plain text", nil),
	})

	assert.Empty(t, results)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 0, stats.Validated)
}

func TestValidator_ValidateBatch_Empty(t *testing.T) {
	v := NewValidator(NewLexiconClassifier(nil, nil), 2, logging.NewNopLogger())

	results, stats := v.ValidateBatch(context.Background(), nil)

	assert.Empty(t, results)
	assert.Equal(t, ValidationStats{}, stats)
}
