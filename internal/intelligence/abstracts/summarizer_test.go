package abstracts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/harvest"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
)

// stubClient scripts one model response per test.
type stubClient struct {
	response string
	err      error
	prompt   string
}

func (c *stubClient) Generate(_ context.Context, prompt string) (string, error) {
	c.prompt = prompt
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func biomedRecord() harvest.HarvestedRecord {
	return harvest.HarvestedRecord{
		RawRecord: harvest.RawRecord{
			Source:     "biomed",
			ExternalID: "pmid-39000001",
			Title:      "Creatine supplementation and sprint performance",
		},
		Body: "A randomized controlled trial of creatine monohydrate in 40 athletes.",
	}
}

func TestSummarizer_Summarize_ParsesResponse(t *testing.T) {
	client := &stubClient{response: "```json\n" + `{
		"compound": "creatine monohydrate",
		"effect": "improved sprint performance",
		"key_findings": "Sprint times improved 4% versus placebo (p<0.05).",
		"significance": "p<0.05",
		"study_strength": "strong",
		"usage_tags": ["creatine", "performance"]
	}` + "\n```"}
	s := NewSummarizer(client, llm.NewPromptManager(), nil, logging.NewNopLogger())

	summary, err := s.Summarize(context.Background(), biomedRecord())

	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "creatine monohydrate", summary.Compound)
	assert.Equal(t, "improved sprint performance", summary.Effect)
	assert.Equal(t, "Sprint times improved 4% versus placebo (p<0.05).", summary.Findings)
	assert.Equal(t, "p<0.05", summary.Significance)
	assert.Equal(t, "strong", summary.Strength)
	assert.Equal(t, []string{"creatine", "performance"}, summary.UsageTags)
}

func TestSummarizer_Summarize_PromptCarriesRecord(t *testing.T) {
	client := &stubClient{response: `{"study_strength": "weak"}`}
	s := NewSummarizer(client, llm.NewPromptManager(), nil, logging.NewNopLogger())

	_, err := s.Summarize(context.Background(), biomedRecord())

	require.NoError(t, err)
	assert.Contains(t, client.prompt, "Creatine supplementation and sprint performance")
	assert.Contains(t, client.prompt, "randomized controlled trial")
}

func TestSummarizer_Summarize_MalformedFallsBack(t *testing.T) {
	client := &stubClient{response: "The study shows creatine works great!"}
	s := NewSummarizer(client, llm.NewPromptManager(), nil, logging.NewNopLogger())

	summary, err := s.Summarize(context.Background(), biomedRecord())

	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Empty(t, summary.Compound)
	assert.Empty(t, summary.Findings)
	assert.Equal(t, "weak", summary.Strength)
}

func TestSummarizer_Summarize_StrengthOutsideClosedSet(t *testing.T) {
	client := &stubClient{response: `{
		"compound": "beta-alanine",
		"study_strength": "definitive"
	}`}
	s := NewSummarizer(client, llm.NewPromptManager(), nil, logging.NewNopLogger())

	summary, err := s.Summarize(context.Background(), biomedRecord())

	require.NoError(t, err)
	assert.Equal(t, "beta-alanine", summary.Compound)
	assert.Equal(t, "weak", summary.Strength)
}

func TestSummarizer_Summarize_TransportError(t *testing.T) {
	client := &stubClient{err: errors.LLMTransport("gemini unavailable")}
	s := NewSummarizer(client, llm.NewPromptManager(), nil, logging.NewNopLogger())

	summary, err := s.Summarize(context.Background(), biomedRecord())

	require.Error(t, err)
	assert.Nil(t, summary)
	assert.True(t, errors.IsCode(err, errors.CodeLLMTransport))
}
