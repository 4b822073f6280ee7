// Package abstracts runs the language-model stages for biomedical records:
// a summarizer that extracts a structured reading of an abstract and a
// claim validator that decides how the finding may be used downstream.
// Parse failures never fail an item; every path falls back to conservative
// defaults.
package abstracts

import (
	"context"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/harvest"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
)

const (
	analyzerName    = "abstracts"
	summaryTemplate = "abstract_summary"
)

const summaryPrompt = `You are a research analyst for a sports-nutrition intelligence platform.
Read the study abstract below and respond with ONLY a JSON object carrying
these keys:

  "compound":       the primary compound or intervention studied
  "effect":         the main effect observed, one short phrase
  "key_findings":   one or two sentences of concrete results
  "significance":   statistical significance as reported, or "" if absent
  "study_strength": exactly one of "strong", "moderate", "weak"
  "usage_tags":     an array of short lowercase theme tags

Title: {{.Title}}
Abstract: {{.Abstract}}`

// Summarizer extracts the structured reading of a biomedical abstract.
type Summarizer struct {
	client  llm.Client
	prompts *llm.PromptManager
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewSummarizer registers the summary template and returns the analyzer.
func NewSummarizer(
	client llm.Client,
	prompts *llm.PromptManager,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) *Summarizer {
	prompts.MustRegister(summaryTemplate, summaryPrompt)
	return &Summarizer{
		client:  client,
		prompts: prompts,
		metrics: metrics,
		logger:  logger.With(logging.String("analyzer", analyzerName)),
	}
}

// Summarize runs the model over one record. Transport errors surface to the
// caller; a malformed response yields the conservative default reading.
func (s *Summarizer) Summarize(ctx context.Context, rec harvest.HarvestedRecord) (*harvest.AnalysisSummary, error) {
	prompt, err := s.prompts.Render(summaryTemplate, map[string]string{
		"Title":    llm.TruncateForPrompt(llm.MaxPromptInputBytes, rec.Title),
		"Abstract": llm.TruncateForPrompt(llm.MaxPromptInputBytes, rec.Body),
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := s.client.Generate(ctx, prompt)
	if err != nil {
		s.metrics.ObserveLLMCall(analyzerName, "error", time.Since(start))
		return nil, err
	}
	s.metrics.ObserveLLMCall(analyzerName, "ok", time.Since(start))

	summary := llm.ParseOrDefault(raw, defaultSummary(), s.logger)
	applySummaryDefaults(&summary)
	return &summary, nil
}

func defaultSummary() harvest.AnalysisSummary {
	return harvest.AnalysisSummary{Strength: "weak"}
}

// applySummaryDefaults fills conservative values for keys the model left
// out and rejects strength values outside the closed set.
func applySummaryDefaults(s *harvest.AnalysisSummary) {
	switch s.Strength {
	case "strong", "moderate", "weak":
	default:
		s.Strength = "weak"
	}
}
