package abstracts

import (
	"context"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/harvest"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
)

const claimTemplate = "abstract_claim_validation"

const claimPrompt = `You are a regulatory-compliance reviewer for a supplement company.
United States rules (FTC Health Products Compliance Guidance, FDA structure/
function claim rules) forbid marketing claims that a supplement treats,
cures, or prevents disease unless substantiated.

Given the study finding below, respond with ONLY a JSON object:

  "can_make_claim":    boolean, true only when the evidence would support a
                       compliant structure/function claim
  "content_potential": array drawn from exactly
                       ["citation_only", "educational", "trend_awareness", "no_claim"]
  "reason":            one sentence explaining the decision

Source title: {{.Title}}
Finding: {{.Finding}}`

// ClaimValidator assesses how a summarized finding may be used in content.
type ClaimValidator struct {
	client  llm.Client
	prompts *llm.PromptManager
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewClaimValidator registers the validation template and returns the
// analyzer.
func NewClaimValidator(
	client llm.Client,
	prompts *llm.PromptManager,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) *ClaimValidator {
	prompts.MustRegister(claimTemplate, claimPrompt)
	return &ClaimValidator{
		client:  client,
		prompts: prompts,
		metrics: metrics,
		logger:  logger.With(logging.String("analyzer", analyzerName)),
	}
}

// Validate runs the model over the record's summarized finding, falling back
// to the record body when no summary is available.
func (v *ClaimValidator) Validate(
	ctx context.Context,
	rec harvest.HarvestedRecord,
	summary *harvest.AnalysisSummary,
) (*harvest.ClaimAssessment, error) {
	finding := rec.Body
	if summary != nil && summary.Findings != "" {
		finding = summary.Findings
	}

	prompt, err := v.prompts.Render(claimTemplate, map[string]string{
		"Title":   llm.TruncateForPrompt(llm.MaxPromptInputBytes, rec.Title),
		"Finding": llm.TruncateForPrompt(llm.MaxPromptInputBytes, finding),
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := v.client.Generate(ctx, prompt)
	if err != nil {
		v.metrics.ObserveLLMCall(analyzerName, "error", time.Since(start))
		return nil, err
	}
	v.metrics.ObserveLLMCall(analyzerName, "ok", time.Since(start))

	assessment := llm.ParseOrDefault(raw, harvest.DefaultClaimAssessment(), v.logger)
	assessment.Sanitize()
	return &assessment, nil
}
