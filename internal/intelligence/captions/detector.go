package captions

import (
	"context"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/harvest"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
)

const claimTemplate = "caption_claim_detection"

const claimPrompt = `You review social-media captions from supplement and fitness
accounts for compliance risk. Influencer posts routinely cross the line from
sharing research into making health claims, which FTC guidance and FDA rules
for dietary supplements prohibit without substantiation.

Assess the caption below. Respond with ONLY a JSON object:

  "can_make_claim": boolean, true only when the caption's statements are
                    backed by cited peer-reviewed research
  "content_potential": array drawn from "citation_only", "educational",
                       "trend_awareness", "no_claim"
  "reason": one sentence explaining the assessment

Account: {{.Account}}
Caption: {{.Caption}}`

// ClaimDetector assesses whether a caption makes marketable health claims.
type ClaimDetector struct {
	client  llm.Client
	prompts *llm.PromptManager
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewClaimDetector registers the detection template and returns the analyzer.
func NewClaimDetector(
	client llm.Client,
	prompts *llm.PromptManager,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) *ClaimDetector {
	prompts.MustRegister(claimTemplate, claimPrompt)
	return &ClaimDetector{
		client:  client,
		prompts: prompts,
		metrics: metrics,
		logger:  logger.With(logging.String("analyzer", analyzerName)),
	}
}

// Detect runs the claim assessment for a single post. Malformed model output
// falls back to the conservative no-claim assessment.
func (d *ClaimDetector) Detect(ctx context.Context, rec harvest.HarvestedRecord) (*harvest.ClaimAssessment, error) {
	caption := rec.Body
	if caption == "" {
		caption = rec.Title
	}
	prompt, err := d.prompts.Render(claimTemplate, map[string]interface{}{
		"Account": rec.Extra["account"],
		"Caption": llm.TruncateForPrompt(llm.MaxPromptInputBytes, caption),
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := d.client.Generate(ctx, prompt)
	if err != nil {
		d.metrics.ObserveLLMCall(analyzerName, "error", time.Since(start))
		return nil, err
	}
	d.metrics.ObserveLLMCall(analyzerName, "ok", time.Since(start))

	assessment := llm.ParseOrDefault(raw, harvest.DefaultClaimAssessment(), d.logger)
	assessment.Sanitize()
	return &assessment, nil
}
