// Package captions runs the language-model stages for image-platform posts:
// a theme extractor that turns caption text into usage tags and a claim
// detector that flags marketing language in the caption.
package captions

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/harvest"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
)

const (
	analyzerName  = "captions"
	themeTemplate = "caption_themes"

	maxThemes = 8
)

const themePrompt = `You tag social-media posts for a sports-nutrition research pool.
Extract the wellness and training themes from the caption below. Respond
with ONLY a JSON object:

  "themes": an array of at most {{.MaxThemes}} short lowercase tags, most
            specific first (for example "pre_workout", "sleep", "recovery")

Account: {{.Account}}
Caption: {{.Caption}}`

// ThemeExtractor derives usage tags from a post caption.
type ThemeExtractor struct {
	client  llm.Client
	prompts *llm.PromptManager
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewThemeExtractor registers the theme template and returns the analyzer.
func NewThemeExtractor(
	client llm.Client,
	prompts *llm.PromptManager,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) *ThemeExtractor {
	prompts.MustRegister(themeTemplate, themePrompt)
	return &ThemeExtractor{
		client:  client,
		prompts: prompts,
		metrics: metrics,
		logger:  logger.With(logging.String("analyzer", analyzerName)),
	}
}

type themeResponse struct {
	Themes []string `json:"themes"`
}

// Extract returns the caption's themes. A malformed model response yields
// an empty list, never an error.
func (e *ThemeExtractor) Extract(ctx context.Context, rec harvest.HarvestedRecord) ([]string, error) {
	caption := rec.Body
	if caption == "" {
		caption = rec.Title
	}
	prompt, err := e.prompts.Render(themeTemplate, map[string]interface{}{
		"MaxThemes": maxThemes,
		"Account":   rec.Extra["account"],
		"Caption":   llm.TruncateForPrompt(llm.MaxPromptInputBytes, caption),
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := e.client.Generate(ctx, prompt)
	if err != nil {
		e.metrics.ObserveLLMCall(analyzerName, "error", time.Since(start))
		return nil, err
	}
	e.metrics.ObserveLLMCall(analyzerName, "ok", time.Since(start))

	resp := llm.ParseOrDefault(raw, themeResponse{}, e.logger)
	return cleanThemes(resp.Themes), nil
}

// cleanThemes lowercases, trims, drops blanks and duplicates, and caps the
// list. Full tag normalization happens later in the domain.
func cleanThemes(themes []string) []string {
	seen := make(map[string]struct{}, len(themes))
	out := make([]string, 0, len(themes))
	for _, t := range themes {
		theme := strings.ToLower(strings.TrimSpace(t))
		if theme == "" {
			continue
		}
		if _, dup := seen[theme]; dup {
			continue
		}
		seen[theme] = struct{}{}
		out = append(out, theme)
		if len(out) == maxThemes {
			break
		}
	}
	return out
}
