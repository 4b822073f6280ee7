package llm

import (
	"encoding/json"
	"strings"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
)

// ──────────────────────────────────────────────────────────────────────────
// Response parsing
// ──────────────────────────────────────────────────────────────────────────

const parseLogPreview = 160

// TrimFences strips the markdown code fences models often wrap JSON in.
func TrimFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// ParseOrDefault decodes a model response into T. A malformed response never
// fails the pipeline: the parse error is logged and the caller's conservative
// default is returned instead.
func ParseOrDefault[T any](raw string, def T, logger logging.Logger) T {
	cleaned := TrimFences(raw)
	var out T
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		preview := cleaned
		if len(preview) > parseLogPreview {
			preview = preview[:parseLogPreview]
		}
		logger.Warn("llm response not parseable, using defaults",
			logging.Err(err),
			logging.String("response_preview", preview),
		)
		return def
	}
	return out
}
