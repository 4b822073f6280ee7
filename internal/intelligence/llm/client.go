// Package llm provides the language-model access layer of the analysis
// stages: a minimal text-generation port, its Gemini adapter, prompt
// templating with input capping, and tolerant JSON extraction.
package llm

import "context"

// Client is the generation port every analyzer speaks. Implementations are
// safe for concurrent use.
type Client interface {
	// Generate produces the model's text completion for prompt. Transport
	// failures carry the LLMTransport code; callers treat them as
	// item-level, not run-level, failures.
	Generate(ctx context.Context, prompt string) (string, error)
}
