package llm

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/turtacn/ResearchPool-Intelligence/internal/config"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
)

// ──────────────────────────────────────────────────────────────────────────
// Gemini adapter
// ──────────────────────────────────────────────────────────────────────────

const retryBaseDelay = 500 * time.Millisecond

// GeminiClient implements Client on top of the Gemini API. A buffered
// channel bounds in-flight requests so a burst of analyzer calls cannot
// exhaust the provider quota in one window.
type GeminiClient struct {
	client     *genai.Client
	model      string
	timeout    time.Duration
	maxRetries int
	sem        chan struct{}
	logger     logging.Logger
}

// NewGeminiClient builds a Gemini-backed Client from cfg. The API key is
// required; everything else falls back to the configured defaults.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, logger logging.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, appErrors.ConfigInvalid("llm.api_key is required when analysis is enabled")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeLLMTransport, "create gemini client")
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultLLMModel
	}
	concurrent := cfg.MaxConcurrent
	if concurrent <= 0 {
		concurrent = config.DefaultLLMMaxConcurrent
	}

	return &GeminiClient{
		client:     client,
		model:      model,
		timeout:    cfg.RequestTimeout,
		maxRetries: cfg.MaxRetries,
		sem:        make(chan struct{}, concurrent),
		logger:     logger.With(logging.String("component", "gemini_client")),
	}, nil
}

// Generate implements Client. Transport errors are retried with exponential
// backoff up to the configured attempt budget; an empty completion counts as
// a transport failure because downstream parsers have nothing to work with.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return "", appErrors.Cancelled("llm generate")
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			c.logger.Debug("retrying llm call",
				logging.Int("attempt", attempt+1),
				logging.Duration("delay", delay),
			)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return "", appErrors.Cancelled("llm generate")
			}
		}

		text, err := c.generateOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if appErrors.IsCancelled(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *GeminiClient) generateOnce(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		{Parts: []*genai.Part{{Text: prompt}}, Role: "user"},
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		if ctx.Err() != nil {
			return "", appErrors.Cancelled("llm generate")
		}
		return "", appErrors.Wrap(err, appErrors.CodeLLMTransport, "gemini generate content")
	}

	text := resp.Text()
	if text == "" {
		return "", appErrors.LLMTransport("llm returned empty response")
	}

	c.logger.Debug("llm call completed",
		logging.String("model", c.model),
		logging.Duration("elapsed", time.Since(start)),
		logging.Int("response_chars", len(text)),
	)
	return text, nil
}
