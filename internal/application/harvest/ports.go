package harvest

import (
	"context"
	"time"

	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ──────────────────────────────────────────────────────────────────────────
// Upstream ports
// ──────────────────────────────────────────────────────────────────────────

// SearchRequest is one discovery query against a source.
type SearchRequest struct {
	Query  string
	Window time.Duration
	Limit  int
}

// SearchClient executes discovery queries against one upstream source.
// Concrete HTTP adapters live outside this module and are injected per
// source. Upstream throttling responses must map to the rate-limited error
// kind so the run scheduler can back off.
type SearchClient interface {
	Search(ctx context.Context, req SearchRequest) ([]RawRecord, error)
}

// DetailClient fetches the full payload for one discovered record.
type DetailClient interface {
	Fetch(ctx context.Context, raw RawRecord) (Detail, error)
}

// ──────────────────────────────────────────────────────────────────────────
// Coordination ports
// ──────────────────────────────────────────────────────────────────────────

// Limiter admits calls against a source's rate budget. Acquire blocks for
// short saturations and returns a rate-limited error once the wait exceeds
// the configured patience.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// SeenStore remembers which external ids earlier runs already published.
// Lookup failures are advisory; the pool's uniqueness index is the backstop.
type SeenStore interface {
	Seen(ctx context.Context, source rtypes.Source, externalIDs []string) (map[string]bool, error)
	Mark(ctx context.Context, source rtypes.Source, externalIDs []string) error
}
