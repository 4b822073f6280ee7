package harvest

import (
	"context"

	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ──────────────────────────────────────────────────────────────────────────
// Harvester
// ──────────────────────────────────────────────────────────────────────────

// Harvester enriches discovered records with their full detail payloads.
// Fetches share the source's rate budget with the scanner. Items the
// upstream removed, and items whose body sanitizes to nothing while the
// record has no title to fall back on, are dropped rather than failed;
// per-item transport errors are counted and the pass continues.
type Harvester struct {
	source  rtypes.Source
	detail  DetailClient
	limiter Limiter
	logger  logging.Logger
}

// NewHarvester wires a harvester for one source. limiter may be nil.
func NewHarvester(source rtypes.Source, detail DetailClient, limiter Limiter, logger logging.Logger) *Harvester {
	return &Harvester{
		source:  source,
		detail:  detail,
		limiter: limiter,
		logger: logger.With(
			logging.String("component", "harvester"),
			logging.String("source", string(source)),
		),
	}
}

// Harvest fetches detail for each record. A rate-limited acquire or fetch
// stops the pass and returns the records enriched so far together with the
// rate-limited error; the caller decides whether the partial batch proceeds.
func (h *Harvester) Harvest(ctx context.Context, raws []RawRecord) ([]HarvestedRecord, HarvestStats, error) {
	stats := HarvestStats{Attempted: len(raws)}
	out := make([]HarvestedRecord, 0, len(raws))

	for _, raw := range raws {
		if ctx.Err() != nil {
			return out, stats, appErrors.Cancelled("harvest " + string(h.source))
		}
		if h.limiter != nil {
			if err := h.limiter.Acquire(ctx); err != nil {
				return out, stats, err
			}
		}

		detail, err := h.detail.Fetch(ctx, raw)
		if err != nil {
			if appErrors.IsCancelled(err) {
				return out, stats, err
			}
			if appErrors.IsRateLimited(err) {
				h.logger.Warn("upstream throttled detail fetch", logging.Err(err))
				return out, stats, err
			}
			stats.Failed++
			h.logger.Warn("detail fetch failed",
				logging.String("external_id", raw.ExternalID),
				logging.Err(err),
			)
			continue
		}

		if detail.Removed {
			stats.Dropped++
			h.logger.Debug("skipping removed item", logging.String("external_id", raw.ExternalID))
			continue
		}

		body := Sanitize(detail.Body)
		if body == "" && CollapseWhitespace(raw.Title) == "" {
			stats.Dropped++
			h.logger.Debug("skipping empty item", logging.String("external_id", raw.ExternalID))
			continue
		}

		out = append(out, HarvestedRecord{
			RawRecord: raw,
			Body:      body,
			Author:    detail.Author,
		})
		stats.Enriched++
	}
	return out, stats, nil
}
