package harvest

import (
	"context"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/internal/config"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ──────────────────────────────────────────────────────────────────────────
// Scanner
// ──────────────────────────────────────────────────────────────────────────

// Scanner runs one source's discovery queries and refines the hits down to
// the records worth enriching. Individual query failures are logged and
// counted; the scan only fails when every query fails. A rate-limited
// acquire or search ends discovery early and hands back what was found so
// the run can still publish a partial batch.
type Scanner struct {
	source  rtypes.Source
	cfg     config.SourceConfig
	search  SearchClient
	seen    SeenStore
	limiter Limiter
	now     func() time.Time
	logger  logging.Logger
}

// NewScanner wires a scanner for one source. seen and limiter may be nil;
// both checks are then skipped.
func NewScanner(
	source rtypes.Source,
	cfg config.SourceConfig,
	search SearchClient,
	seen SeenStore,
	limiter Limiter,
	logger logging.Logger,
) *Scanner {
	return &Scanner{
		source:  source,
		cfg:     cfg,
		search:  search,
		seen:    seen,
		limiter: limiter,
		now:     time.Now,
		logger: logger.With(
			logging.String("component", "scanner"),
			logging.String("source", string(source)),
		),
	}
}

// Scan executes the configured queries and returns the refined records.
// The returned error is nil for a normal pass, rate-limited when the budget
// ran out mid-scan (records then hold the partial refined batch), and
// SourceTransient when every query failed.
func (s *Scanner) Scan(ctx context.Context) ([]RawRecord, ScanStats, error) {
	var stats ScanStats
	found := make([]RawRecord, 0, 64)

	for _, query := range s.cfg.Queries {
		if ctx.Err() != nil {
			return nil, stats, appErrors.Cancelled("scan " + string(s.source))
		}
		if s.limiter != nil {
			if err := s.limiter.Acquire(ctx); err != nil {
				if appErrors.IsCancelled(err) {
					return nil, stats, err
				}
				return s.refine(ctx, found, &stats), stats, err
			}
		}

		stats.QueriesExecuted++
		recs, err := s.search.Search(ctx, SearchRequest{
			Query:  query,
			Window: s.cfg.Window,
			Limit:  s.cfg.MaxItems,
		})
		if err != nil {
			if appErrors.IsCancelled(err) {
				return nil, stats, err
			}
			if appErrors.IsRateLimited(err) {
				s.logger.Warn("upstream throttled discovery", logging.Err(err))
				return s.refine(ctx, found, &stats), stats, err
			}
			stats.QueriesFailed++
			s.logger.Warn("discovery query failed",
				logging.String("query", query),
				logging.Err(err),
			)
			continue
		}
		stats.TotalFound += len(recs)
		found = append(found, recs...)
	}

	if len(s.cfg.Queries) > 0 && stats.QueriesFailed == len(s.cfg.Queries) {
		return nil, stats, appErrors.SourceTransient(
			"all discovery queries failed for source " + string(s.source))
	}
	return s.refine(ctx, found, &stats), stats, nil
}

// refine applies the engagement, recency, and type thresholds, dedups by
// external id preserving first-seen order, drops ids already published by
// earlier runs, and enforces the per-run item cap.
func (s *Scanner) refine(ctx context.Context, found []RawRecord, stats *ScanStats) []RawRecord {
	kept := found[:0]
	cutoff := time.Time{}
	if s.cfg.LocalRecencyFilter && s.cfg.Window > 0 {
		cutoff = s.now().Add(-s.cfg.Window)
	}
	typeSet := make(map[string]struct{}, len(s.cfg.TypeFilters))
	for _, t := range s.cfg.TypeFilters {
		typeSet[t] = struct{}{}
	}

	for _, rec := range found {
		if s.cfg.MinEngagement > 0 && rec.Engagement < int64(s.cfg.MinEngagement) {
			stats.FilteredOut++
			continue
		}
		if !cutoff.IsZero() && rec.PublishedAt != nil && rec.PublishedAt.Before(cutoff) {
			stats.FilteredOut++
			continue
		}
		if len(typeSet) > 0 {
			if _, ok := typeSet[rec.TypeHint]; !ok {
				stats.FilteredOut++
				continue
			}
		}
		kept = append(kept, rec)
	}

	unique := dedupByExternalID(kept)
	stats.UniqueAfterDedup = len(unique)

	unique = s.dropSeen(ctx, unique, stats)

	if s.cfg.MaxItems > 0 && len(unique) > s.cfg.MaxItems {
		stats.FilteredOut += len(unique) - s.cfg.MaxItems
		unique = unique[:s.cfg.MaxItems]
	}
	return unique
}

// dropSeen consults the seen-store and removes already-published ids. The
// check is advisory: a lookup failure keeps everything and relies on the
// pool's uniqueness index to reject duplicates at publication.
func (s *Scanner) dropSeen(ctx context.Context, records []RawRecord, stats *ScanStats) []RawRecord {
	if s.seen == nil || len(records) == 0 {
		return records
	}
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ExternalID
	}
	seen, err := s.seen.Seen(ctx, s.source, ids)
	if err != nil {
		s.logger.Warn("seen-store lookup failed, keeping all records", logging.Err(err))
		return records
	}
	kept := records[:0]
	for _, rec := range records {
		if seen[rec.ExternalID] {
			stats.FilteredOut++
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

func dedupByExternalID(records []RawRecord) []RawRecord {
	seen := make(map[string]struct{}, len(records))
	out := records[:0]
	for _, rec := range records {
		if _, dup := seen[rec.ExternalID]; dup {
			continue
		}
		seen[rec.ExternalID] = struct{}{}
		out = append(out, rec)
	}
	return out
}
