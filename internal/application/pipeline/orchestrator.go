package pipeline

import (
	"context"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/harvest"
	"github.com/turtacn/ResearchPool-Intelligence/internal/application/scoring"
	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/prometheus"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	ctypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ─────────────────────────────────────────────────────────────────────────────
// Ports
// ─────────────────────────────────────────────────────────────────────────────

// Scorer assigns quality scores to a batch of items.
type Scorer interface {
	ScoreBatch(ctx context.Context, items []*research.ResearchItem) ([]*scoring.ScoreBreakdown, scoring.ScoreStats)
}

// SeenMarker records published external ids so later scans skip them. Marking
// is fail-open: a marker outage costs duplicate fetches, not the run.
type SeenMarker interface {
	Mark(ctx context.Context, source rtypes.Source, externalIDs []string) error
}

// Lease is a held per-source run slot.
type Lease interface {
	Release(ctx context.Context) error
}

// RunLock serializes runs per source. Acquire returns a Conflict error when a
// run already holds the slot.
type RunLock interface {
	Acquire(ctx context.Context, source rtypes.Source) (Lease, error)
}

// RunLockFunc adapts a function to the RunLock port.
type RunLockFunc func(ctx context.Context, source rtypes.Source) (Lease, error)

func (f RunLockFunc) Acquire(ctx context.Context, source rtypes.Source) (Lease, error) {
	return f(ctx, source)
}

// EventPublisher announces pool activity to downstream consumers.
type EventPublisher interface {
	PublishItemPublished(ctx context.Context, payload kafka.ItemPublishedPayload) error
	PublishRunCompleted(ctx context.Context, payload kafka.RunCompletedPayload) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Result
// ─────────────────────────────────────────────────────────────────────────────

// Result reports one finished pipeline run.
type Result struct {
	Source         rtypes.Source        `json:"source"`
	Outcome        rtypes.Outcome       `json:"outcome"`
	Stats          rtypes.PipelineStats `json:"stats"`
	ErrorSummary   string               `json:"error_summary,omitempty"`
	RetryScheduled bool                 `json:"retry_scheduled"`
	RetryAfter     time.Duration        `json:"retry_after,omitempty"`
	PublishedIDs   []string             `json:"published_ids,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
}

// Duration is the wall time the run took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ─────────────────────────────────────────────────────────────────────────────
// Orchestrator
// ─────────────────────────────────────────────────────────────────────────────

// Stage names used in metrics and logs.
const (
	stageScan      = "scan"
	stageHarvest   = "harvest"
	stageAnalyze   = "analyze"
	stageNormalize = "normalize"
	stageValidate  = "validate"
	stageScore     = "score"
	stagePublish   = "publish"
)

// runEventTimeout bounds the run-completed event publish, which must go out
// even when the run's own context is already cancelled.
const runEventTimeout = 5 * time.Second

// Orchestrator drives the staged pipeline for any source profile. Stages run
// sequentially; a cancelled context stops between stages, flushing whatever
// already reached the pool. The seen marker, run lock, and event publisher
// are optional and skipped when nil.
type Orchestrator struct {
	repo    research.Repository
	scorer  Scorer
	seen    SeenMarker
	lock    RunLock
	events  EventPublisher
	metrics *prometheus.AppMetrics
	logger  logging.Logger
	now     func() time.Time
}

func NewOrchestrator(
	repo research.Repository,
	scorer Scorer,
	seen SeenMarker,
	lock RunLock,
	events EventPublisher,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		repo:    repo,
		scorer:  scorer,
		seen:    seen,
		lock:    lock,
		events:  events,
		metrics: metrics,
		logger:  logger.With(logging.String("component", "pipeline")),
		now:     time.Now,
	}
}

// Run executes one pipeline run for the profile's source. The returned error
// is non-nil only when the run never started: an incomplete profile or a lock
// already held by another run. Everything after that is reported through the
// Result outcome instead.
func (o *Orchestrator) Run(ctx context.Context, profile *SourceProfile) (*Result, error) {
	if err := profile.validate(); err != nil {
		return nil, err
	}
	source := profile.Source
	log := o.logger.With(logging.String("source", string(source)))

	if o.lock != nil {
		lease, err := o.lock.Acquire(ctx, source)
		if err != nil {
			return nil, err
		}
		defer func() {
			if rerr := lease.Release(context.Background()); rerr != nil {
				log.Warn("run lock release failed", logging.Err(rerr))
			}
		}()
	}

	res := &Result{Source: source, StartedAt: o.now().UTC()}
	stats := &res.Stats
	log.Info("pipeline run starting")

	// Scan. A rate-limited discovery still yields a partial batch, which the
	// rest of the pipeline processes before the run reports RATE_LIMITED.
	var rateLimited error
	stop := o.metrics.StageTimer(string(source), stageScan)
	raws, scanStats, scanErr := profile.Scanner.Scan(ctx)
	stop()
	o.metrics.AddStageItems(string(source), stageScan, len(raws))
	stats.Found = int64(len(raws))
	log.Info("scan finished",
		logging.Int("found", len(raws)),
		logging.Int("queries_failed", scanStats.QueriesFailed),
		logging.Int("filtered_out", scanStats.FilteredOut))
	if scanErr != nil {
		switch {
		case appErrors.IsCancelled(scanErr):
			return o.finish(res, rtypes.OutcomeIncomplete, "cancelled during discovery"), nil
		case appErrors.IsRateLimited(scanErr):
			rateLimited = scanErr
			if d, ok := appErrors.GetRetryAfter(scanErr); ok {
				res.RetryAfter = d
			}
			log.Warn("discovery rate limited, processing partial batch",
				logging.Int("found", len(raws)))
		case appErrors.IsTransient(scanErr):
			return o.finish(res, rtypes.OutcomeIncomplete, appErrors.SafeDescription(scanErr)), nil
		default:
			return o.finish(res, rtypes.OutcomeFailed, appErrors.SafeDescription(scanErr)), nil
		}
	}
	if len(raws) == 0 {
		outcome, summary := o.decide(stats, rateLimited)
		return o.finish(res, outcome, summary), nil
	}

	// Harvest.
	stop = o.metrics.StageTimer(string(source), stageHarvest)
	records, hstats, harvErr := profile.Harvester.Harvest(ctx, raws)
	stop()
	o.metrics.AddStageItems(string(source), stageHarvest, len(records))
	stats.Enriched = int64(hstats.Enriched)
	stats.Failed += int64(hstats.Failed)
	if harvErr != nil {
		switch {
		case appErrors.IsCancelled(harvErr):
			return o.finish(res, rtypes.OutcomeIncomplete, "cancelled during enrichment"), nil
		case appErrors.IsRateLimited(harvErr):
			if rateLimited == nil {
				rateLimited = harvErr
				if d, ok := appErrors.GetRetryAfter(harvErr); ok {
					res.RetryAfter = d
				}
			}
			log.Warn("enrichment rate limited, processing partial batch",
				logging.Int("enriched", len(records)))
		default:
			return o.finish(res, rtypes.OutcomeFailed, appErrors.SafeDescription(harvErr)), nil
		}
	}
	if len(records) == 0 {
		outcome, summary := o.decide(stats, rateLimited)
		return o.finish(res, outcome, summary), nil
	}

	// Analyze, when the profile carries a model stage. Analyzer errors are
	// cancellation only; anything else already degraded to defaults inside.
	if profile.Analyzer != nil {
		stop = o.metrics.StageTimer(string(source), stageAnalyze)
		analyzed, err := o.analyzeAll(ctx, profile.Analyzer, records)
		stop()
		o.metrics.AddStageItems(string(source), stageAnalyze, analyzed)
		stats.Analyzed = int64(analyzed)
		if err != nil {
			return o.finish(res, rtypes.OutcomeIncomplete, "cancelled during analysis"), nil
		}
	}

	// Normalize. Per-record failures drop the record, not the run.
	stop = o.metrics.StageTimer(string(source), stageNormalize)
	items, normErr := o.normalizeAll(ctx, log, profile.Normalizer, records, stats)
	stop()
	o.metrics.AddStageItems(string(source), stageNormalize, len(items))
	stats.Normalized = int64(len(items))
	if normErr != nil {
		return o.finish(res, rtypes.OutcomeIncomplete, "cancelled during normalization"), nil
	}
	if len(items) == 0 {
		outcome, summary := o.decide(stats, rateLimited)
		return o.finish(res, outcome, summary), nil
	}
	byID := make(map[ctypes.ID]*research.ResearchItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	// Validate. Verdicts are advisory: items keep flowing whatever the status,
	// and an unvalidated item keeps its conservative WARNING default.
	stop = o.metrics.StageTimer(string(source), stageValidate)
	verdicts, vstats := profile.Validator.ValidateBatch(ctx, items)
	stop()
	o.metrics.AddStageItems(string(source), stageValidate, vstats.Validated)
	stats.Validated = int64(vstats.Validated)
	stats.Failed += int64(vstats.Failed)
	if ctx.Err() != nil {
		return o.finish(res, rtypes.OutcomeIncomplete, "cancelled during validation"), nil
	}
	for _, v := range verdicts {
		item := byID[v.ItemID]
		if item == nil {
			continue
		}
		if err := item.SetCompliance(v.Status); err != nil {
			stats.Failed++
			log.Warn("compliance verdict rejected by item",
				logging.String("item_id", v.ItemID.String()),
				logging.Err(err))
			continue
		}
		if v.Status != rtypes.ComplianceCompliant {
			log.Debug("item flagged by compliance review",
				logging.String("item_id", v.ItemID.String()),
				logging.String("status", string(v.Status)),
				logging.String("note", v.Note))
		}
	}

	// Score.
	stop = o.metrics.StageTimer(string(source), stageScore)
	breakdowns, sstats := o.scorer.ScoreBatch(ctx, items)
	stop()
	o.metrics.AddStageItems(string(source), stageScore, sstats.Scored)
	stats.Scored = int64(sstats.Scored)
	stats.Failed += int64(sstats.Failed)
	if ctx.Err() != nil {
		return o.finish(res, rtypes.OutcomeIncomplete, "cancelled during scoring"), nil
	}
	for _, b := range breakdowns {
		item := byID[b.ItemID]
		if item == nil {
			continue
		}
		if err := item.SetScore(b.Final); err != nil {
			stats.Failed++
			log.Warn("score rejected by item",
				logging.String("item_id", b.ItemID.String()),
				logging.Err(err))
		}
	}

	// Publish.
	stop = o.metrics.StageTimer(string(source), stagePublish)
	published, duplicates, pubFailed, pubCancelled := o.publishItems(ctx, log, items)
	stop()
	o.metrics.AddStageItems(string(source), stagePublish, len(published))
	stats.Published = int64(len(published))
	stats.Failed += int64(pubFailed)
	for _, item := range published {
		res.PublishedIDs = append(res.PublishedIDs, item.ID.String())
	}
	if len(duplicates) > 0 {
		log.Info("duplicate records skipped at publish",
			logging.Int("duplicates", len(duplicates)))
	}

	o.markSeen(log, source, append(published, duplicates...))
	o.announceItems(log, published)

	if pubCancelled {
		return o.finish(res, rtypes.OutcomeIncomplete, "cancelled during publish"), nil
	}
	outcome, summary := o.decide(stats, rateLimited)
	return o.finish(res, outcome, summary), nil
}

func (o *Orchestrator) analyzeAll(ctx context.Context, analyzer Analyzer, records []harvest.HarvestedRecord) (int, error) {
	analyzed := 0
	for i := range records {
		if err := ctx.Err(); err != nil {
			return analyzed, err
		}
		if err := analyzer.Analyze(ctx, &records[i]); err != nil {
			return analyzed, err
		}
		analyzed++
	}
	return analyzed, nil
}

func (o *Orchestrator) normalizeAll(
	ctx context.Context,
	log logging.Logger,
	normalizer Normalizer,
	records []harvest.HarvestedRecord,
	stats *rtypes.PipelineStats,
) ([]*research.ResearchItem, error) {
	items := make([]*research.ResearchItem, 0, len(records))
	for i := range records {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		item, err := normalizer.Normalize(records[i])
		if err != nil {
			stats.Failed++
			log.Warn("record failed normalization",
				logging.String("external_id", records[i].ExternalID),
				logging.Err(err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// publishItems persists items, preferring one bulk insert. A partial bulk
// insert means some items already existed; those are reconciled by external
// id so duplicates are not re-announced. A failed bulk insert falls back to
// per-item inserts so one bad row cannot sink the batch.
func (o *Orchestrator) publishItems(
	ctx context.Context,
	log logging.Logger,
	items []*research.ResearchItem,
) (published, duplicates []*research.ResearchItem, failed int, cancelled bool) {
	if len(items) == 0 {
		return nil, nil, 0, false
	}
	n, err := o.repo.BulkAdd(ctx, items)
	switch {
	case err == nil && n == len(items):
		return items, nil, 0, false
	case err == nil:
		log.Info("bulk publish skipped existing records, reconciling",
			logging.Int("inserted", n),
			logging.Int("total", len(items)))
		return o.reconcileBulk(ctx, log, items)
	case appErrors.IsCancelled(err):
		return nil, nil, 0, true
	default:
		log.Warn("bulk publish failed, falling back to per-item insert",
			logging.Err(err))
		return o.publishEach(ctx, log, items)
	}
}

// reconcileBulk decides, after a partial bulk insert, which items this run
// actually added: the stored row carries this run's id for fresh inserts and
// an older id for rows that already existed.
func (o *Orchestrator) reconcileBulk(
	ctx context.Context,
	log logging.Logger,
	items []*research.ResearchItem,
) (published, duplicates []*research.ResearchItem, failed int, cancelled bool) {
	for _, item := range items {
		if ctx.Err() != nil {
			return published, duplicates, failed, true
		}
		stored, err := o.repo.GetByExternalID(ctx, item.Source, item.ExternalID())
		if err != nil {
			failed++
			log.Warn("publish reconciliation lookup failed",
				logging.String("item_id", item.ID.String()),
				logging.Err(err))
			continue
		}
		if stored.ID == item.ID {
			published = append(published, item)
		} else {
			duplicates = append(duplicates, item)
		}
	}
	return published, duplicates, failed, false
}

func (o *Orchestrator) publishEach(
	ctx context.Context,
	log logging.Logger,
	items []*research.ResearchItem,
) (published, duplicates []*research.ResearchItem, failed int, cancelled bool) {
	for _, item := range items {
		if ctx.Err() != nil {
			return published, duplicates, failed, true
		}
		err := o.repo.Add(ctx, item)
		switch {
		case err == nil:
			published = append(published, item)
		case appErrors.IsCancelled(err):
			return published, duplicates, failed, true
		case appErrors.IsConflict(err):
			duplicates = append(duplicates, item)
			log.Debug("duplicate record skipped",
				logging.String("external_id", item.ExternalID()))
		default:
			failed++
			log.Warn("item failed to publish",
				logging.String("item_id", item.ID.String()),
				logging.Err(err))
		}
	}
	return published, duplicates, failed, false
}

// markSeen records external ids after publish. It runs on its own context so
// already-persisted items get marked even when the run was cancelled.
func (o *Orchestrator) markSeen(log logging.Logger, source rtypes.Source, items []*research.ResearchItem) {
	if o.seen == nil || len(items) == 0 {
		return
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if id := item.ExternalID(); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	markCtx, cancel := context.WithTimeout(context.Background(), runEventTimeout)
	defer cancel()
	if err := o.seen.Mark(markCtx, source, ids); err != nil {
		log.Warn("seen-store mark failed, duplicates rely on storage conflict",
			logging.Int("ids", len(ids)),
			logging.Err(err))
	}
}

func (o *Orchestrator) announceItems(log logging.Logger, published []*research.ResearchItem) {
	if o.events == nil || len(published) == 0 {
		return
	}
	eventCtx, cancel := context.WithTimeout(context.Background(), runEventTimeout)
	defer cancel()
	for _, item := range published {
		payload := kafka.ItemPublishedPayload{
			ItemID:      item.ID.String(),
			Source:      item.Source,
			Title:       item.Title,
			URL:         item.URL,
			Tags:        item.Tags,
			Score:       item.Score,
			Compliance:  item.Compliance,
			PublishedAt: o.now().UTC(),
		}
		if err := o.events.PublishItemPublished(eventCtx, payload); err != nil {
			log.Warn("item-published event failed",
				logging.String("item_id", payload.ItemID),
				logging.Err(err))
		}
	}
}

// decide maps run statistics onto the outcome contract: rate limiting trumps
// everything, a run that published nothing is incomplete, per-item failures
// make a partial run, and a clean sweep is complete. Whole-run failures are
// decided at the stage that hit them, not here.
func (o *Orchestrator) decide(stats *rtypes.PipelineStats, rateLimited error) (rtypes.Outcome, string) {
	switch {
	case rateLimited != nil:
		return rtypes.OutcomeRateLimited, appErrors.SafeDescription(rateLimited)
	case stats.Published == 0:
		return rtypes.OutcomeIncomplete, "no items reached the pool"
	case stats.Failed > 0:
		return rtypes.OutcomePartial, "some items failed along the pipeline"
	default:
		return rtypes.OutcomeComplete, ""
	}
}

func (o *Orchestrator) finish(res *Result, outcome rtypes.Outcome, summary string) *Result {
	res.Outcome = outcome
	res.ErrorSummary = summary
	res.FinishedAt = o.now().UTC()
	res.RetryScheduled = outcome == rtypes.OutcomeIncomplete ||
		outcome == rtypes.OutcomeRateLimited ||
		outcome == rtypes.OutcomeFailed

	o.metrics.RunCompleted(string(res.Source), string(outcome))
	o.logger.Info("pipeline run finished",
		logging.String("source", string(res.Source)),
		logging.String("outcome", string(outcome)),
		logging.Int64("found", res.Stats.Found),
		logging.Int64("published", res.Stats.Published),
		logging.Int64("failed", res.Stats.Failed),
		logging.Duration("duration", res.Duration()))

	if o.events != nil {
		eventCtx, cancel := context.WithTimeout(context.Background(), runEventTimeout)
		defer cancel()
		payload := kafka.RunCompletedPayload{
			Source:         res.Source,
			Outcome:        outcome,
			Stats:          res.Stats,
			ErrorSummary:   summary,
			RetryScheduled: res.RetryScheduled,
			RetryAfterMs:   res.RetryAfter.Milliseconds(),
			StartedAt:      res.StartedAt,
			FinishedAt:     res.FinishedAt,
		}
		if err := o.events.PublishRunCompleted(eventCtx, payload); err != nil {
			o.logger.Warn("run-completed event failed",
				logging.String("source", string(res.Source)),
				logging.Err(err))
		}
	}
	return res
}
