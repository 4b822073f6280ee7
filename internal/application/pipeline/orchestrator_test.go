package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/compliance"
	"github.com/turtacn/ResearchPool-Intelligence/internal/application/harvest"
	"github.com/turtacn/ResearchPool-Intelligence/internal/application/scoring"
	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	ctypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ─────────────────────────────────────────────────────────────────────────────
// Stage stubs
// ─────────────────────────────────────────────────────────────────────────────

type stubScanner struct {
	raws  []harvest.RawRecord
	stats harvest.ScanStats
	err   error
}

func (s *stubScanner) Scan(context.Context) ([]harvest.RawRecord, harvest.ScanStats, error) {
	return s.raws, s.stats, s.err
}

type stubHarvester struct {
	err  error
	drop map[string]bool
	fail int
}

func (h *stubHarvester) Harvest(_ context.Context, raws []harvest.RawRecord) ([]harvest.HarvestedRecord, harvest.HarvestStats, error) {
	out := make([]harvest.HarvestedRecord, 0, len(raws))
	stats := harvest.HarvestStats{Attempted: len(raws), Failed: h.fail}
	for _, raw := range raws {
		if h.drop[raw.ExternalID] {
			stats.Dropped++
			continue
		}
		out = append(out, harvest.HarvestedRecord{
			RawRecord: raw,
			Body:      "Creatine supplementation improved strength in the trial.",
		})
		stats.Enriched++
	}
	return out, stats, h.err
}

type stubNormalizer struct {
	reject map[string]bool
}

func (n *stubNormalizer) Normalize(rec harvest.HarvestedRecord) (*research.ResearchItem, error) {
	if n.reject[rec.ExternalID] {
		return nil, appErrors.Validation("record below quality floor")
	}
	title := rec.Title
	if title == "" {
		title = "Untitled " + rec.ExternalID
	}
	return research.NewResearchItem(
		rec.Source,
		title,
		rec.Body,
		rec.URL,
		[]string{"research"},
		map[string]interface{}{"external_id": rec.ExternalID},
		time.Now(),
	)
}

type stubScorer struct {
	score float64
}

func (s *stubScorer) ScoreBatch(ctx context.Context, items []*research.ResearchItem) ([]*scoring.ScoreBreakdown, scoring.ScoreStats) {
	stats := scoring.ScoreStats{Total: len(items)}
	out := make([]*scoring.ScoreBreakdown, 0, len(items))
	for _, item := range items {
		if ctx.Err() != nil {
			stats.Failed++
			continue
		}
		final := s.score
		if item.Compliance == rtypes.ComplianceRejected {
			final = 0
		}
		out = append(out, &scoring.ScoreBreakdown{ItemID: item.ID, Final: final})
		stats.Scored++
	}
	return out, stats
}

type analyzeFunc func(ctx context.Context, rec *harvest.HarvestedRecord) error

func (f analyzeFunc) Analyze(ctx context.Context, rec *harvest.HarvestedRecord) error {
	return f(ctx, rec)
}

// ─────────────────────────────────────────────────────────────────────────────
// Port fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeRepo struct {
	mu       sync.Mutex
	items    map[ctypes.ID]*research.ResearchItem
	byExt    map[string]*research.ResearchItem
	bulkErr  error
	addErr   map[string]error
	bulkAdds int
	adds     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items: make(map[ctypes.ID]*research.ResearchItem),
		byExt: make(map[string]*research.ResearchItem),
	}
}

func (f *fakeRepo) key(source rtypes.Source, externalID string) string {
	return string(source) + "|" + externalID
}

func (f *fakeRepo) seed(item *research.ResearchItem) {
	f.items[item.ID] = item
	f.byExt[f.key(item.Source, item.ExternalID())] = item
}

func (f *fakeRepo) Add(_ context.Context, item *research.ResearchItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds++
	if err := f.addErr[item.ExternalID()]; err != nil {
		return err
	}
	k := f.key(item.Source, item.ExternalID())
	if _, ok := f.byExt[k]; ok {
		return appErrors.Conflict("duplicate item")
	}
	f.items[item.ID] = item
	f.byExt[k] = item
	return nil
}

func (f *fakeRepo) BulkAdd(_ context.Context, items []*research.ResearchItem) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkAdds++
	if f.bulkErr != nil {
		return 0, f.bulkErr
	}
	inserted := 0
	for _, item := range items {
		k := f.key(item.Source, item.ExternalID())
		if _, ok := f.byExt[k]; ok {
			continue
		}
		f.items[item.ID] = item
		f.byExt[k] = item
		inserted++
	}
	return inserted, nil
}

func (f *fakeRepo) GetByExternalID(_ context.Context, source rtypes.Source, externalID string) (*research.ResearchItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item, ok := f.byExt[f.key(source, externalID)]; ok {
		return item, nil
	}
	return nil, appErrors.NotFound("item not found")
}

func (f *fakeRepo) Update(context.Context, *research.ResearchItem) error {
	return appErrors.Internal("not implemented")
}

func (f *fakeRepo) UpdateScore(context.Context, ctypes.ID, float64) error {
	return appErrors.Internal("not implemented")
}

func (f *fakeRepo) UpdateCompliance(context.Context, ctypes.ID, rtypes.ComplianceStatus) error {
	return appErrors.Internal("not implemented")
}

func (f *fakeRepo) Delete(context.Context, ctypes.ID) error {
	return appErrors.Internal("not implemented")
}

func (f *fakeRepo) Get(context.Context, ctypes.ID) (*research.ResearchItem, error) {
	return nil, appErrors.NotFound("item not found")
}

func (f *fakeRepo) Query(context.Context, rtypes.QueryFilter) ([]*research.ResearchItem, int64, error) {
	return nil, 0, nil
}

func (f *fakeRepo) Search(context.Context, string, rtypes.QueryFilter) ([]*research.ResearchItem, int64, error) {
	return nil, 0, nil
}

func (f *fakeRepo) Count(context.Context, rtypes.QueryFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.items)), nil
}

func (f *fakeRepo) Stats(context.Context) (*research.PoolStats, error) {
	return &research.PoolStats{}, nil
}

type recordingEvents struct {
	mu      sync.Mutex
	items   []kafka.ItemPublishedPayload
	runs    []kafka.RunCompletedPayload
	itemErr error
}

func (r *recordingEvents) PublishItemPublished(_ context.Context, p kafka.ItemPublishedPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.itemErr != nil {
		return r.itemErr
	}
	r.items = append(r.items, p)
	return nil
}

func (r *recordingEvents) PublishRunCompleted(_ context.Context, p kafka.RunCompletedPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, p)
	return nil
}

type recordingSeen struct {
	mu     sync.Mutex
	marked map[string][]string
	err    error
}

func (r *recordingSeen) Mark(_ context.Context, source rtypes.Source, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.marked == nil {
		r.marked = make(map[string][]string)
	}
	r.marked[string(source)] = append(r.marked[string(source)], ids...)
	return nil
}

type stubLease struct {
	released bool
}

func (l *stubLease) Release(context.Context) error {
	l.released = true
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

type fixture struct {
	repo   *fakeRepo
	seen   *recordingSeen
	events *recordingEvents
	orch   *Orchestrator
}

func newFixture(lock RunLock) *fixture {
	fx := &fixture{
		repo:   newFakeRepo(),
		seen:   &recordingSeen{},
		events: &recordingEvents{},
	}
	fx.orch = NewOrchestrator(
		fx.repo,
		&stubScorer{score: 7.5},
		fx.seen,
		lock,
		fx.events,
		nil,
		logging.NewNopLogger(),
	)
	return fx
}

func newsRaws(n int) []harvest.RawRecord {
	raws := make([]harvest.RawRecord, 0, n)
	for i := 1; i <= n; i++ {
		raws = append(raws, harvest.RawRecord{
			Source:     rtypes.SourceNews,
			ExternalID: fmt.Sprintf("news-%d", i),
			Title:      fmt.Sprintf("Creatine study %d", i),
			URL:        fmt.Sprintf("https://news.example.com/a/%d", i),
		})
	}
	return raws
}

func newsProfile(scanner Scanner, harvester Harvester, normalizer Normalizer) *SourceProfile {
	return &SourceProfile{
		Source:     rtypes.SourceNews,
		Scanner:    scanner,
		Harvester:  harvester,
		Normalizer: normalizer,
		Validator:  compliance.NewValidator(compliance.NewLexiconClassifier(nil, nil), 2, logging.NewNopLogger()),
	}
}

func seededItem(t *testing.T, externalID string) *research.ResearchItem {
	t.Helper()
	item, err := research.NewResearchItem(
		rtypes.SourceNews,
		"Existing "+externalID,
		"existing body",
		"https://news.example.com/"+externalID,
		nil,
		map[string]interface{}{"external_id": externalID},
		time.Now(),
	)
	require.NoError(t, err)
	return item
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestOrchestrator_Run_Complete(t *testing.T) {
	fx := newFixture(nil)
	profile := newsProfile(&stubScanner{raws: newsRaws(3)}, &stubHarvester{}, &stubNormalizer{})

	res, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomeComplete, res.Outcome)
	assert.False(t, res.RetryScheduled)
	assert.Empty(t, res.ErrorSummary)
	assert.Equal(t, rtypes.PipelineStats{
		Found:      3,
		Enriched:   3,
		Normalized: 3,
		Validated:  3,
		Scored:     3,
		Published:  3,
	}, res.Stats)
	assert.Len(t, res.PublishedIDs, 3)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))

	require.Len(t, fx.events.items, 3)
	assert.Equal(t, 7.5, fx.events.items[0].Score)
	assert.Equal(t, rtypes.ComplianceCompliant, fx.events.items[0].Compliance)
	require.Len(t, fx.events.runs, 1)
	assert.Equal(t, rtypes.OutcomeComplete, fx.events.runs[0].Outcome)
	assert.ElementsMatch(t, []string{"news-1", "news-2", "news-3"}, fx.seen.marked["news"])
}

func TestOrchestrator_Run_PartialOnItemFailures(t *testing.T) {
	fx := newFixture(nil)
	profile := newsProfile(
		&stubScanner{raws: newsRaws(3)},
		&stubHarvester{},
		&stubNormalizer{reject: map[string]bool{"news-2": true}},
	)

	res, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomePartial, res.Outcome)
	assert.False(t, res.RetryScheduled)
	assert.Equal(t, int64(3), res.Stats.Found)
	assert.Equal(t, int64(2), res.Stats.Normalized)
	assert.Equal(t, int64(2), res.Stats.Published)
	assert.Equal(t, int64(1), res.Stats.Failed)
	assert.Len(t, fx.events.items, 2)
}

func TestOrchestrator_Run_EmptyScanIsIncomplete(t *testing.T) {
	fx := newFixture(nil)
	profile := newsProfile(&stubScanner{}, &stubHarvester{}, &stubNormalizer{})

	res, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomeIncomplete, res.Outcome)
	assert.True(t, res.RetryScheduled)
	assert.Equal(t, rtypes.PipelineStats{}, res.Stats)
	require.Len(t, fx.events.runs, 1)
	assert.True(t, fx.events.runs[0].RetryScheduled)
}

func TestOrchestrator_Run_TransientScanIsIncomplete(t *testing.T) {
	fx := newFixture(nil)
	profile := newsProfile(
		&stubScanner{err: appErrors.SourceTransient("all discovery queries failed")},
		&stubHarvester{},
		&stubNormalizer{},
	)

	res, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomeIncomplete, res.Outcome)
	assert.True(t, res.RetryScheduled)
	assert.Contains(t, res.ErrorSummary, "all discovery queries failed")
}

func TestOrchestrator_Run_UnexpectedScanErrorFails(t *testing.T) {
	fx := newFixture(nil)
	profile := newsProfile(
		&stubScanner{err: appErrors.Internal("scanner wiring broken")},
		&stubHarvester{},
		&stubNormalizer{},
	)

	res, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomeFailed, res.Outcome)
	assert.True(t, res.RetryScheduled)
	assert.Equal(t, int64(0), res.Stats.Published)
}

func TestOrchestrator_Run_RateLimitedProcessesPartialBatch(t *testing.T) {
	fx := newFixture(nil)
	profile := newsProfile(
		&stubScanner{
			raws: newsRaws(2),
			err:  appErrors.SourceRateLimited("source budget exhausted", 90*time.Second),
		},
		&stubHarvester{},
		&stubNormalizer{},
	)

	res, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomeRateLimited, res.Outcome)
	assert.True(t, res.RetryScheduled)
	assert.Equal(t, 90*time.Second, res.RetryAfter)
	assert.Equal(t, int64(2), res.Stats.Published)
	require.Len(t, fx.events.runs, 1)
	assert.Equal(t, int64(90_000), fx.events.runs[0].RetryAfterMs)
}

func TestOrchestrator_Run_RateLimitedDuringHarvest(t *testing.T) {
	fx := newFixture(nil)
	profile := newsProfile(
		&stubScanner{raws: newsRaws(3)},
		&stubHarvester{err: appErrors.SourceRateLimited("detail budget exhausted", time.Minute)},
		&stubNormalizer{},
	)

	res, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomeRateLimited, res.Outcome)
	assert.Equal(t, time.Minute, res.RetryAfter)
	assert.Equal(t, int64(3), res.Stats.Published)
}

func TestOrchestrator_Run_LockHeld(t *testing.T) {
	lock := RunLockFunc(func(context.Context, rtypes.Source) (Lease, error) {
		return nil, appErrors.Conflict("pipeline already running for source news")
	})
	fx := newFixture(lock)
	profile := newsProfile(&stubScanner{raws: newsRaws(1)}, &stubHarvester{}, &stubNormalizer{})

	res, err := fx.orch.Run(context.Background(), profile)
	require.Error(t, err)
	assert.True(t, appErrors.IsConflict(err))
	assert.Nil(t, res)
	assert.Empty(t, fx.events.runs)
}

func TestOrchestrator_Run_LockReleased(t *testing.T) {
	lease := &stubLease{}
	lock := RunLockFunc(func(context.Context, rtypes.Source) (Lease, error) {
		return lease, nil
	})
	fx := newFixture(lock)
	profile := newsProfile(&stubScanner{raws: newsRaws(1)}, &stubHarvester{}, &stubNormalizer{})

	_, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)
	assert.True(t, lease.released)
}

func TestOrchestrator_Run_CancelledDuringAnalysis(t *testing.T) {
	fx := newFixture(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	profile := newsProfile(&stubScanner{raws: newsRaws(2)}, &stubHarvester{}, &stubNormalizer{})
	profile.Analyzer = analyzeFunc(func(context.Context, *harvest.HarvestedRecord) error {
		calls++
		if calls == 1 {
			cancel()
		}
		return nil
	})

	res, err := fx.orch.Run(ctx, profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomeIncomplete, res.Outcome)
	assert.True(t, res.RetryScheduled)
	assert.Equal(t, "cancelled during analysis", res.ErrorSummary)
	assert.Equal(t, int64(1), res.Stats.Analyzed)
	assert.Equal(t, int64(0), res.Stats.Published)
	require.Len(t, fx.events.runs, 1)
}

func TestOrchestrator_Run_AnalyzerEnrichesRecords(t *testing.T) {
	fx := newFixture(nil)
	profile := newsProfile(&stubScanner{raws: newsRaws(2)}, &stubHarvester{}, &stubNormalizer{})
	profile.Analyzer = analyzeFunc(func(_ context.Context, rec *harvest.HarvestedRecord) error {
		assessment := harvest.DefaultClaimAssessment()
		rec.Claims = &assessment
		return nil
	})

	res, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomeComplete, res.Outcome)
	assert.Equal(t, int64(2), res.Stats.Analyzed)
	assert.Equal(t, int64(2), res.Stats.Published)
}

func TestOrchestrator_Run_BulkFailureFallsBackPerItem(t *testing.T) {
	fx := newFixture(nil)
	fx.repo.bulkErr = appErrors.Internal("bulk insert failed")
	fx.repo.addErr = map[string]error{"news-2": appErrors.Internal("row rejected")}
	profile := newsProfile(&stubScanner{raws: newsRaws(3)}, &stubHarvester{}, &stubNormalizer{})

	res, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomePartial, res.Outcome)
	assert.Equal(t, int64(2), res.Stats.Published)
	assert.Equal(t, int64(1), res.Stats.Failed)
	assert.Equal(t, 3, fx.repo.adds)
	assert.Len(t, fx.events.items, 2)
}

func TestOrchestrator_Run_PartialBulkReconcilesDuplicates(t *testing.T) {
	fx := newFixture(nil)
	fx.repo.seed(seededItem(t, "news-2"))
	profile := newsProfile(&stubScanner{raws: newsRaws(3)}, &stubHarvester{}, &stubNormalizer{})

	res, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomeComplete, res.Outcome)
	assert.Equal(t, int64(2), res.Stats.Published)
	assert.Equal(t, int64(0), res.Stats.Failed)
	assert.Len(t, fx.events.items, 2)
	for _, p := range fx.events.items {
		assert.NotEqual(t, "Existing news-2", p.Title)
	}
	// duplicates are still marked seen so the next scan skips them
	assert.ElementsMatch(t, []string{"news-1", "news-2", "news-3"}, fx.seen.marked["news"])
}

func TestOrchestrator_Run_SecondIdenticalRunPublishesNothing(t *testing.T) {
	fx := newFixture(nil)
	profile := newsProfile(&stubScanner{raws: newsRaws(3)}, &stubHarvester{}, &stubNormalizer{})

	first, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)
	require.Equal(t, rtypes.OutcomeComplete, first.Outcome)
	require.Equal(t, int64(3), first.Stats.Published)

	second, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, int64(0), second.Stats.Published)
	assert.Equal(t, rtypes.OutcomeIncomplete, second.Outcome)
	assert.Len(t, fx.events.items, 3)
	assert.Equal(t, int64(3), mustCount(t, fx.repo))
}

func TestOrchestrator_Run_SeenMarkFailureTolerated(t *testing.T) {
	fx := newFixture(nil)
	fx.seen.err = appErrors.New(appErrors.CodeCacheError, "redis down")
	profile := newsProfile(&stubScanner{raws: newsRaws(2)}, &stubHarvester{}, &stubNormalizer{})

	res, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomeComplete, res.Outcome)
	assert.Equal(t, int64(2), res.Stats.Published)
}

func TestOrchestrator_Run_EventFailureTolerated(t *testing.T) {
	fx := newFixture(nil)
	fx.events.itemErr = appErrors.Internal("broker unreachable")
	profile := newsProfile(&stubScanner{raws: newsRaws(2)}, &stubHarvester{}, &stubNormalizer{})

	res, err := fx.orch.Run(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, rtypes.OutcomeComplete, res.Outcome)
	assert.Empty(t, fx.events.items)
	require.Len(t, fx.events.runs, 1)
}

func TestOrchestrator_Run_IncompleteProfileRejected(t *testing.T) {
	fx := newFixture(nil)

	res, err := fx.orch.Run(context.Background(), &SourceProfile{Source: rtypes.SourceNews})
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.CodeInvalidParam))
	assert.Nil(t, res)
}

func mustCount(t *testing.T, repo *fakeRepo) int64 {
	t.Helper()
	n, err := repo.Count(context.Background(), rtypes.QueryFilter{})
	require.NoError(t, err)
	return n
}
