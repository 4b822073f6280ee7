package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/pipeline"
	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResearchPool-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/ResearchPool-Intelligence/internal/interfaces/http/middleware"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	"github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeRepo struct {
	items      []*research.ResearchItem
	byID       map[common.ID]*research.ResearchItem
	scores     map[common.ID]float64
	compliance map[common.ID]rtypes.ComplianceStatus
	deleted    []common.ID
	lastFilter rtypes.QueryFilter
	lastQuery  string
	failWith   error
}

func newFakeRepo(items ...*research.ResearchItem) *fakeRepo {
	r := &fakeRepo{
		items:      items,
		byID:       make(map[common.ID]*research.ResearchItem),
		scores:     make(map[common.ID]float64),
		compliance: make(map[common.ID]rtypes.ComplianceStatus),
	}
	for _, item := range items {
		r.byID[item.ID] = item
	}
	return r
}

func (r *fakeRepo) Add(ctx context.Context, item *research.ResearchItem) error {
	return appErrors.Internal("not implemented")
}

func (r *fakeRepo) BulkAdd(ctx context.Context, items []*research.ResearchItem) (int, error) {
	return 0, appErrors.Internal("not implemented")
}

func (r *fakeRepo) Update(ctx context.Context, item *research.ResearchItem) error {
	return appErrors.Internal("not implemented")
}

func (r *fakeRepo) UpdateScore(ctx context.Context, id common.ID, score float64) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.byID[id]; !ok {
		return appErrors.ItemNotFound(fmt.Sprintf("research item %s not found", id))
	}
	r.scores[id] = score
	return nil
}

func (r *fakeRepo) UpdateCompliance(ctx context.Context, id common.ID, status rtypes.ComplianceStatus) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.byID[id]; !ok {
		return appErrors.ItemNotFound(fmt.Sprintf("research item %s not found", id))
	}
	r.compliance[id] = status
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id common.ID) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.byID[id]; !ok {
		return appErrors.ItemNotFound(fmt.Sprintf("research item %s not found", id))
	}
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id common.ID) (*research.ResearchItem, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	item, ok := r.byID[id]
	if !ok {
		return nil, appErrors.ItemNotFound(fmt.Sprintf("research item %s not found", id))
	}
	return item, nil
}

func (r *fakeRepo) GetByExternalID(ctx context.Context, source rtypes.Source, externalID string) (*research.ResearchItem, error) {
	return nil, appErrors.ItemNotFound("not found")
}

func (r *fakeRepo) Query(ctx context.Context, filter rtypes.QueryFilter) ([]*research.ResearchItem, int64, error) {
	if r.failWith != nil {
		return nil, 0, r.failWith
	}
	r.lastFilter = filter
	return r.items, int64(len(r.items)), nil
}

func (r *fakeRepo) Search(ctx context.Context, query string, filter rtypes.QueryFilter) ([]*research.ResearchItem, int64, error) {
	if r.failWith != nil {
		return nil, 0, r.failWith
	}
	r.lastQuery = query
	r.lastFilter = filter
	return r.items, int64(len(r.items)), nil
}

func (r *fakeRepo) Count(ctx context.Context, filter rtypes.QueryFilter) (int64, error) {
	if r.failWith != nil {
		return 0, r.failWith
	}
	r.lastFilter = filter
	return int64(len(r.items)), nil
}

func (r *fakeRepo) Stats(ctx context.Context) (*research.PoolStats, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	return &research.PoolStats{
		Total:        int64(len(r.items)),
		BySource:     map[rtypes.Source]int64{rtypes.SourceNews: int64(len(r.items))},
		ByCompliance: map[rtypes.ComplianceStatus]int64{rtypes.ComplianceCompliant: int64(len(r.items))},
		AverageScore: 7.5,
	}, nil
}

type fakeRunner struct {
	result    *pipeline.Result
	err       error
	sources   []rtypes.Source
	gotSource rtypes.Source
}

func (f *fakeRunner) Run(ctx context.Context, source rtypes.Source) (*pipeline.Result, error) {
	f.gotSource = source
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRunner) Sources() []rtypes.Source { return f.sources }

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func newTestItem(t *testing.T, title string) *research.ResearchItem {
	t.Helper()
	item, err := research.NewResearchItem(
		rtypes.SourceNews,
		title,
		"Creatine supplementation improved strength in a randomized trial.",
		"https://news.example.com/a/1",
		[]string{"creatine"},
		map[string]interface{}{"external_id": "news-" + title},
		time.Now().UTC(),
	)
	require.NoError(t, err)
	return item
}

func newTestRouter(repo research.Repository, runner handlers.PipelineRunner) *gin.Engine {
	return NewRouter(RouterConfig{
		ItemHandler:     handlers.NewItemHandler(repo),
		PipelineHandler: handlers.NewPipelineHandler(runner, repo),
		HealthHandler:   handlers.NewHealthHandler("test"),
		Logger:          logging.NewNopLogger(),
	})
}

func doRequest(r *gin.Engine, method, target string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

type errorEnvelope struct {
	Error handlers.ErrorBody `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handlers.ErrorBody {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error
}

// ─────────────────────────────────────────────────────────────────────────────
// Items
// ─────────────────────────────────────────────────────────────────────────────

func TestItems_List(t *testing.T) {
	repo := newFakeRepo(newTestItem(t, "Creatine study"), newTestItem(t, "Magnesium study"))
	r := newTestRouter(repo, &fakeRunner{})

	w := doRequest(r, http.MethodGet,
		"/api/v1/items?source=news&tag=Creatine,strength&min_score=5&limit=10&offset=10&sort=date", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp rtypes.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, int64(2), resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 10, resp.PageSize)
	assert.Equal(t, 1, resp.TotalPages)

	require.NotNil(t, repo.lastFilter.Source)
	assert.Equal(t, rtypes.SourceNews, *repo.lastFilter.Source)
	assert.Equal(t, []string{"creatine", "strength"}, repo.lastFilter.Tags)
	require.NotNil(t, repo.lastFilter.MinScore)
	assert.Equal(t, 5.0, *repo.lastFilter.MinScore)
	assert.Equal(t, 10, repo.lastFilter.Limit)
	assert.Equal(t, 10, repo.lastFilter.Offset)
	assert.Equal(t, rtypes.SortByDate, repo.lastFilter.Sort)
}

func TestItems_List_DefaultsApplied(t *testing.T) {
	repo := newFakeRepo()
	r := newTestRouter(repo, &fakeRunner{})

	w := doRequest(r, http.MethodGet, "/api/v1/items", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, rtypes.DefaultQueryLimit, repo.lastFilter.Limit)
	assert.Equal(t, rtypes.SortByScore, repo.lastFilter.Sort)
}

func TestItems_List_UnknownSource(t *testing.T) {
	r := newTestRouter(newFakeRepo(), &fakeRunner{})

	w := doRequest(r, http.MethodGet, "/api/v1/items?source=martian", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "COMMON_002", body.Code)
	assert.Contains(t, body.Message, "unknown source")
}

func TestItems_List_InvertedScoreRange(t *testing.T) {
	r := newTestRouter(newFakeRepo(), &fakeRunner{})

	w := doRequest(r, http.MethodGet, "/api/v1/items?min_score=9&max_score=2", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "min_score")
}

func TestItems_Get(t *testing.T) {
	item := newTestItem(t, "Creatine study")
	r := newTestRouter(newFakeRepo(item), &fakeRunner{})

	w := doRequest(r, http.MethodGet, "/api/v1/items/"+item.ID.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	var dto rtypes.ResearchItemDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dto))
	assert.Equal(t, item.ID, dto.ID)
	assert.Equal(t, "Creatine study", dto.Title)
	assert.Equal(t, rtypes.SourceNews, dto.Source)
}

func TestItems_Get_NotFound(t *testing.T) {
	r := newTestRouter(newFakeRepo(), &fakeRunner{})

	w := doRequest(r, http.MethodGet, "/api/v1/items/"+common.NewID().String(), nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "POOL_001", decodeError(t, w).Code)
}

func TestItems_Get_MalformedID(t *testing.T) {
	r := newTestRouter(newFakeRepo(), &fakeRunner{})

	w := doRequest(r, http.MethodGet, "/api/v1/items/not-a-uuid", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "COMMON_002", decodeError(t, w).Code)
}

func TestItems_Search(t *testing.T) {
	repo := newFakeRepo(newTestItem(t, "Creatine study"))
	r := newTestRouter(repo, &fakeRunner{})

	w := doRequest(r, http.MethodGet, "/api/v1/items/search?q=creatine+sleep&limit=5", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "creatine sleep", repo.lastQuery)
	assert.Equal(t, 5, repo.lastFilter.Limit)

	var resp rtypes.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Total)
}

func TestItems_Search_MissingQuery(t *testing.T) {
	r := newTestRouter(newFakeRepo(), &fakeRunner{})

	w := doRequest(r, http.MethodGet, "/api/v1/items/search", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "q parameter")
}

func TestItems_Count(t *testing.T) {
	repo := newFakeRepo(newTestItem(t, "A"), newTestItem(t, "B"), newTestItem(t, "C"))
	r := newTestRouter(repo, &fakeRunner{})

	w := doRequest(r, http.MethodGet, "/api/v1/items/count?source=news", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count": 3}`, w.Body.String())
	require.NotNil(t, repo.lastFilter.Source)
	assert.Equal(t, rtypes.SourceNews, *repo.lastFilter.Source)
}

func TestItems_PatchScore(t *testing.T) {
	item := newTestItem(t, "Creatine study")
	repo := newFakeRepo(item)
	r := newTestRouter(repo, &fakeRunner{})

	w := doRequest(r, http.MethodPatch, "/api/v1/items/"+item.ID.String()+"/score",
		strings.NewReader(`{"score": 8.25}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 8.25, repo.scores[item.ID])
}

func TestItems_PatchScore_OutOfRange(t *testing.T) {
	item := newTestItem(t, "Creatine study")
	r := newTestRouter(newFakeRepo(item), &fakeRunner{})

	w := doRequest(r, http.MethodPatch, "/api/v1/items/"+item.ID.String()+"/score",
		strings.NewReader(`{"score": 82.5}`))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "COMMON_008", decodeError(t, w).Code)
}

func TestItems_PatchScore_MissingField(t *testing.T) {
	item := newTestItem(t, "Creatine study")
	r := newTestRouter(newFakeRepo(item), &fakeRunner{})

	w := doRequest(r, http.MethodPatch, "/api/v1/items/"+item.ID.String()+"/score",
		strings.NewReader(`{}`))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "score is required")
}

func TestItems_PatchCompliance(t *testing.T) {
	item := newTestItem(t, "Creatine study")
	repo := newFakeRepo(item)
	r := newTestRouter(repo, &fakeRunner{})

	w := doRequest(r, http.MethodPatch, "/api/v1/items/"+item.ID.String()+"/compliance",
		strings.NewReader(`{"status": "rejected"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, rtypes.ComplianceRejected, repo.compliance[item.ID])
}

func TestItems_PatchCompliance_UnknownStatus(t *testing.T) {
	item := newTestItem(t, "Creatine study")
	r := newTestRouter(newFakeRepo(item), &fakeRunner{})

	w := doRequest(r, http.MethodPatch, "/api/v1/items/"+item.ID.String()+"/compliance",
		strings.NewReader(`{"status": "maybe"}`))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "unknown compliance status")
}

func TestItems_Delete(t *testing.T) {
	item := newTestItem(t, "Creatine study")
	repo := newFakeRepo(item)
	r := newTestRouter(repo, &fakeRunner{})

	w := doRequest(r, http.MethodDelete, "/api/v1/items/"+item.ID.String(), nil)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, []common.ID{item.ID}, repo.deleted)
}

func TestItems_Delete_NotFound(t *testing.T) {
	r := newTestRouter(newFakeRepo(), &fakeRunner{})

	w := doRequest(r, http.MethodDelete, "/api/v1/items/"+common.NewID().String(), nil)

	require.Equal(t, http.StatusNotFound, w.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Error mapping
// ─────────────────────────────────────────────────────────────────────────────

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "internal detail scrubbed",
			err:        appErrors.Internal("dsn postgres://pool:hunter2@db:5432"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "COMMON_001",
			wantMsg:    "internal server error",
		},
		{
			name:       "storage unavailable scrubbed",
			err:        appErrors.New(appErrors.CodeStorageUnavailable, "pgx pool exhausted"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "POOL_005",
			wantMsg:    "storage unavailable",
		},
		{
			name:       "validation passes message through",
			err:        appErrors.Validation("tags must be normalized"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "COMMON_008",
			wantMsg:    "tags must be normalized",
		},
		{
			name:       "plain error maps to unknown",
			err:        fmt.Errorf("pgx: broken pipe"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "UNKNOWN",
			wantMsg:    "unknown error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			repo.failWith = tt.err
			r := newTestRouter(repo, &fakeRunner{})

			w := doRequest(r, http.MethodGet, "/api/v1/items", nil)

			require.Equal(t, tt.wantStatus, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMsg, body.Message)
			assert.NotContains(t, w.Body.String(), "hunter2")
			assert.NotContains(t, w.Body.String(), "pgx")
		})
	}
}

func TestErrorMapping_RateLimitedSetsRetryAfter(t *testing.T) {
	runner := &fakeRunner{err: appErrors.SourceRateLimited("upstream throttled", 90*time.Second)}
	r := newTestRouter(newFakeRepo(), runner)

	w := doRequest(r, http.MethodPost, "/api/v1/pipeline/news/run", nil)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "90", w.Header().Get("Retry-After"))
	assert.Equal(t, "SRC_002", decodeError(t, w).Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline
// ─────────────────────────────────────────────────────────────────────────────

func TestPipeline_Run(t *testing.T) {
	runner := &fakeRunner{
		result: &pipeline.Result{
			Source:  rtypes.SourceNews,
			Outcome: rtypes.OutcomeComplete,
			Stats:   rtypes.PipelineStats{Found: 3, Published: 3},
		},
		sources: []rtypes.Source{rtypes.SourceNews},
	}
	r := newTestRouter(newFakeRepo(), runner)

	w := doRequest(r, http.MethodPost, "/api/v1/pipeline/news/run", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, rtypes.SourceNews, runner.gotSource)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, rtypes.OutcomeComplete, res.Outcome)
	assert.Equal(t, int64(3), res.Stats.Published)
}

func TestPipeline_Run_UnknownSource(t *testing.T) {
	r := newTestRouter(newFakeRepo(), &fakeRunner{})

	w := doRequest(r, http.MethodPost, "/api/v1/pipeline/martian/run", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "unknown source")
}

func TestPipeline_Run_NotConfigured(t *testing.T) {
	runner := &fakeRunner{err: appErrors.NotFound(`source "biomed" is not configured`)}
	r := newTestRouter(newFakeRepo(), runner)

	w := doRequest(r, http.MethodPost, "/api/v1/pipeline/biomed/run", nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "COMMON_003", decodeError(t, w).Code)
}

func TestPipeline_Run_AlreadyRunning(t *testing.T) {
	runner := &fakeRunner{err: appErrors.New(appErrors.CodePipelineRunning,
		"a news run is already in progress")}
	r := newTestRouter(newFakeRepo(), runner)

	w := doRequest(r, http.MethodPost, "/api/v1/pipeline/news/run", nil)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PIPE_001", decodeError(t, w).Code)
}

func TestPipeline_Stats(t *testing.T) {
	repo := newFakeRepo(newTestItem(t, "Creatine study"))
	runner := &fakeRunner{sources: []rtypes.Source{rtypes.SourceNews, rtypes.SourceVideo}}
	r := newTestRouter(repo, runner)

	w := doRequest(r, http.MethodGet, "/api/v1/pipeline/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.PipelineStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []rtypes.Source{rtypes.SourceNews, rtypes.SourceVideo}, resp.Sources)
	require.NotNil(t, resp.Pool)
	assert.Equal(t, int64(1), resp.Pool.Total)
	assert.Equal(t, 7.5, resp.Pool.AverageScore)
}

// ─────────────────────────────────────────────────────────────────────────────
// Probes, metrics, request ids
// ─────────────────────────────────────────────────────────────────────────────

func TestHealth_Liveness(t *testing.T) {
	r := newTestRouter(newFakeRepo(), &fakeRunner{})

	w := doRequest(r, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alive"`)
}

func TestHealth_ReadinessDependsOnCheckers(t *testing.T) {
	ok := handlers.NewCheckFunc("postgres", func(ctx context.Context) error { return nil })
	broken := handlers.NewCheckFunc("redis", func(ctx context.Context) error {
		return fmt.Errorf("connection refused")
	})

	healthy := NewRouter(RouterConfig{HealthHandler: handlers.NewHealthHandler("test", ok)})
	w := doRequest(healthy, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)

	degraded := NewRouter(RouterConfig{HealthHandler: handlers.NewHealthHandler("test", ok, broken)})
	w = doRequest(degraded, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"not_ready"`)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	collector := prometheus.NewCollector("respool_test", logging.NewNopLogger())
	r := NewRouter(RouterConfig{MetricsCollector: collector})

	w := doRequest(r, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# HELP")
}

func TestRequestIDEchoedOnErrors(t *testing.T) {
	r := newTestRouter(newFakeRepo(), &fakeRunner{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/items/"+common.NewID().String(), nil)
	req.Header.Set(middleware.RequestIDHeader, "trace-77")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "trace-77", w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "trace-77", decodeError(t, w).RequestID)
}

func TestUnknownRouteIs404(t *testing.T) {
	r := newTestRouter(newFakeRepo(), &fakeRunner{})

	w := doRequest(r, http.MethodGet, "/api/v1/molecules", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
