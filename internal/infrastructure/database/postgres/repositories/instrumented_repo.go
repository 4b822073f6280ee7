package repositories

import (
	"context"

	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// InstrumentedRepository decorates a Repository with per-operation latency
// metrics. It adds nothing else; error mapping stays in the wrapped
// implementation.
type InstrumentedRepository struct {
	inner   research.Repository
	metrics *prometheus.AppMetrics
}

var _ research.Repository = (*InstrumentedRepository)(nil)

// NewInstrumentedRepository wraps inner. A nil metrics handle passes straight
// through with zero cost.
func NewInstrumentedRepository(inner research.Repository, metrics *prometheus.AppMetrics) *InstrumentedRepository {
	return &InstrumentedRepository{inner: inner, metrics: metrics}
}

func (r *InstrumentedRepository) Add(ctx context.Context, item *research.ResearchItem) error {
	defer r.metrics.RepoTimer("add")()
	return r.inner.Add(ctx, item)
}

func (r *InstrumentedRepository) BulkAdd(ctx context.Context, items []*research.ResearchItem) (int, error) {
	defer r.metrics.RepoTimer("bulk_add")()
	return r.inner.BulkAdd(ctx, items)
}

func (r *InstrumentedRepository) Update(ctx context.Context, item *research.ResearchItem) error {
	defer r.metrics.RepoTimer("update")()
	return r.inner.Update(ctx, item)
}

func (r *InstrumentedRepository) UpdateScore(ctx context.Context, id common.ID, score float64) error {
	defer r.metrics.RepoTimer("update_score")()
	return r.inner.UpdateScore(ctx, id, score)
}

func (r *InstrumentedRepository) UpdateCompliance(ctx context.Context, id common.ID, status rtypes.ComplianceStatus) error {
	defer r.metrics.RepoTimer("update_compliance")()
	return r.inner.UpdateCompliance(ctx, id, status)
}

func (r *InstrumentedRepository) Delete(ctx context.Context, id common.ID) error {
	defer r.metrics.RepoTimer("delete")()
	return r.inner.Delete(ctx, id)
}

func (r *InstrumentedRepository) Get(ctx context.Context, id common.ID) (*research.ResearchItem, error) {
	defer r.metrics.RepoTimer("get")()
	return r.inner.Get(ctx, id)
}

func (r *InstrumentedRepository) GetByExternalID(ctx context.Context, source rtypes.Source, externalID string) (*research.ResearchItem, error) {
	defer r.metrics.RepoTimer("get_by_external_id")()
	return r.inner.GetByExternalID(ctx, source, externalID)
}

func (r *InstrumentedRepository) Query(ctx context.Context, filter rtypes.QueryFilter) ([]*research.ResearchItem, int64, error) {
	defer r.metrics.RepoTimer("query")()
	return r.inner.Query(ctx, filter)
}

func (r *InstrumentedRepository) Search(ctx context.Context, query string, filter rtypes.QueryFilter) ([]*research.ResearchItem, int64, error) {
	defer r.metrics.RepoTimer("search")()
	return r.inner.Search(ctx, query, filter)
}

func (r *InstrumentedRepository) Count(ctx context.Context, filter rtypes.QueryFilter) (int64, error) {
	defer r.metrics.RepoTimer("count")()
	return r.inner.Count(ctx, filter)
}

func (r *InstrumentedRepository) Stats(ctx context.Context) (*research.PoolStats, error) {
	defer r.metrics.RepoTimer("stats")()
	return r.inner.Stats(ctx)
}
