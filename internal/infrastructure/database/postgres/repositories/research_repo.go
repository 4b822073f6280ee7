// Package repositories provides the PostgreSQL-backed implementation of the
// research pool's domain repository interface.
package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	"github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// PostgreSQL error codes this repository distinguishes.
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// itemColumns is the canonical column list; scan order in scanItem must match.
const itemColumns = `id, source, title, content, url, tags,
	       source_metadata, score, compliance_status,
	       created_at, updated_at, version`

// ─────────────────────────────────────────────────────────────────────────────
// ResearchItemRepository
// ─────────────────────────────────────────────────────────────────────────────

// ResearchItemRepository is the PostgreSQL implementation of the research
// pool's Repository interface. Every method takes a context for cancellation
// and uses parameterised queries exclusively.
type ResearchItemRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

var _ research.Repository = (*ResearchItemRepository)(nil)

// NewResearchItemRepository constructs a ready-to-use repository.
func NewResearchItemRepository(pool *pgxpool.Pool, logger logging.Logger) *ResearchItemRepository {
	return &ResearchItemRepository{pool: pool, logger: logger}
}

// ─────────────────────────────────────────────────────────────────────────────
// Add / BulkAdd
// ─────────────────────────────────────────────────────────────────────────────

// Add inserts a single item. A duplicate (same id, or same source and
// external id) is reported as CodeItemExists.
func (r *ResearchItemRepository) Add(ctx context.Context, item *research.ResearchItem) error {
	r.logger.Debug("ResearchItemRepository.Add", logging.String("item_id", item.ID.String()))

	metaJSON, _ := json.Marshal(item.SourceMetadata)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO research_items (
			id, source, title, content, url, tags,
			source_metadata, score, compliance_status,
			created_at, updated_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		item.ID, item.Source, item.Title, item.Content, item.URL, item.Tags,
		metaJSON, item.Score, item.Compliance,
		item.CreatedAt, item.UpdatedAt, item.Version,
	)
	if err != nil {
		r.logger.Error("ResearchItemRepository.Add", logging.Err(err))
		return writeError(err, "failed to insert research item")
	}
	return nil
}

// BulkAdd inserts items inside one transaction, skipping duplicates, and
// returns the number of rows actually inserted. A failure rolls back the
// whole batch.
func (r *ResearchItemRepository) BulkAdd(ctx context.Context, items []*research.ResearchItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	r.logger.Debug("ResearchItemRepository.BulkAdd", logging.Int("count", len(items)))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("ResearchItemRepository.BulkAdd: begin tx", logging.Err(err))
		return 0, appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted := 0
	for _, item := range items {
		metaJSON, _ := json.Marshal(item.SourceMetadata)
		tag, err := tx.Exec(ctx, `
			INSERT INTO research_items (
				id, source, title, content, url, tags,
				source_metadata, score, compliance_status,
				created_at, updated_at, version
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT DO NOTHING`,
			item.ID, item.Source, item.Title, item.Content, item.URL, item.Tags,
			metaJSON, item.Score, item.Compliance,
			item.CreatedAt, item.UpdatedAt, item.Version,
		)
		if err != nil {
			r.logger.Error("ResearchItemRepository.BulkAdd: insert",
				logging.String("item_id", item.ID.String()), logging.Err(err))
			return 0, writeError(err, "failed to insert research item batch")
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("ResearchItemRepository.BulkAdd: commit", logging.Err(err))
		return 0, appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "failed to commit batch insert")
	}
	return inserted, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Update / UpdateScore / UpdateCompliance
// ─────────────────────────────────────────────────────────────────────────────

// Update persists a mutated aggregate. The aggregate bumped its version in
// memory; the write is rejected with CodeConflict when the stored row has
// already advanced past it.
func (r *ResearchItemRepository) Update(ctx context.Context, item *research.ResearchItem) error {
	r.logger.Debug("ResearchItemRepository.Update",
		logging.String("item_id", item.ID.String()), logging.Int("version", item.Version))

	metaJSON, _ := json.Marshal(item.SourceMetadata)
	tag, err := r.pool.Exec(ctx, `
		UPDATE research_items SET
			title=$1, content=$2, url=$3, tags=$4,
			source_metadata=$5, score=$6, compliance_status=$7,
			updated_at=$8, version=$9
		WHERE id=$10 AND version < $9`,
		item.Title, item.Content, item.URL, item.Tags,
		metaJSON, item.Score, item.Compliance,
		item.UpdatedAt, item.Version,
		item.ID,
	)
	if err != nil {
		r.logger.Error("ResearchItemRepository.Update", logging.Err(err))
		return writeError(err, "failed to update research item")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.Conflict("stale research item version").
			WithDetail(fmt.Sprintf("item_id=%s version=%d", item.ID, item.Version))
	}
	return nil
}

// UpdateScore sets the composite score of a single item.
func (r *ResearchItemRepository) UpdateScore(ctx context.Context, id common.ID, score float64) error {
	r.logger.Debug("ResearchItemRepository.UpdateScore",
		logging.String("item_id", id.String()), logging.Float64("score", score))

	tag, err := r.pool.Exec(ctx, `
		UPDATE research_items
		SET score = $2, updated_at = NOW(), version = version + 1
		WHERE id = $1`,
		id, score,
	)
	if err != nil {
		r.logger.Error("ResearchItemRepository.UpdateScore", logging.Err(err))
		return writeError(err, "failed to update score")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.ItemNotFound(fmt.Sprintf("research item %s not found", id))
	}
	return nil
}

// UpdateCompliance sets the compliance verdict; rejection zeroes the score in
// the same statement so the constraint holds at every point in time.
func (r *ResearchItemRepository) UpdateCompliance(ctx context.Context, id common.ID, status rtypes.ComplianceStatus) error {
	r.logger.Debug("ResearchItemRepository.UpdateCompliance",
		logging.String("item_id", id.String()), logging.String("status", string(status)))

	tag, err := r.pool.Exec(ctx, `
		UPDATE research_items
		SET compliance_status = $2,
		    score = CASE WHEN $2 = 'REJECTED' THEN 0 ELSE score END,
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $1`,
		id, status,
	)
	if err != nil {
		r.logger.Error("ResearchItemRepository.UpdateCompliance", logging.Err(err))
		return writeError(err, "failed to update compliance status")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.ItemNotFound(fmt.Sprintf("research item %s not found", id))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete
// ─────────────────────────────────────────────────────────────────────────────

// Delete removes an item permanently.
func (r *ResearchItemRepository) Delete(ctx context.Context, id common.ID) error {
	r.logger.Debug("ResearchItemRepository.Delete", logging.String("item_id", id.String()))

	tag, err := r.pool.Exec(ctx, `DELETE FROM research_items WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("ResearchItemRepository.Delete", logging.Err(err))
		return writeError(err, "failed to delete research item")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.ItemNotFound(fmt.Sprintf("research item %s not found", id))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Get / GetByExternalID
// ─────────────────────────────────────────────────────────────────────────────

// Get loads an item by primary key.
func (r *ResearchItemRepository) Get(ctx context.Context, id common.ID) (*research.ResearchItem, error) {
	r.logger.Debug("ResearchItemRepository.Get", logging.String("item_id", id.String()))

	return r.scanItem(r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM research_items WHERE id = $1`, itemColumns), id))
}

// GetByExternalID loads an item by its upstream identity (source, external id).
func (r *ResearchItemRepository) GetByExternalID(ctx context.Context, source rtypes.Source, externalID string) (*research.ResearchItem, error) {
	r.logger.Debug("ResearchItemRepository.GetByExternalID",
		logging.String("source", string(source)), logging.String("external_id", externalID))

	return r.scanItem(r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM research_items
		WHERE source = $1 AND source_metadata ->> 'external_id' = $2`, itemColumns),
		source, externalID))
}

// ─────────────────────────────────────────────────────────────────────────────
// Query — dynamic faceted query
// ─────────────────────────────────────────────────────────────────────────────

// Query returns the page of items matching the filter plus the total match
// count. Predicates are combined with AND; a tag filter matches items sharing
// at least one tag.
func (r *ResearchItemRepository) Query(ctx context.Context, filter rtypes.QueryFilter) ([]*research.ResearchItem, int64, error) {
	filter.Normalize()
	if err := filter.Validate(); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.CodeInvalidParam, "invalid query filter")
	}
	if filter.Sort == rtypes.SortByRelevance {
		return nil, 0, appErrors.InvalidParam("relevance ordering requires a search query")
	}

	var (
		conditions []string
		args       []interface{}
		argIdx     int
	)
	nextArg := func(v interface{}) string {
		argIdx++
		args = append(args, v)
		return fmt.Sprintf("$%d", argIdx)
	}

	conditions = appendFilterConditions(conditions, filter, nextArg)

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM research_items %s", whereClause)
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		r.logger.Error("ResearchItemRepository.Query: count", logging.Err(err))
		return nil, 0, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "failed to count query results")
	}

	phLimit := nextArg(filter.Limit)
	phOffset := nextArg(filter.Offset)
	dataSQL := fmt.Sprintf(`
		SELECT %s FROM research_items %s
		ORDER BY %s
		LIMIT %s OFFSET %s`,
		itemColumns, whereClause, sortClause(filter.Sort), phLimit, phOffset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		r.logger.Error("ResearchItemRepository.Query: query", logging.Err(err))
		return nil, 0, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "failed to execute pool query")
	}
	defer rows.Close()

	items, err := r.scanItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// sortClause maps a validated SortKey to its ORDER BY expression.
func sortClause(key rtypes.SortKey) string {
	switch key {
	case rtypes.SortByDate:
		return "created_at DESC"
	default:
		return "score DESC, created_at DESC"
	}
}

// appendFilterConditions translates the filter's set predicates into SQL.
func appendFilterConditions(conditions []string, filter rtypes.QueryFilter, nextArg func(interface{}) string) []string {
	if filter.Source != nil {
		conditions = append(conditions, fmt.Sprintf("source = %s", nextArg(*filter.Source)))
	}
	if len(filter.Tags) > 0 {
		conditions = append(conditions, fmt.Sprintf("tags && %s::TEXT[]", nextArg(filter.Tags)))
	}
	if filter.MinScore != nil {
		conditions = append(conditions, fmt.Sprintf("score >= %s", nextArg(*filter.MinScore)))
	}
	if filter.MaxScore != nil {
		conditions = append(conditions, fmt.Sprintf("score <= %s", nextArg(*filter.MaxScore)))
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= %s", nextArg(*filter.From)))
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= %s", nextArg(*filter.To)))
	}
	if filter.Compliance != nil {
		conditions = append(conditions, fmt.Sprintf("compliance_status = %s", nextArg(*filter.Compliance)))
	}
	return conditions
}

// ─────────────────────────────────────────────────────────────────────────────
// Search — full-text search with rank ordering
// ─────────────────────────────────────────────────────────────────────────────

// Search runs a full-text query over title and content, combined with the
// filter's predicates. A blank query returns no results without touching the
// database. SortByRelevance orders by text rank, then score.
func (r *ResearchItemRepository) Search(ctx context.Context, query string, filter rtypes.QueryFilter) ([]*research.ResearchItem, int64, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*research.ResearchItem{}, 0, nil
	}

	filter.Normalize()
	if err := filter.Validate(); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.CodeInvalidParam, "invalid search filter")
	}

	r.logger.Debug("ResearchItemRepository.Search", logging.String("query", query))

	var (
		conditions []string
		args       []interface{}
		argIdx     int
	)
	nextArg := func(v interface{}) string {
		argIdx++
		args = append(args, v)
		return fmt.Sprintf("$%d", argIdx)
	}

	queryPh := nextArg(query)
	conditions = append(conditions,
		fmt.Sprintf("search_vector @@ plainto_tsquery('english', %s)", queryPh))
	conditions = appendFilterConditions(conditions, filter, nextArg)

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM research_items %s", whereClause)
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		r.logger.Error("ResearchItemRepository.Search: count", logging.Err(err))
		return nil, 0, appErrors.Wrap(err, appErrors.CodeSearchFailed, "failed to count search results")
	}

	var orderBy string
	switch filter.Sort {
	case rtypes.SortByDate:
		orderBy = "created_at DESC"
	case rtypes.SortByScore:
		orderBy = "score DESC, created_at DESC"
	default:
		orderBy = fmt.Sprintf(
			"ts_rank(search_vector, plainto_tsquery('english', %s)) DESC, score DESC", queryPh)
	}

	phLimit := nextArg(filter.Limit)
	phOffset := nextArg(filter.Offset)
	dataSQL := fmt.Sprintf(`
		SELECT %s FROM research_items %s
		ORDER BY %s
		LIMIT %s OFFSET %s`,
		itemColumns, whereClause, orderBy, phLimit, phOffset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		r.logger.Error("ResearchItemRepository.Search: query", logging.Err(err))
		return nil, 0, appErrors.Wrap(err, appErrors.CodeSearchFailed, "failed to execute search query")
	}
	defer rows.Close()

	items, err := r.scanItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Count
// ─────────────────────────────────────────────────────────────────────────────

// Count returns the number of items matching the filter.
func (r *ResearchItemRepository) Count(ctx context.Context, filter rtypes.QueryFilter) (int64, error) {
	filter.Normalize()
	if err := filter.Validate(); err != nil {
		return 0, appErrors.Wrap(err, appErrors.CodeInvalidParam, "invalid count filter")
	}

	var (
		conditions []string
		args       []interface{}
		argIdx     int
	)
	nextArg := func(v interface{}) string {
		argIdx++
		args = append(args, v)
		return fmt.Sprintf("$%d", argIdx)
	}

	conditions = appendFilterConditions(conditions, filter, nextArg)

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM research_items %s", whereClause)
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		r.logger.Error("ResearchItemRepository.Count", logging.Err(err))
		return 0, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "failed to count research items")
	}
	return total, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Stats
// ─────────────────────────────────────────────────────────────────────────────

// Stats aggregates pool-wide counters: totals, per-source and per-compliance
// breakdowns, average score, and the ten most frequent tags.
func (r *ResearchItemRepository) Stats(ctx context.Context) (*research.PoolStats, error) {
	r.logger.Debug("ResearchItemRepository.Stats")

	stats := &research.PoolStats{
		BySource:     make(map[rtypes.Source]int64),
		ByCompliance: make(map[rtypes.ComplianceStatus]int64),
	}

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(score), 0) FROM research_items`,
	).Scan(&stats.Total, &stats.AverageScore)
	if err != nil {
		r.logger.Error("ResearchItemRepository.Stats: totals", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "failed to aggregate pool totals")
	}

	rows, err := r.pool.Query(ctx, `SELECT source, COUNT(*) FROM research_items GROUP BY source`)
	if err != nil {
		r.logger.Error("ResearchItemRepository.Stats: by source", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "failed to count items by source")
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int64
		if err := rows.Scan(&source, &count); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "failed to scan source count")
		}
		stats.BySource[rtypes.Source(source)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "source count iteration failed")
	}

	rows, err = r.pool.Query(ctx, `SELECT compliance_status, COUNT(*) FROM research_items GROUP BY compliance_status`)
	if err != nil {
		r.logger.Error("ResearchItemRepository.Stats: by compliance", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "failed to count items by compliance")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "failed to scan compliance count")
		}
		stats.ByCompliance[rtypes.ComplianceStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "compliance count iteration failed")
	}

	rows, err = r.pool.Query(ctx, `
		SELECT tag, COUNT(*) AS cnt
		FROM research_items CROSS JOIN LATERAL unnest(tags) AS tag
		GROUP BY tag
		ORDER BY cnt DESC, tag ASC
		LIMIT 10`)
	if err != nil {
		r.logger.Error("ResearchItemRepository.Stats: top tags", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "failed to aggregate top tags")
	}
	defer rows.Close()
	for rows.Next() {
		var tc research.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "failed to scan tag count")
		}
		stats.TopTags = append(stats.TopTags, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "tag count iteration failed")
	}

	return stats, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers — row scanners and error mapping
// ─────────────────────────────────────────────────────────────────────────────

// scanItem scans a single row into a rehydrated aggregate.
func (r *ResearchItemRepository) scanItem(row pgx.Row) (*research.ResearchItem, error) {
	var item research.ResearchItem
	var metaJSON []byte

	err := row.Scan(
		&item.ID, &item.Source, &item.Title, &item.Content, &item.URL, &item.Tags,
		&metaJSON, &item.Score, &item.Compliance,
		&item.CreatedAt, &item.UpdatedAt, &item.Version,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, appErrors.ItemNotFound("research item not found")
		}
		r.logger.Error("scanItem", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "failed to scan research item row")
	}

	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &item.SourceMetadata)
	}
	return &item, nil
}

// scanItems scans a result set into aggregates.
func (r *ResearchItemRepository) scanItems(rows pgx.Rows) ([]*research.ResearchItem, error) {
	var items []*research.ResearchItem
	for rows.Next() {
		var item research.ResearchItem
		var metaJSON []byte

		err := rows.Scan(
			&item.ID, &item.Source, &item.Title, &item.Content, &item.URL, &item.Tags,
			&metaJSON, &item.Score, &item.Compliance,
			&item.CreatedAt, &item.UpdatedAt, &item.Version,
		)
		if err != nil {
			r.logger.Error("scanItems", logging.Err(err))
			return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "failed to scan research item row")
		}

		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &item.SourceMetadata)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeStoragePersistent, "row iteration error")
	}
	return items, nil
}

// writeError maps a pgx write failure onto the pool's error taxonomy: unique
// violations become CodeItemExists, check violations CodeItemInvalid, other
// server-side errors CodeStoragePersistent, and transport failures
// CodeStorageUnavailable.
func writeError(err error, msg string) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return appErrors.Wrap(err, appErrors.CodeItemExists, "research item already exists")
		case pgCheckViolation:
			return appErrors.Wrap(err, appErrors.CodeItemInvalid, "storage constraint rejected the item")
		}
		return appErrors.Wrap(err, appErrors.CodeStoragePersistent, msg)
	}
	return appErrors.Wrap(err, appErrors.CodeStorageUnavailable, msg)
}
