package repositories

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

func TestNewResearchItemRepository(t *testing.T) {
	t.Parallel()

	repo := NewResearchItemRepository(nil, logging.NewNopLogger())
	assert.NotNil(t, repo)
}

func TestSortClause(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "created_at DESC", sortClause(rtypes.SortByDate))
	assert.Equal(t, "score DESC, created_at DESC", sortClause(rtypes.SortByScore))
}

func TestAppendFilterConditions(t *testing.T) {
	t.Parallel()

	source := rtypes.SourceBiomed
	minScore := 5.0
	compliance := rtypes.ComplianceCompliant
	filter := rtypes.QueryFilter{
		Source:     &source,
		Tags:       []string{"creatine", "sleep"},
		MinScore:   &minScore,
		Compliance: &compliance,
	}

	var args []interface{}
	argIdx := 0
	nextArg := func(v interface{}) string {
		argIdx++
		args = append(args, v)
		return fmt.Sprintf("$%d", argIdx)
	}

	conditions := appendFilterConditions(nil, filter, nextArg)

	require.Len(t, conditions, 4)
	assert.Equal(t, "source = $1", conditions[0])
	assert.Equal(t, "tags && $2::TEXT[]", conditions[1])
	assert.Equal(t, "score >= $3", conditions[2])
	assert.Equal(t, "compliance_status = $4", conditions[3])
	require.Len(t, args, 4)
	assert.Equal(t, source, args[0])
	assert.Equal(t, []string{"creatine", "sleep"}, args[1])
}

func TestWriteError_Mapping(t *testing.T) {
	t.Parallel()

	unique := &pgconn.PgError{Code: pgUniqueViolation}
	assert.True(t, appErrors.IsCode(writeError(unique, "insert failed"), appErrors.CodeItemExists))

	check := &pgconn.PgError{Code: pgCheckViolation}
	assert.True(t, appErrors.IsValidation(writeError(check, "insert failed")))

	other := &pgconn.PgError{Code: "42703"}
	assert.True(t, appErrors.IsCode(writeError(other, "insert failed"), appErrors.CodeStoragePersistent))

	assert.True(t, appErrors.IsCode(writeError(context.DeadlineExceeded, "insert failed"), appErrors.CodeStorageUnavailable))
}

func TestSearch_BlankQueryShortCircuits(t *testing.T) {
	t.Parallel()

	// A blank query must not reach the database at all, so a nil pool is safe.
	repo := NewResearchItemRepository(nil, logging.NewNopLogger())

	items, total, err := repo.Search(context.Background(), "   ", rtypes.NewQueryFilter())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
}

func TestQuery_RelevanceRequiresSearch(t *testing.T) {
	t.Parallel()

	repo := NewResearchItemRepository(nil, logging.NewNopLogger())

	filter := rtypes.NewQueryFilter()
	filter.Sort = rtypes.SortByRelevance
	_, _, err := repo.Query(context.Background(), filter)
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestQuery_InvalidFilterRejected(t *testing.T) {
	t.Parallel()

	repo := NewResearchItemRepository(nil, logging.NewNopLogger())

	bad := -1.0
	filter := rtypes.NewQueryFilter()
	filter.MinScore = &bad
	_, _, err := repo.Query(context.Background(), filter)
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}
