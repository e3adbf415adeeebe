package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedItems(t *testing.T, backend storage.Backend, n int) {
	t.Helper()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ops := make([]storage.WriteOp, n)
	for i := range ops {
		ops[i] = storage.WriteOp{
			Kind:       storage.WriteSet,
			Collection: "items",
			ID:         fmt.Sprintf("item-%02d", i),
			Data: map[string]any{
				"n":         int64(i),
				"group":     fmt.Sprintf("g%d", i%2),
				"createdAt": base.Add(time.Duration(i) * time.Second),
			},
		}
	}
	require.NoError(t, backend.Commit(context.Background(), ops))
}

func TestNormalizePagination(t *testing.T) {
	p, err := storage.NormalizePagination(core.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, core.Pagination{Page: 1, PerPage: 20}, p)

	_, err = storage.NormalizePagination(core.Pagination{Page: -1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestPaginate_HasMoreAcrossPages(t *testing.T) {
	backend := newCountingBackend(t)
	seedItems(t, backend, 25)
	ctx := context.Background()

	tests := []struct {
		page    int
		items   int
		hasMore bool
		first   string
	}{
		{page: 1, items: 10, hasMore: true, first: "item-24"},
		{page: 2, items: 10, hasMore: true, first: "item-14"},
		{page: 3, items: 5, hasMore: false, first: "item-04"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			docs, info, err := storage.Paginate(ctx, backend, storage.PageQuery{
				Collection: "items",
				Pagination: core.Pagination{Page: tt.page, PerPage: 10},
			})
			require.NoError(t, err)
			require.Len(t, docs, tt.items)
			assert.Equal(t, 25, info.Total)
			assert.Equal(t, tt.hasMore, info.HasMore)
			assert.Equal(t, tt.first, docs[0].ID)
		})
	}
}

func TestPaginate_PastTheEnd(t *testing.T) {
	backend := newCountingBackend(t)
	seedItems(t, backend, 3)

	docs, info, err := storage.Paginate(context.Background(), backend, storage.PageQuery{
		Collection: "items",
		Pagination: core.Pagination{Page: 5, PerPage: 10},
	})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, 3, info.Total)
	assert.False(t, info.HasMore)
	assert.Zero(t, backend.queries, "no fetch after an out-of-range count")
}

func TestPaginate_FiltersAndAscending(t *testing.T) {
	backend := newCountingBackend(t)
	seedItems(t, backend, 10)

	docs, info, err := storage.Paginate(context.Background(), backend, storage.PageQuery{
		Collection: "items",
		Filters:    []storage.Filter{storage.Eq("group", "g1")},
		OrderBy:    core.OrderBy{Field: "n", Direction: core.SortAsc},
		Pagination: core.Pagination{PerPage: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, info.Total)
	assert.True(t, info.HasMore)
	require.Len(t, docs, 2)
	assert.Equal(t, "item-01", docs[0].ID)
	assert.Equal(t, "item-03", docs[1].ID)
}

func TestQueryIn_ChunksValues(t *testing.T) {
	backend := newCountingBackend(t)
	seedItems(t, backend, 30)

	ids := make([]any, 25)
	for i := range ids {
		ids[i] = int64(i)
	}

	docs, err := storage.QueryIn(context.Background(), backend, nil, storage.Query{Collection: "items"}, "n", ids)
	require.NoError(t, err)
	assert.Len(t, docs, 25)
	assert.Equal(t, 3, backend.queries)
}

func TestQueryIn_WithPool(t *testing.T) {
	backend := newCountingBackend(t)
	seedItems(t, backend, 30)

	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	defer pool.Release()

	ids := make([]any, 30)
	for i := range ids {
		ids[i] = int64(i)
	}
	docs, err := storage.QueryIn(context.Background(), backend, pool,
		storage.Query{Collection: "items", Filters: []storage.Filter{storage.Eq("group", "g0")}}, "n", ids)
	require.NoError(t, err)
	assert.Len(t, docs, 15)
	assert.Equal(t, 3, backend.queries)
}

func TestGetMany_Chunks(t *testing.T) {
	backend := newCountingBackend(t)
	seedItems(t, backend, 15)

	ids := make([]string, 0, 17)
	for i := 0; i < 15; i++ {
		ids = append(ids, fmt.Sprintf("item-%02d", i))
	}
	ids = append(ids, "missing-1", "missing-2")

	docs, err := storage.GetMany(context.Background(), backend, nil, "items", ids)
	require.NoError(t, err)
	assert.Len(t, docs, 15)
}
