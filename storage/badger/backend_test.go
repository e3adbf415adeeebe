package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := NewMemoryBackend()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func set(collection, id string, data map[string]any) storage.WriteOp {
	return storage.WriteOp{Kind: storage.WriteSet, Collection: collection, ID: id, Data: data}
}

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := t.TempDir()
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)

	assert.False(t, backend.IsClosed())

	err = backend.Close()
	require.NoError(t, err)

	assert.True(t, backend.IsClosed())

	_, err = backend.Get(context.Background(), "threads", "t1")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestGet_NotFound(t *testing.T) {
	backend := newTestBackend(t)

	doc, err := backend.Get(context.Background(), "threads", "missing")
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	var notFound *storage.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.ID)
}

func TestCommit_SetAndGet(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	err := backend.Commit(ctx, []storage.WriteOp{
		set("threads", "t1", map[string]any{
			"title":     "hello",
			"createdAt": created,
			"metadata":  map[string]any{"tag": "x"},
		}),
	})
	require.NoError(t, err)

	doc, err := backend.Get(ctx, "threads", "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", doc.ID)
	assert.Equal(t, "hello", doc.Data["title"])
	assert.Equal(t, map[string]any{"tag": "x"}, doc.Data["metadata"])
	assert.False(t, doc.CreateTime.IsZero())

	stored, ok := storage.NormalizeTime(doc.Data["createdAt"])
	require.True(t, ok)
	assert.True(t, created.Equal(stored))
}

func TestCommit_MergeFieldPaths(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Commit(ctx, []storage.WriteOp{
		set("snapshots", "wf_run", map[string]any{
			"snapshot": map[string]any{
				"status":  "running",
				"context": map[string]any{"step1": "done"},
			},
		}),
	}))

	first, err := backend.Get(ctx, "snapshots", "wf_run")
	require.NoError(t, err)

	require.NoError(t, backend.Commit(ctx, []storage.WriteOp{{
		Kind:       storage.WriteMerge,
		Collection: "snapshots",
		ID:         "wf_run",
		Data:       map[string]any{"snapshot.context.step2": "done"},
	}}))

	doc, err := backend.Get(ctx, "snapshots", "wf_run")
	require.NoError(t, err)
	snapshot := doc.Data["snapshot"].(map[string]any)
	assert.Equal(t, "running", snapshot["status"])
	assert.Equal(t, map[string]any{"step1": "done", "step2": "done"}, snapshot["context"])
	assert.True(t, first.CreateTime.Equal(doc.CreateTime))
}

func TestCommit_MergeCreatesMissing(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Commit(ctx, []storage.WriteOp{{
		Kind: storage.WriteMerge, Collection: "resources", ID: "r1",
		Data: map[string]any{"workingMemory": "notes"},
	}}))

	doc, err := backend.Get(ctx, "resources", "r1")
	require.NoError(t, err)
	assert.Equal(t, "notes", doc.Data["workingMemory"])
}

func TestCommit_DeleteAndTooMany(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Commit(ctx, []storage.WriteOp{set("threads", "t1", map[string]any{"a": 1})}))
	require.NoError(t, backend.Commit(ctx, []storage.WriteOp{
		{Kind: storage.WriteDelete, Collection: "threads", ID: "t1"},
		{Kind: storage.WriteDelete, Collection: "threads", ID: "never-existed"},
	}))

	_, err := backend.Get(ctx, "threads", "t1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	ops := make([]storage.WriteOp, storage.MaxBatchSize+1)
	for i := range ops {
		ops[i] = storage.WriteOp{Kind: storage.WriteDelete, Collection: "threads", ID: "x"}
	}
	assert.ErrorIs(t, backend.Commit(ctx, ops), storage.ErrTooManyValues)
}

func TestGetAll(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Commit(ctx, []storage.WriteOp{
		set("messages", "m1", map[string]any{"content": "a"}),
		set("messages", "m2", map[string]any{"content": "b"}),
	}))

	docs, err := backend.GetAll(ctx, "messages", []string{"m1", "nope", "m2"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	_, err = backend.GetAll(ctx, "messages", make([]string, storage.MaxGetAllIDs+1))
	assert.ErrorIs(t, err, storage.ErrTooManyValues)
}

func seedScores(t *testing.T, backend *Backend) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ops []storage.WriteOp
	for i, runID := range []string{"r1", "r2", "r1", "r3", "r1"} {
		ops = append(ops, set("scores", string(rune('a'+i)), map[string]any{
			"runId":     runID,
			"score":     float64(i),
			"traceId":   nil,
			"createdAt": base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, backend.Commit(context.Background(), ops))
}

func TestQuery_FiltersOrderAndWindow(t *testing.T) {
	backend := newTestBackend(t)
	seedScores(t, backend)
	ctx := context.Background()

	docs, err := backend.Query(ctx, storage.Query{
		Collection: "scores",
		Filters:    []storage.Filter{storage.Eq("runId", "r1")},
		OrderBy:    []storage.Order{{Field: "createdAt", Direction: core.SortDesc}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"e", "c", "a"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})

	docs, err = backend.Query(ctx, storage.Query{
		Collection: "scores",
		OrderBy:    []storage.Order{{Field: "createdAt", Direction: core.SortAsc}},
		Offset:     1,
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)

	docs, err = backend.Query(ctx, storage.Query{Collection: "scores", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestQuery_TimeRangeAndIn(t *testing.T) {
	backend := newTestBackend(t)
	seedScores(t, backend)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	count, err := backend.Count(ctx, storage.Query{
		Collection: "scores",
		Filters: []storage.Filter{
			storage.Gte("createdAt", base.Add(time.Hour)),
			storage.Lte("createdAt", base.Add(3*time.Hour)),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = backend.Count(ctx, storage.Query{
		Collection: "scores",
		Filters:    []storage.Filter{storage.In("runId", []any{"r2", "r3"})},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = backend.Count(ctx, storage.Query{
		Collection: "scores",
		Filters:    []storage.Filter{storage.Eq("traceId", nil)},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	count, err = backend.Count(ctx, storage.Query{
		Collection: "scores",
		Filters:    []storage.Filter{storage.Gte("score", 3)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestQuery_RejectsBadFilters(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	values := make([]any, storage.MaxInFilterValues+1)
	_, err := backend.Query(ctx, storage.Query{
		Collection: "scores",
		Filters:    []storage.Filter{storage.In("runId", values)},
	})
	assert.ErrorIs(t, err, storage.ErrTooManyValues)

	_, err = backend.Query(ctx, storage.Query{})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestQuery_NestedField(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Commit(ctx, []storage.WriteOp{
		set("traces", "1", map[string]any{"attributes": map[string]any{"env": "prod"}}),
		set("traces", "2", map[string]any{"attributes": map[string]any{"env": "dev"}}),
	}))

	docs, err := backend.Query(ctx, storage.Query{
		Collection: "traces",
		Filters:    []storage.Filter{storage.Eq("attributes.env", "prod")},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0].ID)
}

func TestCollectionsAreIsolated(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Commit(ctx, []storage.WriteOp{
		set("threads", "1", map[string]any{}),
		set("threads_archive", "2", map[string]any{}),
	}))

	count, err := backend.Count(ctx, storage.Query{Collection: "threads"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCommit_PreservesIntegersAndTimes(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

	require.NoError(t, backend.Commit(ctx, []storage.WriteOp{
		set("traces", "t1", map[string]any{
			"startTime": int64(1700000000123456789),
			"ratio":     1.5,
			"at":        at,
			"nested":    map[string]any{"at": at, "list": []any{int64(7), at}},
		}),
	}))

	doc, err := backend.Get(ctx, "traces", "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123456789), doc.Data["startTime"])
	assert.Equal(t, 1.5, doc.Data["ratio"])
	assert.Equal(t, at, doc.Data["at"])
	assert.Equal(t, map[string]any{"at": at, "list": []any{int64(7), at}}, doc.Data["nested"])
}

func TestQuery_LargeIntegersCompareExactly(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Commit(ctx, []storage.WriteOp{
		set("traces", "a", map[string]any{"startTime": int64(1700000000123456789)}),
		set("traces", "b", map[string]any{"startTime": int64(1700000000123456790)}),
	}))

	docs, err := backend.Query(ctx, storage.Query{
		Collection: "traces",
		Filters:    []storage.Filter{storage.Eq("startTime", int64(1700000000123456789))},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)

	docs, err = backend.Query(ctx, storage.Query{
		Collection: "traces",
		OrderBy:    []storage.Order{{Field: "startTime", Direction: core.SortDesc}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)
}

func TestQuery_TimestampShapedStringsCompareAsStrings(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Commit(ctx, []storage.WriteOp{
		set("threads", "a", map[string]any{"resourceId": "2025-01-01T00:00:00Z"}),
		set("threads", "b", map[string]any{"resourceId": "2025-01-01"}),
		set("threads", "c", map[string]any{"resourceId": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}),
	}))

	docs, err := backend.Query(ctx, storage.Query{
		Collection: "threads",
		Filters:    []storage.Filter{storage.Eq("resourceId", "2025-01-01")},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].ID)

	count, err := backend.Count(ctx, storage.Query{
		Collection: "threads",
		Filters:    []storage.Filter{storage.Gte("resourceId", "2025-01-01")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count, "a string bound never matches a stored time")
}

func TestQuery_OrdersSubsecondTimes(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, backend.Commit(ctx, []storage.WriteOp{
		set("messages", "a", map[string]any{"createdAt": base.Add(500 * time.Millisecond)}),
		set("messages", "b", map[string]any{"createdAt": base}),
	}))

	docs, err := backend.Query(ctx, storage.Query{
		Collection: "messages",
		OrderBy:    []storage.Order{{Field: "createdAt", Direction: core.SortAsc}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, []string{"b", "a"}, []string{docs[0].ID, docs[1].ID})
}
