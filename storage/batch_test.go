package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/agentstore/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setOps(n int) []storage.WriteOp {
	ops := make([]storage.WriteOp, n)
	for i := range ops {
		ops[i] = storage.WriteOp{
			Kind:       storage.WriteSet,
			Collection: "items",
			ID:         fmt.Sprintf("item-%04d", i),
			Data:       map[string]any{"n": i},
		}
	}
	return ops
}

func TestBatchWrite_Windows(t *testing.T) {
	backend := newCountingBackend(t)
	ctx := context.Background()

	require.NoError(t, storage.BatchWrite(ctx, backend, setOps(1200), storage.MaxBatchSize))
	assert.Equal(t, []int{500, 500, 200}, backend.commits)

	count, err := backend.Count(ctx, storage.Query{Collection: "items"})
	require.NoError(t, err)
	assert.Equal(t, 1200, count)
}

func TestBatchWrite_SmallBatchIsOneCommit(t *testing.T) {
	backend := newCountingBackend(t)

	ops := storage.DeleteOps("items", "a", "b", "c", "d", "e", "f", "g")
	require.NoError(t, storage.BatchWrite(context.Background(), backend, ops, 0))
	assert.Equal(t, []int{7}, backend.commits)
}

func TestBatchWrite_EmptyIsNoop(t *testing.T) {
	backend := newCountingBackend(t)

	require.NoError(t, storage.BatchWrite(context.Background(), backend, nil, storage.MaxBatchSize))
	assert.Empty(t, backend.commits)
}

func TestBatchWrite_PartialFailure(t *testing.T) {
	backend := newCountingBackend(t)
	backend.failCommit = 2
	ctx := context.Background()

	err := storage.BatchWrite(ctx, backend, setOps(1200), storage.MaxBatchSize)
	require.Error(t, err)

	var batchErr *storage.BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 1, batchErr.Window)
	assert.Equal(t, 500, batchErr.Committed)
	assert.ErrorIs(t, err, errInjected)

	// The first window stays applied and the third was never attempted.
	assert.Equal(t, []int{500, 500}, backend.commits)
	count, err := backend.Count(ctx, storage.Query{Collection: "items"})
	require.NoError(t, err)
	assert.Equal(t, 500, count)
}
