package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/poiesic/agentstore/storage"
	"github.com/poiesic/agentstore/storage/badger"
	"github.com/stretchr/testify/require"
)

// countingBackend records the size of every commit and query sent to the wrapped backend.
type countingBackend struct {
	storage.Backend

	mu         sync.Mutex
	commits    []int
	queries    int
	failCommit int // 1-based commit number to fail, 0 for never
}

var errInjected = errors.New("injected failure")

func (c *countingBackend) Commit(ctx context.Context, ops []storage.WriteOp) error {
	c.mu.Lock()
	c.commits = append(c.commits, len(ops))
	n := len(c.commits)
	c.mu.Unlock()
	if c.failCommit == n {
		return errInjected
	}
	return c.Backend.Commit(ctx, ops)
}

func (c *countingBackend) Query(ctx context.Context, q storage.Query) ([]*storage.Document, error) {
	c.mu.Lock()
	c.queries++
	c.mu.Unlock()
	return c.Backend.Query(ctx, q)
}

func newCountingBackend(t *testing.T) *countingBackend {
	t.Helper()
	backend, err := badger.NewMemoryBackend()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return &countingBackend{Backend: backend}
}
