package repository

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
)

// ThreadRepository stores conversation threads.
type ThreadRepository struct {
	threads  *storage.Collection[core.Thread]
	messages *MessageRepository
	logger   *slog.Logger
}

var _ storage.ThreadRepository = (*ThreadRepository)(nil)

func newThreadCollection(backend storage.Backend, o *options) *storage.Collection[core.Thread] {
	return newCollection[core.Thread](backend, o, ThreadsCollection, core.OrderBy{Direction: core.SortAsc})
}

func newThreadRepository(backend storage.Backend, o *options, messages *MessageRepository) *ThreadRepository {
	return &ThreadRepository{
		threads:  newThreadCollection(backend, o),
		messages: messages,
		logger:   o.logger.With("repository", "threads"),
	}
}

// GetThreadByID returns nil, nil when the thread doesn't exist.
func (r *ThreadRepository) GetThreadByID(ctx context.Context, id string) (*core.Thread, error) {
	return r.threads.Get(ctx, id)
}

// GetThreadsByResourceID returns every thread of a resource.
func (r *ThreadRepository) GetThreadsByResourceID(ctx context.Context, q core.ThreadsQuery) ([]*core.Thread, error) {
	return r.threads.Find(ctx, []storage.Filter{storage.Eq("resourceId", q.ResourceID)}, q.OrderBy, 0)
}

// GetThreadsByResourceIDPaginated returns one page of a resource's threads.
// Ordering defaults to createdAt ascending.
func (r *ThreadRepository) GetThreadsByResourceIDPaginated(ctx context.Context, q core.ThreadsQuery) (*core.Page[core.Thread], error) {
	order := q.OrderBy
	if order.Field == "" {
		order = core.OrderBy{Field: storage.DefaultOrderField, Direction: core.SortAsc}
	}
	return r.threads.Page(ctx, []storage.Filter{storage.Eq("resourceId", q.ResourceID)}, order, q.Pagination)
}

// SaveThread creates or replaces a thread. A zero CreatedAt keeps the
// stored thread's creation time.
func (r *ThreadRepository) SaveThread(ctx context.Context, thread *core.Thread) (*core.Thread, error) {
	if err := core.ValidateThread(thread); err != nil {
		return nil, err
	}
	if thread.CreatedAt.IsZero() {
		existing, err := r.threads.Get(ctx, thread.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			copied := *thread
			copied.CreatedAt = existing.CreatedAt
			thread = &copied
		}
	}
	saved, _, err := r.threads.Set(ctx, thread.ID, thread)
	if err != nil {
		return nil, fmt.Errorf("failed to save thread %s: %w", thread.ID, err)
	}
	return saved, nil
}

// UpdateThread sets the title and merges metadata into an existing thread.
func (r *ThreadRepository) UpdateThread(ctx context.Context, id, title string, metadata map[string]any) (*core.Thread, error) {
	thread, err := r.threads.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, &storage.NotFoundError{Kind: "thread", ID: id}
	}

	merged := make(map[string]any, len(thread.Metadata)+len(metadata))
	maps.Copy(merged, thread.Metadata)
	maps.Copy(merged, metadata)

	now := r.threads.Now()
	fields, err := storage.Encode(map[string]any{"title": title, "metadata": merged})
	if err != nil {
		return nil, err
	}
	fields["updatedAt"] = now
	if err := r.threads.Merge(ctx, id, fields); err != nil {
		return nil, fmt.Errorf("failed to update thread %s: %w", id, err)
	}

	thread.Title = title
	thread.Metadata = merged
	thread.UpdatedAt = now
	return thread, nil
}

// DeleteThread removes a thread and then all of its messages.
// A failure after the thread is gone leaves its messages orphaned.
func (r *ThreadRepository) DeleteThread(ctx context.Context, id string) error {
	if err := r.threads.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete thread %s: %w", id, err)
	}
	n, err := r.messages.deleteByThread(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete messages of thread %s: %w", id, err)
	}
	r.logger.Debug("thread deleted", "thread", id, "messages", n)
	return nil
}
