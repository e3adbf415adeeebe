package repository

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
)

// MessageRepository stores thread messages.
type MessageRepository struct {
	messages *storage.Collection[core.Message]
	threads  *storage.Collection[core.Thread]
	logger   *slog.Logger
}

var _ storage.MessageRepository = (*MessageRepository)(nil)

var chronological = core.OrderBy{Field: storage.DefaultOrderField, Direction: core.SortAsc}

func newMessageRepository(backend storage.Backend, o *options) *MessageRepository {
	return &MessageRepository{
		messages: newCollection[core.Message](backend, o, MessagesCollection, chronological),
		threads:  newThreadCollection(backend, o),
		logger:   o.logger.With("repository", "messages"),
	}
}

// GetMessages returns messages of a thread in chronological order.
//
// With no selection every message of the thread is returned. SelectBy.Last
// keeps the most recent messages and SelectBy.Include adds specific messages
// with their surrounding context; when both are given the results are combined.
func (r *MessageRepository) GetMessages(ctx context.Context, q core.MessagesQuery) ([]*core.Message, error) {
	if q.ThreadID == "" {
		return nil, fmt.Errorf("%w: %w: threadId", core.ErrInvalidMessage, core.ErrMissingField)
	}
	sel := q.SelectBy
	if sel.Last <= 0 && len(sel.Include) == 0 {
		return r.messages.Find(ctx, r.threadFilters(q), chronological, 0)
	}

	seen := make(map[string]*core.Message)
	if len(sel.Include) > 0 {
		included, err := r.included(ctx, q.ThreadID, sel.Include)
		if err != nil {
			return nil, err
		}
		for _, m := range included {
			seen[m.ID] = m
		}
	}
	if sel.Last > 0 {
		latest, err := r.messages.Find(ctx, r.threadFilters(q),
			core.OrderBy{Field: storage.DefaultOrderField, Direction: core.SortDesc}, sel.Last)
		if err != nil {
			return nil, err
		}
		for _, m := range latest {
			seen[m.ID] = m
		}
	}

	out := make([]*core.Message, 0, len(seen))
	for _, m := range seen {
		out = append(out, m)
	}
	sortChronologically(out)
	return out, nil
}

// included resolves each include to the message and its neighbours within its thread.
func (r *MessageRepository) included(ctx context.Context, threadID string, includes []core.MessageInclude) ([]*core.Message, error) {
	byThread := make(map[string][]*core.Message)
	var out []*core.Message
	for _, inc := range includes {
		tid := inc.ThreadID
		if tid == "" {
			tid = threadID
		}
		thread, ok := byThread[tid]
		if !ok {
			var err error
			thread, err = r.messages.Find(ctx, []storage.Filter{storage.Eq("threadId", tid)}, chronological, 0)
			if err != nil {
				return nil, err
			}
			byThread[tid] = thread
		}

		idx := slices.IndexFunc(thread, func(m *core.Message) bool { return m.ID == inc.ID })
		if idx < 0 {
			continue
		}
		start := max(0, idx-inc.WithPreviousMessages)
		end := min(len(thread), idx+inc.WithNextMessages+1)
		out = append(out, thread[start:end]...)
	}
	return out, nil
}

// GetMessagesPaginated returns one page of a thread's messages, newest page
// first, with each page's items in chronological order.
func (r *MessageRepository) GetMessagesPaginated(ctx context.Context, q core.MessagesQuery) (*core.Page[core.Message], error) {
	if q.ThreadID == "" {
		return nil, fmt.Errorf("%w: %w: threadId", core.ErrInvalidMessage, core.ErrMissingField)
	}
	filters := append(r.threadFilters(q), dateFilters(storage.DefaultOrderField, q.DateRange)...)
	page, err := r.messages.Page(ctx, filters,
		core.OrderBy{Field: storage.DefaultOrderField, Direction: core.SortDesc}, q.Pagination)
	if err != nil {
		return nil, err
	}
	slices.Reverse(page.Items)
	return page, nil
}

// GetMessagesByID returns the messages that exist among ids in chronological order.
func (r *MessageRepository) GetMessagesByID(ctx context.Context, ids ...string) ([]*core.Message, error) {
	if len(ids) == 0 {
		return []*core.Message{}, nil
	}
	messages, err := r.messages.GetMany(ctx, ids...)
	if err != nil {
		return nil, err
	}
	sortChronologically(messages)
	return messages, nil
}

// SaveMessages writes messages in batches and stamps updatedAt on their threads.
// Messages without a CreatedAt get consecutive timestamps so their order is kept.
func (r *MessageRepository) SaveMessages(ctx context.Context, messages ...*core.Message) ([]*core.Message, error) {
	if len(messages) == 0 {
		return []*core.Message{}, nil
	}

	now := r.messages.Now()
	records := make([]storage.Keyed[core.Message], len(messages))
	threadIDs := make([]string, 0, 1)
	for i, m := range messages {
		if err := core.ValidateMessage(m); err != nil {
			return nil, err
		}
		record := *m
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
		records[i] = storage.Keyed[core.Message]{ID: record.ID, Record: &record}
		if !slices.Contains(threadIDs, record.ThreadID) {
			threadIDs = append(threadIDs, record.ThreadID)
		}
	}

	if err := r.messages.SetMany(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to save %d messages: %w", len(records), err)
	}
	if err := r.touchThreads(ctx, threadIDs); err != nil {
		return nil, err
	}

	saved := make([]*core.Message, len(records))
	for i, rec := range records {
		saved[i] = rec.Record
	}
	return saved, nil
}

// UpdateMessages applies partial updates. Every target must exist.
func (r *MessageRepository) UpdateMessages(ctx context.Context, updates ...core.MessageUpdate) ([]*core.Message, error) {
	if len(updates) == 0 {
		return []*core.Message{}, nil
	}

	ids := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
	}
	existing, err := r.messages.GetMany(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*core.Message, len(existing))
	for _, m := range existing {
		byID[m.ID] = m
	}

	var ops []storage.WriteOp
	var threadIDs []string
	addThread := func(id string) {
		if !slices.Contains(threadIDs, id) {
			threadIDs = append(threadIDs, id)
		}
	}
	for _, u := range updates {
		m, ok := byID[u.ID]
		if !ok {
			return nil, &storage.NotFoundError{Kind: "message", ID: u.ID}
		}
		addThread(m.ThreadID)

		fields := map[string]any{}
		if u.ThreadID != nil {
			fields["threadId"] = *u.ThreadID
			m.ThreadID = *u.ThreadID
			addThread(m.ThreadID)
		}
		if u.ResourceID != nil {
			fields["resourceId"] = *u.ResourceID
			m.ResourceID = *u.ResourceID
		}
		if u.Role != nil {
			if err := core.ValidateRole(*u.Role); err != nil {
				return nil, fmt.Errorf("%w: %w", core.ErrInvalidMessage, err)
			}
			fields["role"] = string(*u.Role)
			m.Role = *u.Role
		}
		if u.Type != nil {
			fields["type"] = *u.Type
			m.Type = *u.Type
		}
		if u.Content != nil {
			fields["content"] = u.Content
			m.Content = u.Content
		}
		encoded, err := storage.Encode(fields)
		if err != nil {
			return nil, err
		}
		ops = append(ops, r.messages.MergeOp(u.ID, encoded))
	}

	if err := r.messages.CommitAll(ctx, ops); err != nil {
		return nil, fmt.Errorf("failed to update %d messages: %w", len(ops), err)
	}
	if err := r.touchThreads(ctx, threadIDs); err != nil {
		return nil, err
	}

	out := make([]*core.Message, 0, len(updates))
	for _, u := range updates {
		out = append(out, byID[u.ID])
	}
	return out, nil
}

// DeleteMessages removes messages by id and stamps updatedAt on their threads.
func (r *MessageRepository) DeleteMessages(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	existing, err := r.messages.GetMany(ctx, ids...)
	if err != nil {
		return err
	}
	if err := r.messages.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("failed to delete %d messages: %w", len(ids), err)
	}

	var threadIDs []string
	for _, m := range existing {
		if !slices.Contains(threadIDs, m.ThreadID) {
			threadIDs = append(threadIDs, m.ThreadID)
		}
	}
	return r.touchThreads(ctx, threadIDs)
}

func (r *MessageRepository) deleteByThread(ctx context.Context, threadID string) (int, error) {
	return r.messages.DeleteWhere(ctx, []storage.Filter{storage.Eq("threadId", threadID)})
}

// touchThreads stamps updatedAt on the threads that exist among ids.
func (r *MessageRepository) touchThreads(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	threads, err := r.threads.GetMany(ctx, ids...)
	if err != nil {
		return err
	}
	ops := make([]storage.WriteOp, 0, len(threads))
	for _, t := range threads {
		ops = append(ops, r.threads.MergeOp(t.ID, nil))
	}
	if err := r.threads.CommitAll(ctx, ops); err != nil {
		return fmt.Errorf("failed to touch %d threads: %w", len(ops), err)
	}
	return nil
}

func (r *MessageRepository) threadFilters(q core.MessagesQuery) []storage.Filter {
	filters := []storage.Filter{storage.Eq("threadId", q.ThreadID)}
	return eqIfSet(filters, "resourceId", q.ResourceID)
}

func sortChronologically(messages []*core.Message) {
	slices.SortStableFunc(messages, func(a, b *core.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
