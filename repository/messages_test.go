package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedThread saves thread t1 with messages m1..mN one minute apart.
func seedThread(t *testing.T, repos *Repositories, n int) *core.Thread {
	t.Helper()
	ctx := context.Background()
	thread, err := repos.Threads.SaveThread(ctx, &core.Thread{ID: "t1", ResourceID: "r1"})
	require.NoError(t, err)

	messages := make([]*core.Message, n)
	for i := range messages {
		messages[i] = &core.Message{
			ID:         fmt.Sprintf("m%d", i+1),
			ThreadID:   "t1",
			ResourceID: "r1",
			Role:       core.RoleUser,
			Type:       "text",
			Content:    fmt.Sprintf("message %d", i+1),
			CreatedAt:  epoch.Add(time.Duration(i) * time.Minute),
		}
	}
	_, err = repos.Messages.SaveMessages(ctx, messages...)
	require.NoError(t, err)
	return thread
}

func messageIDs(messages []*core.Message) []string {
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	return ids
}

func TestGetMessages_Selection(t *testing.T) {
	repos, _ := newTestRepos(t)
	seedThread(t, repos, 6)
	ctx := context.Background()

	tests := []struct {
		name     string
		selectBy core.MessageSelect
		want     []string
	}{
		{
			name: "all",
			want: []string{"m1", "m2", "m3", "m4", "m5", "m6"},
		},
		{
			name:     "last",
			selectBy: core.MessageSelect{Last: 2},
			want:     []string{"m5", "m6"},
		},
		{
			name: "include with context",
			selectBy: core.MessageSelect{Include: []core.MessageInclude{
				{ID: "m3", WithPreviousMessages: 1, WithNextMessages: 1},
			}},
			want: []string{"m2", "m3", "m4"},
		},
		{
			name: "include and last",
			selectBy: core.MessageSelect{Last: 1, Include: []core.MessageInclude{
				{ID: "m2", WithPreviousMessages: 5},
			}},
			want: []string{"m1", "m2", "m6"},
		},
		{
			name: "unknown include",
			selectBy: core.MessageSelect{Include: []core.MessageInclude{
				{ID: "nope", WithNextMessages: 2},
			}},
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, err := repos.Messages.GetMessages(ctx, core.MessagesQuery{ThreadID: "t1", SelectBy: tt.selectBy})
			require.NoError(t, err)
			assert.Equal(t, tt.want, messageIDs(messages))
		})
	}
}

func TestGetMessages_RequiresThread(t *testing.T) {
	repos, _ := newTestRepos(t)

	_, err := repos.Messages.GetMessages(context.Background(), core.MessagesQuery{})
	assert.ErrorIs(t, err, core.ErrMissingField)
}

func TestGetMessagesPaginated(t *testing.T) {
	repos, _ := newTestRepos(t)
	seedThread(t, repos, 6)
	ctx := context.Background()

	page, err := repos.Messages.GetMessagesPaginated(ctx, core.MessagesQuery{
		ThreadID:   "t1",
		Pagination: core.Pagination{Page: 1, PerPage: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m4", "m5", "m6"}, messageIDs(page.Items))
	assert.Equal(t, 6, page.Pagination.Total)
	assert.True(t, page.Pagination.HasMore)

	page, err = repos.Messages.GetMessagesPaginated(ctx, core.MessagesQuery{
		ThreadID:   "t1",
		Pagination: core.Pagination{Page: 2, PerPage: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, messageIDs(page.Items))
	assert.False(t, page.Pagination.HasMore)

	page, err = repos.Messages.GetMessagesPaginated(ctx, core.MessagesQuery{
		ThreadID:  "t1",
		DateRange: core.DateRange{Start: epoch.Add(time.Minute), End: epoch.Add(3 * time.Minute)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3", "m4"}, messageIDs(page.Items))
	assert.Equal(t, core.PaginationInfo{Page: 1, PerPage: 20, Total: 3}, page.Pagination)
}

func TestSaveMessages_TouchesThread(t *testing.T) {
	repos, _ := newTestRepos(t)
	ctx := context.Background()

	thread, err := repos.Threads.SaveThread(ctx, &core.Thread{ID: "t1", ResourceID: "r1"})
	require.NoError(t, err)

	saved, err := repos.Messages.SaveMessages(ctx,
		&core.Message{ID: "a", ThreadID: "t1", Role: core.RoleUser, Content: "hi"},
		&core.Message{ID: "b", ThreadID: "t1", Role: core.RoleAssistant, Content: "hello"},
	)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.True(t, saved[0].CreatedAt.Before(saved[1].CreatedAt))

	touched, err := repos.Threads.GetThreadByID(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, touched.UpdatedAt.After(thread.UpdatedAt))

	messages, err := repos.Messages.GetMessages(ctx, core.MessagesQuery{ThreadID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, messageIDs(messages))
}

func TestSaveMessages_Invalid(t *testing.T) {
	repos, _ := newTestRepos(t)

	_, err := repos.Messages.SaveMessages(context.Background(), &core.Message{ID: "a", ThreadID: "t1", Role: "robot"})
	assert.ErrorIs(t, err, core.ErrInvalidRole)
}

func TestSaveMessages_Chunked(t *testing.T) {
	repos, backend := newTestRepos(t)
	ctx := context.Background()

	messages := make([]*core.Message, 1200)
	for i := range messages {
		messages[i] = &core.Message{ID: fmt.Sprintf("m%04d", i), ThreadID: "big", Role: core.RoleUser}
	}
	_, err := repos.Messages.SaveMessages(ctx, messages...)
	require.NoError(t, err)

	count, err := backend.Count(ctx, storage.Query{
		Collection: MessagesCollection,
		Filters:    []storage.Filter{storage.Eq("threadId", "big")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1200, count)
}

func TestGetMessagesByID(t *testing.T) {
	repos, _ := newTestRepos(t)
	seedThread(t, repos, 25)

	ids := []string{"m25", "m3", "missing"}
	for i := 4; i <= 15; i++ {
		ids = append(ids, fmt.Sprintf("m%d", i))
	}
	messages, err := repos.Messages.GetMessagesByID(context.Background(), ids...)
	require.NoError(t, err)
	require.Len(t, messages, 14)
	assert.Equal(t, "m3", messages[0].ID)
	assert.Equal(t, "m25", messages[13].ID)
}

func TestUpdateMessages(t *testing.T) {
	repos, _ := newTestRepos(t)
	seedThread(t, repos, 2)
	ctx := context.Background()

	role := core.RoleAssistant
	updated, err := repos.Messages.UpdateMessages(ctx, core.MessageUpdate{
		ID:      "m1",
		Role:    &role,
		Content: map[string]any{"parts": []any{"edited"}},
	})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, core.RoleAssistant, updated[0].Role)

	messages, err := repos.Messages.GetMessagesByID(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, core.RoleAssistant, messages[0].Role)
	assert.Equal(t, map[string]any{"parts": []any{"edited"}}, messages[0].Content)
	assert.Equal(t, "text", messages[0].Type)
	assert.True(t, epoch.Equal(messages[0].CreatedAt))

	_, err = repos.Messages.UpdateMessages(ctx, core.MessageUpdate{ID: "ghost", Role: &role})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteMessages(t *testing.T) {
	repos, _ := newTestRepos(t)
	seedThread(t, repos, 3)
	ctx := context.Background()

	require.NoError(t, repos.Messages.DeleteMessages(ctx, "m1", "m3", "never-existed"))

	messages, err := repos.Messages.GetMessages(ctx, core.MessagesQuery{ThreadID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, messageIDs(messages))
}
