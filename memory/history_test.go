package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func newTestHistory(t *testing.T) (*ThreadHistory, *repository.Repositories) {
	t.Helper()
	var mu sync.Mutex
	current := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}

	repos, backend, err := repository.NewMemoryRepositories(repository.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	h, err := NewThreadHistory(repos.Threads, repos.Messages, "t1", "user-1", WithTitle("chat"))
	require.NoError(t, err)
	return h, repos
}

func TestNewThreadHistory_RequiresIDs(t *testing.T) {
	_, err := NewThreadHistory(nil, nil, "", "r")
	assert.ErrorIs(t, err, core.ErrMissingField)

	_, err = NewThreadHistory(nil, nil, "t", "")
	assert.ErrorIs(t, err, core.ErrMissingField)
}

func TestThreadHistory_AddAndRead(t *testing.T) {
	ctx := context.Background()
	h, repos := newTestHistory(t)

	require.NoError(t, h.AddMessage(ctx, llms.SystemChatMessage{Content: "be brief"}))
	require.NoError(t, h.AddUserMessage(ctx, "hello"))
	require.NoError(t, h.AddAIMessage(ctx, "hi"))

	thread, err := repos.Threads.GetThreadByID(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, thread)
	assert.Equal(t, "user-1", thread.ResourceID)
	assert.Equal(t, "chat", thread.Title)

	messages, err := h.Messages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []llms.ChatMessage{
		llms.SystemChatMessage{Content: "be brief"},
		llms.HumanChatMessage{Content: "hello"},
		llms.AIChatMessage{Content: "hi"},
	}, messages)

	stored, err := repos.Messages.GetMessages(ctx, core.MessagesQuery{ThreadID: "t1"})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, core.RoleSystem, stored[0].Role)
	assert.Equal(t, core.RoleUser, stored[1].Role)
	assert.Equal(t, core.RoleAssistant, stored[2].Role)
	assert.Equal(t, TextType, stored[2].Type)
}

func TestThreadHistory_SetMessagesReplaces(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)

	require.NoError(t, h.AddUserMessage(ctx, "old"))
	require.NoError(t, h.SetMessages(ctx, []llms.ChatMessage{
		llms.HumanChatMessage{Content: "new question"},
		llms.AIChatMessage{Content: "new answer"},
	}))

	messages, err := h.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "new question", messages[0].GetContent())
	assert.Equal(t, "new answer", messages[1].GetContent())
}

func TestThreadHistory_ClearKeepsThread(t *testing.T) {
	ctx := context.Background()
	h, repos := newTestHistory(t)

	require.NoError(t, h.AddUserMessage(ctx, "hello"))
	require.NoError(t, h.Clear(ctx))

	messages, err := h.Messages(ctx)
	require.NoError(t, err)
	assert.Empty(t, messages)

	thread, err := repos.Threads.GetThreadByID(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, thread)
}

func TestThreadHistory_StructuredContent(t *testing.T) {
	ctx := context.Background()
	h, repos := newTestHistory(t)

	_, err := repos.Threads.SaveThread(ctx, &core.Thread{ID: "t1", ResourceID: "user-1"})
	require.NoError(t, err)
	_, err = repos.Messages.SaveMessages(ctx, &core.Message{
		ID:       "m1",
		ThreadID: "t1",
		Role:     core.RoleTool,
		Content:  map[string]any{"result": 42},
	})
	require.NoError(t, err)

	messages, err := h.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, llms.ChatMessageTypeTool, messages[0].GetType())
	assert.JSONEq(t, `{"result":42}`, messages[0].GetContent())
}

func TestRoleOf(t *testing.T) {
	tests := []struct {
		msg  llms.ChatMessage
		want core.Role
	}{
		{llms.HumanChatMessage{}, core.RoleUser},
		{llms.AIChatMessage{}, core.RoleAssistant},
		{llms.SystemChatMessage{}, core.RoleSystem},
		{llms.ToolChatMessage{}, core.RoleTool},
		{llms.GenericChatMessage{Role: "assistant"}, core.RoleAssistant},
		{llms.GenericChatMessage{Role: "narrator"}, core.RoleUser},
	}
	for _, tt := range tests {
		got, err := roleOf(tt.msg)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "type %s", tt.msg.GetType())
	}
}
