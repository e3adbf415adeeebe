// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memory adapts stored threads to langchaingo's chat history, so
// chains and agents built on langchaingo can keep their conversation in
// agentstore.
package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// TextType is the message type recorded for history entries.
const TextType = "text"

var _ schema.ChatMessageHistory = (*ThreadHistory)(nil)

// ThreadHistory is a langchaingo chat history backed by one thread.
// The thread is created on the first write if it does not exist yet.
type ThreadHistory struct {
	threads    storage.ThreadRepository
	messages   storage.MessageRepository
	threadID   string
	resourceID string
	title      string
}

// Option configures a ThreadHistory.
type Option func(*ThreadHistory)

// WithTitle sets the title used when the thread has to be created.
func WithTitle(title string) Option {
	return func(h *ThreadHistory) {
		h.title = title
	}
}

// NewThreadHistory returns a history for threadID owned by resourceID.
func NewThreadHistory(threads storage.ThreadRepository, messages storage.MessageRepository, threadID, resourceID string, opts ...Option) (*ThreadHistory, error) {
	if threadID == "" {
		return nil, fmt.Errorf("%w: thread id is required", core.ErrMissingField)
	}
	if resourceID == "" {
		return nil, fmt.Errorf("%w: resource id is required", core.ErrMissingField)
	}
	h := &ThreadHistory{
		threads:    threads,
		messages:   messages,
		threadID:   threadID,
		resourceID: resourceID,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ThreadID returns the backing thread id.
func (h *ThreadHistory) ThreadID() string {
	return h.threadID
}

func (h *ThreadHistory) AddMessage(ctx context.Context, message llms.ChatMessage) error {
	return h.save(ctx, []llms.ChatMessage{message})
}

func (h *ThreadHistory) AddUserMessage(ctx context.Context, message string) error {
	return h.AddMessage(ctx, llms.HumanChatMessage{Content: message})
}

func (h *ThreadHistory) AddAIMessage(ctx context.Context, message string) error {
	return h.AddMessage(ctx, llms.AIChatMessage{Content: message})
}

// Clear deletes every message of the thread. The thread itself is kept.
func (h *ThreadHistory) Clear(ctx context.Context) error {
	stored, err := h.messages.GetMessages(ctx, core.MessagesQuery{ThreadID: h.threadID})
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return nil
	}
	ids := make([]string, len(stored))
	for i, m := range stored {
		ids[i] = m.ID
	}
	return h.messages.DeleteMessages(ctx, ids...)
}

// Messages returns the thread's messages in chronological order.
func (h *ThreadHistory) Messages(ctx context.Context) ([]llms.ChatMessage, error) {
	stored, err := h.messages.GetMessages(ctx, core.MessagesQuery{ThreadID: h.threadID})
	if err != nil {
		return nil, err
	}
	out := make([]llms.ChatMessage, 0, len(stored))
	for _, m := range stored {
		msg, err := toChatMessage(m)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// SetMessages replaces the thread's messages.
func (h *ThreadHistory) SetMessages(ctx context.Context, messages []llms.ChatMessage) error {
	if err := h.Clear(ctx); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	return h.save(ctx, messages)
}

func (h *ThreadHistory) save(ctx context.Context, messages []llms.ChatMessage) error {
	if err := h.ensureThread(ctx); err != nil {
		return err
	}
	records := make([]*core.Message, len(messages))
	for i, msg := range messages {
		role, err := roleOf(msg)
		if err != nil {
			return err
		}
		records[i] = &core.Message{
			ID:         uuid.NewString(),
			ThreadID:   h.threadID,
			ResourceID: h.resourceID,
			Role:       role,
			Type:       TextType,
			Content:    msg.GetContent(),
		}
	}
	_, err := h.messages.SaveMessages(ctx, records...)
	return err
}

func (h *ThreadHistory) ensureThread(ctx context.Context) error {
	thread, err := h.threads.GetThreadByID(ctx, h.threadID)
	if err != nil {
		return err
	}
	if thread != nil {
		return nil
	}
	_, err = h.threads.SaveThread(ctx, &core.Thread{
		ID:         h.threadID,
		ResourceID: h.resourceID,
		Title:      h.title,
	})
	return err
}

func roleOf(msg llms.ChatMessage) (core.Role, error) {
	switch msg.GetType() {
	case llms.ChatMessageTypeHuman:
		return core.RoleUser, nil
	case llms.ChatMessageTypeAI:
		return core.RoleAssistant, nil
	case llms.ChatMessageTypeSystem:
		return core.RoleSystem, nil
	case llms.ChatMessageTypeTool, llms.ChatMessageTypeFunction:
		return core.RoleTool, nil
	case llms.ChatMessageTypeGeneric:
		if generic, ok := msg.(llms.GenericChatMessage); ok {
			role := core.Role(generic.Role)
			if core.ValidateRole(role) == nil {
				return role, nil
			}
		}
		return core.RoleUser, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrInvalidRole, msg.GetType())
}

func toChatMessage(m *core.Message) (llms.ChatMessage, error) {
	content, err := contentText(m.Content)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", m.ID, err)
	}
	switch m.Role {
	case core.RoleUser:
		return llms.HumanChatMessage{Content: content}, nil
	case core.RoleAssistant:
		return llms.AIChatMessage{Content: content}, nil
	case core.RoleSystem:
		return llms.SystemChatMessage{Content: content}, nil
	case core.RoleTool:
		return llms.ToolChatMessage{ID: m.ID, Content: content}, nil
	}
	return llms.GenericChatMessage{Role: string(m.Role), Content: content}, nil
}

// contentText flattens structured content to its JSON form.
func contentText(content any) (string, error) {
	switch c := content.(type) {
	case nil:
		return "", nil
	case string:
		return c, nil
	}
	data, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
