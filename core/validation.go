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

package core

import (
	"fmt"
	"math"
)

// ValidateThread validates a Thread before it is saved.
//
// Validation rules:
//   - ID must not be empty
//   - ResourceID must not be empty
func ValidateThread(thread *Thread) error {
	if thread == nil {
		return fmt.Errorf("%w: thread is nil", ErrInvalidThread)
	}
	if thread.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidThread, ErrEmptyID)
	}
	if thread.ResourceID == "" {
		return fmt.Errorf("%w: %w: resourceId", ErrInvalidThread, ErrMissingField)
	}
	return nil
}

// ValidateMessage validates a Message before it is saved.
//
// Validation rules:
//   - ID and ThreadID must not be empty
//   - Role must be one of user, assistant, system, tool
func ValidateMessage(message *Message) error {
	if message == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}
	if message.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyID)
	}
	if message.ThreadID == "" {
		return fmt.Errorf("%w: %w: threadId", ErrInvalidMessage, ErrMissingField)
	}
	if err := ValidateRole(message.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}

// ValidateRole validates that a Role has a known value.
func ValidateRole(role Role) error {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidRole, role)
}

// ValidateResource validates a Resource before it is saved.
func ValidateResource(resource *Resource) error {
	if resource == nil {
		return fmt.Errorf("%w: resource is nil", ErrInvalidResource)
	}
	if resource.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidResource, ErrEmptyID)
	}
	return nil
}

// ValidateScore validates a Score before it is saved.
//
// Validation rules:
//   - ScorerID, EntityID, EntityType and Source must not be empty
//   - Score must be a finite number
//
// NOT validated (generated on save):
//   - ID, CreatedAt, UpdatedAt
func ValidateScore(score *Score) error {
	if score == nil {
		return fmt.Errorf("%w: score is nil", ErrInvalidScore)
	}
	required := []struct {
		name  string
		value string
	}{
		{"scorerId", score.ScorerID},
		{"entityId", score.EntityID},
		{"entityType", score.EntityType},
		{"source", string(score.Source)},
	}
	for _, field := range required {
		if field.value == "" {
			return fmt.Errorf("%w: %w: %s", ErrInvalidScore, ErrMissingField, field.name)
		}
	}
	if math.IsNaN(score.Score) || math.IsInf(score.Score, 0) {
		return fmt.Errorf("%w: score must be finite", ErrInvalidScore)
	}
	return nil
}

// ValidateEval validates an Eval before it is saved.
func ValidateEval(eval *Eval) error {
	if eval == nil {
		return fmt.Errorf("%w: eval is nil", ErrInvalidEval)
	}
	if eval.AgentName == "" {
		return fmt.Errorf("%w: %w: agentName", ErrInvalidEval, ErrMissingField)
	}
	return nil
}

// ValidateAISpan validates an AISpan before it is created.
func ValidateAISpan(span *AISpan) error {
	if span == nil {
		return fmt.Errorf("%w: span is nil", ErrInvalidSpan)
	}
	if span.TraceID == "" {
		return fmt.Errorf("%w: %w: traceId", ErrInvalidSpan, ErrMissingField)
	}
	if span.SpanID == "" {
		return fmt.Errorf("%w: %w: spanId", ErrInvalidSpan, ErrMissingField)
	}
	return nil
}

// ValidateWorkflowKey validates the (workflowName, runID) pair that keys a snapshot.
func ValidateWorkflowKey(workflowName, runID string) error {
	if workflowName == "" {
		return fmt.Errorf("%w: %w: workflowName", ErrInvalidWorkflowKey, ErrMissingField)
	}
	if runID == "" {
		return fmt.Errorf("%w: %w: runId", ErrInvalidWorkflowKey, ErrMissingField)
	}
	return nil
}

// EvalTypeOf reports whether an eval came from a test suite or from live traffic.
func EvalTypeOf(eval *Eval) EvalType {
	if eval.TestInfo != nil && eval.TestInfo.TestPath != "" {
		return EvalTypeTest
	}
	return EvalTypeLive
}
