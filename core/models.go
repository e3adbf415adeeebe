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

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Thread is a conversation owned by exactly one resource.
type Thread struct {
	ID         string         `json:"id"`
	ResourceID string         `json:"resourceId"`
	Title      string         `json:"title"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Message is a single entry in a thread.
// Content is either plain text or a structured value (parts, tool calls).
type Message struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"threadId"`
	ResourceID string    `json:"resourceId"`
	Role       Role      `json:"role"`
	Type       string    `json:"type"`
	Content    any       `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MessageUpdate is a partial message update. Nil fields are left untouched.
type MessageUpdate struct {
	ID         string
	ThreadID   *string
	ResourceID *string
	Role       *Role
	Type       *string
	Content    any
}

// Resource holds working memory shared by the threads of one resource.
type Resource struct {
	ID            string         `json:"id"`
	WorkingMemory string         `json:"workingMemory"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// ScoreSource tells whether a score came from live traffic or a test run.
type ScoreSource string

const (
	ScoreSourceLive ScoreSource = "LIVE"
	ScoreSourceTest ScoreSource = "TEST"
)

// Score is the output of a scorer applied to an entity (agent, workflow, step).
type Score struct {
	ID                   string         `json:"id"`
	ScorerID             string         `json:"scorerId"`
	TraceID              string         `json:"traceId"`
	SpanID               string         `json:"spanId"`
	RunID                string         `json:"runId"`
	Scorer               map[string]any `json:"scorer"`
	PreprocessStepResult map[string]any `json:"preprocessStepResult"`
	AnalyzeStepResult    map[string]any `json:"analyzeStepResult"`
	Score                float64        `json:"score"`
	Reason               string         `json:"reason"`
	Metadata             map[string]any `json:"metadata"`
	Input                any            `json:"input"`
	Output               any            `json:"output"`
	AdditionalContext    map[string]any `json:"additionalContext"`
	RuntimeContext       map[string]any `json:"runtimeContext"`
	EntityType           string         `json:"entityType"`
	Entity               map[string]any `json:"entity"`
	EntityID             string         `json:"entityId"`
	Source               ScoreSource    `json:"source"`
	ResourceID           string         `json:"resourceId"`
	ThreadID             string         `json:"threadId"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// Trace is a legacy telemetry span as exported by the tracing pipeline.
// StartTime and EndTime are nanosecond epoch values.
type Trace struct {
	ID           string         `json:"id"`
	ParentSpanID string         `json:"parentSpanId"`
	Name         string         `json:"name"`
	TraceID      string         `json:"traceId"`
	Scope        string         `json:"scope"`
	Kind         int            `json:"kind"`
	Attributes   map[string]any `json:"attributes"`
	Status       map[string]any `json:"status"`
	Events       []any          `json:"events"`
	Links        []any          `json:"links"`
	Other        string         `json:"other"`
	StartTime    int64          `json:"startTime"`
	EndTime      int64          `json:"endTime"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// WorkflowStatus is the lifecycle state of a workflow run.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowSuccess   WorkflowStatus = "success"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowSuspended WorkflowStatus = "suspended"
	WorkflowWaiting   WorkflowStatus = "waiting"
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowCanceled  WorkflowStatus = "canceled"
)

// WorkflowRunState is the accumulated state of one workflow run.
// Context holds step results keyed by step id.
type WorkflowRunState struct {
	RunID               string            `json:"runId"`
	Status              WorkflowStatus    `json:"status"`
	Value               map[string]string `json:"value"`
	Context             map[string]any    `json:"context"`
	ActivePaths         []int             `json:"activePaths"`
	SerializedStepGraph []any             `json:"serializedStepGraph"`
	SuspendedPaths      map[string][]int  `json:"suspendedPaths"`
	WaitingPaths        map[string][]int  `json:"waitingPaths"`
	Result              any               `json:"result"`
	Error               any               `json:"error"`
	RuntimeContext      map[string]any    `json:"runtimeContext"`
	Timestamp           int64             `json:"timestamp"`
}

// WorkflowRun is the stored form of a workflow snapshot.
type WorkflowRun struct {
	WorkflowName string           `json:"workflowName"`
	RunID        string           `json:"runId"`
	ResourceID   string           `json:"resourceId"`
	Snapshot     WorkflowRunState `json:"snapshot"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// WorkflowStateUpdate lists the state fields to overwrite. Zero values are ignored.
type WorkflowStateUpdate struct {
	Status         WorkflowStatus
	Result         any
	Error          any
	SuspendedPaths map[string][]int
	WaitingPaths   map[string][]int
}

// EvalType separates evaluations produced by test suites from live ones.
type EvalType string

const (
	EvalTypeTest EvalType = "test"
	EvalTypeLive EvalType = "live"
)

// EvalTestInfo identifies the test that produced an evaluation.
type EvalTestInfo struct {
	TestName string `json:"testName"`
	TestPath string `json:"testPath"`
}

// Eval is a single metric evaluation of an agent output.
type Eval struct {
	ID           string         `json:"id"`
	AgentName    string         `json:"agentName"`
	Input        string         `json:"input"`
	Output       string         `json:"output"`
	Result       map[string]any `json:"result"`
	MetricName   string         `json:"metricName"`
	Instructions string         `json:"instructions"`
	TestInfo     *EvalTestInfo  `json:"testInfo"`
	GlobalRunID  string         `json:"globalRunId"`
	RunID        string         `json:"runId"`
	Type         EvalType       `json:"evalType"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// AISpan is an observability span keyed by (TraceID, SpanID).
// A span without ParentSpanID is the root of its trace.
type AISpan struct {
	TraceID      string         `json:"traceId"`
	SpanID       string         `json:"spanId"`
	ParentSpanID *string        `json:"parentSpanId"`
	Name         string         `json:"name"`
	SpanType     string         `json:"spanType"`
	EntityType   string         `json:"entityType"`
	EntityID     string         `json:"entityId"`
	Scope        map[string]any `json:"scope"`
	Attributes   map[string]any `json:"attributes"`
	Metadata     map[string]any `json:"metadata"`
	Links        []any          `json:"links"`
	Input        any            `json:"input"`
	Output       any            `json:"output"`
	Error        any            `json:"error"`
	IsEvent      bool           `json:"isEvent"`
	StartedAt    time.Time      `json:"startedAt"`
	EndedAt      *time.Time     `json:"endedAt"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// AISpanUpdate is a partial span update. Nil fields are left untouched.
type AISpanUpdate struct {
	Name       *string        `json:"name"`
	Attributes map[string]any `json:"attributes"`
	Metadata   map[string]any `json:"metadata"`
	Links      []any          `json:"links"`
	Input      any            `json:"input"`
	Output     any            `json:"output"`
	Error      any            `json:"error"`
	EndedAt    *time.Time     `json:"endedAt"`
}

// AITrace is a trace id with all of its spans ordered by start time.
type AITrace struct {
	TraceID string
	Spans   []*AISpan
}
