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

// ThreadsQuery lists the threads of one resource.
type ThreadsQuery struct {
	ResourceID string
	OrderBy    OrderBy
	Pagination Pagination
}

// MessageInclude asks for a message plus surrounding context from its thread.
type MessageInclude struct {
	ID                   string
	ThreadID             string
	WithPreviousMessages int
	WithNextMessages     int
}

// MessageSelect narrows a message listing.
// Last keeps only the most recent Last messages; zero keeps all of them.
type MessageSelect struct {
	Last    int
	Include []MessageInclude
}

// MessagesQuery lists messages of one thread.
type MessagesQuery struct {
	ThreadID   string
	ResourceID string
	SelectBy   MessageSelect
	Pagination Pagination
	DateRange  DateRange
}

// ScoresQuery filters scores. Empty fields are not filtered on.
type ScoresQuery struct {
	ScorerID   string
	RunID      string
	EntityID   string
	EntityType string
	Source     ScoreSource
	TraceID    string
	SpanID     string
	Pagination Pagination
}

// TracesQuery filters legacy traces. Attributes and Filters are equality matches.
type TracesQuery struct {
	Name       string
	Scope      string
	Attributes map[string]any
	Filters    map[string]any
	DateRange  DateRange
	Pagination Pagination
}

// WorkflowRunsQuery filters workflow runs. Limit and Offset page the result when Limit > 0.
type WorkflowRunsQuery struct {
	WorkflowName string
	ResourceID   string
	DateRange    DateRange
	Limit        int
	Offset       int
}

// WorkflowRuns is a window of workflow runs with the total number of matches.
type WorkflowRuns struct {
	Runs  []*WorkflowRun
	Total int
}

// EvalsQuery filters evaluations. An empty Type matches both test and live evals.
type EvalsQuery struct {
	AgentName  string
	Type       EvalType
	DateRange  DateRange
	Pagination Pagination
}

// AITracesQuery filters root spans. Empty fields are not filtered on.
type AITracesQuery struct {
	Name       string
	SpanType   string
	EntityID   string
	EntityType string
	DateRange  DateRange
	Pagination Pagination
}
