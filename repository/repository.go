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

// Package repository binds the agent record kinds to document collections.
//
// Each repository is a thin configuration of storage.Collection: a collection
// name, its default ordering and the filters its listings accept. All
// repositories of a Repositories bundle share one backend handle, which the
// caller owns and closes.
package repository

import (
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
)

// Collection names, before any prefix is applied.
const (
	ThreadsCollection   = "threads"
	MessagesCollection  = "messages"
	ResourcesCollection = "resources"
	ScoresCollection    = "scores"
	TracesCollection    = "traces"
	WorkflowsCollection = "workflow_snapshots"
	EvalsCollection     = "evals"
	SpansCollection     = "ai_spans"
)

// Collections lists every collection the repositories write to.
var Collections = []string{
	ThreadsCollection,
	MessagesCollection,
	ResourcesCollection,
	ScoresCollection,
	TracesCollection,
	WorkflowsCollection,
	EvalsCollection,
	SpansCollection,
}

// Option configures the repositories.
type Option func(*options)

type options struct {
	prefix string
	pool   *ants.Pool
	logger *slog.Logger
	now    func() time.Time
}

// WithCollectionPrefix prepends prefix to every collection name,
// so several stores can share one database.
func WithCollectionPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithPool runs chunked reads concurrently on pool. The pool is not released by the repositories.
func WithPool(pool *ants.Pool) Option {
	return func(o *options) {
		o.pool = pool
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source for createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) name(collection string) string {
	return o.prefix + collection
}

func newCollection[T any](backend storage.Backend, o *options, collection string, order core.OrderBy) *storage.Collection[T] {
	return storage.NewCollection[T](backend, o.name(collection), order,
		storage.WithPool(o.pool),
		storage.WithLogger(o.logger),
		storage.WithClock(o.now),
	)
}

// Repositories bundles one repository per record kind over a shared backend.
type Repositories struct {
	Threads   *ThreadRepository
	Messages  *MessageRepository
	Resources *ResourceRepository
	Scores    *ScoreRepository
	Traces    *TraceRepository
	Workflows *WorkflowRepository
	Evals     *EvalRepository
	Spans     *SpanRepository
	Tables    *TableRepository
}

// New builds every repository on backend.
func New(backend storage.Backend, opts ...Option) *Repositories {
	o := buildOptions(opts)
	messages := newMessageRepository(backend, o)
	return &Repositories{
		Threads:   newThreadRepository(backend, o, messages),
		Messages:  messages,
		Resources: newResourceRepository(backend, o),
		Scores:    newScoreRepository(backend, o),
		Traces:    newTraceRepository(backend, o),
		Workflows: newWorkflowRepository(backend, o),
		Evals:     newEvalRepository(backend, o),
		Spans:     newSpanRepository(backend, o),
		Tables:    newTableRepository(backend, o),
	}
}

// dateFilters bounds field by r. Open ends add no filter.
func dateFilters(field string, r core.DateRange) []storage.Filter {
	var filters []storage.Filter
	if !r.Start.IsZero() {
		filters = append(filters, storage.Gte(field, r.Start))
	}
	if !r.End.IsZero() {
		filters = append(filters, storage.Lte(field, r.End))
	}
	return filters
}

// eqIfSet adds an equality filter when value is not empty.
func eqIfSet[S ~string](filters []storage.Filter, field string, value S) []storage.Filter {
	if value == "" {
		return filters
	}
	return append(filters, storage.Eq(field, string(value)))
}
