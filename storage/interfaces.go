package storage

import (
	"context"
	"time"

	"github.com/poiesic/agentstore/core"
)

const (
	// MaxBatchSize is the largest number of writes a backend commits atomically.
	MaxBatchSize = 500

	// MaxInFilterValues is the largest number of values a single "in" filter may carry.
	MaxInFilterValues = 10

	// MaxGetAllIDs is the largest number of documents fetched by one GetAll call.
	MaxGetAllIDs = 10
)

// Op is a comparison operator usable in a Filter.
type Op string

const (
	OpEqual          Op = "=="
	OpGreater        Op = ">"
	OpGreaterOrEqual Op = ">="
	OpLess           Op = "<"
	OpLessOrEqual    Op = "<="
	OpIn             Op = "in"
)

// Filter is a single predicate on a document field. Dotted field names address nested maps.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq matches documents whose field equals value.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// Gte matches documents whose field is greater than or equal to value.
func Gte(field string, value any) Filter {
	return Filter{Field: field, Op: OpGreaterOrEqual, Value: value}
}

// Lte matches documents whose field is less than or equal to value.
func Lte(field string, value any) Filter {
	return Filter{Field: field, Op: OpLessOrEqual, Value: value}
}

// In matches documents whose field equals any of values.
func In(field string, values []any) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

// Order sorts a query by one field.
type Order struct {
	Field     string
	Direction core.SortDirection
}

// Query selects documents of one collection. Filters are combined with AND.
// A zero Limit returns every match.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    []Order
	Offset     int
	Limit      int
}

// Document is a stored document as read back from a backend.
type Document struct {
	ID         string
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

// WriteKind selects what a WriteOp does to its target document.
type WriteKind int

const (
	// WriteSet replaces the whole document, creating it if needed.
	WriteSet WriteKind = iota
	// WriteMerge writes the given fields into the document, creating it if needed.
	// Each key is a dotted field path; the value replaces whatever is stored at
	// that path and every other field is left untouched.
	WriteMerge
	// WriteDelete removes the document. Deleting a missing document is not an error.
	WriteDelete
)

// WriteOp is one write inside an atomic commit.
type WriteOp struct {
	Kind       WriteKind
	Collection string
	ID         string
	Data       map[string]any
}

// Backend is a document store. Implementations must be safe for concurrent use;
// all repositories share one Backend handle.
type Backend interface {
	// Get returns a single document. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// GetAll returns the documents that exist among ids, in no particular order.
	// At most MaxGetAllIDs ids may be passed.
	GetAll(ctx context.Context, collection string, ids []string) ([]*Document, error)

	// Query returns the documents matching q.
	Query(ctx context.Context, q Query) ([]*Document, error)

	// Count returns how many documents match the filters of q.
	// Ordering, offset and limit are ignored.
	Count(ctx context.Context, q Query) (int, error)

	// Commit applies ops atomically. At most MaxBatchSize ops may be passed.
	Commit(ctx context.Context, ops []WriteOp) error

	// NewID returns a fresh document id for collection.
	NewID(collection string) string

	// Close releases the backend. Shared handles are closed by their owner only.
	Close() error
}

// ThreadRepository provides operations for conversation threads.
type ThreadRepository interface {
	// GetThreadByID returns nil, nil when the thread doesn't exist.
	GetThreadByID(ctx context.Context, id string) (*core.Thread, error)

	// GetThreadsByResourceID returns every thread of a resource, sorted by q.OrderBy.
	GetThreadsByResourceID(ctx context.Context, q core.ThreadsQuery) ([]*core.Thread, error)

	// GetThreadsByResourceIDPaginated returns one page of a resource's threads.
	GetThreadsByResourceIDPaginated(ctx context.Context, q core.ThreadsQuery) (*core.Page[core.Thread], error)

	// SaveThread creates or replaces a thread.
	SaveThread(ctx context.Context, thread *core.Thread) (*core.Thread, error)

	// UpdateThread sets the title and merges metadata into an existing thread.
	// Returns a *NotFoundError if the thread doesn't exist.
	UpdateThread(ctx context.Context, id, title string, metadata map[string]any) (*core.Thread, error)

	// DeleteThread removes a thread and then all of its messages.
	DeleteThread(ctx context.Context, id string) error
}

// MessageRepository provides operations for thread messages.
type MessageRepository interface {
	// GetMessages returns messages of a thread in chronological order.
	GetMessages(ctx context.Context, q core.MessagesQuery) ([]*core.Message, error)

	// GetMessagesPaginated returns one page of a thread's messages in chronological order.
	GetMessagesPaginated(ctx context.Context, q core.MessagesQuery) (*core.Page[core.Message], error)

	// GetMessagesByID returns the messages that exist among ids.
	GetMessagesByID(ctx context.Context, ids ...string) ([]*core.Message, error)

	// SaveMessages writes messages in batches and touches their threads' UpdatedAt.
	SaveMessages(ctx context.Context, messages ...*core.Message) ([]*core.Message, error)

	// UpdateMessages applies partial updates. Returns a *NotFoundError if any message is missing.
	UpdateMessages(ctx context.Context, updates ...core.MessageUpdate) ([]*core.Message, error)

	// DeleteMessages removes messages by id.
	DeleteMessages(ctx context.Context, ids ...string) error
}

// ResourceRepository provides operations for resources and their working memory.
type ResourceRepository interface {
	// GetResourceByID returns nil, nil when the resource doesn't exist.
	GetResourceByID(ctx context.Context, id string) (*core.Resource, error)

	// SaveResource creates or replaces a resource.
	SaveResource(ctx context.Context, resource *core.Resource) (*core.Resource, error)

	// UpdateResource replaces working memory (when non-nil) and merges metadata.
	// Returns a *NotFoundError if the resource doesn't exist.
	UpdateResource(ctx context.Context, id string, workingMemory *string, metadata map[string]any) (*core.Resource, error)
}

// ScoreRepository provides operations for scorer results.
type ScoreRepository interface {
	GetScoreByID(ctx context.Context, id string) (*core.Score, error)
	SaveScore(ctx context.Context, score *core.Score) (*core.Score, error)
	GetScoresByScorerID(ctx context.Context, q core.ScoresQuery) (*core.Page[core.Score], error)
	GetScoresByRunID(ctx context.Context, q core.ScoresQuery) (*core.Page[core.Score], error)
	GetScoresByEntityID(ctx context.Context, q core.ScoresQuery) (*core.Page[core.Score], error)
	GetScoresBySpan(ctx context.Context, q core.ScoresQuery) (*core.Page[core.Score], error)
}

// TraceRepository provides operations for legacy telemetry traces.
type TraceRepository interface {
	GetTraceByID(ctx context.Context, id string) (*core.Trace, error)
	GetTracesPaginated(ctx context.Context, q core.TracesQuery) (*core.Page[core.Trace], error)
	BatchTraceInsert(ctx context.Context, traces ...*core.Trace) error
}

// WorkflowRepository provides operations for workflow snapshots.
type WorkflowRepository interface {
	// PersistWorkflowSnapshot replaces the snapshot of a run.
	PersistWorkflowSnapshot(ctx context.Context, workflowName, runID, resourceID string, snapshot core.WorkflowRunState) error

	// LoadWorkflowSnapshot returns nil, nil when no snapshot exists.
	LoadWorkflowSnapshot(ctx context.Context, workflowName, runID string) (*core.WorkflowRunState, error)

	GetWorkflowRuns(ctx context.Context, q core.WorkflowRunsQuery) (*core.WorkflowRuns, error)

	// GetWorkflowRunByID returns nil, nil when the run doesn't exist.
	// An empty workflowName matches a run of any workflow.
	GetWorkflowRunByID(ctx context.Context, runID, workflowName string) (*core.WorkflowRun, error)

	// UpdateWorkflowResults merges one step result into the run's context and returns the merged context.
	// A missing snapshot is created.
	UpdateWorkflowResults(ctx context.Context, workflowName, runID, stepID string, result any, runtimeContext map[string]any) (map[string]any, error)

	// UpdateWorkflowState merges state fields into an existing snapshot.
	// Returns a *NotFoundError if the snapshot doesn't exist.
	UpdateWorkflowState(ctx context.Context, workflowName, runID string, update core.WorkflowStateUpdate) (*core.WorkflowRunState, error)
}

// EvalRepository provides operations for agent evaluations.
type EvalRepository interface {
	SaveEval(ctx context.Context, eval *core.Eval) (*core.Eval, error)
	GetEvalsByAgentName(ctx context.Context, agentName string, evalType core.EvalType) ([]*core.Eval, error)
	GetEvals(ctx context.Context, q core.EvalsQuery) (*core.Page[core.Eval], error)
}

// SpanRepository provides operations for AI observability spans.
type SpanRepository interface {
	CreateAISpan(ctx context.Context, span *core.AISpan) error
	BatchCreateAISpans(ctx context.Context, spans ...*core.AISpan) error

	// GetAITrace returns nil, nil when the trace has no spans.
	GetAITrace(ctx context.Context, traceID string) (*core.AITrace, error)

	// UpdateAISpan applies a partial update. Returns a *NotFoundError if the span doesn't exist.
	UpdateAISpan(ctx context.Context, traceID, spanID string, update core.AISpanUpdate) error

	BatchUpdateAISpans(ctx context.Context, updates ...SpanUpdate) error

	// GetAITracesPaginated returns a page of root spans.
	GetAITracesPaginated(ctx context.Context, q core.AITracesQuery) (*core.Page[core.AISpan], error)

	BatchDeleteAITraces(ctx context.Context, traceIDs ...string) error
}

// SpanUpdate addresses one span in a batch update.
type SpanUpdate struct {
	TraceID string
	SpanID  string
	Update  core.AISpanUpdate
}

// TableRepository provides schemaless operations on arbitrary collections.
type TableRepository interface {
	CreateTable(ctx context.Context, table string) error
	AlterTable(ctx context.Context, table string) error
	ClearTable(ctx context.Context, table string) error
	DropTable(ctx context.Context, table string) error
	Insert(ctx context.Context, table string, record map[string]any) error
	BatchInsert(ctx context.Context, table string, records []map[string]any) error

	// Load returns the first record whose fields equal keys, or nil, nil.
	Load(ctx context.Context, table string, keys map[string]any) (map[string]any, error)
}
