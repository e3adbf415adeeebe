package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
)

const startedAtField = "startedAt"

// SpanRepository stores AI observability spans under {traceId}_{spanId}.
type SpanRepository struct {
	spans  *storage.Collection[core.AISpan]
	pool   *ants.Pool
	logger *slog.Logger
}

var _ storage.SpanRepository = (*SpanRepository)(nil)

func newSpanRepository(backend storage.Backend, o *options) *SpanRepository {
	return &SpanRepository{
		spans:  newCollection[core.AISpan](backend, o, SpansCollection, core.OrderBy{Field: startedAtField, Direction: core.SortAsc}),
		pool:   o.pool,
		logger: o.logger.With("repository", "spans"),
	}
}

// SpanKey returns the document id of a span.
func SpanKey(traceID, spanID string) string {
	return traceID + "_" + spanID
}

// CreateAISpan stores a new span.
func (r *SpanRepository) CreateAISpan(ctx context.Context, span *core.AISpan) error {
	if err := core.ValidateAISpan(span); err != nil {
		return err
	}
	if _, _, err := r.spans.Set(ctx, SpanKey(span.TraceID, span.SpanID), span); err != nil {
		return fmt.Errorf("failed to create span %s: %w", SpanKey(span.TraceID, span.SpanID), err)
	}
	return nil
}

// BatchCreateAISpans stores spans in batches.
func (r *SpanRepository) BatchCreateAISpans(ctx context.Context, spans ...*core.AISpan) error {
	records := make([]storage.Keyed[core.AISpan], len(spans))
	for i, span := range spans {
		if err := core.ValidateAISpan(span); err != nil {
			return err
		}
		records[i] = storage.Keyed[core.AISpan]{ID: SpanKey(span.TraceID, span.SpanID), Record: span}
	}
	if err := r.spans.SetMany(ctx, records); err != nil {
		return fmt.Errorf("failed to create %d spans: %w", len(spans), err)
	}
	return nil
}

// GetAITrace returns every span of a trace ordered by start time,
// or nil, nil when the trace has no spans.
func (r *SpanRepository) GetAITrace(ctx context.Context, traceID string) (*core.AITrace, error) {
	spans, err := r.spans.Find(ctx, []storage.Filter{storage.Eq("traceId", traceID)}, core.OrderBy{}, 0)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, nil
	}
	return &core.AITrace{TraceID: traceID, Spans: spans}, nil
}

// UpdateAISpan overwrites the non-nil fields of update on an existing span.
func (r *SpanRepository) UpdateAISpan(ctx context.Context, traceID, spanID string, update core.AISpanUpdate) error {
	return r.BatchUpdateAISpans(ctx, storage.SpanUpdate{TraceID: traceID, SpanID: spanID, Update: update})
}

// BatchUpdateAISpans applies partial updates in batches. Every target must exist;
// nothing is written when one is missing.
func (r *SpanRepository) BatchUpdateAISpans(ctx context.Context, updates ...storage.SpanUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	keys := make([]string, len(updates))
	for i, u := range updates {
		keys[i] = SpanKey(u.TraceID, u.SpanID)
	}
	existing, err := r.spans.GetMany(ctx, keys...)
	if err != nil {
		return err
	}
	found := make(map[string]bool, len(existing))
	for _, span := range existing {
		found[SpanKey(span.TraceID, span.SpanID)] = true
	}

	ops := make([]storage.WriteOp, len(updates))
	for i, u := range updates {
		if !found[keys[i]] {
			return &storage.NotFoundError{Kind: "span", ID: keys[i]}
		}
		fields, err := storage.EncodePartial(&u.Update)
		if err != nil {
			return err
		}
		ops[i] = r.spans.MergeOp(keys[i], fields)
	}
	if err := r.spans.CommitAll(ctx, ops); err != nil {
		return fmt.Errorf("failed to update %d spans: %w", len(ops), err)
	}
	return nil
}

// GetAITracesPaginated returns a page of root spans, most recently started first.
func (r *SpanRepository) GetAITracesPaginated(ctx context.Context, q core.AITracesQuery) (*core.Page[core.AISpan], error) {
	filters := []storage.Filter{storage.Eq("parentSpanId", nil)}
	filters = eqIfSet(filters, "name", q.Name)
	filters = eqIfSet(filters, "spanType", q.SpanType)
	filters = eqIfSet(filters, "entityId", q.EntityID)
	filters = eqIfSet(filters, "entityType", q.EntityType)
	filters = append(filters, dateFilters(startedAtField, q.DateRange)...)
	return r.spans.Page(ctx, filters, core.OrderBy{Field: startedAtField, Direction: core.SortDesc}, q.Pagination)
}

// BatchDeleteAITraces removes every span of the given traces.
func (r *SpanRepository) BatchDeleteAITraces(ctx context.Context, traceIDs ...string) error {
	if len(traceIDs) == 0 {
		return nil
	}
	values := make([]any, len(traceIDs))
	for i, id := range traceIDs {
		values[i] = id
	}
	docs, err := storage.QueryIn(ctx, r.spans.Backend(), r.pool,
		storage.Query{Collection: r.spans.Name()}, "traceId", values)
	if err != nil {
		return err
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	if err := r.spans.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("failed to delete spans of %d traces: %w", len(traceIDs), err)
	}
	r.logger.Debug("traces deleted", "traces", len(traceIDs), "spans", len(ids))
	return nil
}
