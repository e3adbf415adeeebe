package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
)

// TraceRepository stores legacy telemetry traces.
type TraceRepository struct {
	traces *storage.Collection[core.Trace]
}

var _ storage.TraceRepository = (*TraceRepository)(nil)

func newTraceRepository(backend storage.Backend, o *options) *TraceRepository {
	return &TraceRepository{
		traces: newCollection[core.Trace](backend, o, TracesCollection, newestFirst),
	}
}

// GetTraceByID returns nil, nil when the trace doesn't exist.
func (r *TraceRepository) GetTraceByID(ctx context.Context, id string) (*core.Trace, error) {
	return r.traces.Get(ctx, id)
}

// GetTracesPaginated lists traces newest first. Name and scope match exactly;
// every attribute and filter entry is an equality match, attributes under
// the attributes map.
func (r *TraceRepository) GetTracesPaginated(ctx context.Context, q core.TracesQuery) (*core.Page[core.Trace], error) {
	var filters []storage.Filter
	filters = eqIfSet(filters, "name", q.Name)
	filters = eqIfSet(filters, "scope", q.Scope)
	for _, key := range slices.Sorted(maps.Keys(q.Attributes)) {
		filters = append(filters, storage.Eq("attributes."+key, q.Attributes[key]))
	}
	for _, key := range slices.Sorted(maps.Keys(q.Filters)) {
		filters = append(filters, storage.Eq(key, q.Filters[key]))
	}
	filters = append(filters, dateFilters(storage.DefaultOrderField, q.DateRange)...)
	return r.traces.Page(ctx, filters, newestFirst, q.Pagination)
}

// BatchTraceInsert stores traces in batches. Traces without an id get a generated one.
func (r *TraceRepository) BatchTraceInsert(ctx context.Context, traces ...*core.Trace) error {
	records := make([]storage.Keyed[core.Trace], len(traces))
	for i, t := range traces {
		records[i] = storage.Keyed[core.Trace]{ID: t.ID, Record: t}
	}
	if err := r.traces.SetMany(ctx, records); err != nil {
		return fmt.Errorf("failed to insert %d traces: %w", len(traces), err)
	}
	return nil
}
