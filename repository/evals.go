package repository

import (
	"context"
	"fmt"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
)

// EvalRepository stores agent evaluations. The eval type is stored with the
// record so test and live evals can be filtered server-side.
type EvalRepository struct {
	evals *storage.Collection[core.Eval]
}

var _ storage.EvalRepository = (*EvalRepository)(nil)

func newEvalRepository(backend storage.Backend, o *options) *EvalRepository {
	return &EvalRepository{
		evals: newCollection[core.Eval](backend, o, EvalsCollection, newestFirst),
	}
}

// SaveEval stores an evaluation. An unset Type is derived from TestInfo.
func (r *EvalRepository) SaveEval(ctx context.Context, eval *core.Eval) (*core.Eval, error) {
	if err := core.ValidateEval(eval); err != nil {
		return nil, err
	}
	record := *eval
	if record.Type == "" {
		record.Type = core.EvalTypeOf(&record)
	}
	saved, _, err := r.evals.Set(ctx, record.ID, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to save eval: %w", err)
	}
	return saved, nil
}

// GetEvalsByAgentName returns every eval of an agent, newest first.
// An empty evalType matches both kinds.
func (r *EvalRepository) GetEvalsByAgentName(ctx context.Context, agentName string, evalType core.EvalType) ([]*core.Eval, error) {
	filters := []storage.Filter{storage.Eq("agentName", agentName)}
	filters = eqIfSet(filters, "evalType", evalType)
	return r.evals.Find(ctx, filters, newestFirst, 0)
}

// GetEvals returns one page of evals.
func (r *EvalRepository) GetEvals(ctx context.Context, q core.EvalsQuery) (*core.Page[core.Eval], error) {
	var filters []storage.Filter
	filters = eqIfSet(filters, "agentName", q.AgentName)
	filters = eqIfSet(filters, "evalType", q.Type)
	filters = append(filters, dateFilters(storage.DefaultOrderField, q.DateRange)...)
	return r.evals.Page(ctx, filters, newestFirst, q.Pagination)
}
