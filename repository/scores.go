package repository

import (
	"context"
	"fmt"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
)

// ScoreRepository stores scorer results. Listings are newest first.
type ScoreRepository struct {
	scores *storage.Collection[core.Score]
}

var _ storage.ScoreRepository = (*ScoreRepository)(nil)

var newestFirst = core.OrderBy{Field: storage.DefaultOrderField, Direction: core.SortDesc}

func newScoreRepository(backend storage.Backend, o *options) *ScoreRepository {
	return &ScoreRepository{
		scores: newCollection[core.Score](backend, o, ScoresCollection, newestFirst),
	}
}

// GetScoreByID returns nil, nil when the score doesn't exist.
func (r *ScoreRepository) GetScoreByID(ctx context.Context, id string) (*core.Score, error) {
	return r.scores.Get(ctx, id)
}

// SaveScore validates and stores a score. A missing id is generated.
func (r *ScoreRepository) SaveScore(ctx context.Context, score *core.Score) (*core.Score, error) {
	if err := core.ValidateScore(score); err != nil {
		return nil, err
	}
	saved, _, err := r.scores.Set(ctx, score.ID, score)
	if err != nil {
		return nil, fmt.Errorf("failed to save score: %w", err)
	}
	return saved, nil
}

// GetScoresByScorerID lists the scores of a scorer, optionally narrowed
// by entity and source.
func (r *ScoreRepository) GetScoresByScorerID(ctx context.Context, q core.ScoresQuery) (*core.Page[core.Score], error) {
	filters := []storage.Filter{storage.Eq("scorerId", q.ScorerID)}
	filters = eqIfSet(filters, "entityId", q.EntityID)
	filters = eqIfSet(filters, "entityType", q.EntityType)
	filters = eqIfSet(filters, "source", q.Source)
	return r.scores.Page(ctx, filters, newestFirst, q.Pagination)
}

// GetScoresByRunID lists the scores recorded for a run.
func (r *ScoreRepository) GetScoresByRunID(ctx context.Context, q core.ScoresQuery) (*core.Page[core.Score], error) {
	return r.scores.Page(ctx, []storage.Filter{storage.Eq("runId", q.RunID)}, newestFirst, q.Pagination)
}

// GetScoresByEntityID lists the scores of one entity.
func (r *ScoreRepository) GetScoresByEntityID(ctx context.Context, q core.ScoresQuery) (*core.Page[core.Score], error) {
	filters := []storage.Filter{
		storage.Eq("entityId", q.EntityID),
		storage.Eq("entityType", q.EntityType),
	}
	return r.scores.Page(ctx, filters, newestFirst, q.Pagination)
}

// GetScoresBySpan lists the scores attached to one span of a trace.
func (r *ScoreRepository) GetScoresBySpan(ctx context.Context, q core.ScoresQuery) (*core.Page[core.Score], error) {
	filters := []storage.Filter{
		storage.Eq("traceId", q.TraceID),
		storage.Eq("spanId", q.SpanID),
	}
	return r.scores.Page(ctx, filters, newestFirst, q.Pagination)
}
