package repository

import (
	"context"
	"fmt"
	"maps"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
)

// WorkflowRepository stores workflow run snapshots under {workflowName}_{runId}.
//
// Step results and state changes are merged into the stored snapshot field by
// field. Updates read, merge and write without concurrency control, so two
// concurrent updates of the same field race and the later one wins.
type WorkflowRepository struct {
	runs *storage.Collection[core.WorkflowRun]
}

var _ storage.WorkflowRepository = (*WorkflowRepository)(nil)

func newWorkflowRepository(backend storage.Backend, o *options) *WorkflowRepository {
	return &WorkflowRepository{
		runs: newCollection[core.WorkflowRun](backend, o, WorkflowsCollection, newestFirst),
	}
}

// WorkflowKey returns the document id of a workflow run.
func WorkflowKey(workflowName, runID string) string {
	return workflowName + "_" + runID
}

// PersistWorkflowSnapshot replaces the snapshot of a run, keeping its original createdAt.
func (r *WorkflowRepository) PersistWorkflowSnapshot(ctx context.Context, workflowName, runID, resourceID string, snapshot core.WorkflowRunState) error {
	if err := core.ValidateWorkflowKey(workflowName, runID); err != nil {
		return err
	}
	key := WorkflowKey(workflowName, runID)
	existing, err := r.runs.Get(ctx, key)
	if err != nil {
		return err
	}

	run := &core.WorkflowRun{
		WorkflowName: workflowName,
		RunID:        runID,
		ResourceID:   resourceID,
		Snapshot:     snapshot,
	}
	if existing != nil {
		run.CreatedAt = existing.CreatedAt
		if resourceID == "" {
			run.ResourceID = existing.ResourceID
		}
	}
	if _, _, err := r.runs.Set(ctx, key, run); err != nil {
		return fmt.Errorf("failed to persist snapshot %s: %w", key, err)
	}
	return nil
}

// LoadWorkflowSnapshot returns nil, nil when no snapshot exists.
func (r *WorkflowRepository) LoadWorkflowSnapshot(ctx context.Context, workflowName, runID string) (*core.WorkflowRunState, error) {
	run, err := r.runs.Get(ctx, WorkflowKey(workflowName, runID))
	if err != nil || run == nil {
		return nil, err
	}
	return &run.Snapshot, nil
}

// GetWorkflowRuns lists runs newest first with the total number of matches.
func (r *WorkflowRepository) GetWorkflowRuns(ctx context.Context, q core.WorkflowRunsQuery) (*core.WorkflowRuns, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return nil, fmt.Errorf("%w: limit %d, offset %d", storage.ErrInvalidQuery, q.Limit, q.Offset)
	}
	var filters []storage.Filter
	filters = eqIfSet(filters, "workflowName", q.WorkflowName)
	filters = eqIfSet(filters, "resourceId", q.ResourceID)
	filters = append(filters, dateFilters(storage.DefaultOrderField, q.DateRange)...)

	total, err := r.runs.Count(ctx, filters)
	if err != nil {
		return nil, err
	}
	runs := []*core.WorkflowRun{}
	if q.Offset < total {
		runs, err = r.runs.Slice(ctx, filters, newestFirst, q.Offset, q.Limit)
		if err != nil {
			return nil, err
		}
	}
	return &core.WorkflowRuns{Runs: runs, Total: total}, nil
}

// GetWorkflowRunByID returns nil, nil when the run doesn't exist.
// An empty workflowName matches a run of any workflow.
func (r *WorkflowRepository) GetWorkflowRunByID(ctx context.Context, runID, workflowName string) (*core.WorkflowRun, error) {
	if workflowName != "" {
		return r.runs.Get(ctx, WorkflowKey(workflowName, runID))
	}
	runs, err := r.runs.Find(ctx, []storage.Filter{storage.Eq("runId", runID)}, newestFirst, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// UpdateWorkflowResults stores result under stepID in the run's context and
// merges runtimeContext into the stored one. Results of other steps are kept.
// A missing snapshot is created in the running state.
func (r *WorkflowRepository) UpdateWorkflowResults(ctx context.Context, workflowName, runID, stepID string, result any, runtimeContext map[string]any) (map[string]any, error) {
	if err := core.ValidateWorkflowKey(workflowName, runID); err != nil {
		return nil, err
	}
	key := WorkflowKey(workflowName, runID)
	run, err := r.runs.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if run == nil {
		snapshot := core.WorkflowRunState{
			RunID:          runID,
			Status:         core.WorkflowRunning,
			Value:          map[string]string{},
			Context:        map[string]any{stepID: result},
			ActivePaths:    []int{},
			SuspendedPaths: map[string][]int{},
			WaitingPaths:   map[string][]int{},
			RuntimeContext: runtimeContext,
			Timestamp:      r.runs.Now().UnixMilli(),
		}
		run = &core.WorkflowRun{WorkflowName: workflowName, RunID: runID, Snapshot: snapshot}
		saved, _, err := r.runs.Set(ctx, key, run)
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot %s: %w", key, err)
		}
		return saved.Snapshot.Context, nil
	}

	stepContext := make(map[string]any, len(run.Snapshot.Context)+1)
	maps.Copy(stepContext, run.Snapshot.Context)
	stepContext[stepID] = result

	merged := make(map[string]any, len(run.Snapshot.RuntimeContext)+len(runtimeContext))
	maps.Copy(merged, run.Snapshot.RuntimeContext)
	maps.Copy(merged, runtimeContext)

	fields, err := storage.Encode(map[string]any{
		"snapshot.context":        stepContext,
		"snapshot.runtimeContext": merged,
	})
	if err != nil {
		return nil, err
	}
	if err := r.runs.Merge(ctx, key, fields); err != nil {
		return nil, fmt.Errorf("failed to update results of %s: %w", key, err)
	}
	return fields["snapshot.context"].(map[string]any), nil
}

// UpdateWorkflowState overwrites the given state fields of an existing snapshot.
func (r *WorkflowRepository) UpdateWorkflowState(ctx context.Context, workflowName, runID string, update core.WorkflowStateUpdate) (*core.WorkflowRunState, error) {
	key := WorkflowKey(workflowName, runID)
	run, err := r.runs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, &storage.NotFoundError{Kind: "workflow snapshot", ID: key}
	}

	state := run.Snapshot
	fields := map[string]any{}
	if update.Status != "" {
		state.Status = update.Status
		fields["snapshot.status"] = string(update.Status)
	}
	if update.Result != nil {
		state.Result = update.Result
		fields["snapshot.result"] = update.Result
	}
	if update.Error != nil {
		state.Error = update.Error
		fields["snapshot.error"] = update.Error
	}
	if update.SuspendedPaths != nil {
		state.SuspendedPaths = update.SuspendedPaths
		fields["snapshot.suspendedPaths"] = update.SuspendedPaths
	}
	if update.WaitingPaths != nil {
		state.WaitingPaths = update.WaitingPaths
		fields["snapshot.waitingPaths"] = update.WaitingPaths
	}

	encoded, err := storage.Encode(fields)
	if err != nil {
		return nil, err
	}
	if err := r.runs.Merge(ctx, key, encoded); err != nil {
		return nil, fmt.Errorf("failed to update state of %s: %w", key, err)
	}
	return &state, nil
}
