package repository

import (
	"context"
	"fmt"
	"maps"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
)

// ResourceRepository stores resources and their working memory.
type ResourceRepository struct {
	resources *storage.Collection[core.Resource]
}

var _ storage.ResourceRepository = (*ResourceRepository)(nil)

func newResourceRepository(backend storage.Backend, o *options) *ResourceRepository {
	return &ResourceRepository{
		resources: newCollection[core.Resource](backend, o, ResourcesCollection, core.OrderBy{}),
	}
}

// GetResourceByID returns nil, nil when the resource doesn't exist.
func (r *ResourceRepository) GetResourceByID(ctx context.Context, id string) (*core.Resource, error) {
	return r.resources.Get(ctx, id)
}

// SaveResource creates or replaces a resource, keeping the stored creation
// time when CreatedAt is zero.
func (r *ResourceRepository) SaveResource(ctx context.Context, resource *core.Resource) (*core.Resource, error) {
	if err := core.ValidateResource(resource); err != nil {
		return nil, err
	}
	if resource.CreatedAt.IsZero() {
		existing, err := r.resources.Get(ctx, resource.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			copied := *resource
			copied.CreatedAt = existing.CreatedAt
			resource = &copied
		}
	}
	saved, _, err := r.resources.Set(ctx, resource.ID, resource)
	if err != nil {
		return nil, fmt.Errorf("failed to save resource %s: %w", resource.ID, err)
	}
	return saved, nil
}

// UpdateResource replaces working memory when workingMemory is non-nil and
// merges metadata key by key.
func (r *ResourceRepository) UpdateResource(ctx context.Context, id string, workingMemory *string, metadata map[string]any) (*core.Resource, error) {
	resource, err := r.resources.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if resource == nil {
		return nil, &storage.NotFoundError{Kind: "resource", ID: id}
	}

	fields := map[string]any{}
	if workingMemory != nil {
		resource.WorkingMemory = *workingMemory
		fields["workingMemory"] = *workingMemory
	}
	if metadata != nil {
		merged := make(map[string]any, len(resource.Metadata)+len(metadata))
		maps.Copy(merged, resource.Metadata)
		maps.Copy(merged, metadata)
		resource.Metadata = merged
		fields["metadata"] = merged
	}

	encoded, err := storage.Encode(fields)
	if err != nil {
		return nil, err
	}
	now := r.resources.Now()
	encoded["updatedAt"] = now
	if err := r.resources.Merge(ctx, id, encoded); err != nil {
		return nil, fmt.Errorf("failed to update resource %s: %w", id, err)
	}
	resource.UpdatedAt = now
	return resource, nil
}
