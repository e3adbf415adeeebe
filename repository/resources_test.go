package repository

import (
	"context"
	"testing"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResources(t *testing.T) {
	repos, _ := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Resources.SaveResource(ctx, &core.Resource{
		ID:            "r1",
		WorkingMemory: "# Notes",
		Metadata:      map[string]any{"plan": "free"},
	})
	require.NoError(t, err)

	updated, err := repos.Resources.UpdateResource(ctx, "r1", nil, map[string]any{"seats": "3"})
	require.NoError(t, err)
	assert.Equal(t, "# Notes", updated.WorkingMemory)
	assert.Equal(t, map[string]any{"plan": "free", "seats": "3"}, updated.Metadata)

	memory := "# Notes\n- likes Go"
	_, err = repos.Resources.UpdateResource(ctx, "r1", &memory, nil)
	require.NoError(t, err)

	got, err := repos.Resources.GetResourceByID(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, memory, got.WorkingMemory)
	assert.Equal(t, map[string]any{"plan": "free", "seats": "3"}, got.Metadata)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	_, err = repos.Resources.UpdateResource(ctx, "ghost", &memory, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	missing, err := repos.Resources.GetResourceByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveResource_ResaveKeepsCreatedAt(t *testing.T) {
	repos, _ := newTestRepos(t)
	ctx := context.Background()

	first, err := repos.Resources.SaveResource(ctx, &core.Resource{ID: "r1", WorkingMemory: "v1"})
	require.NoError(t, err)

	_, err = repos.Resources.SaveResource(ctx, &core.Resource{ID: "r1", WorkingMemory: "v2"})
	require.NoError(t, err)

	got, err := repos.Resources.GetResourceByID(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.WorkingMemory)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, got.UpdatedAt.After(first.UpdatedAt))
}
