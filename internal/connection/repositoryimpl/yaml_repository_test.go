package repositoryimpl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/autoprovision/internal/connection"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/storage"
)

func TestYAMLRepository(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewYAMLRepository(s)

	require.NoError(t, repo.Create(ctx, &connection.Connection{ID: "C1", WorkspaceID: "W1", OrganizationID: "O1", ProviderKey: "hubspot", IsActive: true}))
	require.NoError(t, repo.Create(ctx, &connection.Connection{ID: "C2", WorkspaceID: "W1", OrganizationID: "O1", ProviderKey: "gmail", IsActive: false}))
	require.NoError(t, repo.Create(ctx, &connection.Connection{ID: "C3", WorkspaceID: "W2", OrganizationID: "O2", ProviderKey: "hubspot", IsActive: true}))

	assert.True(t, cerr.IsCode(repo.Create(ctx, &connection.Connection{ID: "C1"}), cerr.AlreadyExists))

	got, err := repo.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "hubspot", got.ProviderKey)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	list, total, err := repo.List(ctx, "W1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, list, 2)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "C1", active[0].ID)
	assert.Equal(t, "C3", active[1].ID)

	got.IsActive = false
	require.NoError(t, repo.Update(ctx, got))
	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, repo.Delete(ctx, "C2"))
	assert.True(t, cerr.IsCode(repo.Delete(ctx, "C2"), cerr.NotFound))
}
