package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/autoprovision/internal/metadata"
	"github.com/kazz187/autoprovision/internal/skill"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/storage"
)

func newRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(s)
}

func newSkill(workspaceID, slug string) *skill.Skill {
	now := time.Now().UTC().Truncate(time.Second)
	return &skill.Skill{
		ID:          ulid.Make().String(),
		WorkspaceID: workspaceID,
		Slug:        slug,
		Name:        slug,
		Tags:        []string{"crm"},
		Status:      metadata.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestYAMLRepository_CreateAndFindBySlug(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	s := newSkill("W1", "hubspot-expert")
	s.Metadata.ApplyProvisioning(metadata.Provisioning{
		BlueprintVersion: 1,
		SyncedAt:         time.Now(),
		DiscoveryStatus:  metadata.DiscoveryComplete,
	})
	s.Metadata.Extra = map[string]any{"owner": "alice"}
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.FindBySlug(ctx, "W1", "hubspot-expert")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, 1, got.Metadata.BlueprintVersion)
	assert.Equal(t, "alice", got.Metadata.Extra["owner"])
	assert.True(t, got.Metadata.IsAutoProvisioned())

	_, err = repo.FindBySlug(ctx, "W2", "hubspot-expert")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestYAMLRepository_CreateDuplicateSlug(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Create(ctx, newSkill("W1", "hubspot-expert")))
	err := repo.Create(ctx, newSkill("W1", "hubspot-expert"))
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

	// Same slug in another workspace is fine.
	require.NoError(t, repo.Create(ctx, newSkill("W2", "hubspot-expert")))
}

func TestYAMLRepository_UpdateRejectsSlugChange(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	s := newSkill("W1", "a")
	require.NoError(t, repo.Create(ctx, s))

	s.Name = "renamed"
	require.NoError(t, repo.Update(ctx, s))
	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	s.Slug = "b"
	err = repo.Update(ctx, s)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	err = repo.Update(ctx, newSkill("W1", "missing"))
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestYAMLRepository_ListProvisioned(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	provisioned := func(ws string) *skill.Skill {
		s := newSkill(ws, "hubspot-expert")
		s.Metadata.ApplyProvisioning(metadata.Provisioning{BlueprintVersion: 1, SyncedAt: time.Now()})
		return s
	}
	require.NoError(t, repo.Create(ctx, provisioned("W1")))
	require.NoError(t, repo.Create(ctx, provisioned("W2")))
	require.NoError(t, repo.Create(ctx, newSkill("W3", "hubspot-expert")))
	require.NoError(t, repo.Create(ctx, newSkill("W1", "other")))

	got, err := repo.ListProvisioned(ctx, "hubspot-expert")
	require.NoError(t, err)
	require.Len(t, got, 2)
	workspaces := []string{got[0].WorkspaceID, got[1].WorkspaceID}
	assert.ElementsMatch(t, []string{"W1", "W2"}, workspaces)
}

func TestYAMLRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	for _, slug := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, newSkill("W1", slug)))
	}
	require.NoError(t, repo.Create(ctx, newSkill("W2", "d")))

	page, total, err := repo.List(ctx, "W1", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)

	all, total, err := repo.List(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, all, 4)
}

func TestYAMLRepository_Tools(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	s := newSkill("W1", "a")
	require.NoError(t, repo.Create(ctx, s))

	require.NoError(t, repo.AddTool(ctx, s.ID, "hubspot_search_contacts"))
	require.NoError(t, repo.AddTool(ctx, s.ID, "hubspot_create_deal"))
	require.NoError(t, repo.AddTool(ctx, s.ID, "odd/tool id"))

	err := repo.AddTool(ctx, s.ID, "hubspot_create_deal")
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

	ids, err := repo.ListToolIDs(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"hubspot_create_deal", "hubspot_search_contacts", "odd/tool id"}, ids)

	require.NoError(t, repo.RemoveTool(ctx, s.ID, "odd/tool id"))
	err = repo.RemoveTool(ctx, s.ID, "odd/tool id")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	ids, err = repo.ListToolIDs(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"hubspot_create_deal", "hubspot_search_contacts"}, ids)

	empty, err := repo.ListToolIDs(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
