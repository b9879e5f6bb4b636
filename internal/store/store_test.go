package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/autoprovision/internal/connection"
	"github.com/kazz187/autoprovision/internal/metadata"
	"github.com/kazz187/autoprovision/internal/skill"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/storage"
)

func newYAMLStore(t *testing.T) *YAMLStore {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLStore(s)
}

// storesUnderTest returns the yaml store plus a postgres store when
// AUTOPROVISION_TEST_POSTGRES_DSN is set.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{"yaml": newYAMLStore(t)}
	if dsn := os.Getenv("AUTOPROVISION_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := OpenPostgres(context.Background(), dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = pg.Close() })
		stores["postgres"] = pg
	}
	return stores
}

func testSkill(workspaceID string) *skill.Skill {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &skill.Skill{
		ID:          ulid.Make().String(),
		WorkspaceID: workspaceID,
		Slug:        "hubspot-expert",
		Name:        "HubSpot Expert",
		Status:      metadata.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestStore_TransactionCommit(t *testing.T) {
	for name, st := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ws := ulid.Make().String()
			sk := testSkill(ws)

			err := st.Transaction(ctx, func(ctx context.Context, repos Repositories) error {
				if err := repos.Skills.Create(ctx, sk); err != nil {
					return err
				}
				return repos.Skills.AddTool(ctx, sk.ID, "hubspot_search_contacts")
			})
			require.NoError(t, err)

			got, err := st.Repositories().Skills.FindBySlug(ctx, ws, "hubspot-expert")
			require.NoError(t, err)
			assert.Equal(t, sk.ID, got.ID)
			ids, err := st.Repositories().Skills.ListToolIDs(ctx, sk.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{"hubspot_search_contacts"}, ids)
		})
	}
}

func TestStore_TransactionRollback(t *testing.T) {
	for name, st := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ws := ulid.Make().String()
			sk := testSkill(ws)
			boom := errors.New("boom")

			err := st.Transaction(ctx, func(ctx context.Context, repos Repositories) error {
				if err := repos.Skills.Create(ctx, sk); err != nil {
					return err
				}
				if err := repos.Skills.AddTool(ctx, sk.ID, "hubspot_create_deal"); err != nil {
					return err
				}
				return boom
			})
			require.ErrorIs(t, err, boom)

			_, err = st.Repositories().Skills.FindBySlug(ctx, ws, "hubspot-expert")
			assert.True(t, cerr.IsCode(err, cerr.NotFound))
			ids, err := st.Repositories().Skills.ListToolIDs(ctx, sk.ID)
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestStore_ReadYourWritesInsideTransaction(t *testing.T) {
	for name, st := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conn := &connection.Connection{
				ID:             ulid.Make().String(),
				WorkspaceID:    "W1",
				OrganizationID: "O1",
				ProviderKey:    "hubspot",
				IsActive:       true,
			}
			err := st.Transaction(ctx, func(ctx context.Context, repos Repositories) error {
				if err := repos.Connections.Create(ctx, conn); err != nil {
					return err
				}
				got, err := repos.Connections.Get(ctx, conn.ID)
				if err != nil {
					return err
				}
				assert.Equal(t, "hubspot", got.ProviderKey)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestStore_DuplicateSlugInTransaction(t *testing.T) {
	for name, st := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ws := ulid.Make().String()
			require.NoError(t, st.Transaction(ctx, func(ctx context.Context, repos Repositories) error {
				return repos.Skills.Create(ctx, testSkill(ws))
			}))
			err := st.Transaction(ctx, func(ctx context.Context, repos Repositories) error {
				return repos.Skills.Create(ctx, testSkill(ws))
			})
			assert.True(t, cerr.IsCode(err, cerr.AlreadyExists), "got %v", err)
		})
	}
}
