package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestStagedStorage_ReadsSeeStagedWrites(t *testing.T) {
	ctx := context.Background()
	base := newLocal(t)
	require.NoError(t, base.Write(ctx, "skills/a.yaml", []byte("a")))

	staged := NewStagedStorage(base)
	require.NoError(t, staged.Write(ctx, "skills/b.yaml", []byte("b")))
	require.NoError(t, staged.Delete(ctx, "skills/a.yaml"))

	data, err := staged.Read(ctx, "skills/b.yaml")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)

	_, err = staged.Read(ctx, "skills/a.yaml")
	assert.True(t, errors.Is(err, ErrNotFound))

	paths, err := staged.List(ctx, "skills")
	require.NoError(t, err)
	assert.Equal(t, []string{"skills/b.yaml"}, paths)

	// Base is untouched until commit.
	exists, err := base.Exists(ctx, "skills/b.yaml")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = base.Exists(ctx, "skills/a.yaml")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStagedStorage_Commit(t *testing.T) {
	ctx := context.Background()
	base := newLocal(t)
	require.NoError(t, base.Write(ctx, "skills/a.yaml", []byte("a")))

	staged := NewStagedStorage(base)
	require.NoError(t, staged.Write(ctx, "skills/b.yaml", []byte("b")))
	require.NoError(t, staged.Delete(ctx, "skills/a.yaml"))
	assert.Equal(t, 2, staged.Pending())

	require.NoError(t, staged.Commit(ctx))
	assert.Equal(t, 0, staged.Pending())

	paths, err := base.List(ctx, "skills")
	require.NoError(t, err)
	assert.Equal(t, []string{"skills/b.yaml"}, paths)
}

func TestStagedStorage_Discard(t *testing.T) {
	ctx := context.Background()
	base := newLocal(t)

	staged := NewStagedStorage(base)
	require.NoError(t, staged.Write(ctx, "agents/x.yaml", []byte("x")))
	staged.Discard()
	require.NoError(t, staged.Commit(ctx))

	exists, err := base.Exists(ctx, "agents/x.yaml")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStagedStorage_DeleteMissing(t *testing.T) {
	staged := NewStagedStorage(newLocal(t))
	err := staged.Delete(context.Background(), "agents/missing.yaml")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStagedStorage_ListIgnoresNestedPaths(t *testing.T) {
	ctx := context.Background()
	staged := NewStagedStorage(newLocal(t))
	require.NoError(t, staged.Write(ctx, "skill_tools/s1/t1.yaml", []byte("1")))
	require.NoError(t, staged.Write(ctx, "skill_tools/s2/t1.yaml", []byte("2")))

	paths, err := staged.List(ctx, "skill_tools/s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"skill_tools/s1/t1.yaml"}, paths)

	paths, err = staged.List(ctx, "skill_tools")
	require.NoError(t, err)
	assert.Empty(t, paths)
}
