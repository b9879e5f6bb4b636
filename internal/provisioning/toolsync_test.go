package provisioning

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/autoprovision/pkg/cerr"
)

func TestDiffToolSets(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		desired  []string
		want     ToolDelta
	}{
		{
			name:    "from empty",
			desired: []string{"b", "a"},
			want:    ToolDelta{Added: []string{"a", "b"}, Removed: []string{}},
		},
		{
			name:     "to empty",
			existing: []string{"a"},
			want:     ToolDelta{Added: []string{}, Removed: []string{"a"}},
		},
		{
			name:     "overlap",
			existing: []string{"a", "b", "c"},
			desired:  []string{"c", "d", "b"},
			want:     ToolDelta{Added: []string{"d"}, Removed: []string{"a"}, Unchanged: 2},
		},
		{
			name:     "duplicates collapse",
			existing: []string{"a", "a"},
			desired:  []string{"a", "a"},
			want:     ToolDelta{Added: []string{}, Removed: []string{}, Unchanged: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := diffToolSets(tt.existing, tt.desired)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want.Added) > 0 || len(tt.want.Removed) > 0, got.Changed())
		})
	}
}

func TestUnionTools(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, unionTools([]string{"b", "a"}, []string{"a", "c"}, nil))
	assert.Equal(t, []string{}, unionTools())
	assert.Equal(t, []string{}, unionTools(nil, []string{}))
}

// memAttacher is an in-memory toolAttacher whose writes can be made to fail.
type memAttacher struct {
	tools     map[string]struct{}
	addErr    error
	removeErr error
}

func (m *memAttacher) ListToolIDs(context.Context, string) ([]string, error) {
	ids := make([]string, 0, len(m.tools))
	for id := range m.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memAttacher) AddTool(_ context.Context, _, toolID string) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.tools[toolID] = struct{}{}
	return nil
}

func (m *memAttacher) RemoveTool(_ context.Context, _, toolID string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.tools, toolID)
	return nil
}

func TestSyncTools(t *testing.T) {
	ctx := context.Background()

	m := &memAttacher{tools: map[string]struct{}{"a": {}, "b": {}}}
	delta, err := syncTools(ctx, m, "owner", []string{"b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, delta.Added)
	assert.Equal(t, []string{"a"}, delta.Removed)
	ids, _ := m.ListToolIDs(ctx, "owner")
	assert.Equal(t, []string{"b", "c"}, ids)

	t.Run("lost races are not errors", func(t *testing.T) {
		m := &memAttacher{
			tools:     map[string]struct{}{"a": {}},
			addErr:    cerr.NewError(cerr.AlreadyExists, "duplicate", nil),
			removeErr: cerr.NewError(cerr.NotFound, "gone", nil),
		}
		_, err := syncTools(ctx, m, "owner", []string{"b"})
		assert.NoError(t, err)
	})

	t.Run("other failures propagate", func(t *testing.T) {
		m := &memAttacher{
			tools:  map[string]struct{}{},
			addErr: cerr.NewError(cerr.Internal, "disk full", errors.New("enospc")),
		}
		_, err := syncTools(ctx, m, "owner", []string{"b"})
		require.Error(t, err)
		assert.True(t, cerr.IsCode(err, cerr.Internal))
	})

	t.Run("remove failure propagates", func(t *testing.T) {
		m := &memAttacher{
			tools:     map[string]struct{}{"a": {}},
			removeErr: cerr.NewError(cerr.Unavailable, "db down", nil),
		}
		_, err := syncTools(ctx, m, "owner", nil)
		require.Error(t, err)
	})
}
