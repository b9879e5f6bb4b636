package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/autoprovision/internal/config"
	"github.com/kazz187/autoprovision/internal/discovery"
	"github.com/kazz187/autoprovision/internal/store"
)

func testEnv(t *testing.T) *config.Env {
	t.Helper()
	env := &config.Env{}
	env.StorageEnv.Type = "local"
	env.StorageEnv.BaseDir = t.TempDir()
	env.DiscoveryEnv = config.DiscoveryEnv{
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		Multiplier:     2.5,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
	env.ReconcileEnv.Concurrency = 2
	return env
}

func TestNew(t *testing.T) {
	app, err := New(context.Background(), testEnv(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.IsType(t, &store.YAMLStore{}, app.Store)
	for _, key := range []string{"gmail", "hubspot", "salesforce"} {
		assert.True(t, app.Registry.Has(key), key)
	}
	assert.Same(t, app.Registry, app.Engine.Registry())
}

func TestNew_BadBlueprintDir(t *testing.T) {
	env := testEnv(t)
	env.BlueprintEnv.Dir = "/does/not/exist"
	_, err := New(context.Background(), env)
	assert.Error(t, err)
}

func TestNewDiscoverer(t *testing.T) {
	env := testEnv(t)

	d, err := NewDiscoverer(&env.DiscoveryEnv)
	require.NoError(t, err)
	assert.Equal(t, discovery.DefaultRetryPolicy(), d.Policy())

	out := d.Discover(context.Background(), "O1", "hubspot")
	assert.ErrorIs(t, out.Err, discovery.ErrNotConfigured)
	assert.Equal(t, 1, out.Attempts)

	env.DiscoveryEnv.Endpoint = "http://127.0.0.1:1/orgs/{organization}/mcp"
	env.DiscoveryEnv.MaxAttempts = 5
	d, err = NewDiscoverer(&env.DiscoveryEnv)
	require.NoError(t, err)
	assert.Equal(t, 5, d.Policy().MaxAttempts)
}
