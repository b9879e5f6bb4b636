package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/autoprovision/internal/blueprint"
	"github.com/kazz187/autoprovision/internal/config"
	"github.com/kazz187/autoprovision/internal/connection"
	"github.com/kazz187/autoprovision/internal/discovery"
	"github.com/kazz187/autoprovision/internal/event"
	"github.com/kazz187/autoprovision/internal/eventbus"
	"github.com/kazz187/autoprovision/internal/provisioning"
	"github.com/kazz187/autoprovision/internal/store"
	"github.com/kazz187/autoprovision/pkg/storage"
)

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	st := store.NewYAMLStore(s)
	discoverer := discovery.NewRetryingClient(
		discovery.NewCatalogClient(discovery.UnconfiguredCatalog()),
		discovery.DefaultRetryPolicy(),
	)
	bus := eventbus.New()
	engine := provisioning.NewEngine(st, blueprint.NewRegistry(), discoverer, provisioning.WithEventBus(bus))

	env := &config.Env{}
	env.APIKey = apiKey
	srv := NewServer(env,
		provisioning.NewServer(engine),
		connection.NewServer(st.Repositories().Connections),
		event.NewServer(bus),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, header map[string]string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, "secret")
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/health", nil))
}

func TestServer_APIKey(t *testing.T) {
	ts := newTestServer(t, "secret")

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong", header: map[string]string{"X-API-Key": "nope"}, want: http.StatusUnauthorized},
		{name: "header", header: map[string]string{"X-API-Key": "secret"}, want: http.StatusOK},
		{name: "bearer", header: map[string]string{"Authorization": "Bearer secret"}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, get(t, ts.URL+"/api/blueprints", tt.header))
		})
	}
}

func TestServer_NoAPIKeyConfigured(t *testing.T) {
	ts := newTestServer(t, "")
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/api/blueprints", nil))
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/api/nothing-here", nil))
}
