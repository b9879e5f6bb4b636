package provisioning

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/autoprovision/pkg/cerr"
)

func newTestHTTPServer(t *testing.T, te *testEnv) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(cerr.NewJSONResponseChiMiddleware())
		NewServer(te.engine).Routes(r)
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_ProvisionFlow(t *testing.T) {
	te := newTestEnv(t)
	te.addConnection(t, "conn-1", "W1", "hubspot", true)
	te.discoverer.set("hubspot", "hubspot_a")
	ts := newTestHTTPServer(t, te)

	var provisioned ProvisionResult
	status := doJSON(t, http.MethodPost, ts.URL+"/api/connections/conn-1/provision", `{"user_id":"U1"}`, &provisioned)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, provisioned.Success)
	assert.True(t, provisioned.SkillCreated)
	assert.Equal(t, []string{"hubspot_a"}, provisioned.ToolsDiscovered)

	var state ProvisionedState
	status = doJSON(t, http.MethodGet, ts.URL+"/api/workspaces/W1/providers/hubspot", "", &state)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, state.Skill)
	assert.Equal(t, provisioned.SkillID, state.Skill.ID)
	assert.True(t, state.SkillPinned)

	te.discoverer.set("hubspot", "hubspot_a", "hubspot_b")
	var rediscovered struct {
		Result *ToolRediscoveryResult `json:"result"`
	}
	status = doJSON(t, http.MethodPost, ts.URL+"/api/connections/conn-1/rediscover", "", &rediscovered)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, rediscovered.Result)
	assert.Equal(t, []string{"hubspot_b"}, rediscovered.Result.Added)

	var all RediscoverAllResult
	status = doJSON(t, http.MethodPost, ts.URL+"/api/rediscover", "", &all)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, all.Connections, 1)

	var deprovisioned DeprovisionResult
	status = doJSON(t, http.MethodPost, ts.URL+"/api/workspaces/W1/providers/hubspot/deprovision", "", &deprovisioned)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"hubspot-expert"}, deprovisioned.DeactivatedSkills)

	var synced BlueprintSyncResult
	status = doJSON(t, http.MethodPost, ts.URL+"/api/blueprints/sync", "", &synced)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, synced.Skipped)
}

func TestServer_ProvisionFailureIsAResult(t *testing.T) {
	te := newTestEnv(t)
	ts := newTestHTTPServer(t, te)

	var result ProvisionResult
	status := doJSON(t, http.MethodPost, ts.URL+"/api/connections/missing/provision", "", &result)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, result.Success)
	assert.Equal(t, "Connection not found", result.Error)
}

func TestServer_RequestErrors(t *testing.T) {
	te := newTestEnv(t)
	ts := newTestHTTPServer(t, te)

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	status := doJSON(t, http.MethodPost, ts.URL+"/api/connections/conn-1/provision", `{"unknown":true}`, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_argument", body.Code)

	status = doJSON(t, http.MethodGet, ts.URL+"/api/workspaces/W1/providers/notion", "", &body)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body.Code)
}

func TestServer_ListBlueprints(t *testing.T) {
	te := newTestEnv(t)
	ts := newTestHTTPServer(t, te)

	var body struct {
		Blueprints []struct {
			ProviderKey string `json:"provider_key"`
			Version     int    `json:"version"`
		} `json:"blueprints"`
	}
	status := doJSON(t, http.MethodGet, ts.URL+"/api/blueprints", "", &body)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body.Blueprints, 2)
	assert.Equal(t, "gmail", body.Blueprints[0].ProviderKey)
	assert.Equal(t, "hubspot", body.Blueprints[1].ProviderKey)
}
