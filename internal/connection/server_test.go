package connection_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/autoprovision/internal/connection"
	"github.com/kazz187/autoprovision/internal/connection/repositoryimpl"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/storage"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	connection.NewServer(repositoryimpl.NewYAMLRepository(s)).Routes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func send(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_Connections(t *testing.T) {
	ts := newServer(t)

	var created connection.Connection
	status := send(t, http.MethodPost, ts.URL+"/connections", connection.CreateConnectionRequest{
		WorkspaceID:    "W1",
		OrganizationID: "O1",
		ProviderKey:    "hubspot",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)

	status = send(t, http.MethodPost, ts.URL+"/connections", connection.CreateConnectionRequest{
		ID:             created.ID,
		WorkspaceID:    "W1",
		OrganizationID: "O1",
		ProviderKey:    "hubspot",
	}, nil)
	assert.Equal(t, http.StatusConflict, status)

	var got connection.Connection
	status = send(t, http.MethodGet, ts.URL+"/connections/"+created.ID, nil, &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hubspot", got.ProviderKey)

	var updated connection.Connection
	status = send(t, http.MethodPut, ts.URL+"/connections/"+created.ID+"/active", connection.SetActiveRequest{Active: false}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, updated.IsActive)

	var list connection.ListConnectionsResponse
	status = send(t, http.MethodGet, ts.URL+"/connections?workspace_id=W1", nil, &list)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Connections, 1)
	assert.False(t, list.Connections[0].IsActive)

	status = send(t, http.MethodGet, ts.URL+"/connections?workspace_id=W2", nil, &list)
	require.Equal(t, http.StatusOK, status)
	assert.Zero(t, list.Total)
	assert.Empty(t, list.Connections)
}

func TestServer_CreateConnectionValidation(t *testing.T) {
	ts := newServer(t)
	status := send(t, http.MethodPost, ts.URL+"/connections", connection.CreateConnectionRequest{WorkspaceID: "W1"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = send(t, http.MethodGet, ts.URL+"/connections/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
