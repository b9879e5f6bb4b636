package event

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/autoprovision/internal/eventbus"
)

func TestServer_SubscribeEvents(t *testing.T) {
	bus := eventbus.New()
	r := chi.NewRouter()
	NewServer(bus).Routes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events?type=tools.changed&workspace_id=W1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	bus.PublishNew(eventbus.ProviderProvisioned, "W1", "hubspot", nil)
	bus.PublishNew(eventbus.ToolsChanged, "W2", "hubspot", nil)
	bus.PublishNew(eventbus.ToolsChanged, "W1", "hubspot", map[string]any{"added": []string{"hubspot_a"}})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id: "))
	assert.Equal(t, "event: tools.changed", lines[1])

	var ev eventbus.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &ev))
	assert.Equal(t, eventbus.ToolsChanged, ev.Type)
	assert.Equal(t, "W1", ev.WorkspaceID)
	assert.Equal(t, map[string]any{"added": []any{"hubspot_a"}}, ev.Payload)

	cancel()
	assert.Eventually(t, func() bool { return bus.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
}
