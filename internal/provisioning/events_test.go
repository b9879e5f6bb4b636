package provisioning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/autoprovision/internal/eventbus"
)

func receive(t *testing.T, ch <-chan *eventbus.Event) *eventbus.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return nil
	}
}

func TestEngine_PublishesEvents(t *testing.T) {
	te := newTestEnv(t)
	bus := eventbus.New()
	WithEventBus(bus)(te.engine)
	_, ch := bus.Subscribe(16)
	te.addConnection(t, "conn-1", "W1", "hubspot", true)
	ctx := context.Background()

	te.discoverer.set("hubspot", "hubspot_a")
	require.True(t, te.engine.Provision(ctx, "conn-1", ProvisionOptions{}).Success)
	ev := receive(t, ch)
	assert.Equal(t, eventbus.ProviderProvisioned, ev.Type)
	assert.Equal(t, "W1", ev.WorkspaceID)
	assert.Equal(t, "hubspot", ev.ProviderKey)
	require.IsType(t, &ProvisionResult{}, ev.Payload)
	assert.True(t, ev.Payload.(*ProvisionResult).SkillCreated)

	te.discoverer.set("hubspot", "hubspot_a", "hubspot_b")
	require.NotNil(t, te.engine.RediscoverTools(ctx, "conn-1"))
	ev = receive(t, ch)
	assert.Equal(t, eventbus.ToolsChanged, ev.Type)

	// An unchanged tool set publishes nothing.
	require.NotNil(t, te.engine.RediscoverTools(ctx, "conn-1"))

	te.engine.Deprovision(ctx, "hubspot", "W1")
	ev = receive(t, ch)
	assert.Equal(t, eventbus.ProviderDeprovisioned, ev.Type)

	// Nothing provisioned in W2, nothing published.
	te.engine.Deprovision(ctx, "hubspot", "W2")

	upgraded := te.withRegistry(hubspotBlueprint(2))
	WithEventBus(bus)(upgraded)
	result := upgraded.SyncBlueprintVersions(ctx)
	require.Len(t, result.Updated, 2)
	for range 2 {
		assert.Equal(t, eventbus.BlueprintUpdated, receive(t, ch).Type)
	}
	assert.Empty(t, ch)
}
