package provisioning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/autoprovision/internal/blueprint"
	"github.com/kazz187/autoprovision/internal/connection"
	"github.com/kazz187/autoprovision/internal/discovery"
	"github.com/kazz187/autoprovision/internal/store"
	"github.com/kazz187/autoprovision/pkg/storage"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeDiscoverer answers from a per-provider tool table. A provider with an
// error set fails as if the remote catalog were down.
type fakeDiscoverer struct {
	mu    sync.Mutex
	tools map[string][]string
	errs  map[string]error
	panic bool
	calls int
}

func newFakeDiscoverer() *fakeDiscoverer {
	return &fakeDiscoverer{
		tools: make(map[string][]string),
		errs:  make(map[string]error),
	}
}

func (f *fakeDiscoverer) set(providerKey string, tools ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools[providerKey] = tools
	delete(f.errs, providerKey)
}

func (f *fakeDiscoverer) fail(providerKey string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[providerKey] = err
}

func (f *fakeDiscoverer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDiscoverer) Discover(_ context.Context, _, providerKey string) discovery.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panic {
		panic("discovery exploded")
	}
	if err, ok := f.errs[providerKey]; ok {
		return discovery.Outcome{Attempts: 3, Err: err}
	}
	tools := f.tools[providerKey]
	if len(tools) == 0 {
		return discovery.Outcome{Attempts: 3, Err: discovery.ErrNoTools}
	}
	return discovery.Outcome{Tools: append([]string{}, tools...), Attempts: 1}
}

func hubspotBlueprint(version int) *blueprint.Blueprint {
	return &blueprint.Blueprint{
		ProviderKey: "hubspot",
		Version:     version,
		Skill: blueprint.SkillSpec{
			Slug:          "hubspot-expert",
			Name:          "HubSpot Expert",
			Description:   "CRM work",
			Instructions:  "Search before creating.",
			Category:      "crm",
			Tags:          []string{"crm"},
			ToolDiscovery: blueprint.ToolDiscoveryDynamic,
		},
		Agent: blueprint.AgentSpec{
			Slug:            "hubspot-agent",
			Name:            "HubSpot Agent",
			Instructions:    "Keep HubSpot accurate.",
			Model:           blueprint.ModelSpec{Provider: "anthropic", Name: "claude-sonnet-4-5", Temperature: 0.3},
			MemoryEnabled:   true,
			AdditionalTools: []string{"web_search"},
			Metadata:        map[string]any{"icon": "hubspot"},
		},
	}
}

func gmailBlueprint() *blueprint.Blueprint {
	return &blueprint.Blueprint{
		ProviderKey: "gmail",
		Version:     1,
		Skill: blueprint.SkillSpec{
			Slug:          "gmail-expert",
			Name:          "Gmail Expert",
			Instructions:  "Draft before sending.",
			ToolDiscovery: blueprint.ToolDiscoveryStatic,
			StaticTools:   []string{"gmail-search", "gmail-send"},
		},
		Agent: blueprint.AgentSpec{
			Slug:         "gmail-agent",
			Name:         "Gmail Agent",
			Instructions: "Triage the inbox.",
		},
	}
}

type testEnv struct {
	engine     *Engine
	store      store.Store
	discoverer *fakeDiscoverer
}

func newTestEnv(t *testing.T, blueprints ...*blueprint.Blueprint) *testEnv {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	st := store.NewYAMLStore(s)
	if len(blueprints) == 0 {
		blueprints = []*blueprint.Blueprint{hubspotBlueprint(1), gmailBlueprint()}
	}
	d := newFakeDiscoverer()
	e := NewEngine(st, blueprint.NewRegistry(blueprints...), d, WithClock(func() time.Time { return testNow }))
	return &testEnv{engine: e, store: st, discoverer: d}
}

// withRegistry returns an engine over the same store and discoverer but a
// different blueprint set, as after a deploy.
func (te *testEnv) withRegistry(blueprints ...*blueprint.Blueprint) *Engine {
	return NewEngine(te.store, blueprint.NewRegistry(blueprints...), te.discoverer, WithClock(func() time.Time { return testNow }))
}

func (te *testEnv) addConnection(t *testing.T, id, workspaceID, providerKey string, active bool) *connection.Connection {
	t.Helper()
	c := connection.New(id, workspaceID, "org-"+workspaceID, providerKey, testNow)
	c.IsActive = active
	require.NoError(t, te.store.Repositories().Connections.Create(context.Background(), c))
	return c
}

func (te *testEnv) inspect(t *testing.T, providerKey, workspaceID string) *ProvisionedState {
	t.Helper()
	state, err := te.engine.Inspect(context.Background(), providerKey, workspaceID)
	require.NoError(t, err)
	return state
}

func TestNewEngine_Options(t *testing.T) {
	e := NewEngine(nil, blueprint.NewRegistry(), nil, WithConcurrency(8))
	assert.Equal(t, 8, e.concurrency)

	e = NewEngine(nil, blueprint.NewRegistry(), nil, WithConcurrency(0))
	assert.Equal(t, 4, e.concurrency)
}

var errGatewayDown = errors.New("gateway unavailable")
