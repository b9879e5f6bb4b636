// Package provisioning turns a connected integration into a working Skill
// and Agent, keeps them in step with their blueprint and discovered tools,
// and deactivates them when the integration goes away.
//
// Every exported operation returns a structured result instead of an error
// and recovers panics, so webhook handlers and schedulers only ever branch
// on the result fields.
package provisioning

import (
	"context"
	"time"

	"github.com/kazz187/autoprovision/internal/blueprint"
	"github.com/kazz187/autoprovision/internal/discovery"
	"github.com/kazz187/autoprovision/internal/eventbus"
	"github.com/kazz187/autoprovision/internal/store"
	"github.com/kazz187/autoprovision/pkg/clog"
)

// Discoverer is the retried tool discovery the engine depends on.
type Discoverer interface {
	Discover(ctx context.Context, organizationID, providerKey string) discovery.Outcome
}

type Engine struct {
	store       store.Store
	registry    *blueprint.Registry
	discoverer  Discoverer
	events      *eventbus.Bus
	locks       *keyedMutex
	now         func() time.Time
	concurrency int
}

type Option func(*Engine)

// WithClock replaces time.Now for timestamps written by the engine.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithConcurrency bounds the fan-out of SyncBlueprintVersions and
// RediscoverAll.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithEventBus publishes every change the engine makes to bus.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(e *Engine) {
		e.events = bus
	}
}

func NewEngine(st store.Store, registry *blueprint.Registry, discoverer Discoverer, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		registry:    registry,
		discoverer:  discoverer,
		locks:       newKeyedMutex(),
		now:         time.Now,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Registry() *blueprint.Registry {
	return e.registry
}

// lockProvider serialises work on one (workspace, provider) pair inside
// this process.
func (e *Engine) lockProvider(workspaceID, providerKey string) func() {
	return e.locks.Lock(workspaceID + "\x00" + providerKey)
}

// operationContext opens a log attribute scope for one operation. When the
// caller already has one (an HTTP request) it is reused.
func operationContext(ctx context.Context, operation string, attrs map[string]any) context.Context {
	ctx = clog.EnsureSlog(ctx)
	clog.AddAttribute(ctx, "operation", operation)
	clog.AddAttributes(ctx, attrs)
	return ctx
}

// childContext gives a concurrent unit of work its own attribute scope,
// seeded with the parent's attributes.
func childContext(ctx context.Context, attrs map[string]any) context.Context {
	child := clog.ContextWithSlog(ctx)
	clog.AddAttributes(child, clog.GetAttributes(ctx))
	clog.AddAttributes(child, attrs)
	return child
}
