package blueprint

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry is the lookup table of blueprints keyed by provider key. It is
// built once at start-up and passed to the components that need it.
type Registry struct {
	mu         sync.RWMutex
	blueprints map[string]*Blueprint
}

func NewRegistry(blueprints ...*Blueprint) *Registry {
	r := &Registry{
		blueprints: make(map[string]*Blueprint),
	}
	for _, bp := range blueprints {
		r.Register(bp)
	}
	return r
}

// Register adds bp. A second registration for the same provider key
// replaces the first and logs a warning.
func (r *Registry) Register(bp *Blueprint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.blueprints[bp.ProviderKey]; ok {
		slog.Warn("blueprint registered twice, last registration wins",
			"provider_key", bp.ProviderKey,
			"previous_version", prev.Version,
			"version", bp.Version,
		)
	}
	r.blueprints[bp.ProviderKey] = bp
}

func (r *Registry) Get(providerKey string) (*Blueprint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bp, ok := r.blueprints[providerKey]
	return bp, ok
}

func (r *Registry) Has(providerKey string) bool {
	_, ok := r.Get(providerKey)
	return ok
}

// All returns every blueprint ordered by provider key.
func (r *Registry) All() []*Blueprint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Blueprint, 0, len(r.blueprints))
	for _, bp := range r.blueprints {
		result = append(result, bp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ProviderKey < result[j].ProviderKey
	})
	return result
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blueprints)
}
