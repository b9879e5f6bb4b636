// Package bootstrap wires the environment into a ready-to-use provisioning
// engine. Both the HTTP server and the CLI start from here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kazz187/autoprovision/internal/blueprint"
	"github.com/kazz187/autoprovision/internal/config"
	"github.com/kazz187/autoprovision/internal/discovery"
	"github.com/kazz187/autoprovision/internal/eventbus"
	"github.com/kazz187/autoprovision/internal/provisioning"
	"github.com/kazz187/autoprovision/internal/store"
	"github.com/kazz187/autoprovision/pkg/storage"
)

type App struct {
	Store    store.Store
	Registry *blueprint.Registry
	Events   *eventbus.Bus
	Engine   *provisioning.Engine
}

func (a *App) Close() error {
	return a.Store.Close()
}

func New(ctx context.Context, env *config.Env) (*App, error) {
	st, err := NewStore(ctx, &env.StorageEnv)
	if err != nil {
		return nil, err
	}
	registry, err := blueprint.NewDefaultRegistry(env.BlueprintEnv.Dir)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to load blueprints: %w", err)
	}
	discoverer, err := NewDiscoverer(&env.DiscoveryEnv)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	events := eventbus.New()
	engine := provisioning.NewEngine(st, registry, discoverer,
		provisioning.WithConcurrency(env.ReconcileEnv.Concurrency),
		provisioning.WithEventBus(events),
	)
	slog.Info("provisioning engine ready",
		"storage_type", env.StorageEnv.Type,
		"blueprints", registry.Len(),
		"discovery_configured", env.DiscoveryEnv.Endpoint != "",
	)
	return &App{Store: st, Registry: registry, Events: events, Engine: engine}, nil
}

func NewStore(ctx context.Context, env *config.StorageEnv) (store.Store, error) {
	switch env.Type {
	case "postgres":
		st, err := store.OpenPostgres(ctx, env.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "s3":
		s, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 storage: %w", err)
		}
		return store.NewYAMLStore(s), nil
	default:
		s, err := storage.NewLocalStorage(env.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		return store.NewYAMLStore(s), nil
	}
}

// NewDiscoverer returns the retrying discovery client. Without an endpoint
// every dynamic blueprint degrades to an empty tool list.
func NewDiscoverer(env *config.DiscoveryEnv) (*discovery.RetryingClient, error) {
	var opts []discovery.MCPOption
	if env.Token != "" {
		opts = append(opts, discovery.WithBearerToken(env.Token))
	}
	opts = append(opts, discovery.WithAttemptTimeout(env.AttemptTimeout))

	var catalog discovery.Catalog
	mcpCatalog, err := discovery.NewMCPCatalog(env.Endpoint, opts...)
	switch {
	case errors.Is(err, discovery.ErrNotConfigured):
		slog.Warn("discovery endpoint not configured, dynamic blueprints will provision without tools")
		catalog = discovery.UnconfiguredCatalog()
	case err != nil:
		return nil, err
	default:
		catalog = mcpCatalog
	}

	policy := discovery.RetryPolicy{
		MaxAttempts: env.MaxAttempts,
		BaseDelay:   env.BaseDelay,
		Multiplier:  env.Multiplier,
		MaxDelay:    env.MaxDelay,
	}
	return discovery.NewRetryingClient(discovery.NewCatalogClient(catalog), policy), nil
}
