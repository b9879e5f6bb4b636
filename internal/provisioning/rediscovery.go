package provisioning

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/kazz187/autoprovision/internal/eventbus"
	"github.com/kazz187/autoprovision/internal/metadata"
	"github.com/kazz187/autoprovision/internal/store"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/clog"
	"github.com/kazz187/autoprovision/pkg/panicerr"
)

// RediscoverTools re-runs discovery for the connection and applies only the
// difference to the provisioned Skill's tools, and to the Agent's when it
// exists. It returns nil when there is nothing to do: the connection is
// missing or inactive, the provider has no blueprint or no provisioned
// skill, or the remote catalog could not be reached.
func (e *Engine) RediscoverTools(ctx context.Context, connectionID string) *ToolRediscoveryResult {
	ctx = operationContext(ctx, "rediscover", map[string]any{
		"connection_id": connectionID,
	})
	result, err := panicerr.SafeValue(ctx, func(ctx context.Context) (*ToolRediscoveryResult, error) {
		return e.rediscover(ctx, connectionID)
	})
	if err != nil {
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "tool rediscovery failed", "error", err)
		return nil
	}
	return result
}

func (e *Engine) rediscover(ctx context.Context, connectionID string) (*ToolRediscoveryResult, error) {
	conn, err := e.store.Repositories().Connections.Get(ctx, connectionID)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			slog.DebugContext(ctx, "rediscovery skipped, connection not found")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	if !conn.IsActive {
		slog.DebugContext(ctx, "rediscovery skipped, connection inactive")
		return nil, nil
	}
	clog.AddAttributes(ctx, map[string]any{
		"provider_key": conn.ProviderKey,
		"workspace_id": conn.WorkspaceID,
	})

	bp, ok := e.registry.Get(conn.ProviderKey)
	if !ok {
		return nil, nil
	}

	// Existence check before the remote call so unprovisioned connections
	// cost nothing.
	if _, err := e.store.Repositories().Skills.FindBySlug(ctx, conn.WorkspaceID, bp.Skill.Slug); err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			slog.DebugContext(ctx, "rediscovery skipped, skill not provisioned")
			return nil, nil
		}
		return nil, err
	}

	var discovered []string
	if bp.UsesDynamicDiscovery() {
		out := e.discoverer.Discover(ctx, conn.OrganizationID, bp.ProviderKey)
		if out.RemoteFailed() {
			slog.WarnContext(ctx, "rediscovery skipped, remote catalog unavailable",
				"attempts", out.Attempts,
				"error", out.Err,
			)
			return nil, nil
		}
		discovered = unionTools(out.Tools)
	} else {
		discovered = unionTools(bp.Skill.StaticTools)
	}

	unlock := e.lockProvider(conn.WorkspaceID, bp.ProviderKey)
	defer unlock()

	var result *ToolRediscoveryResult
	err = e.store.Transaction(ctx, func(ctx context.Context, repos store.Repositories) error {
		result = nil
		sk, err := repos.Skills.FindBySlug(ctx, conn.WorkspaceID, bp.Skill.Slug)
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				return nil
			}
			return err
		}
		delta, err := syncTools(ctx, repos.Skills, sk.ID, discovered)
		if err != nil {
			return err
		}
		now := e.now()
		if delta.Changed() || sk.Metadata.DiscoveryStatus != metadata.DiscoveryComplete {
			sk.Metadata.MarkToolSync(now, len(discovered))
			sk.UpdatedAt = now
			if err := repos.Skills.Update(ctx, sk); err != nil {
				return err
			}
		}

		ag, err := repos.Agents.FindBySlug(ctx, conn.WorkspaceID, bp.Agent.Slug)
		switch {
		case err == nil:
			desired := unionTools(discovered, bp.Agent.AdditionalTools)
			agentDelta, err := syncTools(ctx, repos.Agents, ag.ID, desired)
			if err != nil {
				return err
			}
			if agentDelta.Changed() || ag.Metadata.DiscoveryStatus != metadata.DiscoveryComplete {
				ag.Metadata.MarkToolSync(now, len(desired))
				ag.UpdatedAt = now
				if err := repos.Agents.Update(ctx, ag); err != nil {
					return err
				}
			}
		case cerr.IsCode(err, cerr.NotFound):
		default:
			return err
		}

		result = &ToolRediscoveryResult{
			Provider:  bp.ProviderKey,
			Added:     delta.Added,
			Removed:   delta.Removed,
			Unchanged: delta.Unchanged,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result != nil && (len(result.Added) > 0 || len(result.Removed) > 0) {
		e.events.PublishNew(eventbus.ToolsChanged, conn.WorkspaceID, bp.ProviderKey, result)
		slog.InfoContext(ctx, fmt.Sprintf("rediscovered %s tools: +%d -%d, %d unchanged",
			bp.ProviderKey, len(result.Added), len(result.Removed), result.Unchanged),
			"added", result.Added,
			"removed", result.Removed,
		)
	}
	return result, nil
}

// RediscoverAll runs RediscoverTools for every active connection with
// bounded concurrency.
func (e *Engine) RediscoverAll(ctx context.Context) *RediscoverAllResult {
	ctx = operationContext(ctx, "rediscover_all", nil)
	result := &RediscoverAllResult{Connections: []ConnectionRediscovery{}}

	conns, err := e.store.Repositories().Connections.ListActive(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list active connections", "error", err)
		result.Errors++
		result.Connections = append(result.Connections, ConnectionRediscovery{Error: err.Error()})
		return result
	}

	p := pool.NewWithResults[ConnectionRediscovery]().WithMaxGoroutines(e.concurrency)
	for _, conn := range conns {
		p.Go(func() ConnectionRediscovery {
			cctx := childContext(ctx, nil)
			entry := ConnectionRediscovery{ConnectionID: conn.ID}
			res, err := panicerr.SafeValue(cctx, func(ctx context.Context) (*ToolRediscoveryResult, error) {
				return e.rediscover(operationContext(ctx, "rediscover", map[string]any{"connection_id": conn.ID}), conn.ID)
			})
			if err != nil {
				slog.ErrorContext(cctx, "tool rediscovery failed", "connection_id", conn.ID, "error", err)
				entry.Error = err.Error()
				return entry
			}
			entry.Result = res
			return entry
		})
	}
	entries := p.Wait()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ConnectionID < entries[j].ConnectionID
	})

	for _, entry := range entries {
		if entry.Error != "" {
			result.Errors++
		}
		if entry.Result != nil && (len(entry.Result.Added) > 0 || len(entry.Result.Removed) > 0) {
			result.Changed++
		}
	}
	result.Connections = entries
	slog.InfoContext(ctx, fmt.Sprintf("rediscovery finished for %d connections: %d changed, %d errors",
		len(entries), result.Changed, result.Errors))
	return result
}
