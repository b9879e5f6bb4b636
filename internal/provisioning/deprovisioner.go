package provisioning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kazz187/autoprovision/internal/eventbus"
	"github.com/kazz187/autoprovision/internal/metadata"
	"github.com/kazz187/autoprovision/internal/store"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/clog"
	"github.com/kazz187/autoprovision/pkg/panicerr"
)

// Deprovision marks the provider's provisioned Skill and Agent in the
// workspace as deactivated. Nothing is deleted, so a later Provision
// restores the previous state.
func (e *Engine) Deprovision(ctx context.Context, providerKey, workspaceID string) *DeprovisionResult {
	ctx = operationContext(ctx, "deprovision", map[string]any{
		"provider_key": providerKey,
		"workspace_id": workspaceID,
	})
	result := &DeprovisionResult{
		DeactivatedSkills: []string{},
		DeactivatedAgents: []string{},
	}
	err := panicerr.SafeContext(func(ctx context.Context) error {
		return e.deprovision(ctx, providerKey, workspaceID, result)
	})(ctx)
	if err != nil {
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "deprovisioning failed", "error", err)
		result.Error = err.Error()
	}
	return result
}

func (e *Engine) deprovision(ctx context.Context, providerKey, workspaceID string, result *DeprovisionResult) error {
	bp, ok := e.registry.Get(providerKey)
	if !ok {
		slog.DebugContext(ctx, "no blueprint for provider, nothing to deprovision")
		return nil
	}

	unlock := e.lockProvider(workspaceID, providerKey)
	defer unlock()

	err := e.store.Transaction(ctx, func(ctx context.Context, repos store.Repositories) error {
		// Reset so a failed transaction reports nothing as deactivated.
		result.DeactivatedSkills = []string{}
		result.DeactivatedAgents = []string{}
		now := e.now()

		sk, err := repos.Skills.FindBySlug(ctx, workspaceID, bp.Skill.Slug)
		switch {
		case err == nil:
			sk.Status = metadata.StatusDeactivated
			sk.Metadata.MarkDeactivated(now)
			sk.UpdatedAt = now
			if err := repos.Skills.Update(ctx, sk); err != nil {
				return fmt.Errorf("failed to deactivate skill %s: %w", sk.Slug, err)
			}
			result.DeactivatedSkills = append(result.DeactivatedSkills, sk.Slug)
		case cerr.IsCode(err, cerr.NotFound):
		default:
			return err
		}

		ag, err := repos.Agents.FindBySlug(ctx, workspaceID, bp.Agent.Slug)
		switch {
		case err == nil:
			ag.Status = metadata.StatusDeactivated
			ag.Metadata.MarkDeactivated(now)
			ag.UpdatedAt = now
			if err := repos.Agents.Update(ctx, ag); err != nil {
				return fmt.Errorf("failed to deactivate agent %s: %w", ag.Slug, err)
			}
			result.DeactivatedAgents = append(result.DeactivatedAgents, ag.Slug)
		case cerr.IsCode(err, cerr.NotFound):
		default:
			return err
		}
		return nil
	})
	if err != nil {
		result.DeactivatedSkills = []string{}
		result.DeactivatedAgents = []string{}
		return err
	}

	if len(result.DeactivatedSkills) > 0 || len(result.DeactivatedAgents) > 0 {
		e.events.PublishNew(eventbus.ProviderDeprovisioned, workspaceID, providerKey, result)
	}
	slog.InfoContext(ctx, fmt.Sprintf("deprovisioned %s: skills [%s], agents [%s]",
		providerKey,
		strings.Join(result.DeactivatedSkills, ", "),
		strings.Join(result.DeactivatedAgents, ", "),
	))
	return nil
}
