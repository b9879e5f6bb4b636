package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/autoprovision/internal/agent"
	"github.com/kazz187/autoprovision/internal/blueprint"
	"github.com/kazz187/autoprovision/internal/eventbus"
	"github.com/kazz187/autoprovision/internal/metadata"
	"github.com/kazz187/autoprovision/internal/skill"
	"github.com/kazz187/autoprovision/internal/store"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/clog"
	"github.com/kazz187/autoprovision/pkg/panicerr"
)

const msgConnectionNotFound = "Connection not found"

var errWorkspaceRequired = errors.New("workspace id is required")

// Provision creates or reactivates the Skill and Agent described by the
// blueprint of the connection's provider. A provider without a blueprint is
// a successful no-op.
func (e *Engine) Provision(ctx context.Context, connectionID string, opts ProvisionOptions) *ProvisionResult {
	ctx = operationContext(ctx, "provision", map[string]any{
		"connection_id": connectionID,
	})
	result := &ProvisionResult{ToolsDiscovered: []string{}}
	err := panicerr.SafeContext(func(ctx context.Context) error {
		return e.provision(ctx, connectionID, opts, result)
	})(ctx)
	if err != nil {
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "provisioning failed", "error", err)
		result.Success = false
		result.Error = err.Error()
	}
	return result
}

func (e *Engine) provision(ctx context.Context, connectionID string, opts ProvisionOptions, result *ProvisionResult) error {
	conn, err := e.store.Repositories().Connections.Get(ctx, connectionID)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			slog.WarnContext(ctx, "provisioning skipped, connection not found")
			result.Error = msgConnectionNotFound
			return nil
		}
		return fmt.Errorf("failed to load connection: %w", err)
	}

	workspaceID := opts.WorkspaceID
	if workspaceID == "" {
		workspaceID = conn.WorkspaceID
	}
	if workspaceID == "" {
		return errWorkspaceRequired
	}
	clog.AddAttributes(ctx, map[string]any{
		"provider_key": conn.ProviderKey,
		"workspace_id": workspaceID,
	})

	bp, ok := e.registry.Get(conn.ProviderKey)
	if !ok {
		slog.DebugContext(ctx, "no blueprint for provider, nothing to provision")
		result.Success = true
		return nil
	}

	unlock := e.lockProvider(workspaceID, bp.ProviderKey)
	defer unlock()

	tools, status := e.resolveTools(ctx, conn.OrganizationID, bp)
	result.ToolsDiscovered = tools
	result.DiscoveryStatus = status

	sk, skillCreated, err := e.upsertSkill(ctx, bp, workspaceID, opts.UserID, tools, status)
	if err != nil {
		return fmt.Errorf("failed to upsert skill %s: %w", bp.Skill.Slug, err)
	}
	result.SkillID = sk.ID
	result.SkillCreated = skillCreated

	agentState := "skipped"
	if !opts.SkipAgent {
		ag, agentCreated, err := e.upsertAgent(ctx, bp, workspaceID, opts.UserID, sk.ID, tools, status)
		if err != nil {
			return fmt.Errorf("failed to upsert agent %s: %w", bp.Agent.Slug, err)
		}
		result.AgentID = ag.ID
		result.AgentCreated = agentCreated
		agentState = createdOrReactivated(agentCreated)
	}

	result.Success = true
	e.events.PublishNew(eventbus.ProviderProvisioned, workspaceID, bp.ProviderKey, result)
	slog.InfoContext(ctx, fmt.Sprintf("provisioned %s: skill %s %s, agent %s %s, %d tools (discovery %s)",
		bp.ProviderKey,
		bp.Skill.Slug, createdOrReactivated(skillCreated),
		bp.Agent.Slug, agentState,
		len(tools), status,
	),
		"skill_id", result.SkillID,
		"agent_id", result.AgentID,
		"tool_count", len(tools),
	)
	return nil
}

func createdOrReactivated(created bool) string {
	if created {
		return "created"
	}
	return "reactivated"
}

// resolveTools returns the tool set for bp: the static list verbatim, or the
// result of retried remote discovery. Discovery never fails provisioning.
func (e *Engine) resolveTools(ctx context.Context, organizationID string, bp *blueprint.Blueprint) ([]string, metadata.DiscoveryStatus) {
	if !bp.UsesDynamicDiscovery() {
		return unionTools(bp.Skill.StaticTools), metadata.DiscoveryComplete
	}
	out := e.discoverer.Discover(ctx, organizationID, bp.ProviderKey)
	if out.Found() {
		return unionTools(out.Tools), metadata.DiscoveryComplete
	}
	slog.WarnContext(ctx, "tool discovery degraded, provisioning without tools",
		"attempts", out.Attempts,
		"error", out.Err,
	)
	return []string{}, metadata.DiscoveryFailed
}

// inTransaction runs fn in a store transaction, retrying once when a create
// lost a race to another writer: the second run takes the update path.
func (e *Engine) inTransaction(ctx context.Context, fn func(ctx context.Context, repos store.Repositories) error) error {
	err := e.store.Transaction(ctx, fn)
	if cerr.IsCode(err, cerr.AlreadyExists) {
		slog.InfoContext(ctx, "concurrent create detected, retrying as update", "error", err)
		err = e.store.Transaction(ctx, fn)
	}
	return err
}

func (e *Engine) upsertSkill(ctx context.Context, bp *blueprint.Blueprint, workspaceID, userID string, tools []string, status metadata.DiscoveryStatus) (*skill.Skill, bool, error) {
	var (
		sk      *skill.Skill
		created bool
	)
	err := e.inTransaction(ctx, func(ctx context.Context, repos store.Repositories) error {
		now := e.now()
		prov := metadata.Provisioning{
			BlueprintVersion: bp.Version,
			SyncedAt:         now,
			DiscoveryStatus:  status,
			ToolCount:        len(tools),
		}

		existing, err := repos.Skills.FindBySlug(ctx, workspaceID, bp.Skill.Slug)
		switch {
		case err == nil:
			applySkillSpec(existing, &bp.Skill)
			existing.Status = metadata.StatusActive
			existing.Metadata.ApplyProvisioning(prov)
			existing.UpdatedAt = now
			if err := repos.Skills.Update(ctx, existing); err != nil {
				return err
			}
			sk, created = existing, false
		case cerr.IsCode(err, cerr.NotFound):
			newSkill := &skill.Skill{
				ID:          ulid.Make().String(),
				WorkspaceID: workspaceID,
				Slug:        bp.Skill.Slug,
				Status:      metadata.StatusActive,
				CreatedBy:   userID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			applySkillSpec(newSkill, &bp.Skill)
			newSkill.Metadata.ApplyProvisioning(prov)
			if err := repos.Skills.Create(ctx, newSkill); err != nil {
				return err
			}
			sk, created = newSkill, true
		default:
			return err
		}

		_, err = syncTools(ctx, repos.Skills, sk.ID, tools)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return sk, created, nil
}

func applySkillSpec(sk *skill.Skill, spec *blueprint.SkillSpec) {
	sk.Name = spec.Name
	sk.Description = spec.Description
	sk.Instructions = spec.Instructions
	sk.Category = spec.Category
	sk.Tags = append([]string{}, spec.Tags...)
}

func (e *Engine) upsertAgent(ctx context.Context, bp *blueprint.Blueprint, workspaceID, userID, skillID string, tools []string, status metadata.DiscoveryStatus) (*agent.Agent, bool, error) {
	desired := unionTools(tools, bp.Agent.AdditionalTools)
	var (
		ag      *agent.Agent
		created bool
	)
	err := e.inTransaction(ctx, func(ctx context.Context, repos store.Repositories) error {
		now := e.now()
		prov := metadata.Provisioning{
			BlueprintVersion: bp.Version,
			SyncedAt:         now,
			DiscoveryStatus:  status,
			ToolCount:        len(desired),
		}

		existing, err := repos.Agents.FindBySlug(ctx, workspaceID, bp.Agent.Slug)
		switch {
		case err == nil:
			applyAgentSpec(existing, &bp.Agent)
			existing.Status = metadata.StatusActive
			existing.Metadata.ApplyProvisioning(prov)
			existing.Metadata.MergeExtra(bp.Agent.Metadata)
			existing.UpdatedAt = now
			if err := repos.Agents.Update(ctx, existing); err != nil {
				return err
			}
			ag, created = existing, false
		case cerr.IsCode(err, cerr.NotFound):
			newAgent := &agent.Agent{
				ID:          ulid.Make().String(),
				WorkspaceID: workspaceID,
				Slug:        bp.Agent.Slug,
				Status:      metadata.StatusActive,
				CreatedBy:   userID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			applyAgentSpec(newAgent, &bp.Agent)
			newAgent.Metadata.ApplyProvisioning(prov)
			newAgent.Metadata.MergeExtra(bp.Agent.Metadata)
			if err := repos.Agents.Create(ctx, newAgent); err != nil {
				return err
			}
			ag, created = newAgent, true
		default:
			return err
		}

		if _, err := syncTools(ctx, repos.Agents, ag.ID, desired); err != nil {
			return err
		}
		return pinSkill(ctx, repos.Agents, ag.ID, skillID)
	})
	if err != nil {
		return nil, false, err
	}
	return ag, created, nil
}

func applyAgentSpec(ag *agent.Agent, spec *blueprint.AgentSpec) {
	ag.Name = spec.Name
	ag.Description = spec.Description
	ag.Instructions = spec.Instructions
	ag.ModelProvider = spec.Model.Provider
	ag.ModelName = spec.Model.Name
	ag.Temperature = spec.Model.Temperature
	ag.MemoryEnabled = spec.MemoryEnabled
}

// pinSkill makes sure skillID is attached to agentID with Pinned set. An
// existing pinned attachment is left untouched.
func pinSkill(ctx context.Context, repo agent.Repository, agentID, skillID string) error {
	existing, err := repo.GetSkillAttachment(ctx, agentID, skillID)
	switch {
	case err == nil:
		if existing.Pinned {
			return nil
		}
		existing.Pinned = true
		return repo.SaveSkillAttachment(ctx, existing)
	case cerr.IsCode(err, cerr.NotFound):
		return repo.SaveSkillAttachment(ctx, &agent.SkillAttachment{
			AgentID: agentID,
			SkillID: skillID,
			Pinned:  true,
		})
	default:
		return err
	}
}
