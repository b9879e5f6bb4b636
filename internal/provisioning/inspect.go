package provisioning

import (
	"context"

	"github.com/kazz187/autoprovision/internal/agent"
	"github.com/kazz187/autoprovision/internal/skill"
	"github.com/kazz187/autoprovision/pkg/cerr"
)

// ProvisionedState is a read-only view of what a provider has provisioned
// in a workspace. Skill and Agent are nil when absent.
type ProvisionedState struct {
	ProviderKey      string       `json:"provider_key"`
	WorkspaceID      string       `json:"workspace_id"`
	BlueprintVersion int          `json:"blueprint_version"`
	Skill            *skill.Skill `json:"skill,omitempty"`
	SkillTools       []string     `json:"skill_tools"`
	Agent            *agent.Agent `json:"agent,omitempty"`
	AgentTools       []string     `json:"agent_tools"`
	SkillPinned      bool         `json:"skill_pinned"`
}

// Inspect reports the provisioned records of providerKey in workspaceID.
// It fails with cerr.NotFound when the provider has no blueprint.
func (e *Engine) Inspect(ctx context.Context, providerKey, workspaceID string) (*ProvisionedState, error) {
	bp, ok := e.registry.Get(providerKey)
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "no blueprint for provider "+providerKey, nil)
	}
	repos := e.store.Repositories()
	state := &ProvisionedState{
		ProviderKey:      providerKey,
		WorkspaceID:      workspaceID,
		BlueprintVersion: bp.Version,
		SkillTools:       []string{},
		AgentTools:       []string{},
	}

	sk, err := repos.Skills.FindBySlug(ctx, workspaceID, bp.Skill.Slug)
	switch {
	case err == nil:
		state.Skill = sk
		if state.SkillTools, err = repos.Skills.ListToolIDs(ctx, sk.ID); err != nil {
			return nil, err
		}
	case cerr.IsCode(err, cerr.NotFound):
	default:
		return nil, err
	}

	ag, err := repos.Agents.FindBySlug(ctx, workspaceID, bp.Agent.Slug)
	switch {
	case err == nil:
		state.Agent = ag
		if state.AgentTools, err = repos.Agents.ListToolIDs(ctx, ag.ID); err != nil {
			return nil, err
		}
		if state.Skill != nil {
			sa, err := repos.Agents.GetSkillAttachment(ctx, ag.ID, state.Skill.ID)
			switch {
			case err == nil:
				state.SkillPinned = sa.Pinned
			case cerr.IsCode(err, cerr.NotFound):
			default:
				return nil, err
			}
		}
	case cerr.IsCode(err, cerr.NotFound):
	default:
		return nil, err
	}
	return state, nil
}
