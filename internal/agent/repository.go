package agent

import "context"

type Repository interface {
	Create(ctx context.Context, a *Agent) error
	Get(ctx context.Context, id string) (*Agent, error)
	List(ctx context.Context, workspaceID string, limit, offset int) ([]*Agent, int, error)
	FindBySlug(ctx context.Context, workspaceID, slug string) (*Agent, error)
	// ListProvisioned returns the auto-provisioned agents with slug across
	// every workspace.
	ListProvisioned(ctx context.Context, slug string) ([]*Agent, error)
	Update(ctx context.Context, a *Agent) error

	ListToolIDs(ctx context.Context, agentID string) ([]string, error)
	// AddTool fails with cerr.AlreadyExists when the tool is already attached.
	AddTool(ctx context.Context, agentID, toolID string) error
	// RemoveTool fails with cerr.NotFound when the tool is not attached.
	RemoveTool(ctx context.Context, agentID, toolID string) error

	GetSkillAttachment(ctx context.Context, agentID, skillID string) (*SkillAttachment, error)
	// SaveSkillAttachment inserts or updates the attachment keyed by
	// (AgentID, SkillID).
	SaveSkillAttachment(ctx context.Context, sa *SkillAttachment) error
	ListSkillAttachments(ctx context.Context, agentID string) ([]*SkillAttachment, error)
}
