package skill

import "context"

type Repository interface {
	Create(ctx context.Context, s *Skill) error
	Get(ctx context.Context, id string) (*Skill, error)
	List(ctx context.Context, workspaceID string, limit, offset int) ([]*Skill, int, error)
	FindBySlug(ctx context.Context, workspaceID, slug string) (*Skill, error)
	// ListProvisioned returns the auto-provisioned skills with slug across
	// every workspace.
	ListProvisioned(ctx context.Context, slug string) ([]*Skill, error)
	Update(ctx context.Context, s *Skill) error

	// ListToolIDs returns the attached tool identifiers in sorted order.
	ListToolIDs(ctx context.Context, skillID string) ([]string, error)
	// AddTool fails with cerr.AlreadyExists when the tool is already attached.
	AddTool(ctx context.Context, skillID, toolID string) error
	// RemoveTool fails with cerr.NotFound when the tool is not attached.
	RemoveTool(ctx context.Context, skillID, toolID string) error
}
