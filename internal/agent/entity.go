package agent

import (
	"time"

	"github.com/kazz187/autoprovision/internal/metadata"
)

// Agent is an executable configuration scoped to a workspace. Slug is unique
// within the workspace.
type Agent struct {
	ID            string            `yaml:"id" json:"id"`
	WorkspaceID   string            `yaml:"workspace_id" json:"workspace_id"`
	Slug          string            `yaml:"slug" json:"slug"`
	Name          string            `yaml:"name" json:"name"`
	Description   string            `yaml:"description" json:"description"`
	Instructions  string            `yaml:"instructions" json:"instructions"`
	ModelProvider string            `yaml:"model_provider" json:"model_provider"`
	ModelName     string            `yaml:"model_name" json:"model_name"`
	Temperature   float64           `yaml:"temperature" json:"temperature"`
	MemoryEnabled bool              `yaml:"memory_enabled" json:"memory_enabled"`
	Status        metadata.Status   `yaml:"status" json:"status"`
	Metadata      metadata.Metadata `yaml:"metadata" json:"metadata"`
	CreatedBy     string            `yaml:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt     time.Time         `yaml:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `yaml:"updated_at" json:"updated_at"`
}

func (a *Agent) IsActive() bool {
	return a.Status != metadata.StatusDeactivated
}

// Tool attaches a tool identifier to an agent.
type Tool struct {
	ID        string    `yaml:"id" json:"id"`
	AgentID   string    `yaml:"agent_id" json:"agent_id"`
	ToolID    string    `yaml:"tool_id" json:"tool_id"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// SkillAttachment links a skill to an agent. A pinned skill has its tools
// injected straight into the agent's capability set.
type SkillAttachment struct {
	ID        string    `yaml:"id" json:"id"`
	AgentID   string    `yaml:"agent_id" json:"agent_id"`
	SkillID   string    `yaml:"skill_id" json:"skill_id"`
	Pinned    bool      `yaml:"pinned" json:"pinned"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}
