package skill

import (
	"time"

	"github.com/kazz187/autoprovision/internal/metadata"
)

// Skill is a reusable instruction bundle scoped to a workspace. Slug is
// unique within the workspace.
type Skill struct {
	ID           string            `yaml:"id" json:"id"`
	WorkspaceID  string            `yaml:"workspace_id" json:"workspace_id"`
	Slug         string            `yaml:"slug" json:"slug"`
	Name         string            `yaml:"name" json:"name"`
	Description  string            `yaml:"description" json:"description"`
	Instructions string            `yaml:"instructions" json:"instructions"`
	Category     string            `yaml:"category" json:"category"`
	Tags         []string          `yaml:"tags" json:"tags"`
	Status       metadata.Status   `yaml:"status" json:"status"`
	Metadata     metadata.Metadata `yaml:"metadata" json:"metadata"`
	CreatedBy    string            `yaml:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt    time.Time         `yaml:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `yaml:"updated_at" json:"updated_at"`
}

func (s *Skill) IsActive() bool {
	return s.Status != metadata.StatusDeactivated
}

// Tool attaches a tool identifier to a skill. There is at most one Tool per
// (SkillID, ToolID).
type Tool struct {
	ID        string    `yaml:"id" json:"id"`
	SkillID   string    `yaml:"skill_id" json:"skill_id"`
	ToolID    string    `yaml:"tool_id" json:"tool_id"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}
