package provisioning

import "github.com/kazz187/autoprovision/internal/metadata"

type ProvisionOptions struct {
	// WorkspaceID overrides the workspace recorded on the connection.
	WorkspaceID string `json:"workspace_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	SkipAgent   bool   `json:"skip_agent,omitempty"`
}

type ProvisionResult struct {
	Success         bool                     `json:"success"`
	SkillID         string                   `json:"skill_id,omitempty"`
	AgentID         string                   `json:"agent_id,omitempty"`
	ToolsDiscovered []string                 `json:"tools_discovered"`
	SkillCreated    bool                     `json:"skill_created"`
	AgentCreated    bool                     `json:"agent_created"`
	DiscoveryStatus metadata.DiscoveryStatus `json:"discovery_status,omitempty"`
	Error           string                   `json:"error,omitempty"`
}

type DeprovisionResult struct {
	DeactivatedSkills []string `json:"deactivated_skills"`
	DeactivatedAgents []string `json:"deactivated_agents"`
	Error             string   `json:"error,omitempty"`
}

type RecordType string

const (
	RecordSkill RecordType = "skill"
	RecordAgent RecordType = "agent"
)

type BlueprintUpdate struct {
	Type        RecordType `json:"type"`
	Slug        string     `json:"slug"`
	WorkspaceID string     `json:"workspace_id"`
	FromVersion int        `json:"from_version"`
	ToVersion   int        `json:"to_version"`
}

type BlueprintSyncResult struct {
	Updated []BlueprintUpdate `json:"updated"`
	Skipped int               `json:"skipped"`
	Errors  []string          `json:"errors"`
}

type ToolRediscoveryResult struct {
	Provider  string   `json:"provider"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged int      `json:"unchanged"`
}

// ConnectionRediscovery is one entry of RediscoverAll. Result is nil when
// there was nothing to do for the connection.
type ConnectionRediscovery struct {
	ConnectionID string                 `json:"connection_id"`
	Result       *ToolRediscoveryResult `json:"result"`
	Error        string                 `json:"error,omitempty"`
}

type RediscoverAllResult struct {
	Connections []ConnectionRediscovery `json:"connections"`
	Changed     int                     `json:"changed"`
	Errors      int                     `json:"errors"`
}
