package connection

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Connection is an organization's link to an external provider. The
// provisioning engine only reads it; its existence and IsActive flag drive
// provisioning and rediscovery.
type Connection struct {
	ID             string    `yaml:"id" json:"id"`
	WorkspaceID    string    `yaml:"workspace_id" json:"workspace_id"`
	OrganizationID string    `yaml:"organization_id" json:"organization_id"`
	ProviderKey    string    `yaml:"provider_key" json:"provider_key"`
	IsActive       bool      `yaml:"is_active" json:"is_active"`
	CreatedAt      time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt      time.Time `yaml:"updated_at" json:"updated_at"`
}

// New returns an active connection with a fresh ID when id is empty.
func New(id, workspaceID, organizationID, providerKey string, now time.Time) *Connection {
	if id == "" {
		id = ulid.Make().String()
	}
	return &Connection{
		ID:             id,
		WorkspaceID:    workspaceID,
		OrganizationID: organizationID,
		ProviderKey:    providerKey,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
