// Package store groups the repositories the provisioning engine writes to and
// gives them a transactional boundary.
package store

import (
	"context"

	"github.com/kazz187/autoprovision/internal/agent"
	"github.com/kazz187/autoprovision/internal/connection"
	"github.com/kazz187/autoprovision/internal/skill"
)

type Repositories struct {
	Connections connection.Repository
	Skills      skill.Repository
	Agents      agent.Repository
}

type Store interface {
	// Repositories returns repositories that operate outside any transaction.
	Repositories() Repositories
	// Transaction runs fn with repositories bound to a single transaction.
	// Writes become visible only when fn returns nil.
	Transaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Close() error
}
