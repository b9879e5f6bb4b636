package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	agentimpl "github.com/kazz187/autoprovision/internal/agent/repositoryimpl"
	connectionimpl "github.com/kazz187/autoprovision/internal/connection/repositoryimpl"
	skillimpl "github.com/kazz187/autoprovision/internal/skill/repositoryimpl"
	"github.com/kazz187/autoprovision/pkg/storage"
)

// YAMLStore keeps records as YAML files in a storage.Storage. Transactions
// are serialised and buffered in a storage.StagedStorage until commit.
type YAMLStore struct {
	base storage.Storage
	mu   sync.Mutex
}

var _ Store = (*YAMLStore)(nil)

func NewYAMLStore(base storage.Storage) *YAMLStore {
	return &YAMLStore{base: base}
}

func yamlRepositories(s storage.Storage) Repositories {
	return Repositories{
		Connections: connectionimpl.NewYAMLRepository(s),
		Skills:      skillimpl.NewYAMLRepository(s),
		Agents:      agentimpl.NewYAMLRepository(s),
	}
}

func (s *YAMLStore) Repositories() Repositories {
	return yamlRepositories(s.base)
}

func (s *YAMLStore) Transaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := storage.NewStagedStorage(s.base)
	if err := fn(ctx, yamlRepositories(staged)); err != nil {
		if n := staged.Pending(); n > 0 {
			slog.DebugContext(ctx, "transaction rolled back", "discarded_writes", n)
		}
		staged.Discard()
		return err
	}
	if err := staged.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *YAMLStore) Close() error {
	return nil
}
