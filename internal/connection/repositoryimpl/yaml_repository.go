package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/autoprovision/internal/connection"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/storage"
)

const connectionsPrefix = "connections"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", connectionsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, c *connection.Connection) error {
	exists, err := r.storage.Exists(ctx, path(c.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("connection", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "connection already exists", nil)
	}
	return r.write(ctx, c)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*connection.Connection, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("connection", err)
	}
	var c connection.Connection
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal connection: %w", err))
	}
	return &c, nil
}

func (r *YAMLRepository) all(ctx context.Context) ([]*connection.Connection, error) {
	paths, err := r.storage.List(ctx, connectionsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("connections", err)
	}
	sort.Strings(paths)

	var all []*connection.Connection
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var c connection.Connection
		if err := yaml.Unmarshal(data, &c); err != nil {
			continue
		}
		all = append(all, &c)
	}
	return all, nil
}

func (r *YAMLRepository) List(ctx context.Context, workspaceID string, limit, offset int) ([]*connection.Connection, int, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, 0, err
	}
	var filtered []*connection.Connection
	for _, c := range all {
		if workspaceID != "" && c.WorkspaceID != workspaceID {
			continue
		}
		filtered = append(filtered, c)
	}

	total := len(filtered)
	if offset >= total {
		return nil, total, nil
	}
	filtered = filtered[offset:]
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, total, nil
}

func (r *YAMLRepository) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	var active []*connection.Connection
	for _, c := range all {
		if c.IsActive {
			active = append(active, c)
		}
	}
	return active, nil
}

func (r *YAMLRepository) Update(ctx context.Context, c *connection.Connection) error {
	exists, err := r.storage.Exists(ctx, path(c.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("connection", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "connection not found", nil)
	}
	return r.write(ctx, c)
}

func (r *YAMLRepository) write(ctx context.Context, c *connection.Connection) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal connection: %w", err))
	}
	if err := r.storage.Write(ctx, path(c.ID), data); err != nil {
		return cerr.WrapStorageWriteError("connection", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("connection", err)
	}
	return nil
}
