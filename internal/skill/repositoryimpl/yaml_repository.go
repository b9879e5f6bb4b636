package repositoryimpl

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/autoprovision/internal/skill"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/storage"
)

const (
	skillsPrefix     = "skills"
	skillSlugsPrefix = "skill_slugs"
	skillToolsPrefix = "skill_tools"
)

// YAMLRepository stores one YAML file per skill plus a slug index file per
// (workspace, slug) that enforces slug uniqueness.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", skillsPrefix, id)
}

func slugPath(workspaceID, slug string) string {
	return fmt.Sprintf("%s/%s/%s", skillSlugsPrefix, url.PathEscape(workspaceID), url.PathEscape(slug))
}

func toolsDir(skillID string) string {
	return fmt.Sprintf("%s/%s", skillToolsPrefix, skillID)
}

func toolPath(skillID, toolID string) string {
	return fmt.Sprintf("%s/%s.yaml", toolsDir(skillID), url.PathEscape(toolID))
}

func (r *YAMLRepository) Create(ctx context.Context, s *skill.Skill) error {
	exists, err := r.storage.Exists(ctx, path(s.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("skill", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "skill already exists", nil)
	}
	taken, err := r.storage.Exists(ctx, slugPath(s.WorkspaceID, s.Slug))
	if err != nil {
		return cerr.WrapStorageWriteError("skill", err)
	}
	if taken {
		return cerr.NewError(cerr.AlreadyExists, fmt.Sprintf("skill %q already exists in workspace", s.Slug), nil)
	}
	if err := r.write(ctx, s); err != nil {
		return err
	}
	if err := r.storage.Write(ctx, slugPath(s.WorkspaceID, s.Slug), []byte(s.ID)); err != nil {
		return cerr.WrapStorageWriteError("skill", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*skill.Skill, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("skill", err)
	}
	var s skill.Skill
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal skill: %w", err))
	}
	return &s, nil
}

func (r *YAMLRepository) all(ctx context.Context) ([]*skill.Skill, error) {
	paths, err := r.storage.List(ctx, skillsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("skills", err)
	}
	sort.Strings(paths)

	var all []*skill.Skill
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var s skill.Skill
		if err := yaml.Unmarshal(data, &s); err != nil {
			continue
		}
		all = append(all, &s)
	}
	return all, nil
}

func (r *YAMLRepository) List(ctx context.Context, workspaceID string, limit, offset int) ([]*skill.Skill, int, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, 0, err
	}
	var filtered []*skill.Skill
	for _, s := range all {
		if workspaceID != "" && s.WorkspaceID != workspaceID {
			continue
		}
		filtered = append(filtered, s)
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

func (r *YAMLRepository) FindBySlug(ctx context.Context, workspaceID, slug string) (*skill.Skill, error) {
	data, err := r.storage.Read(ctx, slugPath(workspaceID, slug))
	if err != nil {
		return nil, cerr.WrapStorageReadError("skill", err)
	}
	return r.Get(ctx, string(data))
}

func (r *YAMLRepository) ListProvisioned(ctx context.Context, slug string) ([]*skill.Skill, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	var result []*skill.Skill
	for _, s := range all {
		if s.Slug == slug && s.Metadata.IsAutoProvisioned() {
			result = append(result, s)
		}
	}
	return result, nil
}

func (r *YAMLRepository) Update(ctx context.Context, s *skill.Skill) error {
	current, err := r.Get(ctx, s.ID)
	if err != nil {
		return err
	}
	if current.WorkspaceID != s.WorkspaceID || current.Slug != s.Slug {
		return cerr.NewError(cerr.InvalidArgument, "skill workspace and slug are immutable", nil)
	}
	return r.write(ctx, s)
}

func (r *YAMLRepository) write(ctx context.Context, s *skill.Skill) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal skill: %w", err))
	}
	if err := r.storage.Write(ctx, path(s.ID), data); err != nil {
		return cerr.WrapStorageWriteError("skill", err)
	}
	return nil
}

func (r *YAMLRepository) ListToolIDs(ctx context.Context, skillID string) ([]string, error) {
	paths, err := r.storage.List(ctx, toolsDir(skillID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("skill tools", err)
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, cerr.WrapStorageReadError("skill tool", err)
		}
		var t skill.Tool
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal skill tool: %w", err))
		}
		ids = append(ids, t.ToolID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *YAMLRepository) AddTool(ctx context.Context, skillID, toolID string) error {
	p := toolPath(skillID, toolID)
	exists, err := r.storage.Exists(ctx, p)
	if err != nil {
		return cerr.WrapStorageWriteError("skill tool", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "skill tool already exists", nil)
	}
	data, err := yaml.Marshal(&skill.Tool{
		ID:        ulid.Make().String(),
		SkillID:   skillID,
		ToolID:    toolID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal skill tool: %w", err))
	}
	if err := r.storage.Write(ctx, p, data); err != nil {
		return cerr.WrapStorageWriteError("skill tool", err)
	}
	return nil
}

func (r *YAMLRepository) RemoveTool(ctx context.Context, skillID, toolID string) error {
	if err := r.storage.Delete(ctx, toolPath(skillID, toolID)); err != nil {
		return cerr.WrapStorageDeleteError("skill tool", err)
	}
	return nil
}
