package repositoryimpl

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/autoprovision/internal/agent"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/storage"
)

const (
	agentsPrefix      = "agents"
	agentSlugsPrefix  = "agent_slugs"
	agentToolsPrefix  = "agent_tools"
	agentSkillsPrefix = "agent_skills"
)

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", agentsPrefix, id)
}

func slugPath(workspaceID, slug string) string {
	return fmt.Sprintf("%s/%s/%s", agentSlugsPrefix, url.PathEscape(workspaceID), url.PathEscape(slug))
}

func toolsDir(agentID string) string {
	return fmt.Sprintf("%s/%s", agentToolsPrefix, agentID)
}

func toolPath(agentID, toolID string) string {
	return fmt.Sprintf("%s/%s.yaml", toolsDir(agentID), url.PathEscape(toolID))
}

func skillsDir(agentID string) string {
	return fmt.Sprintf("%s/%s", agentSkillsPrefix, agentID)
}

func skillPath(agentID, skillID string) string {
	return fmt.Sprintf("%s/%s.yaml", skillsDir(agentID), skillID)
}

func (r *YAMLRepository) Create(ctx context.Context, a *agent.Agent) error {
	exists, err := r.storage.Exists(ctx, path(a.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("agent", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "agent already exists", nil)
	}
	taken, err := r.storage.Exists(ctx, slugPath(a.WorkspaceID, a.Slug))
	if err != nil {
		return cerr.WrapStorageWriteError("agent", err)
	}
	if taken {
		return cerr.NewError(cerr.AlreadyExists, fmt.Sprintf("agent %q already exists in workspace", a.Slug), nil)
	}
	if err := r.write(ctx, a); err != nil {
		return err
	}
	if err := r.storage.Write(ctx, slugPath(a.WorkspaceID, a.Slug), []byte(a.ID)); err != nil {
		return cerr.WrapStorageWriteError("agent", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*agent.Agent, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("agent", err)
	}
	var a agent.Agent
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal agent: %w", err))
	}
	return &a, nil
}

func (r *YAMLRepository) all(ctx context.Context) ([]*agent.Agent, error) {
	paths, err := r.storage.List(ctx, agentsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("agents", err)
	}
	sort.Strings(paths)

	var all []*agent.Agent
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var a agent.Agent
		if err := yaml.Unmarshal(data, &a); err != nil {
			continue
		}
		all = append(all, &a)
	}
	return all, nil
}

func (r *YAMLRepository) List(ctx context.Context, workspaceID string, limit, offset int) ([]*agent.Agent, int, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, 0, err
	}
	var filtered []*agent.Agent
	for _, a := range all {
		if workspaceID != "" && a.WorkspaceID != workspaceID {
			continue
		}
		filtered = append(filtered, a)
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

func (r *YAMLRepository) FindBySlug(ctx context.Context, workspaceID, slug string) (*agent.Agent, error) {
	data, err := r.storage.Read(ctx, slugPath(workspaceID, slug))
	if err != nil {
		return nil, cerr.WrapStorageReadError("agent", err)
	}
	return r.Get(ctx, string(data))
}

func (r *YAMLRepository) ListProvisioned(ctx context.Context, slug string) ([]*agent.Agent, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	var result []*agent.Agent
	for _, a := range all {
		if a.Slug == slug && a.Metadata.IsAutoProvisioned() {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *YAMLRepository) Update(ctx context.Context, a *agent.Agent) error {
	current, err := r.Get(ctx, a.ID)
	if err != nil {
		return err
	}
	if current.WorkspaceID != a.WorkspaceID || current.Slug != a.Slug {
		return cerr.NewError(cerr.InvalidArgument, "agent workspace and slug are immutable", nil)
	}
	return r.write(ctx, a)
}

func (r *YAMLRepository) write(ctx context.Context, a *agent.Agent) error {
	data, err := yaml.Marshal(a)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal agent: %w", err))
	}
	if err := r.storage.Write(ctx, path(a.ID), data); err != nil {
		return cerr.WrapStorageWriteError("agent", err)
	}
	return nil
}

func (r *YAMLRepository) ListToolIDs(ctx context.Context, agentID string) ([]string, error) {
	paths, err := r.storage.List(ctx, toolsDir(agentID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("agent tools", err)
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, cerr.WrapStorageReadError("agent tool", err)
		}
		var t agent.Tool
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal agent tool: %w", err))
		}
		ids = append(ids, t.ToolID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *YAMLRepository) AddTool(ctx context.Context, agentID, toolID string) error {
	p := toolPath(agentID, toolID)
	exists, err := r.storage.Exists(ctx, p)
	if err != nil {
		return cerr.WrapStorageWriteError("agent tool", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "agent tool already exists", nil)
	}
	data, err := yaml.Marshal(&agent.Tool{
		ID:        ulid.Make().String(),
		AgentID:   agentID,
		ToolID:    toolID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal agent tool: %w", err))
	}
	if err := r.storage.Write(ctx, p, data); err != nil {
		return cerr.WrapStorageWriteError("agent tool", err)
	}
	return nil
}

func (r *YAMLRepository) RemoveTool(ctx context.Context, agentID, toolID string) error {
	if err := r.storage.Delete(ctx, toolPath(agentID, toolID)); err != nil {
		return cerr.WrapStorageDeleteError("agent tool", err)
	}
	return nil
}

func (r *YAMLRepository) GetSkillAttachment(ctx context.Context, agentID, skillID string) (*agent.SkillAttachment, error) {
	data, err := r.storage.Read(ctx, skillPath(agentID, skillID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("agent skill", err)
	}
	var sa agent.SkillAttachment
	if err := yaml.Unmarshal(data, &sa); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal agent skill: %w", err))
	}
	return &sa, nil
}

func (r *YAMLRepository) SaveSkillAttachment(ctx context.Context, sa *agent.SkillAttachment) error {
	existing, err := r.GetSkillAttachment(ctx, sa.AgentID, sa.SkillID)
	switch {
	case err == nil:
		sa.ID = existing.ID
		sa.CreatedAt = existing.CreatedAt
	case cerr.IsCode(err, cerr.NotFound):
		if sa.ID == "" {
			sa.ID = ulid.Make().String()
		}
	default:
		return err
	}
	now := time.Now()
	if sa.CreatedAt.IsZero() {
		sa.CreatedAt = now
	}
	sa.UpdatedAt = now
	data, err := yaml.Marshal(sa)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal agent skill: %w", err))
	}
	if err := r.storage.Write(ctx, skillPath(sa.AgentID, sa.SkillID), data); err != nil {
		return cerr.WrapStorageWriteError("agent skill", err)
	}
	return nil
}

func (r *YAMLRepository) ListSkillAttachments(ctx context.Context, agentID string) ([]*agent.SkillAttachment, error) {
	paths, err := r.storage.List(ctx, skillsDir(agentID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("agent skills", err)
	}
	result := make([]*agent.SkillAttachment, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, cerr.WrapStorageReadError("agent skill", err)
		}
		var sa agent.SkillAttachment
		if err := yaml.Unmarshal(data, &sa); err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal agent skill: %w", err))
		}
		result = append(result, &sa)
	}
	return result, nil
}
