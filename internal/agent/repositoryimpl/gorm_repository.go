package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kazz187/autoprovision/internal/agent"
	"github.com/kazz187/autoprovision/internal/metadata"
	"github.com/kazz187/autoprovision/pkg/cerr"
)

type agentRow struct {
	ID            string            `gorm:"primaryKey;size:26"`
	WorkspaceID   string            `gorm:"uniqueIndex:idx_agents_workspace_slug;not null"`
	Slug          string            `gorm:"uniqueIndex:idx_agents_workspace_slug;index;not null"`
	Name          string            `gorm:"not null"`
	Description   string
	Instructions  string
	ModelProvider string
	ModelName     string
	Temperature   float64
	MemoryEnabled bool
	Status        string            `gorm:"not null;default:active"`
	Metadata      metadata.Metadata `gorm:"type:jsonb;serializer:json"`
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (agentRow) TableName() string { return "agents" }

type agentToolRow struct {
	ID        string `gorm:"primaryKey;size:26"`
	AgentID   string `gorm:"uniqueIndex:idx_agent_tools_agent_tool;not null"`
	ToolID    string `gorm:"uniqueIndex:idx_agent_tools_agent_tool;not null"`
	CreatedAt time.Time
}

func (agentToolRow) TableName() string { return "agent_tools" }

type agentSkillRow struct {
	ID        string `gorm:"primaryKey;size:26"`
	AgentID   string `gorm:"uniqueIndex:idx_agent_skills_agent_skill;not null"`
	SkillID   string `gorm:"uniqueIndex:idx_agent_skills_agent_skill;not null"`
	Pinned    bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (agentSkillRow) TableName() string { return "agent_skills" }

// Models lists the gorm models owned by this package for AutoMigrate.
func Models() []any {
	return []any{&agentRow{}, &agentToolRow{}, &agentSkillRow{}}
}

func toRow(a *agent.Agent) *agentRow {
	return &agentRow{
		ID:            a.ID,
		WorkspaceID:   a.WorkspaceID,
		Slug:          a.Slug,
		Name:          a.Name,
		Description:   a.Description,
		Instructions:  a.Instructions,
		ModelProvider: a.ModelProvider,
		ModelName:     a.ModelName,
		Temperature:   a.Temperature,
		MemoryEnabled: a.MemoryEnabled,
		Status:        string(a.Status),
		Metadata:      a.Metadata,
		CreatedBy:     a.CreatedBy,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func fromRow(r *agentRow) *agent.Agent {
	return &agent.Agent{
		ID:            r.ID,
		WorkspaceID:   r.WorkspaceID,
		Slug:          r.Slug,
		Name:          r.Name,
		Description:   r.Description,
		Instructions:  r.Instructions,
		ModelProvider: r.ModelProvider,
		ModelName:     r.ModelName,
		Temperature:   r.Temperature,
		MemoryEnabled: r.MemoryEnabled,
		Status:        metadata.Status(r.Status),
		Metadata:      r.Metadata,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fromRows(rows []*agentRow) []*agent.Agent {
	result := make([]*agent.Agent, len(rows))
	for i, row := range rows {
		result[i] = fromRow(row)
	}
	return result
}

func fromSkillRow(r *agentSkillRow) *agent.SkillAttachment {
	return &agent.SkillAttachment{
		ID:        r.ID,
		AgentID:   r.AgentID,
		SkillID:   r.SkillID,
		Pinned:    r.Pinned,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func wrapDBError(target, op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return cerr.NewError(cerr.NotFound, target+" not found", err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return cerr.NewError(cerr.AlreadyExists, target+" already exists", err)
	default:
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to %s %s: %w", op, target, err))
	}
}

func (r *GormRepository) Create(ctx context.Context, a *agent.Agent) error {
	if err := r.db.WithContext(ctx).Create(toRow(a)).Error; err != nil {
		return wrapDBError("agent", "create", err)
	}
	return nil
}

func (r *GormRepository) Get(ctx context.Context, id string) (*agent.Agent, error) {
	var row agentRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, wrapDBError("agent", "get", err)
	}
	return fromRow(&row), nil
}

func (r *GormRepository) List(ctx context.Context, workspaceID string, limit, offset int) ([]*agent.Agent, int, error) {
	q := r.db.WithContext(ctx).Model(&agentRow{})
	if workspaceID != "" {
		q = q.Where("workspace_id = ?", workspaceID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, wrapDBError("agents", "count", err)
	}
	q = q.Order("id").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []*agentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, wrapDBError("agents", "list", err)
	}
	return fromRows(rows), int(total), nil
}

func (r *GormRepository) FindBySlug(ctx context.Context, workspaceID, slug string) (*agent.Agent, error) {
	var row agentRow
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND slug = ?", workspaceID, slug).
		First(&row).Error
	if err != nil {
		return nil, wrapDBError("agent", "find", err)
	}
	return fromRow(&row), nil
}

func (r *GormRepository) ListProvisioned(ctx context.Context, slug string) ([]*agent.Agent, error) {
	var rows []*agentRow
	err := r.db.WithContext(ctx).
		Where("slug = ?", slug).
		Where("metadata->>? = ?", metadata.KeyProvisionedBy, metadata.ProvisionedByAutoProvisioner).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, wrapDBError("agents", "list", err)
	}
	return fromRows(rows), nil
}

func (r *GormRepository) Update(ctx context.Context, a *agent.Agent) error {
	res := r.db.WithContext(ctx).
		Model(&agentRow{ID: a.ID}).
		Select("*").
		Omit("id", "workspace_id", "slug", "created_at").
		Updates(toRow(a))
	if res.Error != nil {
		return wrapDBError("agent", "update", res.Error)
	}
	if res.RowsAffected == 0 {
		return cerr.NewError(cerr.NotFound, "agent not found", nil)
	}
	return nil
}

func (r *GormRepository) ListToolIDs(ctx context.Context, agentID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).
		Model(&agentToolRow{}).
		Where("agent_id = ?", agentID).
		Order("tool_id").
		Pluck("tool_id", &ids).Error
	if err != nil {
		return nil, wrapDBError("agent tools", "list", err)
	}
	return ids, nil
}

func (r *GormRepository) AddTool(ctx context.Context, agentID, toolID string) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&agentToolRow{
			ID:        ulid.Make().String(),
			AgentID:   agentID,
			ToolID:    toolID,
			CreatedAt: time.Now(),
		})
	if res.Error != nil {
		return wrapDBError("agent tool", "create", res.Error)
	}
	if res.RowsAffected == 0 {
		return cerr.NewError(cerr.AlreadyExists, "agent tool already exists", nil)
	}
	return nil
}

func (r *GormRepository) RemoveTool(ctx context.Context, agentID, toolID string) error {
	res := r.db.WithContext(ctx).
		Where("agent_id = ? AND tool_id = ?", agentID, toolID).
		Delete(&agentToolRow{})
	if res.Error != nil {
		return wrapDBError("agent tool", "delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return cerr.NewError(cerr.NotFound, "agent tool not found", nil)
	}
	return nil
}

func (r *GormRepository) GetSkillAttachment(ctx context.Context, agentID, skillID string) (*agent.SkillAttachment, error) {
	var row agentSkillRow
	err := r.db.WithContext(ctx).
		Where("agent_id = ? AND skill_id = ?", agentID, skillID).
		First(&row).Error
	if err != nil {
		return nil, wrapDBError("agent skill", "get", err)
	}
	return fromSkillRow(&row), nil
}

func (r *GormRepository) SaveSkillAttachment(ctx context.Context, sa *agent.SkillAttachment) error {
	if sa.ID == "" {
		sa.ID = ulid.Make().String()
	}
	now := time.Now()
	if sa.CreatedAt.IsZero() {
		sa.CreatedAt = now
	}
	sa.UpdatedAt = now
	row := &agentSkillRow{
		ID:        sa.ID,
		AgentID:   sa.AgentID,
		SkillID:   sa.SkillID,
		Pinned:    sa.Pinned,
		CreatedAt: sa.CreatedAt,
		UpdatedAt: sa.UpdatedAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}, {Name: "skill_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"pinned", "updated_at"}),
		}).
		Create(row).Error
	if err != nil {
		return wrapDBError("agent skill", "save", err)
	}
	return nil
}

func (r *GormRepository) ListSkillAttachments(ctx context.Context, agentID string) ([]*agent.SkillAttachment, error) {
	var rows []*agentSkillRow
	if err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Order("skill_id").Find(&rows).Error; err != nil {
		return nil, wrapDBError("agent skills", "list", err)
	}
	result := make([]*agent.SkillAttachment, len(rows))
	for i, row := range rows {
		result[i] = fromSkillRow(row)
	}
	return result, nil
}
