package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kazz187/autoprovision/internal/metadata"
	"github.com/kazz187/autoprovision/internal/skill"
	"github.com/kazz187/autoprovision/pkg/cerr"
)

type skillRow struct {
	ID           string            `gorm:"primaryKey;size:26"`
	WorkspaceID  string            `gorm:"uniqueIndex:idx_skills_workspace_slug;not null"`
	Slug         string            `gorm:"uniqueIndex:idx_skills_workspace_slug;index;not null"`
	Name         string            `gorm:"not null"`
	Description  string
	Instructions string
	Category     string
	Tags         []string          `gorm:"type:jsonb;serializer:json"`
	Status       string            `gorm:"not null;default:active"`
	Metadata     metadata.Metadata `gorm:"type:jsonb;serializer:json"`
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (skillRow) TableName() string { return "skills" }

type skillToolRow struct {
	ID        string `gorm:"primaryKey;size:26"`
	SkillID   string `gorm:"uniqueIndex:idx_skill_tools_skill_tool;not null"`
	ToolID    string `gorm:"uniqueIndex:idx_skill_tools_skill_tool;not null"`
	CreatedAt time.Time
}

func (skillToolRow) TableName() string { return "skill_tools" }

// Models lists the gorm models owned by this package for AutoMigrate.
func Models() []any {
	return []any{&skillRow{}, &skillToolRow{}}
}

func toRow(s *skill.Skill) *skillRow {
	return &skillRow{
		ID:           s.ID,
		WorkspaceID:  s.WorkspaceID,
		Slug:         s.Slug,
		Name:         s.Name,
		Description:  s.Description,
		Instructions: s.Instructions,
		Category:     s.Category,
		Tags:         s.Tags,
		Status:       string(s.Status),
		Metadata:     s.Metadata,
		CreatedBy:    s.CreatedBy,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func fromRow(r *skillRow) *skill.Skill {
	return &skill.Skill{
		ID:           r.ID,
		WorkspaceID:  r.WorkspaceID,
		Slug:         r.Slug,
		Name:         r.Name,
		Description:  r.Description,
		Instructions: r.Instructions,
		Category:     r.Category,
		Tags:         r.Tags,
		Status:       metadata.Status(r.Status),
		Metadata:     r.Metadata,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func fromRows(rows []*skillRow) []*skill.Skill {
	result := make([]*skill.Skill, len(rows))
	for i, row := range rows {
		result[i] = fromRow(row)
	}
	return result
}

// GormRepository relies on the unique indexes above and a gorm.DB opened
// with TranslateError so duplicates surface as gorm.ErrDuplicatedKey.
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

func (r *GormRepository) Create(ctx context.Context, s *skill.Skill) error {
	if err := r.db.WithContext(ctx).Create(toRow(s)).Error; err != nil {
		return wrapDBError("skill", "create", err)
	}
	return nil
}

func (r *GormRepository) Get(ctx context.Context, id string) (*skill.Skill, error) {
	var row skillRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, wrapDBError("skill", "get", err)
	}
	return fromRow(&row), nil
}

func (r *GormRepository) List(ctx context.Context, workspaceID string, limit, offset int) ([]*skill.Skill, int, error) {
	q := r.db.WithContext(ctx).Model(&skillRow{})
	if workspaceID != "" {
		q = q.Where("workspace_id = ?", workspaceID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, wrapDBError("skills", "count", err)
	}
	q = q.Order("id").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []*skillRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, wrapDBError("skills", "list", err)
	}
	return fromRows(rows), int(total), nil
}

func (r *GormRepository) FindBySlug(ctx context.Context, workspaceID, slug string) (*skill.Skill, error) {
	var row skillRow
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND slug = ?", workspaceID, slug).
		First(&row).Error
	if err != nil {
		return nil, wrapDBError("skill", "find", err)
	}
	return fromRow(&row), nil
}

func (r *GormRepository) ListProvisioned(ctx context.Context, slug string) ([]*skill.Skill, error) {
	var rows []*skillRow
	err := r.db.WithContext(ctx).
		Where("slug = ?", slug).
		Where("metadata->>? = ?", metadata.KeyProvisionedBy, metadata.ProvisionedByAutoProvisioner).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, wrapDBError("skills", "list", err)
	}
	return fromRows(rows), nil
}

func (r *GormRepository) Update(ctx context.Context, s *skill.Skill) error {
	res := r.db.WithContext(ctx).
		Model(&skillRow{ID: s.ID}).
		Select("*").
		Omit("id", "workspace_id", "slug", "created_at").
		Updates(toRow(s))
	if res.Error != nil {
		return wrapDBError("skill", "update", res.Error)
	}
	if res.RowsAffected == 0 {
		return cerr.NewError(cerr.NotFound, "skill not found", nil)
	}
	return nil
}

func (r *GormRepository) ListToolIDs(ctx context.Context, skillID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).
		Model(&skillToolRow{}).
		Where("skill_id = ?", skillID).
		Order("tool_id").
		Pluck("tool_id", &ids).Error
	if err != nil {
		return nil, wrapDBError("skill tools", "list", err)
	}
	return ids, nil
}

func (r *GormRepository) AddTool(ctx context.Context, skillID, toolID string) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&skillToolRow{
			ID:        ulid.Make().String(),
			SkillID:   skillID,
			ToolID:    toolID,
			CreatedAt: time.Now(),
		})
	if res.Error != nil {
		return wrapDBError("skill tool", "create", res.Error)
	}
	if res.RowsAffected == 0 {
		return cerr.NewError(cerr.AlreadyExists, "skill tool already exists", nil)
	}
	return nil
}

func (r *GormRepository) RemoveTool(ctx context.Context, skillID, toolID string) error {
	res := r.db.WithContext(ctx).
		Where("skill_id = ? AND tool_id = ?", skillID, toolID).
		Delete(&skillToolRow{})
	if res.Error != nil {
		return wrapDBError("skill tool", "delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return cerr.NewError(cerr.NotFound, "skill tool not found", nil)
	}
	return nil
}
