package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kazz187/autoprovision/internal/connection"
	"github.com/kazz187/autoprovision/pkg/cerr"
)

type connectionRow struct {
	ID             string `gorm:"primaryKey;size:26"`
	WorkspaceID    string `gorm:"index;not null"`
	OrganizationID string `gorm:"not null"`
	ProviderKey    string `gorm:"index;not null"`
	IsActive       bool   `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (connectionRow) TableName() string { return "integration_connections" }

// Models lists the gorm models owned by this package for AutoMigrate.
func Models() []any {
	return []any{&connectionRow{}}
}

func toRow(c *connection.Connection) *connectionRow {
	return &connectionRow{
		ID:             c.ID,
		WorkspaceID:    c.WorkspaceID,
		OrganizationID: c.OrganizationID,
		ProviderKey:    c.ProviderKey,
		IsActive:       c.IsActive,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func fromRow(r *connectionRow) *connection.Connection {
	return &connection.Connection{
		ID:             r.ID,
		WorkspaceID:    r.WorkspaceID,
		OrganizationID: r.OrganizationID,
		ProviderKey:    r.ProviderKey,
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func wrapDBError(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return cerr.NewError(cerr.NotFound, "connection not found", err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return cerr.NewError(cerr.AlreadyExists, "connection already exists", err)
	default:
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to %s connection: %w", op, err))
	}
}

func (r *GormRepository) Create(ctx context.Context, c *connection.Connection) error {
	if err := r.db.WithContext(ctx).Create(toRow(c)).Error; err != nil {
		return wrapDBError("create", err)
	}
	return nil
}

func (r *GormRepository) Get(ctx context.Context, id string) (*connection.Connection, error) {
	var row connectionRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, wrapDBError("get", err)
	}
	return fromRow(&row), nil
}

func (r *GormRepository) List(ctx context.Context, workspaceID string, limit, offset int) ([]*connection.Connection, int, error) {
	q := r.db.WithContext(ctx).Model(&connectionRow{})
	if workspaceID != "" {
		q = q.Where("workspace_id = ?", workspaceID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, wrapDBError("count", err)
	}
	q = q.Order("id").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []*connectionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, wrapDBError("list", err)
	}
	result := make([]*connection.Connection, len(rows))
	for i, row := range rows {
		result[i] = fromRow(row)
	}
	return result, int(total), nil
}

func (r *GormRepository) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	var rows []*connectionRow
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&rows).Error; err != nil {
		return nil, wrapDBError("list", err)
	}
	result := make([]*connection.Connection, len(rows))
	for i, row := range rows {
		result[i] = fromRow(row)
	}
	return result, nil
}

func (r *GormRepository) Update(ctx context.Context, c *connection.Connection) error {
	res := r.db.WithContext(ctx).Model(&connectionRow{ID: c.ID}).Select("*").Omit("created_at").Updates(toRow(c))
	if res.Error != nil {
		return wrapDBError("update", res.Error)
	}
	if res.RowsAffected == 0 {
		return cerr.NewError(cerr.NotFound, "connection not found", nil)
	}
	return nil
}

func (r *GormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&connectionRow{}, "id = ?", id)
	if res.Error != nil {
		return wrapDBError("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return cerr.NewError(cerr.NotFound, "connection not found", nil)
	}
	return nil
}
