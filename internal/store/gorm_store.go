package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	agentimpl "github.com/kazz187/autoprovision/internal/agent/repositoryimpl"
	connectionimpl "github.com/kazz187/autoprovision/internal/connection/repositoryimpl"
	skillimpl "github.com/kazz187/autoprovision/internal/skill/repositoryimpl"
)

// GormStore keeps records in PostgreSQL. Unique indexes on slugs and
// attachments back the single-writer assumptions of the provisioning engine
// across processes.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: logger.New(slogWriter{}, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s := NewGormStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// slogWriter routes gorm's logger output into slog.
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	slog.Warn(fmt.Sprintf(format, args...), "component", "gorm")
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Migrate(ctx context.Context) error {
	var models []any
	models = append(models, connectionimpl.Models()...)
	models = append(models, skillimpl.Models()...)
	models = append(models, agentimpl.Models()...)
	if err := s.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func gormRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Connections: connectionimpl.NewGormRepository(db),
		Skills:      skillimpl.NewGormRepository(db),
		Agents:      agentimpl.NewGormRepository(db),
	}
}

func (s *GormStore) Repositories() Repositories {
	return gormRepositories(s.db)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, gormRepositories(tx))
	})
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
