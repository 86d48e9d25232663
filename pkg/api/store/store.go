package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/minucst/portal/pkg/auth"
	"github.com/minucst/portal/pkg/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultListLimit = 100

// Store persists the security audit trail. The authentication state itself
// stays in memory; the store only keeps a history of what happened.
type Store interface {
	auth.AuditSink

	Start(ctx context.Context) error
	Stop() error

	ListLoginAttempts(ctx context.Context, sourceID string, limit int) ([]LoginAttempt, error)
	ListAdminActions(ctx context.Context, limit int) ([]AdminAction, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		// A second connection to :memory: would see an empty database.
		sqlDB, err := s.db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&LoginAttempt{},
		&AdminAction{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// RecordLoginAttempt implements auth.AuditSink. Codes of successful
// attempts are not stored.
func (s *store) RecordLoginAttempt(
	ctx context.Context, ev auth.LoginAttemptEvent,
) error {
	row := &LoginAttempt{
		ID:        uuid.NewString(),
		SourceID:  ev.SourceID,
		Success:   ev.Success,
		Reason:    string(ev.Reason),
		CreatedAt: ev.Timestamp.UTC(),
	}

	if !ev.Success {
		row.Code = ev.Code
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("creating login attempt: %w", err)
	}

	return nil
}

// RecordAdminAction implements auth.AuditSink.
func (s *store) RecordAdminAction(
	ctx context.Context, ev auth.AdminActionEvent,
) error {
	row := &AdminAction{
		ID:        uuid.NewString(),
		Action:    ev.Action,
		ActorID:   ev.ActorID,
		Target:    ev.Target,
		Success:   ev.Success,
		CreatedAt: ev.Timestamp.UTC(),
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("creating admin action: %w", err)
	}

	return nil
}

// ListLoginAttempts returns the newest attempts first, optionally limited
// to one source.
func (s *store) ListLoginAttempts(
	ctx context.Context, sourceID string, limit int,
) ([]LoginAttempt, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if sourceID != "" {
		q = q.Where("source_id = ?", sourceID)
	}

	var attempts []LoginAttempt
	if err := q.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("listing login attempts: %w", err)
	}

	return attempts, nil
}

// ListAdminActions returns the newest admin actions first.
func (s *store) ListAdminActions(
	ctx context.Context, limit int,
) ([]AdminAction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var actions []AdminAction
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("listing admin actions: %w", err)
	}

	return actions, nil
}

// DeleteOlderThan removes audit rows created before cutoff and returns how
// many were deleted.
func (s *store) DeleteOlderThan(
	ctx context.Context, cutoff time.Time,
) (int64, error) {
	var total int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", cutoff.UTC()).Delete(&LoginAttempt{})
		if res.Error != nil {
			return fmt.Errorf("deleting login attempts: %w", res.Error)
		}

		total += res.RowsAffected

		res = tx.Where("created_at < ?", cutoff.UTC()).Delete(&AdminAction{})
		if res.Error != nil {
			return fmt.Errorf("deleting admin actions: %w", res.Error)
		}

		total += res.RowsAffected

		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}
