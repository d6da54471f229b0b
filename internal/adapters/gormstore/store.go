// Package gormstore persists the engine's records in a single SQLite file
// via GORM, one repository per concern. Upserts are wrapped in
// transactions so the conditional-update semantics the dedup guarantee
// relies on hold without application locks.
package gormstore

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"trendharvest/internal/core/domain"
)

// Store owns the GORM connection and hands out the per-concern
// repositories.
type Store struct {
	db       *gorm.DB
	settings *SettingsRepo
	channels *ChannelRepo
	videos   *VideoRepo
	joblog   *JobLogRepo
}

// Open opens (creating if needed) the SQLite database at path and runs
// schema migration.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := db.AutoMigrate(
		&domain.Settings{},
		&domain.ChannelRecord{},
		&domain.VideoRecord{},
		&domain.JobLogEntry{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{
		db:       db,
		settings: &SettingsRepo{db: db},
		channels: &ChannelRepo{db: db},
		videos:   &VideoRepo{db: db},
		joblog:   &JobLogRepo{db: db, logger: logger},
	}, nil
}

// Settings returns the settings repository.
func (s *Store) Settings() *SettingsRepo { return s.settings }

// Channels returns the channel repository.
func (s *Store) Channels() *ChannelRepo { return s.channels }

// Videos returns the video repository.
func (s *Store) Videos() *VideoRepo { return s.videos }

// JobLog returns the audit log repository.
func (s *Store) JobLog() *JobLogRepo { return s.joblog }

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
