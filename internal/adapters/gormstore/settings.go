package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"trendharvest/internal/core/domain"
)

const settingsKey = "default"

// SettingsRepo implements ports.SettingsStore on the single "default" row.
type SettingsRepo struct {
	db *gorm.DB
}

// Get returns the settings row, creating it with defaults on first access.
func (r *SettingsRepo) Get(ctx context.Context) (*domain.Settings, error) {
	var row domain.Settings
	err := r.db.WithContext(ctx).Where("key = ?", settingsKey).First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	row = *domain.DefaultSettings()
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		// Another caller may have created the row between First and Create.
		var existing domain.Settings
		if ferr := r.db.WithContext(ctx).Where("key = ?", settingsKey).First(&existing).Error; ferr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create default settings: %w", err)
	}
	return &row, nil
}

// Update persists the given settings under the default key.
func (r *SettingsRepo) Update(ctx context.Context, in *domain.Settings) (*domain.Settings, error) {
	current, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}

	in.ID = current.ID
	in.Key = settingsKey
	in.UpdatedAt = time.Now().UTC()
	if err := r.db.WithContext(ctx).Save(in).Error; err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return in, nil
}
