package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"trendharvest/internal/core/domain"
	"trendharvest/internal/core/ports"
)

// ChannelRepo implements ports.ChannelStore.
type ChannelRepo struct {
	db *gorm.DB
}

// Upsert creates or refreshes a channel keyed (platform, channelKey).
// The topic is added to the channel's topic set; discovery always marks
// the channel active again.
func (r *ChannelRepo) Upsert(ctx context.Context, c ports.ChannelUpsert) (*domain.ChannelRecord, error) {
	var rec domain.ChannelRecord

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("platform = ? AND channel_key = ?", c.Platform, c.ChannelKey).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = domain.ChannelRecord{
				Platform:   c.Platform,
				ChannelKey: c.ChannelKey,
				Name:       c.Name,
				Followers:  c.Followers,
				Priority:   domain.PriorityNormal,
				IsActive:   true,
			}
			if c.Topic != "" {
				rec.Topics = []string{c.Topic}
			}
			return tx.Create(&rec).Error
		}
		if err != nil {
			return err
		}

		if c.Name != "" {
			rec.Name = c.Name
		}
		if c.Followers > 0 {
			rec.Followers = c.Followers
		}
		if c.Topic != "" && !rec.HasTopic(c.Topic) {
			rec.Topics = append(rec.Topics, c.Topic)
		}
		rec.IsActive = true
		return tx.Save(&rec).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert channel %s/%s: %w", c.Platform, c.ChannelKey, err)
	}
	return &rec, nil
}

// Get returns one channel by primary key.
func (r *ChannelRepo) Get(ctx context.Context, id uint) (*domain.ChannelRecord, error) {
	var rec domain.ChannelRecord
	if err := r.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load channel %d: %w", id, err)
	}
	return &rec, nil
}

// IncTotalVideos bumps the discovered-video counter.
func (r *ChannelRepo) IncTotalVideos(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&domain.ChannelRecord{}).Where("id = ?", id).
		UpdateColumn("total_videos", gorm.Expr("total_videos + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment total videos for channel %d: %w", id, err)
	}
	return nil
}

// ListActive returns active channels ordered by priority descending.
func (r *ChannelRepo) ListActive(ctx context.Context, limit int) ([]domain.ChannelRecord, error) {
	var out []domain.ChannelRecord
	err := r.db.WithContext(ctx).Where("is_active = ?", true).
		Order("priority DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active channels: %w", err)
	}
	return out, nil
}

// SetLastScanned stamps the channel after a scan pass.
func (r *ChannelRepo) SetLastScanned(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.ChannelRecord{}).Where("id = ?", id).
		Update("last_scanned", at).Error
	if err != nil {
		return fmt.Errorf("failed to stamp channel %d: %w", id, err)
	}
	return nil
}

// Search pages through channels for the ops API.
func (r *ChannelRepo) Search(ctx context.Context, q ports.ChannelQuery) ([]domain.ChannelRecord, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit)

	query := r.db.WithContext(ctx).Model(&domain.ChannelRecord{})
	if q.Search != "" {
		like := "%" + q.Search + "%"
		query = query.Where("name LIKE ? OR channel_key LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count channels: %w", err)
	}

	var out []domain.ChannelRecord
	err := query.Order("priority DESC, updated_at DESC").
		Offset((page - 1) * limit).Limit(limit).Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list channels: %w", err)
	}
	return out, total, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
