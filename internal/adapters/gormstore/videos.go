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

// VideoRepo implements ports.VideoStore.
type VideoRepo struct {
	db *gorm.DB
}

// Upsert creates the record with status pending or refreshes mutable
// metadata on an existing one. The downloadStatus of an existing record is
// never touched here, which is what keeps re-discovery of a done video a
// no-op.
func (r *VideoRepo) Upsert(ctx context.Context, v ports.VideoUpsert) (*domain.VideoRecord, bool, bool, error) {
	var (
		rec     domain.VideoRecord
		created bool
		changed bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("platform = ? AND video_key = ?", v.Platform, v.VideoKey).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = domain.VideoRecord{
				Platform:       v.Platform,
				VideoKey:       v.VideoKey,
				Title:          v.Title,
				Views:          v.Views,
				URL:            v.URL,
				Topic:          v.Topic,
				Thumbnail:      v.Thumbnail,
				OwnerChannelID: v.OwnerChannelID,
				DiscoveredAt:   time.Now().UTC(),
				DownloadStatus: domain.StatusPending,
			}
			created = true
			return tx.Create(&rec).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]any{}
		if v.Title != "" && v.Title != rec.Title {
			updates["title"] = v.Title
			rec.Title = v.Title
		}
		if v.Views > 0 && v.Views != rec.Views {
			updates["views"] = v.Views
			rec.Views = v.Views
		}
		if v.URL != "" && v.URL != rec.URL {
			updates["url"] = v.URL
			rec.URL = v.URL
		}
		if v.Topic != "" && v.Topic != rec.Topic {
			updates["topic"] = v.Topic
			rec.Topic = v.Topic
		}
		if v.Thumbnail != "" && v.Thumbnail != rec.Thumbnail {
			updates["thumbnail"] = v.Thumbnail
			rec.Thumbnail = v.Thumbnail
		}
		if v.OwnerChannelID != 0 && v.OwnerChannelID != rec.OwnerChannelID {
			updates["owner_channel_id"] = v.OwnerChannelID
			rec.OwnerChannelID = v.OwnerChannelID
		}
		if len(updates) == 0 {
			return nil
		}
		changed = true
		return tx.Model(&domain.VideoRecord{}).Where("id = ?", rec.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, false, false, fmt.Errorf("failed to upsert video %s/%s: %w", v.Platform, v.VideoKey, err)
	}
	return &rec, created, changed, nil
}

// Get returns one video by primary key.
func (r *VideoRepo) Get(ctx context.Context, id uint) (*domain.VideoRecord, error) {
	var rec domain.VideoRecord
	if err := r.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load video %d: %w", id, err)
	}
	return &rec, nil
}

// MarkDownloading transitions the record into the in-flight state.
func (r *VideoRepo) MarkDownloading(ctx context.Context, id uint) error {
	return r.setVideoFields(ctx, id, map[string]any{
		"download_status": domain.StatusDownloading,
	})
}

// MarkDone records the finished download.
func (r *VideoRepo) MarkDone(ctx context.Context, id uint, localPath string, at time.Time) error {
	return r.setVideoFields(ctx, id, map[string]any{
		"download_status": domain.StatusDone,
		"local_path":      localPath,
		"downloaded_at":   at,
		"fail_reason":     "",
	})
}

// MarkPending returns a video to pending, storing the fail reason from the
// attempt that sent it back (empty for an operator re-download).
func (r *VideoRepo) MarkPending(ctx context.Context, id uint, failReason string) error {
	return r.setVideoFields(ctx, id, map[string]any{
		"download_status": domain.StatusPending,
		"fail_reason":     failReason,
	})
}

// MarkFailed is the terminal failure transition.
func (r *VideoRepo) MarkFailed(ctx context.Context, id uint, failReason string) error {
	return r.setVideoFields(ctx, id, map[string]any{
		"download_status": domain.StatusFailed,
		"fail_reason":     failReason,
	})
}

func (r *VideoRepo) setVideoFields(ctx context.Context, id uint, fields map[string]any) error {
	err := r.db.WithContext(ctx).Model(&domain.VideoRecord{}).Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("failed to update video %d: %w", id, err)
	}
	return nil
}

// ListPending returns pending videos oldest first, for reconciliation.
func (r *VideoRepo) ListPending(ctx context.Context, limit int) ([]domain.VideoRecord, error) {
	var out []domain.VideoRecord
	err := r.db.WithContext(ctx).Where("download_status = ?", domain.StatusPending).
		Order("discovered_at ASC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending videos: %w", err)
	}
	return out, nil
}

// Search pages through videos for the ops API.
func (r *VideoRepo) Search(ctx context.Context, q ports.VideoQuery) ([]domain.VideoRecord, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit)

	query := r.db.WithContext(ctx).Model(&domain.VideoRecord{})
	if q.Platform != "" {
		query = query.Where("platform = ?", q.Platform)
	}
	if q.Topic != "" {
		query = query.Where("topic = ?", q.Topic)
	}
	if q.Status != "" {
		query = query.Where("download_status = ?", q.Status)
	}
	if q.MinViews > 0 {
		query = query.Where("views >= ?", q.MinViews)
	}
	if !q.From.IsZero() {
		query = query.Where("discovered_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		query = query.Where("discovered_at <= ?", q.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count videos: %w", err)
	}

	var out []domain.VideoRecord
	err := query.Order("discovered_at DESC").
		Offset((page - 1) * limit).Limit(limit).Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list videos: %w", err)
	}
	return out, total, nil
}

// StatusCounts returns the number of videos per download status.
func (r *VideoRepo) StatusCounts(ctx context.Context) (map[domain.DownloadStatus]int64, error) {
	type row struct {
		DownloadStatus domain.DownloadStatus
		N              int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&domain.VideoRecord{}).
		Select("download_status, COUNT(*) AS n").Group("download_status").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count videos by status: %w", err)
	}

	counts := make(map[domain.DownloadStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.DownloadStatus] = r.N
	}
	return counts, nil
}

// Recent returns the newest discoveries.
func (r *VideoRepo) Recent(ctx context.Context, limit int) ([]domain.VideoRecord, error) {
	var out []domain.VideoRecord
	err := r.db.WithContext(ctx).Order("discovered_at DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent videos: %w", err)
	}
	return out, nil
}
