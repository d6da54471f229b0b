package gormstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"trendharvest/internal/core/domain"
	"trendharvest/internal/core/ports"
)

// JobLogRepo implements ports.JobLog.
type JobLogRepo struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Record appends one audit entry. Write errors are swallowed after logging:
// the audit trail must never fail the operation that produced the entry.
func (r *JobLogRepo) Record(ctx context.Context, e domain.JobLogEntry) {
	if e.RanAt.IsZero() {
		e.RanAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&e).Error; err != nil {
		r.logger.Warn("job log write failed",
			slog.String("jobType", string(e.JobType)),
			slog.String("status", string(e.Status)),
			slog.String("error", err.Error()),
		)
	}
}

// Recent reads entries back for the ops API, newest first.
func (r *JobLogRepo) Recent(ctx context.Context, q ports.LogQuery) ([]domain.JobLogEntry, error) {
	limit := q.Limit
	if limit < 1 || limit > 500 {
		limit = 200
	}

	query := r.db.WithContext(ctx).Model(&domain.JobLogEntry{})
	if q.JobType != "" {
		query = query.Where("job_type = ?", q.JobType)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}

	var out []domain.JobLogEntry
	if err := query.Order("ran_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list job log entries: %w", err)
	}
	return out, nil
}
