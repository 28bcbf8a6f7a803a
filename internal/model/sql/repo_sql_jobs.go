package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/entity"

	"gorm.io/gorm"
)

// CreateJob inserts a new queue job.
func (r *GormRepository) CreateJob(ctx context.Context, job *entity.DbJob) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if job.Status == "" {
		job.Status = entity.JobQueued
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// GetJob loads a job by id.
func (r *GormRepository) GetJob(ctx context.Context, id string) (*entity.DbJob, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("job id is empty")
	}

	var job entity.DbJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// UpdateJob applies partial updates to a job.
func (r *GormRepository) UpdateJob(ctx context.Context, id string, updates entity.JobUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("job id is empty")
	}
	if updates.IsEmpty() {
		return nil
	}
	return r.db.WithContext(ctx).Model(&entity.DbJob{}).Where("id = ?", id).Updates(updates.ToMap()).Error
}

// ClaimNextJob atomically claims the next queued job and marks it running.
// Jobs are ordered by priority number (lowest first) then enqueue time; when
// ignorePriority is set only enqueue time is considered, so old jobs with a
// high priority number cannot starve. A nil job with a nil error means the
// queue is empty.
func (r *GormRepository) ClaimNextJob(ctx context.Context, ignorePriority bool) (*entity.DbJob, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}

	var claimed *entity.DbJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("status = ?", entity.JobQueued)
		if ignorePriority {
			query = query.Order("enqueued_at ASC")
		} else {
			query = query.Order("priority ASC").Order("enqueued_at ASC")
		}

		var job entity.DbJob
		if err := query.First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		now := time.Now()
		// The status guard keeps the claim safe against concurrent workers
		// on databases without row locking.
		result := tx.Model(&entity.DbJob{}).
			Where("id = ? AND status = ?", job.ID, entity.JobQueued).
			Updates(map[string]interface{}{
				"status":     entity.JobRunning,
				"attempts":   gorm.Expr("attempts + 1"),
				"started_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Another worker won the race, leave the claim empty.
			return nil
		}

		job.Status = entity.JobRunning
		job.Attempts++
		job.StartedAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
