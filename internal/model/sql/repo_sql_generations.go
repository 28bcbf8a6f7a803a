package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mvh70/teamshots-sub010/internal/entity"

	"gorm.io/gorm"
)

// CreateGeneration inserts a new generation record.
func (r *GormRepository) CreateGeneration(ctx context.Context, generation *entity.DbGeneration) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if generation == nil {
		return fmt.Errorf("generation is nil")
	}
	if generation.MaxRegenerations != generation.RemainingRegenerations {
		return fmt.Errorf("generation %s: remaining regenerations must equal max at creation", generation.ID)
	}
	return r.db.WithContext(ctx).Create(generation).Error
}

// GetGeneration loads a generation by id, (nil, nil) when absent.
func (r *GormRepository) GetGeneration(ctx context.Context, id string) (*entity.DbGeneration, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("generation id is empty")
	}

	var generation entity.DbGeneration
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&generation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &generation, nil
}

// UpdateGeneration applies partial updates to a generation record.
func (r *GormRepository) UpdateGeneration(ctx context.Context, id string, updates entity.GenerationUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("generation id is empty")
	}
	if updates.IsEmpty() {
		return nil
	}
	return r.db.WithContext(ctx).Model(&entity.DbGeneration{}).Where("id = ?", id).Updates(updates.ToMap()).Error
}

// DeleteGeneration removes a generation record. Deleting a record that no
// longer exists is not an error; this is a compensating action.
func (r *GormRepository) DeleteGeneration(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("generation id is empty")
	}
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.DbGeneration{}).Error
}

// ListGenerations retrieves paginated generation records.
func (r *GormRepository) ListGenerations(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbGeneration{})
	if params != nil {
		if trimmed := strings.TrimSpace(params.PersonID); trimmed != "" {
			query = query.Where("person_id = ?", trimmed)
		}
		if trimmed := strings.TrimSpace(params.TeamID); trimmed != "" {
			query = query.Where("team_id = ?", trimmed)
		}
		if trimmed := strings.ToLower(strings.TrimSpace(params.Status)); trimmed != "" && trimmed != "all" {
			query = query.Where("status = ?", trimmed)
		}
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, nil, err
	}

	page := 1
	pageSize := 20
	if params != nil {
		if params.Page > 0 {
			page = int(params.Page)
		}
		if params.PageSize > 0 {
			pageSize = int(params.PageSize)
		}
	}

	var generations []entity.DbGeneration
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&generations).Error
	if err != nil {
		return nil, nil, err
	}

	return generations, r.calculatePagination(totalCount, page, pageSize), nil
}
