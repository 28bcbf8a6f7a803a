package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mvh70/teamshots-sub010/internal/entity"

	"gorm.io/gorm"
)

// CreatePerson inserts a new person record.
func (r *GormRepository) CreatePerson(ctx context.Context, person *entity.DbPerson) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if person == nil {
		return fmt.Errorf("person is nil")
	}
	person.Email = strings.ToLower(strings.TrimSpace(person.Email))
	return r.db.WithContext(ctx).Create(person).Error
}

// GetPerson loads a person by id. A missing person is (nil, nil) so
// callers can branch on absence without knowing the driver's sentinel.
func (r *GormRepository) GetPerson(ctx context.Context, id string) (*entity.DbPerson, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("person id is empty")
	}

	var person entity.DbPerson
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&person).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &person, nil
}

// GetPersonByEmail loads a person by email, case-insensitive.
func (r *GormRepository) GetPersonByEmail(ctx context.Context, email string) (*entity.DbPerson, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is empty")
	}

	var person entity.DbPerson
	if err := r.db.WithContext(ctx).Where("LOWER(email) = ?", email).First(&person).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &person, nil
}

// CreateTeam inserts a new team record.
func (r *GormRepository) CreateTeam(ctx context.Context, team *entity.DbTeam) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if team == nil {
		return fmt.Errorf("team is nil")
	}
	return r.db.WithContext(ctx).Create(team).Error
}

// GetTeam loads a team by id.
func (r *GormRepository) GetTeam(ctx context.Context, id string) (*entity.DbTeam, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("team id is empty")
	}

	var team entity.DbTeam
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&team).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &team, nil
}
