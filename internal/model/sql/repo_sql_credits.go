package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetCreditAccount loads the account for a (scope, owner) pair.
// A missing account is returned as a zero-balance account, not an error.
func (r *GormRepository) GetCreditAccount(ctx context.Context, scope entity.CreditSource, ownerID string) (*entity.DbCreditAccount, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is empty")
	}

	var account entity.DbCreditAccount
	err := r.db.WithContext(ctx).Where("scope = ? AND owner_id = ?", scope, ownerID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &entity.DbCreditAccount{Scope: scope, OwnerID: ownerID, Balance: 0}, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GrantCredits adds credits to an account, creating it when absent.
func (r *GormRepository) GrantCredits(ctx context.Context, scope entity.CreditSource, ownerID string, amount int64) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive")
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}, {Name: "owner_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"balance": gorm.Expr("balance + ?", amount)}),
	}).Create(&entity.DbCreditAccount{
		Scope:   scope,
		OwnerID: strings.TrimSpace(ownerID),
		Balance: amount,
	}).Error
}

// DebitCredits atomically decrements an account balance when it covers the
// amount. The boolean result reports whether the debit was applied.
func (r *GormRepository) DebitCredits(ctx context.Context, scope entity.CreditSource, ownerID string, amount int64) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	if amount <= 0 {
		return false, fmt.Errorf("debit amount must be positive")
	}

	result := r.db.WithContext(ctx).
		Model(&entity.DbCreditAccount{}).
		Where("scope = ? AND owner_id = ? AND balance >= ?", scope, strings.TrimSpace(ownerID), amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RefundCredits restores a previously debited amount.
func (r *GormRepository) RefundCredits(ctx context.Context, scope entity.CreditSource, ownerID string, amount int64) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if amount <= 0 {
		return fmt.Errorf("refund amount must be positive")
	}

	result := r.db.WithContext(ctx).
		Model(&entity.DbCreditAccount{}).
		Where("scope = ? AND owner_id = ?", scope, strings.TrimSpace(ownerID)).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("credit account %s/%s not found", scope, ownerID)
	}
	return nil
}

// CreateReservation inserts a pending reservation record.
func (r *GormRepository) CreateReservation(ctx context.Context, reservation *entity.DbReservation) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if reservation == nil {
		return fmt.Errorf("reservation is nil")
	}
	return r.db.WithContext(ctx).Create(reservation).Error
}

// GetReservation loads a reservation by id.
func (r *GormRepository) GetReservation(ctx context.Context, id string) (*entity.DbReservation, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("reservation id is empty")
	}

	var reservation entity.DbReservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// TransitionReservation moves a reservation from one state to another.
// The boolean result reports whether the transition was applied; a stale
// `from` state yields (false, nil) so callers can treat repeats as no-ops.
func (r *GormRepository) TransitionReservation(ctx context.Context, id string, from, to entity.ReservationState) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("reservation id is empty")
	}

	result := r.db.WithContext(ctx).
		Model(&entity.DbReservation{}).
		Where("id = ? AND state = ?", id, from).
		Update("state", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListExpiredPendingReservations returns pending reservations older than the
// cutoff, for the reconciliation rollback pass.
func (r *GormRepository) ListExpiredPendingReservations(ctx context.Context, olderThan time.Time, limit int) ([]entity.DbReservation, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}

	var reservations []entity.DbReservation
	err := r.db.WithContext(ctx).
		Where("state = ? AND created_at < ?", entity.ReservationPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}
