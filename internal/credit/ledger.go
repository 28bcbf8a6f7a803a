package credit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/entity"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store 是账本所需的最小持久化接口，由 model.Repository 实现。
// 查询方法对不存在的记录返回 (nil, nil)，账本把缺失的账户视同零余额。
type Store interface {
	GetPerson(ctx context.Context, id string) (*entity.DbPerson, error)
	GetTeam(ctx context.Context, id string) (*entity.DbTeam, error)

	GetCreditAccount(ctx context.Context, scope entity.CreditSource, ownerID string) (*entity.DbCreditAccount, error)
	DebitCredits(ctx context.Context, scope entity.CreditSource, ownerID string, amount int64) (bool, error)
	RefundCredits(ctx context.Context, scope entity.CreditSource, ownerID string, amount int64) error
	CreateReservation(ctx context.Context, reservation *entity.DbReservation) error
	GetReservation(ctx context.Context, id string) (*entity.DbReservation, error)
	TransitionReservation(ctx context.Context, id string, from, to entity.ReservationState) (bool, error)
	ListExpiredPendingReservations(ctx context.Context, olderThan time.Time, limit int) ([]entity.DbReservation, error)
}

// ResolvedSource 是一次扣费来源解析的结果。
type ResolvedSource struct {
	Scope   entity.CreditSource
	OwnerID string
	Reason  string
}

// ReserveParams 是一次预扣的输入。
type ReserveParams struct {
	PersonID       string
	GenerationID   string
	Amount         int64
	ExpectedSource entity.CreditSource
}

// Ledger 负责积分的解析、预扣、提交与回滚。
// 余额扣减只在 Reserve 内发生，Commit 只改状态，
// Rollback 恢复余额且保证恰好一次。
type Ledger struct {
	store Store
}

// NewLedger wires a Ledger over its store.
func NewLedger(store Store) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("credit store is nil")
	}
	return &Ledger{store: store}, nil
}

// DetermineCreditSource 解析某人本次生成应使用的扣费来源：
// 团队成员且人均分配账户有余额 → person-allocation；
// 团队成员 → team；其余 → individual。
func (l *Ledger) DetermineCreditSource(ctx context.Context, personID string) (ResolvedSource, error) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return ResolvedSource{}, fmt.Errorf("person id is empty")
	}

	person, err := l.store.GetPerson(ctx, personID)
	if err != nil {
		return ResolvedSource{}, fmt.Errorf("resolve person %s: %w", personID, err)
	}
	if person == nil {
		return ResolvedSource{}, fmt.Errorf("person %s not found", personID)
	}

	if !person.IsTeamMember() {
		return ResolvedSource{
			Scope:   entity.SourceIndividual,
			OwnerID: person.ID,
			Reason:  "not a team member, charging individual balance",
		}, nil
	}

	// 尚未建账的账户视同零余额。
	allocation, err := l.store.GetCreditAccount(ctx, entity.SourcePersonAllocation, person.ID)
	if err != nil {
		return ResolvedSource{}, fmt.Errorf("resolve person allocation: %w", err)
	}
	if allocation != nil && allocation.Balance > 0 {
		return ResolvedSource{
			Scope:   entity.SourcePersonAllocation,
			OwnerID: person.ID,
			Reason:  "team member with a personal allocation",
		}, nil
	}

	return ResolvedSource{
		Scope:   entity.SourceTeam,
		OwnerID: person.TeamID,
		Reason:  "team member without a personal allocation, charging team balance",
	}, nil
}

// CanAfford 查询某账户是否能覆盖给定额度，同时返回当前可用余额。
func (l *Ledger) CanAfford(ctx context.Context, scope entity.CreditSource, ownerID string, amount int64) (bool, int64, error) {
	account, err := l.store.GetCreditAccount(ctx, scope, ownerID)
	if err != nil {
		return false, 0, err
	}
	balance := int64(0)
	if account != nil {
		balance = account.Balance
	}
	return balance >= amount, balance, nil
}

// Reserve 原子地检查并扣减余额，创建一条 pending 预扣记录。
// 若客户端声明的来源与服务端解析不一致则拒绝，避免按过期界面状态扣费。
func (l *Ledger) Reserve(ctx context.Context, params ReserveParams) (string, error) {
	if params.Amount <= 0 {
		return "", ErrInvalidAmount
	}

	source, err := l.DetermineCreditSource(ctx, params.PersonID)
	if err != nil {
		return "", err
	}
	if params.ExpectedSource != "" && params.ExpectedSource != source.Scope {
		return "", fmt.Errorf("%w: expected %s, resolved %s", ErrSourceMismatch, params.ExpectedSource, source.Scope)
	}

	applied, err := l.store.DebitCredits(ctx, source.Scope, source.OwnerID, params.Amount)
	if err != nil {
		return "", fmt.Errorf("debit credits: %w", err)
	}
	if !applied {
		account, accErr := l.store.GetCreditAccount(ctx, source.Scope, source.OwnerID)
		available := int64(0)
		if accErr == nil && account != nil {
			available = account.Balance
		}
		return "", &ErrInsufficientCredits{
			Required:  params.Amount,
			Available: available,
			Reason:    source.Reason,
			Source:    string(source.Scope),
		}
	}

	reservation := &entity.DbReservation{
		ID:           uuid.NewString(),
		Scope:        source.Scope,
		OwnerID:      source.OwnerID,
		PersonID:     params.PersonID,
		Amount:       params.Amount,
		GenerationID: params.GenerationID,
		State:        entity.ReservationPending,
	}
	if err := l.store.CreateReservation(ctx, reservation); err != nil {
		// 预扣记录写失败时把已扣减的余额还回去。
		if refundErr := l.store.RefundCredits(ctx, source.Scope, source.OwnerID, params.Amount); refundErr != nil {
			logrus.WithError(refundErr).WithFields(logrus.Fields{
				"scope":    source.Scope,
				"owner_id": source.OwnerID,
				"amount":   params.Amount,
			}).Error("credit_refund_failed")
		}
		return "", fmt.Errorf("create reservation: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": reservation.ID,
		"scope":          source.Scope,
		"owner_id":       source.OwnerID,
		"amount":         params.Amount,
		"generation_id":  params.GenerationID,
	}).Info("credit_reserved")

	return reservation.ID, nil
}

// Commit 将预扣记录置为 committed。对已终结的记录是无害的空操作。
func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	applied, err := l.store.TransitionReservation(ctx, reservationID, entity.ReservationPending, entity.ReservationCommitted)
	if err != nil {
		return fmt.Errorf("commit reservation %s: %w", reservationID, err)
	}
	if applied {
		logrus.WithField("reservation_id", reservationID).Info("credit_committed")
		return nil
	}

	reservation, err := l.store.GetReservation(ctx, reservationID)
	if err != nil || reservation == nil {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, reservationID)
	}
	// 已提交或已回滚的记录不再变动，绝不二次入账。
	logrus.WithFields(logrus.Fields{
		"reservation_id": reservationID,
		"state":          reservation.State,
	}).Debug("credit_commit_noop")
	return nil
}

// Rollback 将 pending 预扣回滚并恢复余额。余额恢复与状态切换绑定，
// 重复调用或对已提交记录调用都是空操作。
func (l *Ledger) Rollback(ctx context.Context, reservationID string) error {
	reservation, err := l.store.GetReservation(ctx, reservationID)
	if err != nil || reservation == nil {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, reservationID)
	}

	applied, err := l.store.TransitionReservation(ctx, reservationID, entity.ReservationPending, entity.ReservationRolledBack)
	if err != nil {
		return fmt.Errorf("rollback reservation %s: %w", reservationID, err)
	}
	if !applied {
		logrus.WithFields(logrus.Fields{
			"reservation_id": reservationID,
			"state":          reservation.State,
		}).Debug("credit_rollback_noop")
		return nil
	}

	if err := l.store.RefundCredits(ctx, reservation.Scope, reservation.OwnerID, reservation.Amount); err != nil {
		return fmt.Errorf("refund credits for %s: %w", reservationID, err)
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": reservationID,
		"scope":          reservation.Scope,
		"owner_id":       reservation.OwnerID,
		"amount":         reservation.Amount,
	}).Info("credit_rolled_back")
	return nil
}

// RollbackExpired 对账任务：回滚超时仍处于 pending 的预扣记录，
// 返回实际回滚的数量。
func (l *Ledger) RollbackExpired(ctx context.Context, olderThan time.Time) (int, error) {
	const batchSize = 100

	expired, err := l.store.ListExpiredPendingReservations(ctx, olderThan, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired reservations: %w", err)
	}

	rolled := 0
	for _, reservation := range expired {
		if err := l.Rollback(ctx, reservation.ID); err != nil {
			logrus.WithError(err).WithField("reservation_id", reservation.ID).Error("credit_expired_rollback_failed")
			continue
		}
		rolled++
	}

	if rolled > 0 {
		logrus.WithFields(logrus.Fields{
			"count":      rolled,
			"older_than": olderThan,
		}).Info("credit_expired_rolled_back")
	}
	return rolled, nil
}
