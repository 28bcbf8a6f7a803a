package model

import (
	"context"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/entity"
)

// Repository 定义数据库操作接口。
// 按 id 查询的方法对不存在的记录返回 (nil, nil)，调用方据此区分 404 与存储故障。
type Repository interface {
	// 人员与团队
	CreatePerson(ctx context.Context, person *entity.DbPerson) error
	GetPerson(ctx context.Context, id string) (*entity.DbPerson, error)
	GetPersonByEmail(ctx context.Context, email string) (*entity.DbPerson, error)
	CreateTeam(ctx context.Context, team *entity.DbTeam) error
	GetTeam(ctx context.Context, id string) (*entity.DbTeam, error)

	// 积分账户与预扣
	GetCreditAccount(ctx context.Context, scope entity.CreditSource, ownerID string) (*entity.DbCreditAccount, error)
	GrantCredits(ctx context.Context, scope entity.CreditSource, ownerID string, amount int64) error
	DebitCredits(ctx context.Context, scope entity.CreditSource, ownerID string, amount int64) (bool, error)
	RefundCredits(ctx context.Context, scope entity.CreditSource, ownerID string, amount int64) error
	CreateReservation(ctx context.Context, reservation *entity.DbReservation) error
	GetReservation(ctx context.Context, id string) (*entity.DbReservation, error)
	TransitionReservation(ctx context.Context, id string, from, to entity.ReservationState) (bool, error)
	ListExpiredPendingReservations(ctx context.Context, olderThan time.Time, limit int) ([]entity.DbReservation, error)

	// 生成记录
	CreateGeneration(ctx context.Context, generation *entity.DbGeneration) error
	GetGeneration(ctx context.Context, id string) (*entity.DbGeneration, error)
	UpdateGeneration(ctx context.Context, id string, updates entity.GenerationUpdates) error
	DeleteGeneration(ctx context.Context, id string) error
	ListGenerations(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error)

	// 队列任务
	CreateJob(ctx context.Context, job *entity.DbJob) error
	GetJob(ctx context.Context, id string) (*entity.DbJob, error)
	UpdateJob(ctx context.Context, id string, updates entity.JobUpdates) error
	ClaimNextJob(ctx context.Context, ignorePriority bool) (*entity.DbJob, error)
}
