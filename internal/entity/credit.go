package entity

import "time"

// CreditSource 表示扣费来源的账户范围。
type CreditSource string

const (
	SourceIndividual       CreditSource = "individual"
	SourceTeam             CreditSource = "team"
	SourcePersonAllocation CreditSource = "person-allocation"
)

// Valid 检查是否为已知的扣费来源。
func (s CreditSource) Valid() bool {
	switch s {
	case SourceIndividual, SourceTeam, SourcePersonAllocation:
		return true
	}
	return false
}

// ReservationState 表示预扣记录的生命周期状态。
type ReservationState string

const (
	ReservationPending    ReservationState = "pending"
	ReservationCommitted  ReservationState = "committed"
	ReservationRolledBack ReservationState = "rolled-back"
)

// DbCreditAccount 按 (scope, owner) 维度存储积分余额。
// 余额永远不为负，扣减只通过预扣记录进行。
type DbCreditAccount struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Scope   CreditSource `gorm:"column:scope;type:varchar(32);uniqueIndex:idx_scope_owner" json:"scope"`
	OwnerID string       `gorm:"column:owner_id;type:varchar(64);uniqueIndex:idx_scope_owner" json:"owner_id"`
	Balance int64        `gorm:"column:balance" json:"balance"`
}

// TableName 指定表名
func (DbCreditAccount) TableName() string {
	return "credit_accounts"
}

// DbReservation 是一次生成对应的预扣积分记录。
// pending 状态超时的记录视为遗留，由对账任务回滚。
type DbReservation struct {
	ID        string    `gorm:"primarykey;type:varchar(64)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Scope        CreditSource     `gorm:"column:scope;type:varchar(32);index" json:"scope"`
	OwnerID      string           `gorm:"column:owner_id;type:varchar(64);index" json:"owner_id"`
	PersonID     string           `gorm:"column:person_id;type:varchar(64);index" json:"person_id"`
	Amount       int64            `gorm:"column:amount" json:"amount"`
	GenerationID string           `gorm:"column:generation_id;type:varchar(64);index" json:"generation_id"`
	State        ReservationState `gorm:"column:state;type:varchar(32);index" json:"state"`
}

// TableName 指定表名
func (DbReservation) TableName() string {
	return "credit_reservations"
}
