package entity

import "time"

// WorkflowVersion 标识一次生成所使用的流水线形态。
type WorkflowVersion string

const (
	WorkflowV1 WorkflowVersion = "v1"
	WorkflowV2 WorkflowVersion = "v2"
	WorkflowV3 WorkflowVersion = "v3"
)

// Valid 检查是否为已知的流水线版本。
func (v WorkflowVersion) Valid() bool {
	switch v {
	case WorkflowV1, WorkflowV2, WorkflowV3:
		return true
	}
	return false
}

// GenerationStatus 表示生成记录的状态，只允许单向推进。
type GenerationStatus string

const (
	GenerationQueued     GenerationStatus = "queued"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// Rank 返回状态的序号，用于保证状态只能单向推进。
func (s GenerationStatus) Rank() int {
	switch s {
	case GenerationQueued:
		return 0
	case GenerationProcessing:
		return 1
	case GenerationCompleted, GenerationFailed:
		return 2
	}
	return -1
}

// Terminal 判断是否为终态。
func (s GenerationStatus) Terminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

// DbGeneration 是一次生成请求的持久化记录。
// 输入、风格设置与再生成额度在创建时冻结，后续计划变更不回溯。
type DbGeneration struct {
	ID        string    `gorm:"primarykey;type:varchar(64)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PersonID string `gorm:"column:person_id;type:varchar(64);index" json:"person_id"`
	TeamID   string `gorm:"column:team_id;type:varchar(64);index" json:"team_id"`

	SelfieKeys    StringArray `gorm:"column:selfie_keys;type:json" json:"selfie_keys"`
	StyleSettings string      `gorm:"column:style_settings;type:text" json:"style_settings"`

	CreditSource   CreditSource `gorm:"column:credit_source;type:varchar(32)" json:"credit_source"`
	CreditsCharged int64        `gorm:"column:credits_charged" json:"credits_charged"`
	ReservationID  string       `gorm:"column:reservation_id;type:varchar(64);index" json:"reservation_id"`

	WorkflowVersion WorkflowVersion  `gorm:"column:workflow_version;type:varchar(8)" json:"workflow_version"`
	Status          GenerationStatus `gorm:"column:status;type:varchar(32);index" json:"status"`

	MaxRegenerations       int `gorm:"column:max_regenerations" json:"max_regenerations"`
	RemainingRegenerations int `gorm:"column:remaining_regenerations" json:"remaining_regenerations"`

	OutputKeys   StringArray `gorm:"column:output_keys;type:json" json:"output_keys"`
	ProviderUsed string      `gorm:"column:provider_used;type:varchar(64)" json:"provider_used"`
	CallCostUSD  float64     `gorm:"column:call_cost_usd" json:"call_cost_usd"`
	ErrorMessage string      `gorm:"column:error_message;type:text" json:"error_message"`
}

// TableName 指定表名
func (DbGeneration) TableName() string {
	return "generations"
}
