package entity

import "time"

// JobStatus 表示队列任务的状态。
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// DbJob 是可重放的工作单元。payload 在入队时完全解析，
// worker 不再读取可能被并发修改的请求期状态。
type DbJob struct {
	ID        string    `gorm:"primarykey;type:varchar(64)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	GenerationID string `gorm:"column:generation_id;type:varchar(64);index" json:"generation_id"`
	PersonID     string `gorm:"column:person_id;type:varchar(64);index" json:"person_id"`
	TeamID       string `gorm:"column:team_id;type:varchar(64)" json:"team_id"`
	UserID       string `gorm:"column:user_id;type:varchar(64)" json:"user_id"`

	SelfieKeys   StringArray `gorm:"column:selfie_keys;type:json" json:"selfie_keys"`
	LogoKey      string      `gorm:"column:logo_key;type:varchar(255)" json:"logo_key"`
	SelfieTypes  JSONMap     `gorm:"column:selfie_types;type:json" json:"selfie_types"`
	Demographics JSONMap     `gorm:"column:demographics;type:json" json:"demographics"`

	StylePayload    string          `gorm:"column:style_payload;type:text" json:"style_payload"`
	WorkflowVersion WorkflowVersion `gorm:"column:workflow_version;type:varchar(8)" json:"workflow_version"`
	CreditSource    CreditSource    `gorm:"column:credit_source;type:varchar(32)" json:"credit_source"`
	Debug           bool            `gorm:"column:debug" json:"debug"`

	Priority   int       `gorm:"column:priority;index" json:"priority"`
	Status     JobStatus `gorm:"column:status;type:varchar(32);index" json:"status"`
	Attempts   int       `gorm:"column:attempts" json:"attempts"`
	EnqueuedAt time.Time `gorm:"column:enqueued_at;index" json:"enqueued_at"`
	StartedAt  *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

// TableName 指定表名
func (DbJob) TableName() string {
	return "generation_jobs"
}
