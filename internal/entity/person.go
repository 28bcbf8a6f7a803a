package entity

import "time"

// DbPerson 是账号解析所需的最小人员记录。
type DbPerson struct {
	ID        string    `gorm:"primarykey;type:varchar(64)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Email        string `gorm:"column:email;type:varchar(255);uniqueIndex" json:"email"`
	DisplayName  string `gorm:"column:display_name;type:varchar(255)" json:"display_name"`
	PasswordHash string `gorm:"column:password_hash;type:varchar(255)" json:"-"`
	Role         string `gorm:"column:role;type:varchar(32)" json:"role"`

	TeamID   string `gorm:"column:team_id;type:varchar(64);index" json:"team_id"`
	PlanTier string `gorm:"column:plan_tier;type:varchar(32)" json:"plan_tier"`
	IsActive bool   `gorm:"column:is_active" json:"is_active"`
}

// TableName 指定表名
func (DbPerson) TableName() string {
	return "persons"
}

// IsTeamMember 判断该人员是否属于某个团队。
func (p *DbPerson) IsTeamMember() bool {
	return p != nil && p.TeamID != ""
}

// DbTeam 保存团队与管理员的关联，用于解析再生成额度。
type DbTeam struct {
	ID        string    `gorm:"primarykey;type:varchar(64)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name          string `gorm:"column:name;type:varchar(255)" json:"name"`
	AdminPersonID string `gorm:"column:admin_person_id;type:varchar(64);index" json:"admin_person_id"`
	LogoKey       string `gorm:"column:logo_key;type:varchar(255)" json:"logo_key"`

	// 成员人均分配额度，0 表示未启用按人分配
	PerMemberAllocation int64 `gorm:"column:per_member_allocation" json:"per_member_allocation"`
}

// TableName 指定表名
func (DbTeam) TableName() string {
	return "teams"
}
