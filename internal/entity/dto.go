package entity

import "time"

// SubmitGenerationRequest 提交一次生成请求。
// ExpectedSource 是客户端展示时解析到的扣费来源，
// 服务端会在预扣前再次解析并校验两者一致。
type SubmitGenerationRequest struct {
	SelfieKeys      []string        `json:"selfie_keys" binding:"required"`
	SelfieTypes     JSONMap         `json:"selfie_types,omitempty"`
	Demographics    JSONMap         `json:"demographics,omitempty"`
	Style           StyleSettings   `json:"style" binding:"required"`
	WorkflowVersion WorkflowVersion `json:"workflow_version,omitempty"`
	ExpectedSource  CreditSource    `json:"expected_source,omitempty"`
	Priority        int             `json:"priority,omitempty"`
	Debug           bool            `json:"debug,omitempty"`
}

// SubmitGenerationResponse 提交成功的响应。
type SubmitGenerationResponse struct {
	GenerationID string           `json:"generation_id"`
	JobID        string           `json:"job_id"`
	Status       GenerationStatus `json:"status"`
}

// InsufficientCreditsResponse 是余额不足时返回给客户端的结构，
// 含需要/可用额度与一条可执行的提示语。
type InsufficientCreditsResponse struct {
	Error     string       `json:"error"`
	Required  int64        `json:"required"`
	Available int64        `json:"available"`
	Reason    string       `json:"reason"`
	Source    CreditSource `json:"source"`
}

// GenerationItem 是查询接口返回的生成记录视图。
type GenerationItem struct {
	ID                     string           `json:"id"`
	Status                 GenerationStatus `json:"status"`
	WorkflowVersion        WorkflowVersion  `json:"workflow_version"`
	CreditSource           CreditSource     `json:"credit_source"`
	CreditsCharged         int64            `json:"credits_charged"`
	MaxRegenerations       int              `json:"max_regenerations"`
	RemainingRegenerations int              `json:"remaining_regenerations"`
	OutputKeys             []string         `json:"output_keys"`
	ProviderUsed           string           `json:"provider_used,omitempty"`
	ErrorMessage           string           `json:"error_message,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// GenerationQuery 是生成记录列表的查询参数。
type GenerationQuery struct {
	BaseParams
	Status   string `json:"status" form:"status" query:"status"`
	PersonID string `json:"-" form:"-" query:"-"`
	TeamID   string `json:"-" form:"-" query:"-"`
}

// GenerationListResponse 生成记录列表响应。
type GenerationListResponse struct {
	Generations []GenerationItem `json:"generations"`
	Meta        *Meta            `json:"meta"`
}

// CreditBalanceResponse 余额查询响应，包含解析到的默认扣费来源。
type CreditBalanceResponse struct {
	Source    CreditSource `json:"source"`
	Reason    string       `json:"reason"`
	Available int64        `json:"available"`
}

// GrantCreditsRequest 管理员加款请求。
// Amount 省略且 scope 为 person-allocation 时，按团队的人均分配额度入账。
type GrantCreditsRequest struct {
	Scope   CreditSource `json:"scope" binding:"required"`
	OwnerID string       `json:"owner_id" binding:"required"`
	Amount  int64        `json:"amount"`
}

// LoginRequest 登录请求。
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应。
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	PersonID  string    `json:"person_id"`
	TeamID    string    `json:"team_id,omitempty"`
	Role      string    `json:"role"`
}

// ToGenerationItem 将数据库记录转换为对外视图。
func ToGenerationItem(g DbGeneration) GenerationItem {
	return GenerationItem{
		ID:                     g.ID,
		Status:                 g.Status,
		WorkflowVersion:        g.WorkflowVersion,
		CreditSource:           g.CreditSource,
		CreditsCharged:         g.CreditsCharged,
		MaxRegenerations:       g.MaxRegenerations,
		RemainingRegenerations: g.RemainingRegenerations,
		OutputKeys:             g.OutputKeys.ToSlice(),
		ProviderUsed:           g.ProviderUsed,
		ErrorMessage:           g.ErrorMessage,
		CreatedAt:              g.CreatedAt,
		UpdatedAt:              g.UpdatedAt,
	}
}
