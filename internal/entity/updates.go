package entity

import "time"

// GenerationUpdates 生成记录更新字段
type GenerationUpdates struct {
	Status                 *GenerationStatus
	RemainingRegenerations *int
	OutputKeys             *StringArray
	ProviderUsed           *string
	CallCostUSD            *float64
	ErrorMessage           *string
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u GenerationUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	if u.RemainingRegenerations != nil {
		updates["remaining_regenerations"] = *u.RemainingRegenerations
	}
	if u.OutputKeys != nil {
		updates["output_keys"] = *u.OutputKeys
	}
	if u.ProviderUsed != nil {
		updates["provider_used"] = *u.ProviderUsed
	}
	if u.CallCostUSD != nil {
		updates["call_cost_usd"] = *u.CallCostUSD
	}
	if u.ErrorMessage != nil {
		updates["error_message"] = *u.ErrorMessage
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u GenerationUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// JobUpdates 队列任务更新字段
type JobUpdates struct {
	Status     *JobStatus
	Attempts   *int
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u JobUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	if u.Attempts != nil {
		updates["attempts"] = *u.Attempts
	}
	if u.StartedAt != nil {
		updates["started_at"] = *u.StartedAt
	}
	if u.FinishedAt != nil {
		updates["finished_at"] = *u.FinishedAt
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u JobUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}
