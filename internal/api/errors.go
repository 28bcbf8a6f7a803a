package api

import (
	"net/http"

	"github.com/mvh70/teamshots-sub010/internal/credit"
	"github.com/mvh70/teamshots-sub010/internal/entity"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	// 通用错误码
	ErrCodeInvalidRequest     = "ERR_INVALID_REQUEST"
	ErrCodeUnauthorized       = "ERR_UNAUTHORIZED"
	ErrCodeForbidden          = "ERR_FORBIDDEN"
	ErrCodeNotFound           = "ERR_NOT_FOUND"
	ErrCodeInternalError      = "ERR_INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"

	// 认证错误码
	ErrCodeInvalidCredentials = "ERR_INVALID_CREDENTIALS"
	ErrCodePersonDisabled     = "ERR_PERSON_DISABLED"
	ErrCodePersonNotFound     = "ERR_PERSON_NOT_FOUND"
	ErrCodeSessionExpired     = "ERR_SESSION_EXPIRED"

	// 业务错误码
	ErrCodeInsufficientCredits = "ERR_INSUFFICIENT_CREDITS"
	ErrCodeSourceMismatch      = "ERR_SOURCE_MISMATCH"
	ErrCodeGenerationNotFound  = "ERR_GENERATION_NOT_FOUND"
	ErrCodeMissingField        = "ERR_MISSING_FIELD"
)

// APIError 统一的 API 错误响应结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse 返回统一格式的错误响应
func ErrorResponse(c *gin.Context, status int, code string, message string) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
	})
}

// ErrorResponseWithDetails 返回带详情的错误响应
func ErrorResponseWithDetails(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// 常用错误响应快捷函数

// BadRequest 400 错误请求
func BadRequest(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusBadRequest, code, message)
}

// Unauthorized 401 未授权
func Unauthorized(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden 403 禁止访问
func Forbidden(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// NotFound 404 资源不存在
func NotFound(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusNotFound, code, message)
}

// InternalError 500 服务器内部错误
func InternalError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// ServiceUnavailable 503 服务不可用
func ServiceUnavailable(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// InvalidPayload 无效的请求体
func InvalidPayload(c *gin.Context) {
	ErrorResponse(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request payload")
}

// InsufficientCredits 402 余额不足，携带需要/可用额度与来源说明
func InsufficientCredits(c *gin.Context, detail *credit.ErrInsufficientCredits) {
	c.JSON(http.StatusPaymentRequired, entity.InsufficientCreditsResponse{
		Error:     "insufficient_credits",
		Required:  detail.Required,
		Available: detail.Available,
		Reason:    detail.Reason,
		Source:    entity.CreditSource(detail.Source),
	})
}
