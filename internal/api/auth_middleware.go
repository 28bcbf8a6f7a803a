package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	currentPersonContextKey = "current-person"
)

// AuthMiddleware JWT 认证中间件，成功后把完整人员记录放入请求上下文。
func (h *HTTPHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeUnauthorized,
				Message: "缺少授权头",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeUnauthorized,
				Message: "无效的授权头格式",
			})
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeUnauthorized,
				Message: "缺少 Bearer Token",
			})
			return
		}

		claims, err := h.authManager.ParseToken(tokenString)
		if err != nil {
			logrus.WithError(err).Warn("failed to parse jwt token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeSessionExpired,
				Message: "Token 无效或已过期",
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		person, err := h.repo.GetPerson(ctx, claims.PersonID)
		if err != nil {
			logrus.WithError(err).WithField("person_id", claims.PersonID).Error("failed to load person")
			c.AbortWithStatusJSON(http.StatusInternalServerError, APIError{
				Code:    ErrCodeInternalError,
				Message: "验证用户失败",
			})
			return
		}
		if person == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodePersonNotFound,
				Message: "用户不存在",
			})
			return
		}

		if !person.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, APIError{
				Code:    ErrCodePersonDisabled,
				Message: "账户已被禁用",
			})
			return
		}

		c.Set(currentPersonContextKey, person)
		c.Next()
	}
}

// RequireAdmin 管理员权限守卫中间件
func (h *HTTPHandler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		person := CurrentPerson(c)
		if person == nil || person.Role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, APIError{
				Code:    ErrCodeForbidden,
				Message: "需要管理员权限",
			})
			return
		}
		c.Next()
	}
}

// CurrentPerson 从上下文获取当前认证人员
func CurrentPerson(c *gin.Context) *entity.DbPerson {
	value, exists := c.Get(currentPersonContextKey)
	if !exists {
		return nil
	}
	person, ok := value.(*entity.DbPerson)
	if !ok {
		return nil
	}
	return person
}
