package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/auth"
	"github.com/mvh70/teamshots-sub010/internal/config"
	"github.com/mvh70/teamshots-sub010/internal/model"
	"github.com/mvh70/teamshots-sub010/internal/service"
	"github.com/mvh70/teamshots-sub010/internal/storage"

	"github.com/gin-gonic/gin"
)

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg               config.Config
	repo              model.Repository
	storage           storage.Storage
	storagePublicBase string
	authManager       *auth.Manager

	// 服务层
	generationService *service.GenerationService
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, store storage.Storage, generationSvc *service.GenerationService) (*HTTPHandler, error) {
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	if err != nil {
		return nil, err
	}

	return &HTTPHandler{
		cfg:               cfg,
		repo:              repo,
		storage:           store,
		storagePublicBase: normalisePublicBase(cfg.StoragePublicBaseURL),
		authManager:       authManager,
		generationService: generationSvc,
	}, nil
}

// RegisterRoutes 挂载全部 API 路由。
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/login", h.Login)
	authGroup.GET("/me", h.AuthMiddleware(), h.Me)

	protected := apiGroup.Group("")
	protected.Use(h.AuthMiddleware())
	protected.POST("/generations", h.SubmitGeneration)
	protected.GET("/generations", h.ListGenerations)
	protected.GET("/generations/:id", h.GetGeneration)
	protected.GET("/credits/balance", h.GetCreditBalance)

	admin := protected.Group("")
	admin.Use(h.RequireAdmin())
	admin.POST("/credits/grant", h.GrantCredits)
}

// normalisePublicBase 规范化公共 URL 基础路径
func normalisePublicBase(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = "/files"
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

// publicURL 将存储键转换为客户端可访问的 URL。
func (h *HTTPHandler) publicURL(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	base := h.storagePublicBase
	if base == "" {
		base = "/files"
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), strings.TrimLeft(trimmed, "/"))
}
