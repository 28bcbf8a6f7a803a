package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/api"
	"github.com/mvh70/teamshots-sub010/internal/cache"
	"github.com/mvh70/teamshots-sub010/internal/compositor"
	"github.com/mvh70/teamshots-sub010/internal/config"
	"github.com/mvh70/teamshots-sub010/internal/credit"
	"github.com/mvh70/teamshots-sub010/internal/llm"
	"github.com/mvh70/teamshots-sub010/internal/model"
	"github.com/mvh70/teamshots-sub010/internal/queue"
	"github.com/mvh70/teamshots-sub010/internal/service"
	"github.com/mvh70/teamshots-sub010/internal/storage"
	"github.com/mvh70/teamshots-sub010/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		return
	}

	// 初始化logger
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise repository")
		return
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise storage")
		return
	}

	providers, err := llm.NewProviderChain(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to build provider chain")
		return
	}
	gateway, err := llm.NewGateway(providers, cfg.ProviderCallTimeout)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise provider gateway")
		return
	}

	ledger, err := credit.NewLedger(repo)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise credit ledger")
		return
	}

	engine, err := workflow.NewEngine(store, gateway, compositor.NewBrander(gateway))
	if err != nil {
		logrus.WithError(err).Error("failed to initialise workflow engine")
		return
	}

	jobQueue, err := queue.NewQueue(repo)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise job queue")
		return
	}

	tierCache := cache.New[string, string](cfg.TierCacheSize, cfg.TierCacheTTL)
	generationSvc, err := service.NewGenerationService(repo, ledger, jobQueue, engine, tierCache, cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise generation service")
		return
	}

	httpHandler, err := api.NewHTTPHandler(cfg, repo, store, generationSvc)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise http handler")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 队列 worker
	pool, err := queue.NewPool(jobQueue, generationSvc.Process, cfg.WorkerCount)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise worker pool")
		return
	}
	pool.Start(ctx)

	// 过期预扣对账：pending 超时即回滚
	go runReservationReaper(ctx, ledger, cfg.CreditReservationTimeout)

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	httpHandler.RegisterRoutes(r)

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		publicPrefix := strings.TrimSpace(cfg.StoragePublicBaseURL)
		if publicPrefix == "" {
			publicPrefix = "/files"
		}
		if !strings.HasPrefix(publicPrefix, "http://") && !strings.HasPrefix(publicPrefix, "https://") {
			if !strings.HasPrefix(publicPrefix, "/") {
				publicPrefix = "/" + publicPrefix
			}
			r.Static(publicPrefix, localProvider.LocalBaseDir())
		}
	}

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	logrus.WithField("host", serverHost).Info("服务器启动")
	// 创建HTTP服务器
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  900 * time.Second,
		WriteTimeout: 900 * time.Second,
		IdleTimeout:  1200 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("http server shutdown failed")
		}
	}()

	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logrus.WithError(err).Error("服务器启动失败")
	}

	pool.Wait()
}

// runReservationReaper 周期性回滚遗留的 pending 预扣记录。
func runReservationReaper(ctx context.Context, ledger *credit.Ledger, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := ledger.RollbackExpired(ctx, time.Now().Add(-timeout))
			if err != nil {
				logrus.WithError(err).Error("reservation_reaper_failed")
				continue
			}
			if count > 0 {
				logrus.WithField("count", count).Info("reservation_reaper_rolled_back")
			}
		}
	}
}

// CORSMiddleware CORS跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware 日志记录中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// 处理请求
		c.Next()
		// 记录请求结束
		duration := time.Since(start)
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  duration.String(),
			"size":      c.Writer.Size(),
			"client_ip": c.ClientIP(),
		}).Info("http_request")
	}
}
