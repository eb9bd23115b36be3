package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zeroclaw/gateway/internal/application/usecase"
	"github.com/zeroclaw/gateway/internal/interfaces/http/handlers"
	"go.uber.org/zap"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config HTTP服务器配置
type Config struct {
	Host string
	Port int
	Mode string // debug, release
	// Token, when non-empty, is required as a bearer credential for any
	// request arriving from a non-loopback address.
	Token string
	// Stats, when set, is rendered at GET /api/stats.
	Stats func() map[string]interface{}
}

// NewServer 创建HTTP服务器
func NewServer(cfg Config, uc *usecase.ProcessMessageUseCase, logger *zap.Logger) *Server {
	// 设置Gin模式
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))
	router.Use(bearerAuth(cfg.Token))

	chatHandler := handlers.NewChatHandler(uc, logger)
	openaiHandler := handlers.NewOpenAIHandler(uc, logger, nil)

	setupRoutes(router, chatHandler, openaiHandler, cfg.Stats)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return &Server{
		server: server,
		logger: logger,
	}
}

// Start 启动服务器
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// setupRoutes 设置路由
func setupRoutes(router *gin.Engine, chatHandler *handlers.ChatHandler, openaiHandler *handlers.OpenAIHandler, stats func() map[string]interface{}) {
	// 健康检查
	router.GET("/healthz", chatHandler.HealthCheck)

	// 原生对话接口
	router.POST("/api/chat", chatHandler.Chat)

	// 运行指标 (循环检测、工具调用、延迟)
	if stats != nil {
		router.GET("/api/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, stats())
		})
	}

	// OpenAI-compatible API
	oai := router.Group("/v1")
	{
		oai.POST("/chat/completions", openaiHandler.ChatCompletions)
		oai.GET("/models", openaiHandler.ListModels)
	}
}

// bearerAuth 对非环回地址的请求强制要求 bearer 凭证; 环回地址免认证。
// token 为空时表示未配置认证, 所有请求放行 (仅建议绑定 127.0.0.1 时使用)。
func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || isLoopbackAddr(c.Request.RemoteAddr) {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if auth != "Bearer "+token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func isLoopbackAddr(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	host = strings.Trim(host, "[]")
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// ginLogger Gin日志中间件
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
