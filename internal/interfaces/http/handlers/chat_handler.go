package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zeroclaw/gateway/internal/application/usecase"
	apperrors "github.com/zeroclaw/gateway/pkg/errors"
)

// ChatHandler 原生对话 API 处理器: POST /api/chat
type ChatHandler struct {
	usecase *usecase.ProcessMessageUseCase
	logger  *zap.Logger
}

// NewChatHandler 创建对话处理器
func NewChatHandler(uc *usecase.ProcessMessageUseCase, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{usecase: uc, logger: logger}
}

// ChatRequest 原生请求体
type ChatRequest struct {
	Message   string   `json:"message" binding:"required"`
	SessionID string   `json:"session_id"`
	Context   []string `json:"context"`
}

// ChatResponse 原生响应体
type ChatResponse struct {
	Reply     string `json:"reply"`
	Model     string `json:"model"`
	SessionID string `json:"session_id"`
}

// Chat 处理一次对话回合
// POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.usecase.Execute(c.Request.Context(), usecase.ChatTurn{
		SessionID: req.SessionID,
		Subject:   req.Message,
		Context:   req.Context,
	})
	if err != nil {
		h.logger.Error("chat turn failed", zap.Error(err))
		c.JSON(HTTPStatusFor(apperrors.CodeOf(err)), gin.H{
			"error": usecase.SanitizeReply(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Reply:     reply.Reply,
		Model:     reply.Model,
		SessionID: reply.SessionID,
	})
}

// HealthCheck 健康检查
// GET /healthz
func (h *ChatHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HTTPStatusFor 把错误码映射到 HTTP 状态码 (规范 §7)
func HTTPStatusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.CodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.CodeForbidden, apperrors.CodePolicyViolation:
		return http.StatusForbidden
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.CodeServiceUnavail, apperrors.CodeTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
