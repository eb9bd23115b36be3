package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zeroclaw/gateway/internal/application/usecase"
	domainagent "github.com/zeroclaw/gateway/internal/domain/agent"
	apperrors "github.com/zeroclaw/gateway/pkg/errors"
)

// OpenAIHandler implements an OpenAI Chat Completions compatible surface on
// top of the same chat-turn use case the native endpoint drives. Unknown
// OpenAI parameters are accepted and ignored.
type OpenAIHandler struct {
	usecase *usecase.ProcessMessageUseCase
	logger  *zap.Logger
	models  []OpenAIModel
}

// ChatCompletionRequest mirrors OpenAI's request format. Fields this gateway
// does not act on (temperature, max_tokens, ...) parse and are ignored.
type ChatCompletionRequest struct {
	Model       string                   `json:"model"`
	Messages    []domainagent.ChatMessage `json:"messages" binding:"required"`
	Temperature *float64                 `json:"temperature,omitempty"`
	MaxTokens   *int                     `json:"max_tokens,omitempty"`
	Stream      bool                     `json:"stream,omitempty"`
	User        string                   `json:"user,omitempty"`
}

// ChatCompletionResponse mirrors OpenAI's response format
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
}

// ChatChoice represents a completion choice
type ChatChoice struct {
	Index        int                      `json:"index"`
	Message      domainagent.ChatMessage  `json:"message"`
	FinishReason string                   `json:"finish_reason"`
}

// ChatUsage approximates token usage as len/4.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatStreamChunk represents a streaming chunk
type ChatStreamChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []ChatStreamChoice `json:"choices"`
}

// ChatStreamChoice represents a streaming choice delta
type ChatStreamChoice struct {
	Index        int             `json:"index"`
	Delta        ChatStreamDelta `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
}

// ChatStreamDelta represents the delta in a streaming choice
type ChatStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// OpenAIModel represents a model in the /v1/models response
type OpenAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelsResponse mirrors OpenAI's models list response
type ModelsResponse struct {
	Object string        `json:"object"`
	Data   []OpenAIModel `json:"data"`
}

// NewOpenAIHandler creates a new OpenAI-compatible handler
func NewOpenAIHandler(uc *usecase.ProcessMessageUseCase, logger *zap.Logger, models []OpenAIModel) *OpenAIHandler {
	if len(models) == 0 {
		models = []OpenAIModel{
			{ID: "zeroclaw", Object: "model", Created: time.Now().Unix(), OwnedBy: "zeroclaw"},
		}
	}
	return &OpenAIHandler{usecase: uc, logger: logger, models: models}
}

// ChatCompletions handles POST /v1/chat/completions
func (h *OpenAIHandler) ChatCompletions(c *gin.Context) {
	var req ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, h.errorResponse(err.Error(), "invalid_request_error"))
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, h.errorResponse("messages array must not be empty", "invalid_request_error"))
		return
	}

	subject, history := domainagent.ExtractSubject(req.Messages)
	if subject == "" {
		c.JSON(http.StatusBadRequest, h.errorResponse("messages must contain at least one user message", "invalid_request_error"))
		return
	}

	turn := usecase.ChatTurn{
		SessionID: sessionIDFor(req.User),
		Subject:   subject,
		Context:   history,
	}

	if req.Stream {
		h.handleStream(c, &req, turn)
		return
	}
	h.handleNonStream(c, &req, turn)
}

func sessionIDFor(user string) string {
	if user == "" {
		user = "openai_api"
	}
	return "oai_" + user
}

// handleNonStream processes non-streaming chat completions
func (h *OpenAIHandler) handleNonStream(c *gin.Context, req *ChatCompletionRequest, turn usecase.ChatTurn) {
	reply, err := h.usecase.Execute(c.Request.Context(), turn)
	if err != nil {
		h.logger.Error("chat completion failed", zap.Error(err))
		c.JSON(HTTPStatusFor(apperrors.CodeOf(err)), h.errorResponse(usecase.SanitizeReply(err.Error()), "server_error"))
		return
	}

	model := req.Model
	if model == "" {
		model = reply.Model
	}

	c.JSON(http.StatusOK, ChatCompletionResponse{
		ID:      fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChatChoice{
			{
				Index:        0,
				Message:      domainagent.ChatMessage{Role: "assistant", Content: reply.Reply},
				FinishReason: "stop",
			},
		},
		Usage: &ChatUsage{
			PromptTokens:     len(turn.Subject) / 4,
			CompletionTokens: len(reply.Reply) / 4,
			TotalTokens:      (len(turn.Subject) + len(reply.Reply)) / 4,
		},
	})
}

// handleStream processes streaming chat completions as SSE: a role chunk, a
// single content chunk, a stop chunk, then [DONE].
func (h *OpenAIHandler) handleStream(c *gin.Context, req *ChatCompletionRequest, turn usecase.ChatTurn) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	completionID := fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()
	model := req.Model
	if model == "" {
		model = "zeroclaw"
	}

	chunk := func(choice ChatStreamChoice) ChatStreamChunk {
		return ChatStreamChunk{
			ID:      completionID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []ChatStreamChoice{choice},
		}
	}

	h.writeSSEChunk(c.Writer, chunk(ChatStreamChoice{Delta: ChatStreamDelta{Role: "assistant"}}))
	c.Writer.Flush()

	reply, err := h.usecase.Execute(c.Request.Context(), turn)
	content := ""
	if err != nil {
		h.logger.Error("streaming chat completion failed", zap.Error(err))
		content = "Error: " + usecase.SanitizeReply(err.Error())
	} else {
		content = reply.Reply
	}

	h.writeSSEChunk(c.Writer, chunk(ChatStreamChoice{Delta: ChatStreamDelta{Content: content}}))
	c.Writer.Flush()

	finishReason := "stop"
	h.writeSSEChunk(c.Writer, chunk(ChatStreamChoice{Delta: ChatStreamDelta{}, FinishReason: &finishReason}))
	c.Writer.Flush()

	io.WriteString(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

// ListModels handles GET /v1/models
func (h *OpenAIHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, ModelsResponse{Object: "list", Data: h.models})
}

// writeSSEChunk writes a single SSE event
func (h *OpenAIHandler) writeSSEChunk(w io.Writer, chunk ChatStreamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		h.logger.Error("Failed to marshal SSE chunk", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// errorResponse constructs an OpenAI-compatible error
func (h *OpenAIHandler) errorResponse(message, errType string) gin.H {
	return gin.H{
		"error": gin.H{
			"message": message,
			"type":    errType,
		},
	}
}
