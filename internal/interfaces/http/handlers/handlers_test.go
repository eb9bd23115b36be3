package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zeroclaw/gateway/internal/application/usecase"
	"github.com/zeroclaw/gateway/internal/domain/service"
	domaintool "github.com/zeroclaw/gateway/internal/domain/tool"
	"github.com/zeroclaw/gateway/internal/interfaces/http/handlers"
)

type stubLLM struct {
	reply       string
	lastMessage string
}

func (s *stubLLM) Generate(ctx context.Context, req *service.LLMRequest) (*service.LLMResponse, error) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			s.lastMessage = req.Messages[i].TextContent()
			break
		}
	}
	return &service.LLMResponse{Content: s.reply, ModelUsed: "stub-model"}, nil
}

func (s *stubLLM) GenerateStream(ctx context.Context, req *service.LLMRequest, deltaCh chan<- service.StreamChunk) (*service.LLMResponse, error) {
	return s.Generate(ctx, req)
}

type stubTools struct{}

func (stubTools) Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error) {
	return &domaintool.Result{Success: false, Error: "no tools"}, nil
}
func (stubTools) GetDefinitions() []domaintool.Definition { return nil }
func (stubTools) GetToolKind(string) domaintool.Kind      { return domaintool.KindExecute }

func newTestRouter(t *testing.T, llm *stubLLM) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	loop := service.NewAgentLoop(llm, stubTools{}, service.DefaultAgentLoopConfig(), zap.NewNop())
	uc := usecase.NewProcessMessageUseCase(loop, nil, nil, nil, "stub-model", false, zap.NewNop())

	router := gin.New()
	chat := handlers.NewChatHandler(uc, zap.NewNop())
	oai := handlers.NewOpenAIHandler(uc, zap.NewNop(), nil)
	router.POST("/api/chat", chat.Chat)
	router.GET("/healthz", chat.HealthCheck)
	router.POST("/v1/chat/completions", oai.ChatCompletions)
	router.GET("/v1/models", oai.ListModels)
	return router
}

func TestChat_Native(t *testing.T) {
	llm := &stubLLM{reply: "hi there"}
	router := newTestRouter(t, llm)

	body := `{"message":"hello","session_id":"s1"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp handlers.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reply != "hi there" || resp.Model != "stub-model" || resp.SessionID != "s1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestChat_NativeRejectsMissingMessage(t *testing.T) {
	router := newTestRouter(t, &stubLLM{reply: "x"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestChatCompletions_SubjectAndContextExtraction(t *testing.T) {
	llm := &stubLLM{reply: "answer"}
	router := newTestRouter(t, llm)

	body := `{"model":"gpt-test","messages":[
		{"role":"user","content":"first"},
		{"role":"assistant","content":"reply"},
		{"role":"user","content":"second"}
	]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	if !strings.HasPrefix(llm.lastMessage, "Recent conversation context:") {
		t.Fatalf("enriched message missing context header: %q", llm.lastMessage)
	}
	if strings.Count(llm.lastMessage, "User: first") != 1 || strings.Count(llm.lastMessage, "Assistant: reply") != 1 {
		t.Fatalf("context lines should appear exactly once: %q", llm.lastMessage)
	}
	ctxBlock := llm.lastMessage[:strings.Index(llm.lastMessage, "Current message:")]
	if strings.Contains(ctxBlock, "second") {
		t.Fatalf("subject leaked into context block: %q", ctxBlock)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["object"] != "chat.completion" || resp["model"] != "gpt-test" {
		t.Fatalf("unexpected envelope: %v", resp)
	}
	choices := resp["choices"].([]interface{})
	choice := choices[0].(map[string]interface{})
	if choice["finish_reason"] != "stop" {
		t.Fatalf("finish_reason = %v", choice["finish_reason"])
	}
	msg := choice["message"].(map[string]interface{})
	if msg["role"] != "assistant" || msg["content"] != "answer" {
		t.Fatalf("message = %v", msg)
	}
	usage := resp["usage"].(map[string]interface{})
	if int(usage["completion_tokens"].(float64)) != len("answer")/4 {
		t.Fatalf("usage should approximate len/4, got %v", usage)
	}
}

func TestChatCompletions_UnknownParamsIgnored(t *testing.T) {
	router := newTestRouter(t, &stubLLM{reply: "ok"})

	body := `{"model":"m","messages":[{"role":"user","content":"hi"}],
		"temperature":0.2,"top_p":0.9,"frequency_penalty":1,"logit_bias":{"50256":-100}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("unknown params must be accepted and ignored, got %d: %s", w.Code, w.Body.String())
	}
}

func TestChatCompletions_EmptyMessagesRejected(t *testing.T) {
	router := newTestRouter(t, &stubLLM{reply: "ok"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"m","messages":[]}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestChatCompletions_Streaming(t *testing.T) {
	router := newTestRouter(t, &stubLLM{reply: "streamed reply"})

	body := `{"model":"m","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	events := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	if len(events) != 4 {
		t.Fatalf("expected role+content+stop+[DONE] = 4 events, got %d: %q", len(events), w.Body.String())
	}
	if !strings.Contains(events[0], `"role":"assistant"`) {
		t.Fatalf("first chunk should carry the role delta: %q", events[0])
	}
	if !strings.Contains(events[1], "streamed reply") {
		t.Fatalf("second chunk should carry the content: %q", events[1])
	}
	if !strings.Contains(events[2], `"finish_reason":"stop"`) {
		t.Fatalf("third chunk should carry the stop: %q", events[2])
	}
	if events[3] != "data: [DONE]" {
		t.Fatalf("stream should end with [DONE]: %q", events[3])
	}
}

func TestListModels(t *testing.T) {
	router := newTestRouter(t, &stubLLM{reply: "ok"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"object":"list"`) {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &stubLLM{reply: "ok"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
