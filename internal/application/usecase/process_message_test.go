package usecase_test

import (
	"context"
	"strings"
	"testing"

	"github.com/zeroclaw/gateway/internal/application/usecase"
	"github.com/zeroclaw/gateway/internal/domain/memory"
	"github.com/zeroclaw/gateway/internal/domain/service"
	domaintool "github.com/zeroclaw/gateway/internal/domain/tool"
	"go.uber.org/zap"
)

// echoLLMClient answers every request with a fixed final message and records
// the last user message it saw.
type echoLLMClient struct {
	reply       string
	lastMessage string
}

func (m *echoLLMClient) Generate(ctx context.Context, req *service.LLMRequest) (*service.LLMResponse, error) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			m.lastMessage = req.Messages[i].TextContent()
			break
		}
	}
	return &service.LLMResponse{Content: m.reply, ModelUsed: "test-model"}, nil
}

func (m *echoLLMClient) GenerateStream(ctx context.Context, req *service.LLMRequest, deltaCh chan<- service.StreamChunk) (*service.LLMResponse, error) {
	return m.Generate(ctx, req)
}

type noTools struct{}

func (noTools) Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error) {
	return &domaintool.Result{Success: false, Error: "no tools registered"}, nil
}
func (noTools) GetDefinitions() []domaintool.Definition { return nil }
func (noTools) GetToolKind(string) domaintool.Kind      { return domaintool.KindExecute }

func newTestUseCase(t *testing.T, llm *echoLLMClient, mem *memory.HybridMemory, autoSave bool) *usecase.ProcessMessageUseCase {
	t.Helper()
	loop := service.NewAgentLoop(llm, noTools{}, service.DefaultAgentLoopConfig(), zap.NewNop())
	return usecase.NewProcessMessageUseCase(loop, mem, nil, nil, "test-model", autoSave, zap.NewNop())
}

func TestExecute_EnrichesWithContext(t *testing.T) {
	llm := &echoLLMClient{reply: "done"}
	uc := newTestUseCase(t, llm, nil, false)

	reply, err := uc.Execute(context.Background(), usecase.ChatTurn{
		SessionID: "s1",
		Subject:   "second",
		Context:   []string{"User: first", "Assistant: reply"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if reply.Reply != "done" || reply.SessionID != "s1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if !strings.HasPrefix(llm.lastMessage, "Recent conversation context:") {
		t.Fatalf("LLM should see the enriched message, got %q", llm.lastMessage)
	}
	if !strings.HasSuffix(llm.lastMessage, "Current message:\nsecond") {
		t.Fatalf("enriched message should end with the subject, got %q", llm.lastMessage)
	}
}

func TestExecute_NoContextPassesSubjectVerbatim(t *testing.T) {
	llm := &echoLLMClient{reply: "ok"}
	uc := newTestUseCase(t, llm, nil, false)

	if _, err := uc.Execute(context.Background(), usecase.ChatTurn{Subject: "hello"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if llm.lastMessage != "hello" {
		t.Fatalf("LLM should see the bare subject, got %q", llm.lastMessage)
	}
}

type recordingStore struct {
	entries []*memory.MemoryEntry
}

func (r *recordingStore) Save(ctx context.Context, entry *memory.MemoryEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}
func (r *recordingStore) Get(ctx context.Context, id string) (*memory.MemoryEntry, error) {
	return nil, nil
}
func (r *recordingStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*memory.MemoryEntry, error) {
	return nil, nil
}
func (r *recordingStore) Delete(ctx context.Context, id string) error { return nil }
func (r *recordingStore) HealthCheck(ctx context.Context) error       { return nil }

func TestExecute_AutoSaveUsesChatKeyPrefix(t *testing.T) {
	store := &recordingStore{}
	mem := memory.NewHybridMemory(store, nil, nil, zap.NewNop())
	llm := &echoLLMClient{reply: "ok"}
	uc := newTestUseCase(t, llm, mem, true)

	if _, err := uc.Execute(context.Background(), usecase.ChatTurn{SessionID: "s1", Subject: "remember me"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected 1 auto-saved entry, got %d", len(store.entries))
	}
	e := store.entries[0]
	if !strings.HasPrefix(e.ID, "api_chat_msg_") {
		t.Fatalf("auto-save key should use the api_chat_msg_ prefix, got %q", e.ID)
	}
	if e.Content != "remember me" || e.Category != memory.CategoryConversation {
		t.Fatalf("unexpected auto-save entry: %+v", e)
	}
}

func TestSanitizeReply_StripsSecretsAndPaths(t *testing.T) {
	in := "provider failed: key sk-abcdef1234567890 at /home/zeroclaw/.config/creds"
	out := usecase.SanitizeReply(in)
	if strings.Contains(out, "sk-abcdef1234567890") {
		t.Fatalf("API key survived sanitization: %q", out)
	}
	if strings.Contains(out, "/home/zeroclaw") {
		t.Fatalf("home path survived sanitization: %q", out)
	}
}
