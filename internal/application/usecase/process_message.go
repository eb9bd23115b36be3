package usecase

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainagent "github.com/zeroclaw/gateway/internal/domain/agent"
	"github.com/zeroclaw/gateway/internal/domain/memory"
	"github.com/zeroclaw/gateway/internal/domain/service"
	apperrors "github.com/zeroclaw/gateway/pkg/errors"
)

// ChatTurn is one inbound chat request after interface-level parsing: the
// subject of the turn plus optional prior conversation lines, already in
// "User: ..."/"Assistant: ..." form.
type ChatTurn struct {
	SessionID string
	Subject   string
	Context   []string
}

// ChatReply is the outcome of a processed turn.
type ChatReply struct {
	Reply     string
	Model     string
	SessionID string
}

// TurnObserver receives lifecycle notifications around one agent run. The
// use case emits AgentStart → LlmRequest → LlmResponse → AgentEnd in that
// order, then the total latency.
type TurnObserver interface {
	AgentStart(sessionID string)
	LlmRequest(model string)
	LlmResponse(model string, success bool)
	AgentEnd(sessionID string)
	RequestLatency(d time.Duration)
}

// NoopTurnObserver ignores every notification.
type NoopTurnObserver struct{}

func (NoopTurnObserver) AgentStart(string)            {}
func (NoopTurnObserver) LlmRequest(string)            {}
func (NoopTurnObserver) LlmResponse(string, bool)     {}
func (NoopTurnObserver) AgentEnd(string)              {}
func (NoopTurnObserver) RequestLatency(time.Duration) {}

// ProcessMessageUseCase turns one inbound chat request into an assistant
// reply: context enrichment, optional memory auto-save, the tool-calling
// agent loop, and provider-error sanitization.
type ProcessMessageUseCase struct {
	agentLoop    *service.AgentLoop
	memory       *memory.HybridMemory
	observer     TurnObserver
	systemPrompt func() string
	model        string
	autoSave     bool
	logger       *zap.Logger
}

// NewProcessMessageUseCase wires the chat-turn pipeline. memory may be nil
// (auto-save disabled); systemPrompt is re-evaluated per turn so device
// summaries stay current.
func NewProcessMessageUseCase(
	agentLoop *service.AgentLoop,
	mem *memory.HybridMemory,
	observer TurnObserver,
	systemPrompt func() string,
	model string,
	autoSave bool,
	logger *zap.Logger,
) *ProcessMessageUseCase {
	if observer == nil {
		observer = NoopTurnObserver{}
	}
	if systemPrompt == nil {
		systemPrompt = func() string { return "" }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessMessageUseCase{
		agentLoop:    agentLoop,
		memory:       mem,
		observer:     observer,
		systemPrompt: systemPrompt,
		model:        model,
		autoSave:     autoSave,
		logger:       logger,
	}
}

// Execute runs one chat turn. The returned error is already sanitized and
// safe to surface to the client.
func (uc *ProcessMessageUseCase) Execute(ctx context.Context, turn ChatTurn) (*ChatReply, error) {
	start := time.Now()
	sessionID := turn.SessionID
	if sessionID == "" {
		sessionID = "session_" + uuid.NewString()
	}

	uc.observer.AgentStart(sessionID)
	defer func() {
		uc.observer.AgentEnd(sessionID)
		uc.observer.RequestLatency(time.Since(start))
	}()

	enriched := domainagent.EnrichMessage(turn.Subject, turn.Context)

	// Auto-save happens before the loop and never blocks it: a failed
	// write is logged and the turn proceeds.
	if uc.autoSave && uc.memory != nil {
		now := time.Now()
		entry := &memory.MemoryEntry{
			ID:        "api_chat_msg_" + uuid.NewString(),
			Content:   turn.Subject,
			Category:  memory.CategoryConversation,
			SessionID: sessionID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := uc.memory.Store(ctx, entry); err != nil {
			uc.logger.Warn("chat auto-save failed", zap.Error(err))
		}
	}

	uc.observer.LlmRequest(uc.model)
	ctx = service.WithSessionID(ctx, sessionID)
	result, eventCh := uc.agentLoop.Run(ctx, uc.systemPrompt(), enriched, nil, uc.model)
	for range eventCh {
		// Drain progress events; HTTP intake replies once at the end.
	}
	if result == nil {
		uc.observer.LlmResponse(uc.model, false)
		return nil, apperrors.NewProviderError("agent loop produced no result", nil)
	}
	uc.observer.LlmResponse(result.ModelUsed, true)

	return &ChatReply{
		Reply:     SanitizeReply(result.FinalContent),
		Model:     result.ModelUsed,
		SessionID: sessionID,
	}, nil
}

var (
	apiKeyPattern = regexp.MustCompile(`\b(sk-[A-Za-z0-9_-]{8,}|AIza[A-Za-z0-9_-]{20,}|Bearer\s+[A-Za-z0-9._-]{8,})`)
	homePathPattern = regexp.MustCompile(`(/(?:home|root|Users)/[^\s:'"]+)`)
)

// SanitizeReply strips credential-shaped substrings and absolute
// home-directory paths from text that is about to leave the gateway. Raw
// provider errors flow through here so a failed upstream call never leaks a
// key or an internal filesystem layout.
func SanitizeReply(s string) string {
	s = apiKeyPattern.ReplaceAllString(s, "[redacted]")
	s = homePathPattern.ReplaceAllString(s, "[path]")
	return s
}

