package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zeroclaw/gateway/internal/domain/memory"
	domaintool "github.com/zeroclaw/gateway/internal/domain/tool"
)

// SaveMemoryTool stores a fact in the hybrid memory, authoritatively first
// and best-effort into the semantic index.
// Grounded on original_source/src/memory/hybrid.rs's store operation.
type SaveMemoryTool struct {
	memory    *memory.HybridMemory
	sessionID string
	logger    *zap.Logger
}

func NewSaveMemoryTool(mem *memory.HybridMemory, sessionID string, logger *zap.Logger) *SaveMemoryTool {
	return &SaveMemoryTool{memory: mem, sessionID: sessionID, logger: logger}
}

func (t *SaveMemoryTool) Name() string          { return "save_memory" }
func (t *SaveMemoryTool) Kind() domaintool.Kind { return domaintool.KindExecute }
func (t *SaveMemoryTool) Description() string {
	return "Save a fact to durable memory for later recall. Use category \"core\" for facts that should persist across sessions, \"conversation\" for turn-scoped notes."
}

func (t *SaveMemoryTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The fact or note to remember",
			},
			"category": map[string]interface{}{
				"type":        "string",
				"description": "\"core\" or \"conversation\"",
			},
		},
		"required": []string{"content"},
	}
}

func (t *SaveMemoryTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return &Result{Success: false, Error: "missing required parameter: content"}, nil
	}
	category := memory.CategoryCore
	if c, ok := args["category"].(string); ok && c == string(memory.CategoryConversation) {
		category = memory.CategoryConversation
	}

	now := time.Now()
	entry := &memory.MemoryEntry{
		ID:        uuid.NewString(),
		Content:   content,
		Category:  category,
		SessionID: t.sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.memory.Store(ctx, entry); err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("failed to save memory: %v", err)}, nil
	}

	return &Result{
		Success: true,
		Output:  fmt.Sprintf("saved memory %s", entry.ID),
		Metadata: map[string]interface{}{
			"id":       entry.ID,
			"category": string(category),
		},
	}, nil
}

// RecallMemoryTool answers a memory query through the hybrid memory's
// semantic-first, authoritative-hydrated recall path.
type RecallMemoryTool struct {
	memory    *memory.HybridMemory
	sessionID string
	logger    *zap.Logger
}

func NewRecallMemoryTool(mem *memory.HybridMemory, sessionID string, logger *zap.Logger) *RecallMemoryTool {
	return &RecallMemoryTool{memory: mem, sessionID: sessionID, logger: logger}
}

func (t *RecallMemoryTool) Name() string          { return "recall_memory" }
func (t *RecallMemoryTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *RecallMemoryTool) Description() string {
	return "Recall previously saved facts matching a query. Pass an empty query to list recent memories for this session."
}

func (t *RecallMemoryTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Free-text recall query; empty returns recent memories",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of entries to return (default 5)",
			},
		},
	}
}

func (t *RecallMemoryTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	query, _ := args["query"].(string)
	limit := 5
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	entries, err := t.memory.Recall(ctx, t.sessionID, query, limit)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("failed to recall memory: %v", err)}, nil
	}

	if len(entries) == 0 {
		return &Result{Success: true, Output: "no matching memories found"}, nil
	}

	out := ""
	for i, e := range entries {
		if i > 0 {
			out += "\n"
		}
		out += fmt.Sprintf("- [%s] %s", e.Category, e.Content)
	}

	return &Result{
		Success: true,
		Output:  out,
		Metadata: map[string]interface{}{
			"count": len(entries),
		},
	}, nil
}
