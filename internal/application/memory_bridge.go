package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zeroclaw/gateway/internal/domain/memory"
	"github.com/zeroclaw/gateway/internal/domain/service"
)

// memoryPersisterAdapter bridges service.MemoryPersister → memory.HybridMemory
// so the loop's background fact extraction lands in the same store the
// save_memory/recall_memory tools use.
type memoryPersisterAdapter struct {
	mem *memory.HybridMemory
}

func (m *memoryPersisterAdapter) SaveFact(content, category string, confidence float64, source string) error {
	cat := memory.CategoryCore
	if category == string(memory.CategoryConversation) {
		cat = memory.CategoryConversation
	}
	now := time.Now()
	return m.mem.Store(context.Background(), &memory.MemoryEntry{
		ID:       uuid.NewString(),
		Content:  content,
		Category: cat,
		Metadata: map[string]interface{}{
			"confidence": confidence,
			"source":     source,
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (m *memoryPersisterAdapter) IsDuplicate(content string) bool {
	entries, err := m.mem.Recall(context.Background(), "", content, 3)
	if err != nil {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(content))
	for _, e := range entries {
		if strings.ToLower(strings.TrimSpace(e.Content)) == lower {
			return true
		}
	}
	return false
}

// Compile-time check
var _ service.MemoryPersister = (*memoryPersisterAdapter)(nil)
