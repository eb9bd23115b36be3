package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// AuthoritativeStore is the durable, strongly-consistent side of the hybrid
// memory: every write lands here first and every read can always fall back
// to it. Grounded on the teacher's gorm-backed message repository.
type AuthoritativeStore interface {
	Save(ctx context.Context, entry *MemoryEntry) error
	Get(ctx context.Context, id string) (*MemoryEntry, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*MemoryEntry, error)
	Delete(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error
}

// HybridMemory pairs an AuthoritativeStore with a best-effort semantic
// VectorStore. Semantic-side failures never fail a request; the
// authoritative side is the only thing that can.
//
// Grounded on original_source/src/memory/hybrid.rs's SqliteQdrantHybridMemory.
type HybridMemory struct {
	authoritative AuthoritativeStore
	semantic      VectorStore
	embedder      EmbeddingProvider
	logger        *zap.Logger
}

// NewHybridMemory builds a HybridMemory. semantic and embedder may be nil —
// in that case recall always uses the authoritative path.
func NewHybridMemory(authoritative AuthoritativeStore, semantic VectorStore, embedder EmbeddingProvider, logger *zap.Logger) *HybridMemory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridMemory{
		authoritative: authoritative,
		semantic:      semantic,
		embedder:      embedder,
		logger:        logger,
	}
}

// Store persists an entry authoritatively, then best-effort mirrors it into
// the semantic index. A semantic-side failure is logged and ignored.
func (h *HybridMemory) Store(ctx context.Context, entry *MemoryEntry) error {
	if err := h.authoritative.Save(ctx, entry); err != nil {
		return fmt.Errorf("authoritative store failed: %w", err)
	}

	if h.semantic == nil || h.embedder == nil {
		return nil
	}

	embedding, err := h.embedder.Embed(ctx, entry.Content)
	if err != nil {
		h.logger.Warn("semantic embed failed, entry kept authoritative-only",
			zap.String("id", entry.ID), zap.Error(err))
		return nil
	}
	withEmbedding := *entry
	withEmbedding.Embedding = embedding
	if err := h.semantic.Insert(ctx, &withEmbedding); err != nil {
		h.logger.Warn("semantic index insert failed, entry kept authoritative-only",
			zap.String("id", entry.ID), zap.Error(err))
	}
	return nil
}

// Recall answers a memory query. An empty/whitespace query always goes
// straight to the authoritative store (there is nothing to embed). A
// non-empty query asks the semantic index for limit*3 candidates, hydrates
// each candidate against the authoritative store (dropping missing rows and
// session-ID mismatches), overwrites each hydrated row's Score with the
// semantic candidate's score, and dedupes by ID with first-seen winning
// (candidates arrive in descending-score order, so first-seen is also
// highest-score-seen). Any semantic-side failure, or an empty merge result,
// falls back to a direct authoritative recall.
func (h *HybridMemory) Recall(ctx context.Context, sessionID, query string, limit int) ([]*MemoryEntry, error) {
	if limit <= 0 {
		limit = 1
	}

	if strings.TrimSpace(query) == "" || h.semantic == nil || h.embedder == nil {
		return h.authoritative.ListBySession(ctx, sessionID, limit)
	}

	queryEmbedding, err := h.embedder.Embed(ctx, query)
	if err != nil {
		h.logger.Warn("semantic embed failed on recall, falling back to authoritative", zap.Error(err))
		return h.authoritative.ListBySession(ctx, sessionID, limit)
	}

	filter := &SearchFilter{SessionID: sessionID}
	candidates, err := h.semantic.Search(ctx, queryEmbedding, limit*3, filter)
	if err != nil || len(candidates) == 0 {
		if err != nil {
			h.logger.Warn("semantic search failed, falling back to authoritative", zap.Error(err))
		}
		return h.authoritative.ListBySession(ctx, sessionID, limit)
	}

	seen := make(map[string]bool, len(candidates))
	merged := make([]*MemoryEntry, 0, limit)
	for _, cand := range candidates {
		if seen[cand.ID] {
			continue
		}
		row, err := h.authoritative.Get(ctx, cand.ID)
		if err != nil || row == nil {
			continue
		}
		if sessionID != "" && row.SessionID != sessionID {
			continue
		}
		seen[cand.ID] = true
		hydrated := *row
		hydrated.Score = cand.Score
		merged = append(merged, &hydrated)
		if len(merged) >= limit {
			break
		}
	}

	if len(merged) == 0 {
		return h.authoritative.ListBySession(ctx, sessionID, limit)
	}
	return merged, nil
}

// Forget deletes an entry authoritatively, then best-effort removes it from
// the semantic index. A semantic-side failure is logged and ignored.
func (h *HybridMemory) Forget(ctx context.Context, id string) error {
	if err := h.authoritative.Delete(ctx, id); err != nil {
		return fmt.Errorf("authoritative delete failed: %w", err)
	}
	if h.semantic != nil {
		if err := h.semantic.Delete(ctx, id); err != nil {
			h.logger.Warn("semantic index delete failed", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// HealthCheck is false only when the authoritative store fails; a failing
// semantic side is logged as a warning but does not flip the overall result.
func (h *HybridMemory) HealthCheck(ctx context.Context) bool {
	if err := h.authoritative.HealthCheck(ctx); err != nil {
		h.logger.Error("authoritative store health check failed", zap.Error(err))
		return false
	}
	if h.semantic != nil {
		if _, err := h.semantic.GetBySession(ctx, "__health_check__"); err != nil {
			h.logger.Warn("semantic index health check failed", zap.Error(err))
		}
	}
	return true
}
