package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Category classifies a memory entry's durability/scope, matching the
// authoritative/hybrid memory model's {core, conversation} split.
type Category string

const (
	// CategoryCore marks a fact meant to persist across sessions.
	CategoryCore Category = "core"
	// CategoryConversation marks a turn-scoped recall aid.
	CategoryConversation Category = "conversation"
)

// MemoryEntry is a single stored fact, shared by the authoritative and
// semantic sides of HybridMemory.
type MemoryEntry struct {
	ID        string // unique identifier; doubles as the entry's key
	Content   string
	Category  Category
	Embedding []float32
	Metadata  map[string]interface{}
	Score     float32 // similarity score, only set on recall results
	CreatedAt time.Time
	UpdatedAt time.Time
	SessionID string
	UserID    string
}

// VectorStore is the semantic (best-effort) side of the hybrid memory.
type VectorStore interface {
	Insert(ctx context.Context, entry *MemoryEntry) error
	Search(ctx context.Context, query []float32, topK int, filter *SearchFilter) ([]*MemoryEntry, error)
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, entry *MemoryEntry) error
	GetBySession(ctx context.Context, sessionID string) ([]*MemoryEntry, error)
}

// SearchFilter narrows a semantic search.
type SearchFilter struct {
	UserID    string
	SessionID string
	MinScore  float32
	TimeRange *TimeRange
}

// TimeRange bounds a search by creation time.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// EmbeddingProvider turns text into a vector for the semantic index.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// InMemoryVectorStore is a cosine-similarity VectorStore with no external
// dependency, used as the semantic backend when an embedder is configured
// but LanceDB is not selected or fails to open, and in unit tests. Without
// an embedder no semantic backend is wired at all.
type InMemoryVectorStore struct {
	mu      sync.RWMutex
	entries map[string]*MemoryEntry
}

// NewInMemoryVectorStore creates an empty in-process vector store.
func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{
		entries: make(map[string]*MemoryEntry),
	}
}

// Insert stores (or replaces) entry by ID.
func (s *InMemoryVectorStore) Insert(ctx context.Context, entry *MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.ID] = entry
	return nil
}

// Search ranks entries by cosine similarity to query, applying filter, and
// returns the top topK.
func (s *InMemoryVectorStore) Search(ctx context.Context, query []float32, topK int, filter *SearchFilter) ([]*MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		entry *MemoryEntry
		score float32
	}

	var candidates []scored

	for _, entry := range s.entries {
		if filter != nil {
			if filter.UserID != "" && entry.UserID != filter.UserID {
				continue
			}
			if filter.SessionID != "" && entry.SessionID != filter.SessionID {
				continue
			}
			if filter.TimeRange != nil {
				if entry.CreatedAt.Before(filter.TimeRange.Start) || entry.CreatedAt.After(filter.TimeRange.End) {
					continue
				}
			}
		}

		score := cosineSimilarity(query, entry.Embedding)

		if filter != nil && score < filter.MinScore {
			continue
		}

		candidates = append(candidates, scored{entry: entry, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]*MemoryEntry, len(candidates))
	for i, c := range candidates {
		entryCopy := *c.entry
		entryCopy.Score = c.score
		results[i] = &entryCopy
	}

	return results, nil
}

// Delete removes an entry by ID; deleting an absent ID is a no-op.
func (s *InMemoryVectorStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

// Update replaces an existing entry's content/embedding, bumping UpdatedAt.
func (s *InMemoryVectorStore) Update(ctx context.Context, entry *MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.ID]; !exists {
		return errNotFound(entry.ID)
	}

	entry.UpdatedAt = time.Now()
	s.entries[entry.ID] = entry
	return nil
}

// GetBySession returns all entries tagged with sessionID.
func (s *InMemoryVectorStore) GetBySession(ctx context.Context, sessionID string) ([]*MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*MemoryEntry
	for _, entry := range s.entries {
		if entry.SessionID == sessionID {
			results = append(results, entry)
		}
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (sqrtf(normA) * sqrtf(normB))
}

func sqrtf(x float32) float32 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 10; i++ {
		z = (z + x/z) / 2
	}
	return z
}

type notFoundError string

func (e notFoundError) Error() string { return "memory not found: " + string(e) }

func errNotFound(id string) error { return notFoundError(id) }
