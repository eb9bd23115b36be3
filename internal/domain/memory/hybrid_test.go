package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeStore is an in-process AuthoritativeStore.
type fakeStore struct {
	rows    map[string]*MemoryEntry
	failing bool
}

func newFakeStore() *fakeStore { return &fakeStore{rows: make(map[string]*MemoryEntry)} }

func (s *fakeStore) Save(ctx context.Context, entry *MemoryEntry) error {
	if s.failing {
		return fmt.Errorf("store down")
	}
	cp := *entry
	s.rows[entry.ID] = &cp
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*MemoryEntry, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *fakeStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*MemoryEntry, error) {
	var out []*MemoryEntry
	for _, row := range s.rows {
		if sessionID != "" && row.SessionID != sessionID {
			continue
		}
		cp := *row
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	delete(s.rows, id)
	return nil
}

func (s *fakeStore) HealthCheck(ctx context.Context) error {
	if s.failing {
		return fmt.Errorf("store down")
	}
	return nil
}

// failingVectorStore errors on every call.
type failingVectorStore struct{}

func (failingVectorStore) Insert(ctx context.Context, entry *MemoryEntry) error {
	return fmt.Errorf("semantic index down")
}
func (failingVectorStore) Search(ctx context.Context, query []float32, topK int, filter *SearchFilter) ([]*MemoryEntry, error) {
	return nil, fmt.Errorf("semantic index down")
}
func (failingVectorStore) Delete(ctx context.Context, id string) error {
	return fmt.Errorf("semantic index down")
}
func (failingVectorStore) Update(ctx context.Context, entry *MemoryEntry) error {
	return fmt.Errorf("semantic index down")
}
func (failingVectorStore) GetBySession(ctx context.Context, sessionID string) ([]*MemoryEntry, error) {
	return nil, fmt.Errorf("semantic index down")
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}
func (fixedEmbedder) Dimension() int { return 3 }

func entry(id, content, session string) *MemoryEntry {
	now := time.Now()
	return &MemoryEntry{
		ID: id, Content: content, Category: CategoryCore,
		SessionID: session, CreatedAt: now, UpdatedAt: now,
	}
}

func TestHybridRecall_FallsBackWhenSemanticFails(t *testing.T) {
	store := newFakeStore()
	h := NewHybridMemory(store, failingVectorStore{}, fixedEmbedder{}, zap.NewNop())

	if err := h.Store(context.Background(), entry("topic", "hybrid fallback should still find this", "")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := h.Recall(context.Background(), "", "fallback", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 1 || got[0].ID != "topic" {
		t.Fatalf("expected authoritative fallback to return key %q, got %v", "topic", got)
	}
}

func TestHybridStore_SemanticFailureIsIgnored(t *testing.T) {
	store := newFakeStore()
	h := NewHybridMemory(store, failingVectorStore{}, fixedEmbedder{}, zap.NewNop())

	if err := h.Store(context.Background(), entry("k", "v", "")); err != nil {
		t.Fatalf("semantic failure should not fail the store: %v", err)
	}
	if _, ok := store.rows["k"]; !ok {
		t.Fatal("entry missing from the authoritative store")
	}
}

func TestHybridRecall_NeverReturnsPhantomKeys(t *testing.T) {
	store := newFakeStore()
	semantic := NewInMemoryVectorStore()
	h := NewHybridMemory(store, semantic, fixedEmbedder{}, zap.NewNop())

	// Seed the semantic index with an entry the authoritative store does not
	// hold — recall must skip it.
	ghost := entry("ghost", "only in the index", "")
	ghost.Embedding = []float32{1, 0, 0}
	if err := semantic.Insert(context.Background(), ghost); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := h.Store(context.Background(), entry("real", "present everywhere", "")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := h.Recall(context.Background(), "", "present", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	for _, e := range got {
		if e.ID == "ghost" {
			t.Fatal("recall returned a key absent from the authoritative store")
		}
	}
}

func TestHybridRecall_SessionMismatchSkipped(t *testing.T) {
	store := newFakeStore()
	semantic := NewInMemoryVectorStore()
	h := NewHybridMemory(store, semantic, fixedEmbedder{}, zap.NewNop())

	if err := h.Store(context.Background(), entry("a", "fact from session one", "s1")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := h.Recall(context.Background(), "s2", "fact", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	for _, e := range got {
		if e.SessionID != "s2" {
			t.Fatalf("entry from wrong session leaked: %+v", e)
		}
	}
}

func TestHybridHealthCheck_SemanticOnlyFailureStaysHealthy(t *testing.T) {
	store := newFakeStore()
	h := NewHybridMemory(store, failingVectorStore{}, fixedEmbedder{}, zap.NewNop())
	if !h.HealthCheck(context.Background()) {
		t.Fatal("semantic-only failure must not flip the health check")
	}

	store.failing = true
	if h.HealthCheck(context.Background()) {
		t.Fatal("authoritative failure must fail the health check")
	}
}

func TestHybridForget_DeletesAuthoritativelyDespiteSemanticFailure(t *testing.T) {
	store := newFakeStore()
	h := NewHybridMemory(store, failingVectorStore{}, fixedEmbedder{}, zap.NewNop())

	if err := h.Store(context.Background(), entry("k", "v", "")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := h.Forget(context.Background(), "k"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, ok := store.rows["k"]; ok {
		t.Fatal("entry still present after forget")
	}
}
