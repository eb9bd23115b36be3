package memory

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryVectorStore(t *testing.T) {
	store := NewInMemoryVectorStore()
	ctx := context.Background()

	t.Run("Insert and Search", func(t *testing.T) {
		entry := &MemoryEntry{
			ID:        "test-1",
			Content:   "Hello world",
			Embedding: []float32{1.0, 0.0, 0.0},
			UserID:    "user-1",
			SessionID: "session-1",
			CreatedAt: time.Now(),
		}

		err := store.Insert(ctx, entry)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		query := []float32{0.9, 0.1, 0.0}
		results, err := store.Search(ctx, query, 10, nil)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}

		if len(results) != 1 {
			t.Errorf("Expected 1 result, got %d", len(results))
		}

		if results[0].ID != "test-1" {
			t.Errorf("Expected ID test-1, got %s", results[0].ID)
		}

		if results[0].Score <= 0 {
			t.Error("Score should be positive")
		}
	})

	t.Run("Filter by UserID", func(t *testing.T) {
		store.Insert(ctx, &MemoryEntry{
			ID:        "user1-entry",
			Content:   "User 1 memory",
			Embedding: []float32{1.0, 0.0, 0.0},
			UserID:    "user-1",
		})
		store.Insert(ctx, &MemoryEntry{
			ID:        "user2-entry",
			Content:   "User 2 memory",
			Embedding: []float32{1.0, 0.0, 0.0},
			UserID:    "user-2",
		})

		filter := &SearchFilter{UserID: "user-2"}
		results, _ := store.Search(ctx, []float32{1.0, 0.0, 0.0}, 10, filter)

		found := false
		for _, r := range results {
			if r.UserID != "user-2" {
				t.Errorf("Got entry from wrong user: %s", r.UserID)
			}
			if r.ID == "user2-entry" {
				found = true
			}
		}
		if !found {
			t.Error("Should find user-2 entry")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store.Insert(ctx, &MemoryEntry{
			ID:        "to-delete",
			Content:   "Will be deleted",
			Embedding: []float32{0.0, 1.0, 0.0},
		})

		err := store.Delete(ctx, "to-delete")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		results, _ := store.Search(ctx, []float32{0.0, 1.0, 0.0}, 10, nil)
		for _, r := range results {
			if r.ID == "to-delete" {
				t.Error("Deleted entry should not appear in search")
			}
		}
	})

	t.Run("GetBySession", func(t *testing.T) {
		store.Insert(ctx, &MemoryEntry{
			ID:        "session-entry",
			Content:   "Session memory",
			Embedding: []float32{0.5, 0.5, 0.0},
			SessionID: "session-test",
		})

		results, err := store.GetBySession(ctx, "session-test")
		if err != nil {
			t.Fatalf("GetBySession failed: %v", err)
		}

		found := false
		for _, r := range results {
			if r.ID == "session-entry" {
				found = true
			}
		}
		if !found {
			t.Error("Should find session entry")
		}
	})

	t.Run("Update missing entry fails", func(t *testing.T) {
		err := store.Update(ctx, &MemoryEntry{ID: "does-not-exist"})
		if err == nil {
			t.Error("Update of missing entry should fail")
		}
	})
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float32
	}{
		{"Identical vectors", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"Orthogonal vectors", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"Opposite vectors", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if got < tt.want-0.01 || got > tt.want+0.01 {
				t.Errorf("cosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}
