package agent

import (
	"strings"
	"testing"
)

func TestExtractSubject_LastUserMessageWins(t *testing.T) {
	subject, history := ExtractSubject([]ChatMessage{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "second"},
	})
	if subject != "second" {
		t.Fatalf("subject = %q, want %q", subject, "second")
	}
	if len(history) != 2 {
		t.Fatalf("history = %v, want 2 entries", history)
	}
	if history[0] != "User: first" || history[1] != "Assistant: reply" {
		t.Fatalf("unexpected history: %v", history)
	}
}

func TestExtractSubject_TrailingAssistantIgnored(t *testing.T) {
	subject, _ := ExtractSubject([]ChatMessage{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "partial answer"},
	})
	if subject != "question" {
		t.Fatalf("subject = %q, want %q", subject, "question")
	}
}

func TestExtractSubject_NoUserMessage(t *testing.T) {
	subject, history := ExtractSubject([]ChatMessage{
		{Role: "system", Content: "only system"},
	})
	if subject != "" || history != nil {
		t.Fatalf("expected empty extraction, got %q / %v", subject, history)
	}
}

func TestExtractSubject_HistoryCappedAtTen(t *testing.T) {
	var msgs []ChatMessage
	for i := 0; i < 8; i++ {
		msgs = append(msgs,
			ChatMessage{Role: "user", Content: "q"},
			ChatMessage{Role: "assistant", Content: "a"},
		)
	}
	msgs = append(msgs, ChatMessage{Role: "user", Content: "subject"})
	_, history := ExtractSubject(msgs)
	if len(history) != 10 {
		t.Fatalf("history length = %d, want 10", len(history))
	}
}

func TestEnrichMessage_Template(t *testing.T) {
	enriched := EnrichMessage("second", []string{"User: first", "Assistant: reply"})
	if !strings.HasPrefix(enriched, "Recent conversation context:") {
		t.Fatalf("enriched message missing context header: %q", enriched)
	}
	if strings.Count(enriched, "User: first") != 1 || strings.Count(enriched, "Assistant: reply") != 1 {
		t.Fatalf("context lines should appear exactly once: %q", enriched)
	}
	ctxBlock := enriched[:strings.Index(enriched, "Current message:")]
	if strings.Contains(ctxBlock, "second") {
		t.Fatalf("subject leaked into the context block: %q", ctxBlock)
	}
	if !strings.HasSuffix(enriched, "Current message:\nsecond") {
		t.Fatalf("enriched message should end with the subject: %q", enriched)
	}
}

func TestEnrichMessage_NoContextPassesThrough(t *testing.T) {
	if got := EnrichMessage("hello", nil); got != "hello" {
		t.Fatalf("got %q, want passthrough", got)
	}
	if got := EnrichMessage("hello", []string{"  ", ""}); got != "hello" {
		t.Fatalf("whitespace-only context should pass through, got %q", got)
	}
}
