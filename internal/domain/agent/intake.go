package agent

import (
	"fmt"
	"strings"
)

// ChatMessage is one entry of an OpenAI-shaped conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// maxContextEntries caps how much prior history is folded into one enriched
// message.
const maxContextEntries = 10

// ExtractSubject walks an OpenAI-shaped messages array and returns the last
// user message as the turn's subject, plus the preceding user/assistant
// history (system messages and trailing assistant messages are never the
// subject; the subject itself is excluded from the history). History is
// capped at the last maxContextEntries entries, oldest first.
//
// Grounded on original_source/src/gateway/openclaw_compat.rs.
func ExtractSubject(messages []ChatMessage) (subject string, history []string) {
	subjectIdx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			subjectIdx = i
			subject = messages[i].Content
			break
		}
	}
	if subjectIdx < 0 {
		return "", nil
	}

	for i, m := range messages {
		if i == subjectIdx {
			continue
		}
		switch m.Role {
		case "user":
			history = append(history, "User: "+m.Content)
		case "assistant":
			history = append(history, "Assistant: "+m.Content)
		}
	}
	if len(history) > maxContextEntries {
		history = history[len(history)-maxContextEntries:]
	}
	return subject, history
}

// EnrichMessage folds prior context lines into the subject using the fixed
// template the agent prompt expects. With no context, the subject passes
// through verbatim.
func EnrichMessage(subject string, context []string) string {
	trimmed := make([]string, 0, len(context))
	for _, line := range context {
		if strings.TrimSpace(line) != "" {
			trimmed = append(trimmed, line)
		}
	}
	if len(trimmed) == 0 {
		return subject
	}
	if len(trimmed) > maxContextEntries {
		trimmed = trimmed[len(trimmed)-maxContextEntries:]
	}
	return fmt.Sprintf("Recent conversation context:\n%s\n\nCurrent message:\n%s",
		strings.Join(trimmed, "\n"), subject)
}
