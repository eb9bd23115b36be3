package service

import (
	"strings"
)

// IsContextOverflowError checks if an error indicates the context window
// was exceeded, across the provider families this gateway routes to
// (OpenAI, Anthropic, Gemini) and the proxies commonly put in front of
// them. Overflow is handled by compaction, never by retry.
func IsContextOverflowError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "context length exceeded") ||
		strings.Contains(msg, "maximum context length") ||
		strings.Contains(msg, "input token count exceeds") ||
		strings.Contains(msg, "request_too_large") ||
		strings.Contains(msg, "request exceeds the maximum size") ||
		strings.Contains(msg, "prompt is too long") ||
		strings.Contains(msg, "exceeds model context window") ||
		strings.Contains(msg, "context overflow") ||
		(strings.Contains(msg, "request size exceeds") && strings.Contains(msg, "context window")) ||
		(strings.Contains(msg, "413") && strings.Contains(msg, "too large"))
}
