package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// traceIDKey is the private context key for trace IDs.
type traceIDKey struct{}

// sessionIDKey is the private context key for the chat session a turn
// belongs to.
type sessionIDKey struct{}

// WithTraceID injects a trace ID into the context.
// If traceID is empty, a random one is generated.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = generateTraceID()
	}
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext extracts the trace ID from the context.
// Returns empty string if no trace ID is set.
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithSessionID tags the context with the chat session driving this turn,
// so every loop/tool log line can be grouped per session.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionIDFromContext extracts the session ID, or "" when unset.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id
	}
	return ""
}

// generateTraceID creates a random "zc-" prefixed 16-hex-char trace ID.
func generateTraceID() string {
	b := make([]byte, 8) // 8 bytes = 16 hex chars
	_, _ = rand.Read(b)
	return "zc-" + hex.EncodeToString(b)
}
