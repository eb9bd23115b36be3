package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/zeroclaw/gateway/pkg/errors"
)

// LLMErrorKind classifies LLM errors for retry and reporting decisions.
type LLMErrorKind int

const (
	// ErrKindTransient means the error is temporary and retrying may succeed.
	// Examples: timeout, network reset, 502/503/504.
	ErrKindTransient LLMErrorKind = iota

	// ErrKindRateLimited means the provider throttled the request.
	// Retryable — backoff gives the window time to clear.
	ErrKindRateLimited

	// ErrKindAuth means authentication or authorization failed.
	// Examples: invalid API key, 401/403.
	ErrKindAuth

	// ErrKindBadRequest means the request itself is malformed.
	// Examples: invalid argument, model not found, 400.
	ErrKindBadRequest

	// ErrKindContentFilter means the request was blocked by content policy.
	ErrKindContentFilter

	// ErrKindBudget means the request exceeded a cost or resource limit.
	// Examples: token budget exhausted, provider quota, billing.
	ErrKindBudget

	// ErrKindCancelled means the request was explicitly cancelled or its
	// deadline elapsed.
	ErrKindCancelled
)

// String returns a human-readable label for the error kind.
func (k LLMErrorKind) String() string {
	switch k {
	case ErrKindTransient:
		return "transient"
	case ErrKindRateLimited:
		return "rate_limited"
	case ErrKindAuth:
		return "auth"
	case ErrKindBadRequest:
		return "bad_request"
	case ErrKindContentFilter:
		return "content_filter"
	case ErrKindBudget:
		return "budget"
	case ErrKindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsRetryable returns true if this error kind should be retried.
func (k LLMErrorKind) IsRetryable() bool {
	return k == ErrKindTransient || k == ErrKindRateLimited
}

// AppCode maps a provider-side failure into the gateway's error taxonomy,
// so the HTTP layer picks the right status (429 for throttling, 504 for a
// deadline, 500 for everything provider-internal).
func (k LLMErrorKind) AppCode() apperrors.ErrorCode {
	switch k {
	case ErrKindRateLimited:
		return apperrors.CodeRateLimited
	case ErrKindCancelled:
		return apperrors.CodeTimeout
	default:
		return apperrors.CodeProvider
	}
}

// LLMError is a structured error from an LLM operation.
// It wraps the original error with classification metadata
// for smarter retry, logging, and metrics.
type LLMError struct {
	Kind       LLMErrorKind // Classification of the error
	Message    string       // Human-readable description
	StatusCode int          // HTTP status code if applicable (0 if unknown)
	Provider   string       // Provider name that generated the error
	Model      string       // Model that was being used
	Cause      error        // Original underlying error
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap enables errors.Is/errors.As on the cause chain.
func (e *LLMError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if this error should be retried.
func (e *LLMError) IsRetryable() bool {
	return e.Kind.IsRetryable()
}

// ClassifyError examines an error and returns a classified LLMError.
// If the error is already an *LLMError, it is returned as-is.
// Otherwise, the error string is pattern-matched against known categories.
func ClassifyError(err error, provider, model string) *LLMError {
	if err == nil {
		return nil
	}

	// Check if already classified
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr
	}

	errStr := strings.ToLower(err.Error())

	classified := func(kind LLMErrorKind, msg string) *LLMError {
		return &LLMError{
			Kind:       kind,
			Message:    msg,
			StatusCode: extractStatusCode(errStr),
			Provider:   provider,
			Model:      model,
			Cause:      err,
		}
	}

	// Cancellation — match the sentinel errors, not their rendered text
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(errStr, "context canceled") ||
		strings.Contains(errStr, "context deadline exceeded") {
		return classified(ErrKindCancelled, "request cancelled")
	}

	if matchesAny(errStr, "rate limit", "too many requests", "429") {
		return classified(ErrKindRateLimited, "provider throttled the request")
	}

	if matchesAny(errStr, "unauthorized", "invalid api key", "403", "authentication", "permission denied") {
		return classified(ErrKindAuth, "authentication failed")
	}

	if matchesAny(errStr, "content filter", "content policy", "safety", "blocked", "harmful") {
		return classified(ErrKindContentFilter, "content filtered")
	}

	if matchesAny(errStr, "bad request", "invalid argument", "model not found", "400", "invalid_request") {
		return classified(ErrKindBadRequest, "invalid request")
	}

	if matchesAny(errStr, "budget", "quota", "insufficient", "billing") {
		return classified(ErrKindBudget, "budget or quota exceeded")
	}

	// Default: transient (retryable)
	return classified(ErrKindTransient, "transient error")
}

func matchesAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// extractStatusCode tries to find HTTP status codes in an error string.
func extractStatusCode(errStr string) int {
	codes := map[string]int{
		"400": 400, "401": 401, "403": 403, "404": 404,
		"429": 429, "500": 500, "502": 502, "503": 503,
		"504": 504, "529": 529,
	}
	for code, num := range codes {
		if strings.Contains(errStr, code) {
			return num
		}
	}
	return 0
}
