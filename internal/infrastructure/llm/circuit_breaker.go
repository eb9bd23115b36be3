package llm

import (
	"sync"
	"time"

	"github.com/zeroclaw/gateway/internal/domain/service"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing, reject calls
	CircuitHalfOpen                     // Testing recovery
)

// String returns a human-readable label for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements a per-provider circuit breaker pattern.
// When a provider fails consecutively beyond the threshold, the circuit
// opens and subsequent calls are rejected without hitting the provider.
// After a recovery timeout, the circuit transitions to half-open and
// allows one probe call to test recovery.
type CircuitBreaker struct {
	mu               sync.RWMutex
	state            CircuitState
	failureCount     int
	successCount     int
	failureThreshold int           // consecutive failures to trip
	successThreshold int           // successes in half-open to close
	recoveryTimeout  time.Duration // how long to wait before probing
	lastFailureTime  time.Time     // when the circuit opened
}

// NewCircuitBreaker creates a circuit breaker with the given thresholds.
// failureThreshold: number of consecutive failures before opening the circuit.
// recoveryTimeout: how long to wait before allowing a probe request.
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: 1, // One success in half-open closes the circuit
		recoveryTimeout:  recoveryTimeout,
	}
}

// Allow checks whether a request should be allowed through.
// Returns true if the circuit is closed or half-open (probe allowed).
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		// Check if recovery timeout has elapsed
		if time.Since(cb.lastFailureTime) >= cb.recoveryTimeout {
			cb.state = CircuitHalfOpen
			cb.successCount = 0
			return true // Allow one probe
		}
		return false
	case CircuitHalfOpen:
		return true
	}
	return false
}

// RecordResult classifies a call outcome: nil is a success, a caller-side
// cancellation is ignored entirely (an aborted HTTP request says nothing
// about provider health), anything else is a failure.
func (cb *CircuitBreaker) RecordResult(err error) {
	if err == nil {
		cb.RecordSuccess()
		return
	}
	if classified := service.ClassifyError(err, "", ""); classified.Kind == service.ErrKindCancelled {
		return
	}
	cb.RecordFailure()
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state == CircuitHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = CircuitClosed
		}
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.state == CircuitHalfOpen {
		// Any failure in half-open immediately re-opens
		cb.state = CircuitOpen
		return
	}

	if cb.failureCount >= cb.failureThreshold {
		cb.state = CircuitOpen
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forces the circuit back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.successCount = 0
}
