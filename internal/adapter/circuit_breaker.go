package adapter

import (
	"sync"
	"time"
)

// CircuitState mirrors the teacher's risk-engine circuit breaker states,
// repurposed here to gate adapter transport calls after repeated failures
// (§4.2 "circuit breaker after N consecutive transport failures").
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker trips to Open after Threshold consecutive failures and
// stays there for CooldownPeriod before allowing a single trial call
// through in HalfOpen.
type CircuitBreaker struct {
	Threshold      int
	CooldownPeriod time.Duration

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	lastStateChange time.Time
}

// NewCircuitBreaker constructs a breaker closed from the start.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		Threshold:       threshold,
		CooldownPeriod:  cooldown,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// Allow reports whether a call should be attempted right now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.lastStateChange) >= cb.CooldownPeriod {
			cb.state = CircuitHalfOpen
			cb.lastStateChange = time.Now()
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	if cb.state != CircuitClosed {
		cb.state = CircuitClosed
		cb.lastStateChange = time.Now()
	}
}

// RecordFailure increments the failure count and trips the breaker open
// once Threshold consecutive failures have been observed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		cb.lastStateChange = time.Now()
		return
	}

	cb.failureCount++
	if cb.failureCount >= cb.Threshold {
		cb.state = CircuitOpen
		cb.lastStateChange = time.Now()
	}
}

// State returns the current circuit state, for health reporting.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
