package llm

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState is the gate position of the generation breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var circuitStateNames = [...]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half-open",
}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(circuitStateNames) {
		return "unknown"
	}
	return circuitStateNames[s]
}

// ErrCircuitOpen is wrapped by every rejection from Allow.
var ErrCircuitOpen = errors.New("generation gateway unavailable")

// CircuitBreakerConfig controls when generation calls stop reaching the gateway.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int
	// ResetAfter is how long the circuit stays open before one probe is let through.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig opens after 5 failures and probes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 5, ResetAfter: 30 * time.Second}
}

// CircuitBreaker counts consecutive generation failures. While open, calls are
// rejected until ResetAfter has elapsed; then a single probe decides whether
// the circuit closes again or re-opens.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker returns a closed breaker. A non-positive threshold is treated as 1.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a generation call may proceed. The first call after the
// open period moves the breaker to half-open and becomes the probe.
func (cb *CircuitBreaker) Allow() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true, nil
	case CircuitOpen:
		waited := cb.now().Sub(cb.openedAt)
		if waited > cb.cfg.ResetAfter {
			cb.state = CircuitHalfOpen
			return true, nil
		}
		return false, fmt.Errorf("circuit breaker open after %d failures, retry in %v: %w",
			cb.failures, (cb.cfg.ResetAfter - waited).Round(time.Second), ErrCircuitOpen)
	case CircuitHalfOpen:
		return false, fmt.Errorf("circuit breaker half-open, probe in flight: %w", ErrCircuitOpen)
	}
	return false, fmt.Errorf("circuit breaker state %v: %w", cb.state, ErrCircuitOpen)
}

// RecordSuccess closes the circuit. It reports whether the breaker was
// recovering from an open state.
func (cb *CircuitBreaker) RecordSuccess() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	recovered := cb.state != CircuitClosed
	cb.failures = 0
	cb.state = CircuitClosed
	return recovered
}

// RecordFailure counts a failure. It reports whether this failure opened the
// circuit; a failed probe re-opens it and restarts the wait.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitOpen {
		return false
	}
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.Threshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
		return true
	}
	return false
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
