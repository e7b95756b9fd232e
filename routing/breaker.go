package routing

import (
	"log"
	"sync"
	"time"
)

// CircuitState is the breaker's current mode
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // normal operation
	CircuitOpen                         // rejecting requests
	CircuitHalfOpen                     // probing with one request
)

// CircuitBreaker protects a deployment from repeated failing calls.
// After maxFailures consecutive failures the breaker opens and rejects
// requests until cooldown elapses, then allows a single probe.
type CircuitBreaker struct {
	deploymentID string
	maxFailures  int
	cooldown     time.Duration

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
}

// NewCircuitBreaker creates a breaker for a deployment
func NewCircuitBreaker(deploymentID string, maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		deploymentID: deploymentID,
		maxFailures:  maxFailures,
		cooldown:     cooldown,
		state:        CircuitClosed,
	}
}

// Allow reports whether a request may proceed
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.lastFailure) >= cb.cooldown {
			cb.state = CircuitHalfOpen
			log.Printf("[CircuitBreaker] %s: half-open, allowing probe", cb.deploymentID)
			return true
		}
		return false
	case CircuitHalfOpen:
		// One probe at a time
		return false
	}
	return true
}

// RecordSuccess closes the breaker
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitClosed {
		log.Printf("[CircuitBreaker] %s: closed after success", cb.deploymentID)
	}
	cb.state = CircuitClosed
	cb.failures = 0
}

// RecordFailure counts a failure and may open the breaker
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		if cb.state != CircuitOpen {
			log.Printf("[CircuitBreaker] %s: open after %d failures", cb.deploymentID, cb.failures)
		}
		cb.state = CircuitOpen
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
