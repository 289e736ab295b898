package resource

import (
	"sync"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
)

// ErrCircuitOpen is returned by Call when the breaker is open.
var ErrCircuitOpen = &graph.PolicyError{Reason: "circuit_open", Message: "circuit breaker is open"}

// BreakerState mirrors middleware.BreakerState's three-state model but is
// declared independently here: the resource layer's breaker protects plain
// func() error calls against databases/HTTP endpoints (spec.md 4.6), not
// graph.Node executions, and must not import the middleware package (that
// would invert the documented L2-wraps-L4 dependency direction).
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker guards calls to a downstream resource (database
// connection, HTTP endpoint) with the closed/open/half-open state machine,
// grounded on the pack's plain-func circuit breaker
// (ahrav-go-gavel/infrastructure/llm/middleware_circuit_breaker.go) rather
// than the node-wrapping one in middleware/circuitbreaker.go.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        BreakerState
	failureCount int
	maxFailures  int
	cooldown     time.Duration
	lastFailure  time.Time
}

// NewCircuitBreaker constructs a closed breaker that opens after
// maxFailures consecutive failures and stays open for cooldown.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{maxFailures: maxFailures, cooldown: cooldown}
}

// Call executes fn through the breaker, failing fast with ErrCircuitOpen
// when open and the cooldown has not elapsed.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failureCount++
		cb.lastFailure = time.Now()
		if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}
		return err
	}
	cb.failureCount = 0
	cb.state = StateClosed
	return nil
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
