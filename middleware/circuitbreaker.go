package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
)

// BreakerState is one of the three circuit breaker states (spec.md 4.3).
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// BreakerStats exposes circuit breaker counters for observability
// (spec.md 4.3: "exposes statistics (totals, failure rate, state-change
// count)").
type BreakerStats struct {
	Total         int64
	Successes     int64
	Failures      int64
	Rejections    int64
	StateChanges  int64
	CurrentState  BreakerState
}

// CircuitBreakerConfig configures CircuitBreaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenProbes   int // K: max concurrent probe calls allowed in half_open

	// ShouldTrip filters which errors count toward the failure threshold
	// (e.g. only transient/5xx-style failures). Nil counts every error.
	ShouldTrip func(error) bool

	OnStateChange func(from, to BreakerState)
}

// CircuitBreaker implements the closed/open/half_open state machine
// shared across concurrent callers (spec.md 5: "Circuit breaker state and
// bulkhead counters are shared across concurrent callers and must be
// updated atomically").
type CircuitBreaker struct {
	mu sync.Mutex

	cfg CircuitBreakerConfig

	state          BreakerState
	failureCount   int
	lastOpenedAt   time.Time
	halfOpenInUse  int
	stats          BreakerStats
}

// NewCircuitBreaker constructs a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.HalfOpenProbes < 1 {
		cfg.HalfOpenProbes = 1
	}
	return &CircuitBreaker{cfg: cfg, state: BreakerClosed}
}

// ErrCircuitOpen is returned when the breaker rejects a call outright.
var ErrCircuitOpen = &graph.PolicyError{Reason: "circuit_open", Message: "circuit breaker is open"}

// allow reports whether a call may proceed, transitioning closed->open
// cooldown expiry into half_open as a side effect, and reserving a probe
// slot if entering/continuing half_open.
func (cb *CircuitBreaker) allow() (bool, func(err error)) {
	cb.mu.Lock()

	switch cb.state {
	case BreakerOpen:
		if time.Since(cb.lastOpenedAt) < cb.cfg.ResetTimeout {
			cb.stats.Rejections++
			cb.mu.Unlock()
			return false, nil
		}
		cb.transition(BreakerHalfOpen)
		fallthrough
	case BreakerHalfOpen:
		if cb.halfOpenInUse >= cb.cfg.HalfOpenProbes {
			cb.stats.Rejections++
			cb.mu.Unlock()
			return false, nil
		}
		cb.halfOpenInUse++
	}
	cb.mu.Unlock()

	return true, func(err error) { cb.record(err) }
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.Total++
	trips := cb.cfg.ShouldTrip
	countsAsFailure := err != nil && (trips == nil || trips(err))

	if cb.state == BreakerHalfOpen {
		cb.halfOpenInUse--
	}

	if countsAsFailure {
		cb.stats.Failures++
		cb.failureCount++
		if cb.state == BreakerHalfOpen {
			cb.transition(BreakerOpen)
			cb.lastOpenedAt = time.Now()
			return
		}
		if cb.state == BreakerClosed && cb.failureCount >= cb.cfg.FailureThreshold {
			cb.transition(BreakerOpen)
			cb.lastOpenedAt = time.Now()
		}
		return
	}

	cb.stats.Successes++
	cb.failureCount = 0
	if cb.state == BreakerHalfOpen {
		cb.transition(BreakerClosed)
	}
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.stats.StateChanges++
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// Stats returns a snapshot of breaker counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := cb.stats
	s.CurrentState = cb.state
	return s
}

// CircuitBreaking wraps node with cb: an open circuit rejects immediately
// with ErrCircuitOpen without invoking node.
func CircuitBreaking(cb *CircuitBreaker) Middleware {
	return func(node graph.Node) graph.Node {
		return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
			ok, record := cb.allow()
			if !ok {
				return graph.NodeResult{Err: ErrCircuitOpen}
			}
			res := node.Run(ctx, state, rt)
			record(res.Err)
			return res
		})
	}
}
