package graph

import (
	"math/rand"
	"time"
)

// BackoffKind selects the retry-delay shape (spec.md 4.3: "backoff in
// {fixed, linear, exponential with optional jitter}").
type BackoffKind int

const (
	BackoffFixed BackoffKind = iota
	BackoffLinear
	BackoffExponential
)

// NodePolicy configures per-node timeout, retry, and idempotency-key
// behavior. The middleware stack (middleware package), not the engine,
// enforces Retry/Timeout — NodePolicy is the declarative contract a node
// author attaches and middleware.Compose reads, keeping L1 (graph) and L2
// (middleware) separated per spec.md 2's layer table.
type NodePolicy struct {
	Timeout            time.Duration
	RetryPolicy        *RetryPolicy
	IdempotencyKeyFunc func(state State) string
}

// RetryPolicy defines retry behavior for transient node failures.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffKind
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
	Retryable   func(error) bool
}

// Validate rejects an internally inconsistent RetryPolicy.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// ComputeBackoff returns the delay before retry attempt `attempt` (0 =
// first retry), per spec.md 9: "delay = min(base*2^attempt, maxDelay) +
// jitter(0, base)" for exponential, with fixed/linear variants sharing the
// same jitter treatment. rng, when non-nil, is the run's seeded RNG so
// replay reproduces identical delays (graph's deterministic-replay
// contract).
func ComputeBackoff(kind BackoffKind, attempt int, base, maxDelay time.Duration, rng *rand.Rand, jitter bool) time.Duration {
	var delay time.Duration
	switch kind {
	case BackoffFixed:
		delay = base
	case BackoffLinear:
		delay = base * time.Duration(attempt+1)
	case BackoffExponential:
		delay = base * (1 << attempt)
	default:
		delay = base
	}
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	if jitter && base > 0 {
		var j time.Duration
		if rng != nil {
			j = time.Duration(rng.Int63n(int64(base)))
		} else {
			j = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- backoff jitter, not security sensitive
		}
		delay += j
	}
	return delay
}

// SideEffectPolicy declares whether a node's external I/O may be
// recorded/replayed and whether it requires an idempotency key
// (spec.md 4.2 determinism, 9).
type SideEffectPolicy struct {
	Recordable          bool
	RequiresIdempotency bool
}
