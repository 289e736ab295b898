package middleware

import (
	"context"
	"math/rand"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
)

// RetryConfig configures Retry. Non-retryable outcomes (validation,
// cancellation, interrupt) always bypass the retry loop regardless of
// Retryable (spec.md 4.3).
type RetryConfig struct {
	MaxAttempts int
	Backoff     graph.BackoffKind
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// Retryable additionally filters which errors are retried, on top of
	// the taxonomy-level exclusion of validation/cancellation/interrupt.
	// Nil means "retry anything graph.IsRetryable accepts."
	Retryable func(error) bool

	// OnAttempt, if set, is called after each failed attempt (1-indexed)
	// before sleeping for the backoff delay — the hook for per-attempt
	// logs/metrics spec.md 4.3 calls for.
	OnAttempt func(attempt int, err error)
}

// Retry wraps node so failing executions are retried per cfg. The retry
// loop never itself inspects state; each attempt re-runs the same
// (ctx, state, rt) input, so node.Run must be safe to call more than once
// with identical arguments (true of any pure node per spec.md 8 law 1).
func Retry(cfg RetryConfig) Middleware {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return func(node graph.Node) graph.Node {
		return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
			rng := rngFromConfigurable(rt)
			var lastResult graph.NodeResult
			for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
				res := node.Run(ctx, state, rt)
				if res.Err == nil || res.Interrupt != nil {
					return res
				}
				if !retryable(res.Err, cfg.Retryable) {
					return res
				}
				lastResult = res
				if cfg.OnAttempt != nil {
					cfg.OnAttempt(attempt+1, res.Err)
				}
				if attempt == cfg.MaxAttempts-1 {
					break
				}
				delay := graph.ComputeBackoff(cfg.Backoff, attempt, cfg.BaseDelay, cfg.MaxDelay, rng, cfg.Jitter)
				if delay > 0 {
					select {
					case <-ctx.Done():
						return graph.NodeResult{Err: &graph.CancellationError{Cause: ctx.Err()}}
					case <-time.After(delay):
					}
				}
			}
			return graph.NodeResult{Err: &graph.TransientError{Message: "max retry attempts exceeded", Cause: lastResult.Err}}
		})
	}
}

func retryable(err error, extra func(error) bool) bool {
	if !graph.IsRetryable(err) {
		return false
	}
	if extra != nil {
		return extra(err)
	}
	return true
}

// rngFromConfigurable retrieves the run's seeded RNG stashed by
// graph.Engine.Run under "__rng__", falling back to an unseeded one so
// middleware never panics on a nil Configurable (e.g. unit tests driving
// a node directly).
func rngFromConfigurable(rt graph.RuntimeConfig) *rand.Rand {
	if rt.Configurable != nil {
		if rng, ok := rt.Configurable["__rng__"].(*rand.Rand); ok {
			return rng
		}
	}
	return rand.New(rand.NewSource(1)) // #nosec G404 -- deterministic fallback, not security sensitive
}
