package middleware

import (
	"context"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
)

// TimeoutConfig configures Timeout.
type TimeoutConfig struct {
	Duration time.Duration

	// OnTimeout, if set, transforms a timed-out call into a deterministic
	// failure delta instead of propagating a bare error (spec.md 4.3:
	// "optional on_timeout hook may transform the state into a
	// deterministic failure delta").
	OnTimeout func(state graph.State) graph.State
}

// Timeout wraps node with a per-call deadline. The wrapped node is
// cancelled cooperatively via rt's context — Timeout does not forcibly
// abort a goroutine that ignores ctx.Done(); it only stops waiting for it.
func Timeout(cfg TimeoutConfig) Middleware {
	return func(node graph.Node) graph.Node {
		return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
			if cfg.Duration <= 0 {
				return node.Run(ctx, state, rt)
			}
			callCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
			defer cancel()

			type outcome struct {
				res graph.NodeResult
			}
			done := make(chan outcome, 1)
			go func() {
				done <- outcome{node.Run(callCtx, state, rt)}
			}()

			select {
			case o := <-done:
				return o.res
			case <-callCtx.Done():
				if cfg.OnTimeout != nil {
					return graph.NodeResult{Delta: cfg.OnTimeout(state)}
				}
				return graph.NodeResult{Err: &graph.TransientError{Message: "node timed out", Cause: callCtx.Err()}}
			}
		})
	}
}
