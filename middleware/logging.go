package middleware

import (
	"context"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
	"github.com/TVScoundrel/agentforge-sub003/graph/emit"
)

// Redactor strips sensitive content from a node's input/output before it
// is logged (spec.md 4.3: "input/output summaries (via a redactor)").
type Redactor func(state graph.State) map[string]interface{}

// DefaultRedactor summarizes state as channel names only, omitting
// values entirely — the conservative default for a domain-agnostic
// library that cannot know which channels carry secrets.
func DefaultRedactor(state graph.State) map[string]interface{} {
	out := make(map[string]interface{}, len(state))
	for k := range state {
		out[k] = "<redacted>"
	}
	return out
}

// LoggingConfig configures Logging.
type LoggingConfig struct {
	Emitter  emit.Emitter
	Redactor Redactor
	Tags     []string
}

// Logging wraps node to emit start/end events with duration, redacted
// input/output summaries, error, and tags. Observability middleware must
// not alter state deltas (spec.md 4.3) — Logging never touches res.Delta.
func Logging(cfg LoggingConfig) Middleware {
	redact := cfg.Redactor
	if redact == nil {
		redact = DefaultRedactor
	}
	em := cfg.Emitter
	if em == nil {
		em = emit.NewNullEmitter()
	}
	return func(node graph.Node) graph.Node {
		return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
			em.Emit(emit.Event{
				RunID: rt.ThreadID, NodeID: rt.CorrelationID, Msg: "node_start",
				Meta: map[string]interface{}{"input": redact(state), "tags": cfg.Tags},
			})
			start := time.Now()
			res := node.Run(ctx, state, rt)
			meta := map[string]interface{}{
				"duration_ms": time.Since(start).Milliseconds(),
				"tags":        cfg.Tags,
			}
			if res.Delta != nil {
				meta["output"] = redact(res.Delta)
			}
			if res.Err != nil {
				meta["error"] = res.Err.Error()
			}
			em.Emit(emit.Event{RunID: rt.ThreadID, NodeID: rt.CorrelationID, Msg: "node_end", Meta: meta})
			return res
		})
	}
}
