package graph

import "context"

// AsNode adapts a compiled *Engine into a Node so it can be embedded as a
// single step of a parent graph (spec.md 4.2/9: subgraphs compose like any
// other node). The subgraph's own checkpoint history is isolated under a
// derived namespace ("{parent_thread}:worker:{name}", or "sub:{name}" when
// the run has no thread id) so its internal step count and interrupts
// never collide with the parent's.
func AsNode(name string, sub *Engine) Node {
	return NodeFunc(func(ctx context.Context, state State, rt RuntimeConfig) NodeResult {
		ns := subNamespace(rt.ThreadID, name)
		final, interrupt, err := sub.Run(ctx, rt.ThreadID, state,
			WithNamespace(ns),
			WithConfigurable(rt.Configurable),
		)
		if err != nil {
			return NodeResult{Err: err}
		}
		if interrupt != nil {
			return NodeResult{Interrupt: interrupt}
		}
		return NodeResult{Delta: final}
	})
}
