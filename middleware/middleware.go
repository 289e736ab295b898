// Package middleware provides the L2 cross-cutting behaviors that wrap a
// graph.Node: retry, timeout, circuit breaking, bulkhead concurrency
// limiting, request deduplication, logging, and metrics (spec.md 4.3).
// The graph engine (L1) only knows about graph.Middleware's func(Node)
// Node shape; this package supplies concrete implementations of it.
package middleware

import "github.com/TVScoundrel/agentforge-sub003/graph"

// Middleware is an alias of graph.Middleware, kept local so callers can
// write middleware.Middleware without importing graph directly for this
// one type.
type Middleware = graph.Middleware

// Compose chains middlewares so that Compose([A,B,C])(node) behaves as
// A(B(C(node))): A observes first and last, C is closest to node
// (spec.md 4.3: "compose([A,B,C]) = A(B(C(node)))").
func Compose(mws ...Middleware) Middleware {
	return func(node graph.Node) graph.Node {
		wrapped := node
		for i := len(mws) - 1; i >= 0; i-- {
			wrapped = mws[i](wrapped)
		}
		return wrapped
	}
}
