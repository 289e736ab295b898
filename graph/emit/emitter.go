// Package emit carries observability events out of graph execution to a
// pluggable backend (stdout logging, OpenTelemetry spans, or nothing).
package emit

import "context"

// Emitter receives events produced during a run. Implementations must be
// non-blocking and safe for concurrent use — the engine calls Emit from
// whichever goroutine is running a node, and a slow or panicking emitter
// must never stall or crash execution.
type Emitter interface {
	// Emit sends a single event. Must not panic; failures should be
	// handled internally (logged, dropped, or buffered for retry).
	Emit(event Event)

	// EmitBatch sends events in the order given, amortizing per-event
	// overhead for backends that benefit from bulk writes. Returns an
	// error only for a configuration-level failure, never for one bad
	// event in the batch.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until any buffered events are delivered or ctx is
	// done. Safe to call more than once.
	Flush(ctx context.Context) error
}
