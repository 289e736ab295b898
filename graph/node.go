package graph

import "context"

// Node is a processing unit in the graph: a function of (state, runtime
// config) producing a state delta or an interrupt, per spec.md 4.2. Nodes
// are polymorphic over plain computation, LLM calls, tool calls, and
// subgraph invocation — AsNode (subgraph.go) adapts a compiled *Engine into
// a Node so subgraphs compose transparently.
type Node interface {
	Run(ctx context.Context, state State, rt RuntimeConfig) NodeResult
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc func(ctx context.Context, state State, rt RuntimeConfig) NodeResult

// Run implements Node.
func (f NodeFunc) Run(ctx context.Context, state State, rt RuntimeConfig) NodeResult {
	return f(ctx, state, rt)
}

// NodeResult is the outcome of one node execution: exactly one of a
// completed delta or a pending Interrupt, plus routing instructions for
// the next hop(s).
type NodeResult struct {
	// Delta holds channel updates to merge via the graph's Annotation.
	// Keys must be declared channels; validated before merging.
	Delta State

	// Route selects the next node(s). If the zero value, the engine falls
	// back to evaluating the graph's fixed/conditional edges for this node.
	Route Next

	// Interrupt, if non-nil, suspends execution at this node. Delta and
	// Route are ignored when Interrupt is set; the engine persists a
	// checkpoint and surfaces the interrupt to the caller instead of
	// routing further (spec.md 3, 4.2).
	Interrupt *Interrupt

	// Err signals node failure. Propagates per spec.md 7's error taxonomy
	// unless a middleware wrapper handles it.
	Err error

	// Meta carries execution metadata (token counts, cost, model name)
	// for CostTracker.Record, kept separate from Delta since it is not a
	// channel update and must not pass through Annotation.Validate/Merge.
	Meta map[string]interface{}
}

// Next specifies the next step(s) after a node completes.
type Next struct {
	To       string   // single destination
	Many     []string // parallel fan-out destinations
	Terminal bool     // route to END
}

// IsZero reports whether n carries no explicit routing instruction, in
// which case the engine falls back to edge evaluation.
func (n Next) IsZero() bool {
	return n.To == "" && len(n.Many) == 0 && !n.Terminal
}

// Stop returns a Next that routes to the terminal sentinel END.
func Stop() Next { return Next{Terminal: true} }

// Goto returns a Next that routes to a single named node.
func Goto(nodeID string) Next { return Next{To: nodeID} }

// FanOut returns a Next that routes to multiple nodes in parallel.
func FanOut(nodeIDs ...string) Next { return Next{Many: nodeIDs} }

// RuntimeConfig is propagated through execution per spec.md 3: thread
// identifier, parent checkpoint namespace, cancellation signal, execution
// metadata, and free-form configurable values.
type RuntimeConfig struct {
	ThreadID     string
	Namespace    string
	CorrelationID string
	Tags         []string
	Configurable map[string]any

	// cancel is the context carrying the cancellation signal; nodes must
	// observe ctx.Done() cooperatively (spec.md 5).
	cancel context.Context
}

// Done returns the cancellation channel associated with this run, or nil
// if none was attached.
func (rt RuntimeConfig) Done() <-chan struct{} {
	if rt.cancel == nil {
		return nil
	}
	return rt.cancel.Done()
}

// NodeError carries structured failure information attributable to a
// specific node (spec.md 7: "failure descriptor including category,
// message, attributed node, and attempt count").
type NodeError struct {
	Message string
	Code    string
	NodeID  string
	Attempt int
	Cause   error
}

func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

func (e *NodeError) Unwrap() error { return e.Cause }
