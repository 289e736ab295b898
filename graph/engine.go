package graph

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph/emit"
	"github.com/TVScoundrel/agentforge-sub003/graph/store"
)

// Middleware wraps a Node to add cross-cutting behavior (retry, timeout,
// circuit breaking, dedup, logging, metrics — see the middleware package).
// The graph package only depends on the shape, not any concrete
// middleware, keeping L1/L2 separated per spec.md 2's layer table.
type Middleware func(Node) Node

// Engine is a compiled, runnable graph: a fixed set of nodes, fixed and
// conditional edges, a compiled channel Annotation, and the collaborators
// (store, emitter, metrics, cost tracker) an execution needs (spec.md 3,
// 4.2).
type Engine struct {
	annotation *Annotation
	nodes      map[string]Node
	edges      []Edge
	conditional []conditionalEdge
	entry      string

	store   store.Store
	emitter emit.Emitter
	metrics *Metrics
	cost    *CostTracker
	mw      []Middleware

	maxSteps      int
	maxConcurrent int
	rngSeed       int64

	compiled bool
}

type conditionalEdge struct {
	from   string
	router Router
	labels map[string]string // label -> destination node or END
}

// NewEngine constructs an uncompiled Engine over the given Annotation.
// Register nodes and edges, then call Compile before Run.
func NewEngine(annotation *Annotation, opts ...Option) (*Engine, error) {
	e := &Engine{
		annotation:    annotation,
		nodes:         make(map[string]Node),
		maxSteps:      10000,
		maxConcurrent: 8,
		emitter:       emit.NewNullEmitter(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// AddNode registers a node under id. Returns ErrDuplicateNode if id is
// already registered, or ErrAlreadyCompiled once the engine is compiled.
func (e *Engine) AddNode(id string, node Node) error {
	if e.compiled {
		return ErrAlreadyCompiled
	}
	if _, exists := e.nodes[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	e.nodes[id] = node
	return nil
}

// AddEdge registers a fixed edge from -> to, optionally guarded by when
// (nil means unconditional).
func (e *Engine) AddEdge(from, to string, when Predicate) error {
	if e.compiled {
		return ErrAlreadyCompiled
	}
	e.edges = append(e.edges, Edge{From: from, To: to, When: when})
	return nil
}

// AddConditionalEdges registers a router-driven branch out of from: router
// returns one or more labels, each resolved through labels to a
// destination node id or END (spec.md 3).
func (e *Engine) AddConditionalEdges(from string, router Router, labels map[string]string) error {
	if e.compiled {
		return ErrAlreadyCompiled
	}
	e.conditional = append(e.conditional, conditionalEdge{from: from, router: router, labels: labels})
	return nil
}

// StartAt sets the graph's entry node.
func (e *Engine) StartAt(nodeID string) error {
	if e.compiled {
		return ErrAlreadyCompiled
	}
	e.entry = nodeID
	return nil
}

// Compile validates the graph's structure: every edge and conditional-edge
// label must resolve to a registered node or END, and an entry node must
// be set. Compile may be called only once; a second call returns
// ErrAlreadyCompiled.
func (e *Engine) Compile() error {
	if e.compiled {
		return ErrAlreadyCompiled
	}
	if e.entry == "" {
		return ErrNoEntry
	}
	if _, ok := e.nodes[e.entry]; !ok {
		return &EngineError{Message: fmt.Sprintf("entry node %q not registered", e.entry), Code: "unknown_entry"}
	}
	for _, edge := range e.edges {
		if err := e.checkDestination(edge.To); err != nil {
			return err
		}
		if _, ok := e.nodes[edge.From]; !ok {
			return &EngineError{Message: fmt.Sprintf("edge from unknown node %q", edge.From), Code: "unknown_node"}
		}
	}
	for _, ce := range e.conditional {
		if _, ok := e.nodes[ce.from]; !ok {
			return &EngineError{Message: fmt.Sprintf("conditional edge from unknown node %q", ce.from), Code: "unknown_node"}
		}
		for _, dest := range ce.labels {
			if err := e.checkDestination(dest); err != nil {
				return err
			}
		}
	}
	e.compiled = true
	return nil
}

func (e *Engine) checkDestination(nodeID string) error {
	if nodeID == END {
		return nil
	}
	if _, ok := e.nodes[nodeID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	return nil
}

// wrapped returns node's Run method composed with the engine's middleware
// stack, innermost-to-outermost in registration order (middleware[0] is
// outermost), matching spec.md 4.3's compose([A,B,C]) = A(B(C(node))).
func (e *Engine) wrapped(node Node) Node {
	wrapped := node
	for i := len(e.mw) - 1; i >= 0; i-- {
		wrapped = e.mw[i](wrapped)
	}
	return wrapped
}

// Run executes the graph from the given initial delta, starting a fresh
// thread (or resuming threadID with the WithResume RunOption) and
// returning either a final merged State, a pending Interrupt, or an error
// per spec.md 4.2's step loop:
//  1. dequeue the current frontier
//  2. run each item's node (middleware-wrapped) concurrently, bounded by
//     maxConcurrent
//  3. merge results into state via per-channel reducers, in OrderKey order
//  4. evaluate edges/conditional edges/explicit routing to build the next
//     frontier
//  5. checkpoint the merged state together with that next frontier
//
// halting on END, an interrupt, an unrecoverable error, or an empty
// frontier.
func (e *Engine) Run(ctx context.Context, threadID string, initial State, opts ...RunOption) (State, *Interrupt, error) {
	if !e.compiled {
		return nil, nil, ErrNotCompiled
	}
	ro := &runOptions{}
	for _, opt := range opts {
		opt(ro)
	}

	namespace := ro.namespace
	if namespace == "" {
		namespace = "root"
	}

	state := e.annotation.Defaults()
	state = e.annotation.Merge(state, initial)
	if err := e.annotation.Validate(initial); err != nil {
		return nil, nil, err
	}

	rngSeed := e.rngSeed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(rngSeed))

	checkpointID := 0
	frontier := []WorkItem{{StepID: 0, OrderKey: 0, NodeID: e.entry, State: state}}

	if ro.resumeCheckpointID > 0 {
		resumed, id, items, err := e.loadCheckpoint(ctx, namespace, threadID, ro)
		if err != nil {
			return nil, nil, err
		}
		state = resumed
		checkpointID = id
		frontier = items
	}

	sched := NewFrontier(e.maxConcurrent)
	configurable := cloneConfigurable(ro.configurable)
	configurable["__rng__"] = rng
	rt := RuntimeConfig{ThreadID: threadID, Namespace: namespace, Configurable: configurable}

	for step := 0; step < e.maxSteps; step++ {
		if len(frontier) == 0 {
			return state, nil, nil
		}
		if err := ctx.Err(); err != nil {
			return state, nil, &CancellationError{Cause: err}
		}

		e.metrics.recordQueueDepth(len(frontier))

		exec := func(execCtx context.Context, item WorkItem) (NodeResult, error) {
			node, ok := e.nodes[item.NodeID]
			if !ok {
				return NodeResult{}, fmt.Errorf("%w: %s", ErrUnknownNode, item.NodeID)
			}
			itemRT := rt
			itemRT.CorrelationID = item.NodeID
			nodeCtx := withCancel(execCtx, &itemRT)
			start := time.Now()
			e.emitter.Emit(emit.Event{RunID: threadID, Step: item.StepID, NodeID: item.NodeID, Msg: "node_start"})
			res := e.wrapped(node).Run(nodeCtx, item.State, itemRT)
			dur := time.Since(start)
			e.metrics.recordStep(item.NodeID, outcomeLabel(res), dur.Seconds())
			e.emitter.Emit(emit.Event{
				RunID: threadID, Step: item.StepID, NodeID: item.NodeID, Msg: "node_complete",
				Meta: map[string]interface{}{"duration_ms": dur.Milliseconds(), "outcome": outcomeLabel(res)},
			})
			if res.Err != nil {
				e.metrics.recordError(item.NodeID, errorCategory(res.Err))
				return res, res.Err
			}
			return res, nil
		}

		results, err := sched.RunBatch(ctx, frontier, exec)
		if err != nil {
			return state, nil, err
		}

		sort.Slice(results, func(i, j int) bool { return results[i].Item.OrderKey < results[j].Item.OrderKey })

		var interrupted *Interrupt
		var nextFrontier []WorkItem

		for _, r := range results {
			if r.Err != nil {
				return state, nil, &NodeError{Message: r.Err.Error(), NodeID: r.Item.NodeID, Attempt: r.Item.Attempt, Cause: r.Err}
			}
			if r.Result.Interrupt != nil {
				interrupted = r.Result.Interrupt
				interrupted.NodeID = r.Item.NodeID
				interrupted.Namespace = namespace
				// Re-queue the interrupted item itself so a resumed run
				// re-invokes the same node with __resume__ merged into its
				// state instead of finding an empty frontier (spec.md 9).
				nextFrontier = []WorkItem{r.Item}
				break
			}
			if r.Result.Delta != nil {
				if err := e.rejectNonAssociativeFanOut(r.Item, results); err != nil {
					return state, nil, err
				}
				if err := e.annotation.Validate(r.Result.Delta); err != nil {
					return state, nil, err
				}
				state = e.annotation.Merge(state, r.Result.Delta)
			}
			if r.Result.Meta != nil {
				e.cost.Record(r.Item.NodeID, r.Result.Meta)
			}

			dests, err := e.route(r.Item.NodeID, r.Result, state)
			if err != nil {
				return state, nil, err
			}
			for i, dest := range dests {
				if dest == END {
					continue
				}
				queued := false
				for j := range nextFrontier {
					if nextFrontier[j].NodeID == dest {
						// A destination reached from several items of this
						// superstep runs once, on the merged state.
						nextFrontier[j].State = state
						queued = true
						break
					}
				}
				if queued {
					continue
				}
				nextFrontier = append(nextFrontier, WorkItem{
					StepID:       step + 1,
					OrderKey:     ComputeOrderKey(r.Item.NodeID, i),
					NodeID:       dest,
					State:        state,
					ParentNodeID: r.Item.NodeID,
					EdgeIndex:    i,
				})
			}
		}

		checkpointID++
		if interrupted != nil {
			interrupted.CheckpointID = checkpointID
			e.metrics.recordInterrupt()
			if err := e.commitCheckpoint(ctx, threadID, namespace, checkpointID, state, nextFrontier, rngSeed, interrupted.Question); err != nil {
				return state, interrupted, err
			}
			return state, interrupted, nil
		}

		if e.store != nil {
			if err := e.commitCheckpoint(ctx, threadID, namespace, checkpointID, state, nextFrontier, rngSeed, ""); err != nil {
				return state, nil, err
			}
		}

		frontier = nextFrontier
	}

	return state, nil, ErrMaxStepsExceeded
}

// rejectNonAssociativeFanOut enforces spec.md 4.2's rule that a
// parallel-target channel (written by more than one concurrently-run item
// in the same superstep) must use an associative reducer. item is unused
// beyond membership in all; the check is batch-wide by channel.
func (e *Engine) rejectNonAssociativeFanOut(_ WorkItem, all []ItemResult) error {
	writeCounts := make(map[string]int)
	for _, r := range all {
		for key := range r.Result.Delta {
			writeCounts[key]++
		}
	}
	for key, count := range writeCounts {
		if count <= 1 {
			continue
		}
		cfg, ok := e.annotation.Config(key)
		if !ok {
			continue
		}
		if !cfg.Associative {
			return fmt.Errorf("%w: channel %q written by %d concurrent items", ErrParallelOverwrite, key, count)
		}
	}
	return nil
}

// route resolves a completed node's next destinations: explicit Route
// takes precedence; otherwise fixed and conditional edges registered for
// fromNode are evaluated against state.
func (e *Engine) route(fromNode string, res NodeResult, state State) ([]string, error) {
	if !res.Route.IsZero() {
		if res.Route.Terminal {
			return []string{END}, nil
		}
		if res.Route.To != "" {
			return []string{res.Route.To}, nil
		}
		return res.Route.Many, nil
	}

	var dests []string
	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			dests = append(dests, edge.To)
		}
	}
	for _, ce := range e.conditional {
		if ce.from != fromNode {
			continue
		}
		for _, label := range ce.router(state) {
			dest, ok := ce.labels[label]
			if !ok {
				return nil, &EngineError{Message: fmt.Sprintf("router returned unmapped label %q", label), Code: "unmapped_label"}
			}
			dests = append(dests, dest)
		}
	}
	if len(dests) == 0 {
		dests = []string{END}
	}
	return dests, nil
}

func (e *Engine) commitCheckpoint(ctx context.Context, threadID, namespace string, checkpointID int, state State, next []WorkItem, rngSeed int64, label string) error {
	if e.store == nil {
		return nil
	}
	// The namespace is part of the key so a subgraph's checkpoint and its
	// parent's, which share a thread id, never collide.
	key, err := computeIdempotencyKey(namespace+":"+threadID, checkpointID, next, state)
	if err != nil {
		return err
	}
	committed, err := e.store.CheckIdempotency(ctx, key)
	if err != nil {
		return err
	}
	if committed {
		return ErrIdempotencyViolation
	}

	cp := Checkpoint{
		ThreadID:       threadID,
		Namespace:      namespace,
		CheckpointID:   checkpointID,
		State:          state,
		NextNodes:      next,
		RNGSeed:        rngSeed,
		IdempotencyKey: key,
		Timestamp:      time.Now(),
		Label:          label,
	}
	blob, err := marshalCheckpoint(cp)
	if err != nil {
		return err
	}
	if err := e.store.Put(ctx, namespace, threadID, checkpointID, blob); err != nil {
		return err
	}
	if err := e.store.MarkIdempotent(ctx, key); err != nil {
		return err
	}
	e.metrics.recordCheckpoint()
	return nil
}

func (e *Engine) loadCheckpoint(ctx context.Context, namespace, threadID string, ro *runOptions) (State, int, []WorkItem, error) {
	if e.store == nil {
		return nil, 0, nil, ErrNoCheckpointStore
	}
	id, blob, err := e.store.Latest(ctx, namespace, threadID)
	if err != nil {
		return nil, 0, nil, err
	}
	cp, err := unmarshalCheckpoint(blob)
	if err != nil {
		return nil, 0, nil, err
	}

	state := cp.State
	items := cp.NextNodes
	if ro.resumeValue != nil && len(items) > 0 {
		resumed := items[0].State.Clone()
		resumed["__resume__"] = ro.resumeValue
		items[0].State = resumed
	}
	return state, id, items, nil
}

// withCancel attaches rt's cancellation context to ctx so a node's
// rt.Done() observes the same signal the engine uses for ctx.Err checks.
func withCancel(ctx context.Context, rt *RuntimeConfig) context.Context {
	rt.cancel = ctx
	return ctx
}

func outcomeLabel(res NodeResult) string {
	switch {
	case res.Err != nil:
		return "error"
	case res.Interrupt != nil:
		return "interrupt"
	default:
		return "ok"
	}
}

