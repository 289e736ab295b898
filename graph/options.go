package graph

import (
	"encoding/json"

	"github.com/TVScoundrel/agentforge-sub003/graph/emit"
	"github.com/TVScoundrel/agentforge-sub003/graph/store"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures an Engine at construction time (NewEngine).
type Option func(*Engine) error

// WithStore attaches a checkpoint store. Mandatory for any graph
// containing suspending nodes (spec.md 4.2).
func WithStore(s store.Store) Option {
	return func(e *Engine) error {
		e.store = s
		return nil
	}
}

// WithEmitter attaches an observability emitter. Defaults to a NullEmitter
// if never set.
func WithEmitter(em emit.Emitter) Option {
	return func(e *Engine) error {
		e.emitter = em
		return nil
	}
}

// WithMetrics registers Prometheus collectors against reg and attaches
// them to the engine.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) error {
		e.metrics = NewMetrics(reg)
		return nil
	}
}

// WithCostTracker attaches a cost tracker; NodeResult.Meta carrying
// tokens_in/tokens_out/cost_usd accumulates into it.
func WithCostTracker(c *CostTracker) Option {
	return func(e *Engine) error {
		e.cost = c
		return nil
	}
}

// WithMiddleware appends middleware to the engine's stack, applied to
// every node in registration order (outermost first).
func WithMiddleware(mw ...Middleware) Option {
	return func(e *Engine) error {
		e.mw = append(e.mw, mw...)
		return nil
	}
}

// WithMaxSteps bounds the number of supersteps a single Run executes
// before returning ErrMaxStepsExceeded (spec.md 5 invariant: every run
// terminates).
func WithMaxSteps(n int) Option {
	return func(e *Engine) error {
		if n > 0 {
			e.maxSteps = n
		}
		return nil
	}
}

// WithMaxConcurrentNodes bounds how many frontier items run concurrently
// within a single superstep (spec.md 5: MaxConcurrentNodes).
func WithMaxConcurrentNodes(n int) Option {
	return func(e *Engine) error {
		if n > 0 {
			e.maxConcurrent = n
		}
		return nil
	}
}

// WithRNGSeed pins the run's RNG seed for deterministic replay (spec.md
// 9). If unset, Run seeds from the wall clock.
func WithRNGSeed(seed int64) Option {
	return func(e *Engine) error {
		e.rngSeed = seed
		return nil
	}
}

// RunOption configures a single Run invocation.
type RunOption func(*runOptions)

type runOptions struct {
	namespace          string
	configurable       map[string]any
	resumeCheckpointID int
	resumeValue        any
}

// WithNamespace scopes this run's checkpoints under a sub-namespace
// (subgraph.go's AsNode uses this to isolate a subgraph's checkpoint
// history from its parent's).
func WithNamespace(ns string) RunOption {
	return func(ro *runOptions) { ro.namespace = ns }
}

// WithConfigurable passes free-form per-run configuration through to every
// node's RuntimeConfig.Configurable.
func WithConfigurable(cfg map[string]any) RunOption {
	return func(ro *runOptions) { ro.configurable = cfg }
}

// WithResume resumes a previously interrupted run: the engine loads the
// thread's latest checkpoint and delivers value to the node that raised
// the interrupt via state key "__resume__".
func WithResume(value any) RunOption {
	return func(ro *runOptions) {
		ro.resumeCheckpointID = 1
		ro.resumeValue = value
	}
}

func cloneConfigurable(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// checkpointWire is the JSON-serializable shape of a Checkpoint; State
// values that aren't JSON-round-trippable (e.g. a *rand.Rand stashed in
// Configurable) never reach here because RuntimeConfig.Configurable is not
// part of Checkpoint.
type checkpointWire struct {
	ThreadID       string     `json:"thread_id"`
	Namespace      string     `json:"namespace"`
	CheckpointID   int        `json:"checkpoint_id"`
	State          State      `json:"state"`
	NextNodes      []WorkItem `json:"next_nodes"`
	RNGSeed        int64      `json:"rng_seed"`
	IdempotencyKey string     `json:"idempotency_key"`
	Label          string     `json:"label,omitempty"`
}

func marshalCheckpoint(cp Checkpoint) (store.Blob, error) {
	wire := checkpointWire{
		ThreadID: cp.ThreadID, Namespace: cp.Namespace, CheckpointID: cp.CheckpointID,
		State: cp.State, NextNodes: cp.NextNodes, RNGSeed: cp.RNGSeed,
		IdempotencyKey: cp.IdempotencyKey, Label: cp.Label,
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	return store.Blob(b), nil
}

func unmarshalCheckpoint(blob store.Blob) (Checkpoint, error) {
	var wire checkpointWire
	if err := json.Unmarshal(blob, &wire); err != nil {
		return Checkpoint{}, err
	}
	return Checkpoint{
		ThreadID: wire.ThreadID, Namespace: wire.Namespace, CheckpointID: wire.CheckpointID,
		State: wire.State, NextNodes: wire.NextNodes, RNGSeed: wire.RNGSeed,
		IdempotencyKey: wire.IdempotencyKey, Label: wire.Label,
	}, nil
}
