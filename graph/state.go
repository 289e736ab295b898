// Package graph provides the core graph execution engine: typed state
// channels, node/edge composition, checkpointing, and deterministic
// concurrent execution.
package graph

import "fmt"

// Reducer merges an incoming delta into the current value of a single
// channel. Reducers must be pure and deterministic: the same (current,
// incoming) pair always yields the same merged value.
//
// Built-in reducers are provided as package functions (Overwrite, Append,
// MergeMap, Sum) for the common cases described by a channel's merge
// semantics; custom channels may supply any function with this shape.
type Reducer func(current, incoming any) any

// Validator rejects a candidate channel value that does not meet the
// channel's type contract. A nil Validator accepts any value.
type Validator func(value any) error

// ChannelConfig declares the merge and validation contract for a single
// named slot in a State. Every channel referenced by a node's delta must
// have a ChannelConfig registered at compile time; the channel model has no
// notion of implicit channels.
type ChannelConfig struct {
	// Reduce merges an incoming value into the channel's current value. If
	// nil, Overwrite is used (incoming replaces current).
	Reduce Reducer

	// Validate rejects a candidate value before it is merged. If nil, any
	// value is accepted.
	Validate Validator

	// Default lazily produces the channel's zero value. Called once per
	// execution, not once per process, so defaults may depend on external
	// state (e.g. time.Now) without leaking across runs.
	Default func() any

	// Description is a human-readable note about the channel's purpose. Not
	// interpreted by the engine.
	Description string

	// Associative marks a reducer as safe to apply to concurrently-produced
	// deltas in arbitrary arrival order (append, sum, merge-map qualify;
	// overwrite does not). The check runs during Run, not Compile: a
	// superstep in which more than one item writes a channel with
	// Associative=false fails with ErrParallelOverwrite (spec 4.2).
	Associative bool
}

// Overwrite is the default reducer: the incoming value replaces the
// current value. Not associative — concurrent writers would race.
func Overwrite(_, incoming any) any { return incoming }

// Append concatenates incoming onto current, treating both as []any.
// Associative in the sense required for parallel fan-out: per-writer
// order is preserved, and writers are merged in scheduler arrival order
// (itself deterministic via OrderKey, see scheduler.go).
func Append(current, incoming any) any {
	cur, _ := current.([]any)
	inc, _ := incoming.([]any)
	out := make([]any, 0, len(cur)+len(inc))
	out = append(out, cur...)
	out = append(out, inc...)
	return out
}

// MergeMap shallow-merges incoming keys into current, treating both as
// map[string]any. Last writer per key wins within a merge call; across
// concurrent writers results depend on arrival order for colliding keys,
// so channels using MergeMap under parallel fan-out should avoid key
// collisions between branches.
func MergeMap(current, incoming any) any {
	cur, _ := current.(map[string]any)
	inc, _ := incoming.(map[string]any)
	out := make(map[string]any, len(cur)+len(inc))
	for k, v := range cur {
		out[k] = v
	}
	for k, v := range inc {
		out[k] = v
	}
	return out
}

// Sum adds incoming onto current, treating both as float64. Associative.
func Sum(current, incoming any) any {
	cur, _ := current.(float64)
	inc, _ := incoming.(float64)
	return cur + inc
}

// Annotation is a compiled, immutable set of channel configurations,
// keyed by channel name. It is produced by NewAnnotation and shared by
// every State created against it.
type Annotation struct {
	channels map[string]ChannelConfig
	order    []string
}

// NewAnnotation builds an Annotation from a channel configuration map. The
// returned Annotation is immutable; subsequent mutation of the input map
// does not affect it.
func NewAnnotation(channels map[string]ChannelConfig) *Annotation {
	a := &Annotation{
		channels: make(map[string]ChannelConfig, len(channels)),
		order:    make([]string, 0, len(channels)),
	}
	for name, cfg := range channels {
		if cfg.Reduce == nil {
			cfg.Reduce = Overwrite
		}
		a.channels[name] = cfg
		a.order = append(a.order, name)
	}
	return a
}

// Has reports whether name is a declared channel.
func (a *Annotation) Has(name string) bool {
	_, ok := a.channels[name]
	return ok
}

// Config returns the ChannelConfig for name and whether it was found.
func (a *Annotation) Config(name string) (ChannelConfig, bool) {
	cfg, ok := a.channels[name]
	return cfg, ok
}

// Channels returns the declared channel names in a stable order.
func (a *Annotation) Channels() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Defaults produces a fresh State populated with each channel's lazily
// evaluated default value (or nil if no Default thunk is configured).
func (a *Annotation) Defaults() State {
	s := make(State, len(a.channels))
	for name, cfg := range a.channels {
		if cfg.Default != nil {
			s[name] = cfg.Default()
		} else {
			s[name] = nil
		}
	}
	return s
}

// State is a mapping from channel name to current value — the runtime
// representation of spec.md's "state container". State is intentionally
// dynamically typed at this layer; domain packages (e.g. agent) read typed
// values out of it with their own helper functions.
type State map[string]any

// Clone returns a shallow copy of s. Channel values themselves are not
// deep-copied; reducers that mutate a channel's value in place would
// violate the purity invariant and must not be used.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Validate rejects any key in delta that is not a declared channel and any
// value that fails its channel's Validator (spec.md 4.1: "rejects any key
// not present in the configuration and rejects values not meeting the
// channel's type contract").
func (a *Annotation) Validate(delta State) error {
	for key, val := range delta {
		cfg, ok := a.channels[key]
		if !ok {
			return &ValidationError{Message: fmt.Sprintf("unknown channel %q", key), Field: key}
		}
		if cfg.Validate != nil {
			if err := cfg.Validate(val); err != nil {
				return &ValidationError{Message: err.Error(), Field: key, Cause: err}
			}
		}
	}
	return nil
}

// Merge applies delta onto current channel-by-channel via each channel's
// Reduce function, per spec.md 4.1: "reducers run in channel order; each
// reducer must be total; when a node returns multiple channel updates,
// reducers are applied independently; there is no cross-channel
// transaction." Merge does not validate; call Validate first.
func (a *Annotation) Merge(current, delta State) State {
	out := current.Clone()
	for _, name := range a.order {
		incoming, present := delta[name]
		if !present {
			continue
		}
		cfg := a.channels[name]
		cur := out[name]
		out[name] = cfg.Reduce(cur, incoming)
	}
	return out
}
