package graph

// END is the terminal sentinel destination: routing to END halts the run.
const END = "__end__"

// Edge connects two nodes, optionally guarded by a predicate (spec.md 3:
// "a set of fixed edges (from -> to)").
type Edge struct {
	From string
	To   string
	When Predicate
}

// Predicate evaluates state to decide whether an edge should be
// traversed. Must be pure.
type Predicate func(state State) bool

// Router evaluates state and returns one or more destination labels,
// each of which must map to an existing node or END via the conditional
// edge's label map (spec.md 3: "a set of conditional edges
// (from, router, label->to map)").
type Router func(state State) []string
