package graph

// Priority classifies an Interrupt's urgency for UI/queueing purposes
// (spec.md 6's stable interrupt payload shape).
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Interrupt is a request to pause execution, raised by a node as a value
// rather than an error (spec.md 9: "Interrupts as values, not
// exceptions"). The engine surfaces it to the caller as a distinguishable
// outcome; resuming re-invokes the graph with the same thread id and a
// resume value.
type Interrupt struct {
	Question        string   `json:"question"`
	Context          any      `json:"context,omitempty"`
	Priority         Priority `json:"priority"`
	TimeoutMS        int64    `json:"timeout_ms,omitempty"`
	DefaultResponse  string   `json:"default_response,omitempty"`
	Suggestions      []string `json:"suggestions,omitempty"`

	// NodeID and CheckpointID locate the resumable position: the node that
	// raised the interrupt and the checkpoint id it was persisted under
	// (spec.md 3: "a resumable position (node name + checkpoint id)").
	NodeID       string `json:"node_id"`
	CheckpointID int    `json:"checkpoint_id"`

	// Namespace is the checkpoint namespace of the Run that returned the
	// interrupt to its caller. For an interrupt raised inside a subgraph
	// (AsNode), the enclosing graph's Run replaces it with its own
	// namespace; a resume with WithResume reloads that graph's latest
	// checkpoint and re-runs the subgraph node from its start, not from the
	// subgraph's own checkpoint.
	Namespace string `json:"namespace"`
}

// Resume is the caller-supplied value used to continue a suspended node.
// Arbitrary JSON-compatible value per spec.md 6.
type Resume struct {
	Value any
}
