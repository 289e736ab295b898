package emit

// Event is one observability record from a run: a node starting or
// finishing, a checkpoint write, a routing decision, an LLM call's token
// and cost accounting, or a terminal error.
type Event struct {
	RunID string

	// Step is the 0-based superstep number (the entry node's events carry
	// step 0).
	Step int

	// NodeID is empty for run-level events.
	NodeID string

	Msg string

	// Meta carries event-specific structured data. Common keys:
	// duration_ms, error, retryable, tokens_in, tokens_out, cost_usd,
	// checkpoint_id, step_id, order_key, attempt.
	Meta map[string]interface{}
}
