package graph

import "sync"

// CostTracker accumulates token usage and estimated USD cost across a run,
// reading "tokens_in"/"tokens_out"/"cost_usd" keys out of a node's
// NodeResult.Meta the way a ChatModel-calling node reports usage
// (supplemented feature: the bookkeeping travels beside the delta rather
// than through state, so a node's cost is visible without
// becoming a graph channel subject to reducer/validator rules).
type CostTracker struct {
	mu        sync.Mutex
	tokensIn  int64
	tokensOut int64
	costUSD   float64
	byNode    map[string]*nodeCost
}

type nodeCost struct {
	TokensIn  int64
	TokensOut int64
	CostUSD   float64
	Calls     int64
}

// NewCostTracker constructs an empty tracker.
func NewCostTracker() *CostTracker {
	return &CostTracker{byNode: make(map[string]*nodeCost)}
}

// Record adds one node invocation's usage to the running totals. tokensIn,
// tokensOut, and costUSD are read from meta's "tokens_in", "tokens_out",
// and "cost_usd" keys if present; missing keys count as zero.
func (c *CostTracker) Record(nodeID string, meta map[string]interface{}) {
	if c == nil || meta == nil {
		return
	}
	tokensIn := metaInt64(meta, "tokens_in")
	tokensOut := metaInt64(meta, "tokens_out")
	cost := metaFloat64(meta, "cost_usd")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokensIn += tokensIn
	c.tokensOut += tokensOut
	c.costUSD += cost

	nc, ok := c.byNode[nodeID]
	if !ok {
		nc = &nodeCost{}
		c.byNode[nodeID] = nc
	}
	nc.TokensIn += tokensIn
	nc.TokensOut += tokensOut
	nc.CostUSD += cost
	nc.Calls++
}

// Summary is a point-in-time snapshot of accumulated usage.
type Summary struct {
	TokensIn  int64
	TokensOut int64
	CostUSD   float64
	ByNode    map[string]NodeSummary
}

// NodeSummary is one node's contribution to a Summary.
type NodeSummary struct {
	TokensIn  int64
	TokensOut int64
	CostUSD   float64
	Calls     int64
}

// Snapshot returns the current totals. Safe to call mid-run.
func (c *CostTracker) Snapshot() Summary {
	if c == nil {
		return Summary{ByNode: map[string]NodeSummary{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := Summary{TokensIn: c.tokensIn, TokensOut: c.tokensOut, CostUSD: c.costUSD, ByNode: make(map[string]NodeSummary, len(c.byNode))}
	for id, nc := range c.byNode {
		out.ByNode[id] = NodeSummary{TokensIn: nc.TokensIn, TokensOut: nc.TokensOut, CostUSD: nc.CostUSD, Calls: nc.Calls}
	}
	return out
}

func metaInt64(meta map[string]interface{}, key string) int64 {
	switch v := meta[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func metaFloat64(meta map[string]interface{}, key string) float64 {
	switch v := meta[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
