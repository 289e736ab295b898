package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// Checkpoint is a namespaced, versioned snapshot written once per
// superstep, after the step's results are merged and routed, per spec.md 3. It carries everything
// needed to resume execution deterministically: the merged state, the
// pending work queue, the run's seeded RNG, and an idempotency key
// guarding against duplicate commits.
type Checkpoint struct {
	ThreadID       string     `json:"thread_id"`
	Namespace      string     `json:"namespace"`
	CheckpointID   int        `json:"checkpoint_id"`
	State          State      `json:"state"`
	NextNodes      []WorkItem `json:"next_nodes"`
	RNGSeed        int64      `json:"rng_seed"`
	IdempotencyKey string     `json:"idempotency_key"`
	Timestamp      time.Time  `json:"timestamp"`
	Label          string     `json:"label,omitempty"`
}

// computeIdempotencyKey hashes (threadID, checkpointID, sorted next-nodes,
// state) into a stable "sha256:..." key, guarding the engine's checkpoint
// commits (commitCheckpoint) against duplication on retry (spec.md 7, 8
// law 2).
func computeIdempotencyKey(threadID string, checkpointID int, items []WorkItem, state State) (string, error) {
	h := sha256.New()
	h.Write([]byte(threadID))

	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, uint64(checkpointID))
	h.Write(idBytes)

	sorted := make([]WorkItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OrderKey < sorted[j].OrderKey })
	for _, item := range sorted {
		h.Write([]byte(item.NodeID))
		okBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(okBytes, item.OrderKey)
		h.Write(okBytes)
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	h.Write(stateJSON)

	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// subNamespace derives a subgraph's checkpoint namespace from its parent,
// per spec.md 4.2/9: "{parent_thread}:worker:{worker_id}" or "sub:{name}".
func subNamespace(parent, name string) string {
	if parent == "" {
		return "sub:" + name
	}
	return parent + ":worker:" + name
}
