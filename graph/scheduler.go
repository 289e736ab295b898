package graph

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// WorkItem is a schedulable unit of work in the execution frontier: enough
// context to run one node and to order it deterministically against
// concurrently-produced siblings (spec.md 4.2 parallel fan-out, 5 ordering
// guarantees).
type WorkItem struct {
	StepID       int
	OrderKey     uint64
	NodeID       string
	State        State
	Attempt      int
	ParentNodeID string
	EdgeIndex    int
}

// ComputeOrderKey derives a deterministic sort key from the parent node id
// and edge index, so that replaying the same graph always schedules
// concurrently-produced work items in the same order regardless of
// goroutine completion timing (spec.md 5: "for parallel writers, order is
// arrival-order and must be commutative for correctness" — OrderKey makes
// "arrival order" itself reproducible).
func ComputeOrderKey(parentNodeID string, edgeIndex int) uint64 {
	h := sha256.New()
	h.Write([]byte(parentNodeID))
	edgeBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(edgeBytes, uint32(edgeIndex))
	h.Write(edgeBytes)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// Frontier bounds concurrent execution of one superstep's work items using
// a weighted semaphore (spec.md 5: MaxConcurrentNodes) and reports
// results in deterministic OrderKey order regardless of completion order,
// via RunBatch.
type Frontier struct {
	sem      *semaphore.Weighted
	capacity int64

	totalEnqueued      atomic.Int64
	totalDequeued      atomic.Int64
	backpressureEvents atomic.Int32
	peakQueueDepth     atomic.Int32
}

// NewFrontier constructs a Frontier bounding concurrency to maxConcurrent.
func NewFrontier(maxConcurrent int) *Frontier {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Frontier{sem: semaphore.NewWeighted(int64(maxConcurrent)), capacity: int64(maxConcurrent)}
}

// ItemResult pairs a WorkItem with its execution outcome.
type ItemResult struct {
	Item   WorkItem
	Result NodeResult
	Err    error
}

// RunBatch executes items concurrently, each bounded by the frontier's
// semaphore, and returns results sorted by OrderKey so that merge order
// is deterministic regardless of goroutine completion order (spec.md 4.2:
// "Results are merged into the state via reducers in arrival order").
// exec is typically a middleware-wrapped node's Run method.
func (f *Frontier) RunBatch(ctx context.Context, items []WorkItem, exec func(context.Context, WorkItem) (NodeResult, error)) ([]ItemResult, error) {
	results := make([]ItemResult, len(items))
	var wg sync.WaitGroup

	depth := int32(len(items))
	for {
		old := f.peakQueueDepth.Load()
		if depth <= old || f.peakQueueDepth.CompareAndSwap(old, depth) {
			break
		}
	}

	for i, item := range items {
		if err := f.sem.Acquire(ctx, 1); err != nil {
			f.backpressureEvents.Add(1)
			results[i] = ItemResult{Item: item, Err: ErrBackpressureTimeout}
			continue
		}
		f.totalEnqueued.Add(1)
		wg.Add(1)
		go func(i int, item WorkItem) {
			defer wg.Done()
			defer f.sem.Release(1)
			res, err := exec(ctx, item)
			f.totalDequeued.Add(1)
			results[i] = ItemResult{Item: item, Result: res, Err: err}
		}(i, item)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Item.OrderKey < results[j].Item.OrderKey })
	return results, nil
}

// SchedulerMetrics is a point-in-time snapshot of frontier activity,
// returned by Frontier.Metrics; graph/metrics.go does not export it.
type SchedulerMetrics struct {
	QueueCapacity      int32
	TotalEnqueued      int64
	TotalDequeued      int64
	BackpressureEvents int32
	PeakQueueDepth     int32
}

// Metrics returns a snapshot of frontier counters.
func (f *Frontier) Metrics() SchedulerMetrics {
	return SchedulerMetrics{
		QueueCapacity:      int32(f.capacity),
		TotalEnqueued:      f.totalEnqueued.Load(),
		TotalDequeued:      f.totalDequeued.Load(),
		BackpressureEvents: f.backpressureEvents.Load(),
		PeakQueueDepth:     f.peakQueueDepth.Load(),
	}
}
