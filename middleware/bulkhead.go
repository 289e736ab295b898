package middleware

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
)

// Priority classifies a queued bulkhead task, highest first within the
// queue (spec.md 4.3: "a bounded priority queue (high/normal/low)").
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// ErrQueueFull is returned when the bulkhead's bounded queue is at
// capacity (spec.md 4.3: "Queue-full policy: reject with a distinguishable
// error").
var ErrQueueFull = &graph.PolicyError{Reason: "queue_full", Message: "bulkhead queue is full"}

// ErrQueueTimeout is returned when a task is ejected after waiting in the
// queue past its per-task timeout.
var ErrQueueTimeout = &graph.PolicyError{Reason: "queue_timeout", Message: "bulkhead queue timeout"}

// Bulkhead bounds concurrent in-flight executions across one or more
// wrapped nodes, dispatching queued overflow by priority (ties broken
// FIFO) as slots free up. A single Bulkhead may be shared across nodes
// via repeated calls to Limit (spec.md 4.3: "A shared controller may be
// used across nodes").
type Bulkhead struct {
	maxConcurrent int
	maxQueue      int
	queueTimeout  time.Duration

	mu     sync.Mutex
	active int
	pq     priorityQueue
	seq    int64
}

// BulkheadConfig configures a Bulkhead.
type BulkheadConfig struct {
	MaxConcurrent int
	MaxQueueSize  int
	QueueTimeout  time.Duration // 0 means no per-task queue timeout
}

// NewBulkhead constructs a Bulkhead per cfg.
func NewBulkhead(cfg BulkheadConfig) *Bulkhead {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Bulkhead{maxConcurrent: cfg.MaxConcurrent, maxQueue: cfg.MaxQueueSize, queueTimeout: cfg.QueueTimeout}
}

// ActiveCount returns the number of currently in-flight executions.
func (b *Bulkhead) ActiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// QueueDepth returns the number of tasks currently queued.
func (b *Bulkhead) QueueDepth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pq)
}

// Limit wraps node with priority p, bounded by b's concurrency and queue
// limits (spec.md 8 law 5: active ≤ max_concurrent, queue depth ≤
// max_queue_size at all times).
func (b *Bulkhead) Limit(p Priority) Middleware {
	return func(node graph.Node) graph.Node {
		return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
			if err := b.acquire(ctx, p); err != nil {
				return graph.NodeResult{Err: err}
			}
			defer b.release()
			return node.Run(ctx, state, rt)
		})
	}
}

// acquire admits a task: it runs immediately if a slot is free, otherwise
// it queues (rejecting if the queue is already full) and waits to be
// woken by release(), honoring the queue timeout and ctx cancellation.
func (b *Bulkhead) acquire(ctx context.Context, p Priority) error {
	b.mu.Lock()
	if b.active < b.maxConcurrent {
		b.active++
		b.mu.Unlock()
		return nil
	}
	if b.maxQueue > 0 && len(b.pq) >= b.maxQueue {
		b.mu.Unlock()
		return ErrQueueFull
	}
	b.seq++
	item := &queueItem{priority: p, seq: b.seq, ready: make(chan struct{})}
	heap.Push(&b.pq, item)
	b.mu.Unlock()

	var timeoutCh <-chan time.Time
	if b.queueTimeout > 0 {
		timer := time.NewTimer(b.queueTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-item.ready:
		return nil
	case <-ctx.Done():
		b.dequeueIfStillWaiting(item)
		return &graph.CancellationError{Cause: ctx.Err()}
	case <-timeoutCh:
		b.dequeueIfStillWaiting(item)
		return ErrQueueTimeout
	}
}

// dequeueIfStillWaiting removes item from the queue unless it has already
// been popped and granted a slot by release() (in which case item.ready
// is closed and the race is harmless: the active count already reflects
// the grant).
func (b *Bulkhead) dequeueIfStillWaiting(item *queueItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-item.ready:
		// Already granted; release() already incremented active and will
		// be balanced by this call's eventual release() — but since the
		// caller is abandoning the slot (timeout/cancel raced the grant),
		// give it back immediately.
		b.active--
		b.wakeNextLocked()
	default:
		b.pq.remove(item)
	}
}

func (b *Bulkhead) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active--
	b.wakeNextLocked()
}

// wakeNextLocked grants a free slot to the highest-priority waiter, if
// any. Caller must hold b.mu.
func (b *Bulkhead) wakeNextLocked() {
	if b.active >= b.maxConcurrent || len(b.pq) == 0 {
		return
	}
	item := heap.Pop(&b.pq).(*queueItem)
	b.active++
	close(item.ready)
}

// queueItem and priorityQueue implement container/heap to give
// higher-priority tasks precedence and FIFO order within equal priority
// (spec.md 4.3).
type queueItem struct {
	priority Priority
	seq      int64
	index    int
	ready    chan struct{}
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority // higher priority first
	}
	return pq[i].seq < pq[j].seq // FIFO within equal priority
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}
func (pq *priorityQueue) remove(item *queueItem) {
	if item.index < 0 || item.index >= len(*pq) || (*pq)[item.index] != item {
		return
	}
	heap.Remove(pq, item.index)
}
