package resource

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// ErrProcessorClosed is returned by Submit once Close has been called.
var ErrProcessorClosed = errorString("resource: batch processor closed")

type errorString string

func (e errorString) Error() string { return string(e) }

// BatchFunc processes a full batch of items and returns one result per
// item, in the same order, or an error for the whole batch.
type BatchFunc[I, R any] func(ctx context.Context, items []I) ([]R, error)

// BatchHooks are optional side-effect-only observation points (spec.md
// 4.6: "Hooks: batch-start, batch-complete, batch-error, item-error").
type BatchHooks[I, R any] struct {
	OnBatchStart    func(size int)
	OnBatchComplete func(size int, elapsed time.Duration)
	OnBatchError    func(items []I, err error)
	// OnItemError supplies a replacement result for one item when the
	// whole-batch call fails but per-item fallback is configured; if nil,
	// every item in a failed batch receives err.
	OnItemError func(item I, err error) (R, bool)
}

type batchItem[I, R any] struct {
	value I
	resCh chan batchResult[R]
}

type batchResult[R any] struct {
	val R
	err error
}

// BatchProcessor accumulates items from concurrent callers and flushes
// them as a single BatchFunc call either when MaxBatchSize is reached or
// MaxWaitTime elapses since the first item in the pending batch — the
// same accumulate-then-flush shape as the teacher's scanner batcher
// (dshills-langgraph-go's CreateBatches), generalized here from a
// synchronous one-shot split into a promise-per-item async accumulator
// per spec.md 4.6.
type BatchProcessor[I, R any] struct {
	maxSize int
	maxWait time.Duration
	fn      BatchFunc[I, R]
	hooks   BatchHooks[I, R]

	mu      sync.Mutex
	pending []*batchItem[I, R]
	timer   *time.Timer
	closed  bool

	// pool dispatches concurrently-flushed batches (e.g. a size-triggered
	// flush racing a timer-triggered one) without spawning unbounded raw
	// goroutines, the same worker-dispatch idiom the pack uses for
	// concurrent document loading (uzukizheng-trpc-agent-go/knowledge/
	// default.go's ants.Submit calls; SPEC_FULL.md DOMAIN STACK).
	pool *ants.Pool
}

// NewBatchProcessor constructs a processor. maxSize values below 1 are
// raised to 1. Concurrently-processing batches are bounded by a dedicated
// *ants.Pool of 8 workers per processor.
func NewBatchProcessor[I, R any](maxSize int, maxWait time.Duration, fn BatchFunc[I, R], hooks BatchHooks[I, R]) *BatchProcessor[I, R] {
	return newBatchProcessor(maxSize, maxWait, fn, hooks, 8)
}

func newBatchProcessor[I, R any](maxSize int, maxWait time.Duration, fn BatchFunc[I, R], hooks BatchHooks[I, R], maxInFlight int) *BatchProcessor[I, R] {
	if maxSize < 1 {
		maxSize = 1
	}
	pool, _ := ants.NewPool(maxInFlight, ants.WithNonblocking(false))
	return &BatchProcessor[I, R]{maxSize: maxSize, maxWait: maxWait, fn: fn, hooks: hooks, pool: pool}
}

// Submit enqueues item and blocks until its batch has been processed,
// returning its individual result.
func (b *BatchProcessor[I, R]) Submit(ctx context.Context, item I) (R, error) {
	it := &batchItem[I, R]{value: item, resCh: make(chan batchResult[R], 1)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		var zero R
		return zero, ErrProcessorClosed
	}
	b.pending = append(b.pending, it)
	flush := len(b.pending) >= b.maxSize
	if !flush && b.timer == nil && b.maxWait > 0 {
		b.timer = time.AfterFunc(b.maxWait, b.flushTimer)
	}
	var toFlush []*batchItem[I, R]
	if flush {
		toFlush = b.takePendingLocked()
	}
	b.mu.Unlock()

	if toFlush != nil {
		b.dispatch(toFlush)
	}

	select {
	case r := <-it.resCh:
		return r.val, r.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func (b *BatchProcessor[I, R]) flushTimer() {
	b.mu.Lock()
	items := b.takePendingLocked()
	b.mu.Unlock()
	if items != nil {
		b.dispatch(items)
	}
}

// Flush immediately processes whatever is currently pending, regardless
// of size or elapsed wait (spec.md 4.6: "Manual flush() forces immediate
// processing").
func (b *BatchProcessor[I, R]) Flush() {
	b.mu.Lock()
	items := b.takePendingLocked()
	b.mu.Unlock()
	if items != nil {
		b.dispatch(items)
	}
}

// dispatch submits a flushed batch to the bounded worker pool so that a
// burst of concurrently-triggered flushes (size trigger racing the wait
// timer across goroutines) cannot spawn unbounded goroutines. Falls back
// to a direct synchronous call if the pool failed to initialize or is
// closed.
func (b *BatchProcessor[I, R]) dispatch(items []*batchItem[I, R]) {
	if b.pool == nil {
		b.process(context.Background(), items)
		return
	}
	err := b.pool.Submit(func() { b.process(context.Background(), items) })
	if err != nil {
		b.process(context.Background(), items)
	}
}

// takePendingLocked detaches and returns the current pending slice,
// stopping any armed wait timer. Caller holds b.mu.
func (b *BatchProcessor[I, R]) takePendingLocked() []*batchItem[I, R] {
	if len(b.pending) == 0 {
		return nil
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	items := b.pending
	b.pending = nil
	return items
}

func (b *BatchProcessor[I, R]) process(ctx context.Context, items []*batchItem[I, R]) {
	if b.hooks.OnBatchStart != nil {
		b.hooks.OnBatchStart(len(items))
	}
	start := time.Now()

	values := make([]I, len(items))
	for i, it := range items {
		values[i] = it.value
	}

	results, err := b.fn(ctx, values)
	if err != nil {
		if b.hooks.OnBatchError != nil {
			b.hooks.OnBatchError(values, err)
		}
		for _, it := range items {
			var zero R
			if b.hooks.OnItemError != nil {
				if r, ok := b.hooks.OnItemError(it.value, err); ok {
					it.resCh <- batchResult[R]{val: r}
					continue
				}
			}
			it.resCh <- batchResult[R]{val: zero, err: err}
		}
		return
	}

	for i, it := range items {
		if i < len(results) {
			it.resCh <- batchResult[R]{val: results[i]}
		} else {
			var zero R
			it.resCh <- batchResult[R]{val: zero}
		}
	}

	if b.hooks.OnBatchComplete != nil {
		b.hooks.OnBatchComplete(len(items), time.Since(start))
	}
}

// Close flushes any pending items and releases the worker pool. After
// Close, Submit returns ErrProcessorClosed.
func (b *BatchProcessor[I, R]) Close() {
	b.mu.Lock()
	b.closed = true
	items := b.takePendingLocked()
	b.mu.Unlock()
	if items != nil {
		b.process(context.Background(), items)
	}
	if b.pool != nil {
		b.pool.Release()
	}
}
