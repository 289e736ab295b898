// Package resource implements the execution runtime's resource layer
// (spec.md 4.6): a bounded connection pool, a batch processor, and a
// streaming query executor, all specified as generic capability-typed
// wrappers around opaque, possibly-failing, possibly-slow callables
// (spec.md 1's "external collaborators").
package resource

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
)

// ErrPoolDrained is returned by Acquire once the pool has begun draining
// (spec.md 4.6: "drain (refuse new acquires; await in-flight release)").
var ErrPoolDrained = &graph.PolicyError{Reason: "pool_drained", Message: "connection pool is draining"}

// ErrAcquireTimeout is returned when Acquire blocks past AcquireTimeout.
var ErrAcquireTimeout = &graph.PolicyError{Reason: "acquire_timeout", Message: "connection pool acquire timed out"}

// ErrDoubleRelease is returned when a connection is released more than
// once (spec.md 5: "double-release must be detected and rejected").
var ErrDoubleRelease = errors.New("resource: connection released twice")

// Factory creates a new pool connection of type T.
type Factory[T any] func(ctx context.Context) (T, error)

// Destroyer cleans up a connection being evicted from the pool.
type Destroyer[T any] func(conn T)

// HealthCheck probes a live connection; a non-nil error marks it unhealthy.
type HealthCheck[T any] func(ctx context.Context, conn T) error

// PoolConfig configures a ConnectionPool (spec.md 6: "ConnectionPoolConfig
// {min, max, acquire_timeout_ms, idle_timeout_ms, eviction_interval_ms,
// health_check: {enabled, interval_ms, probe}}").
type PoolConfig struct {
	Min                 int           `validate:"gte=0"`
	Max                 int           `validate:"gtefield=Min,gt=0"`
	AcquireTimeout      time.Duration `validate:"gte=0"`
	IdleTimeout         time.Duration `validate:"gte=0"`
	EvictionInterval    time.Duration `validate:"gte=0"`
	HealthCheckEnabled  bool
	HealthCheckInterval time.Duration `validate:"gte=0"`
	// RateLimit, if non-zero, additionally throttles acquire throughput
	// (requests/sec) independent of pool size — a supplemented feature
	// layered over the spec's bounded-pool semantics (SPEC_FULL.md
	// SUPPLEMENTED FEATURES / DOMAIN STACK: golang.org/x/time/rate).
	RateLimit  float64
	RateBurst  int
}

// PoolMetrics is a snapshot of pool counters (spec.md 4.6: "Exposes
// metrics: size, available, acquired, created, destroyed,
// health-pass/fail").
type PoolMetrics struct {
	Size            int
	Available       int
	Acquired        int
	Created         int64
	Destroyed       int64
	HealthPasses    int64
	HealthFailures  int64
}

type pooledConn[T any] struct {
	conn       T
	idleSince  time.Time
	released   bool
}

// ConnectionPool is a bounded [min, max] pool of opaque connections,
// exclusively owned by the acquirer for the duration between Acquire and
// Release (spec.md 3, 4.6).
type ConnectionPool[T any] struct {
	cfg       PoolConfig
	factory   Factory[T]
	destroy   Destroyer[T]
	probe     HealthCheck[T]
	limiter   rateWaiter

	mu        sync.Mutex
	idle      *list.List // of *pooledConn[T]
	numLive   int        // idle + acquired
	acquired  int
	draining  bool
	drainDone chan struct{}
	waiters   *list.List // of chan struct{} — woken on release/destroy

	metrics PoolMetrics

	stopEvict chan struct{}
	stopHC    chan struct{}
	wg        sync.WaitGroup
}

// rateWaiter is the subset of *rate.Limiter's API the pool needs, kept as
// an interface so NewConnectionPool can stay dependency-free when
// cfg.RateLimit is zero.
type rateWaiter interface {
	Wait(ctx context.Context) error
}

// NewConnectionPool constructs a pool, eagerly creating cfg.Min
// connections and starting its idle-eviction and health-check background
// tasks.
func NewConnectionPool[T any](ctx context.Context, cfg PoolConfig, factory Factory[T], destroy Destroyer[T], probe HealthCheck[T]) (*ConnectionPool[T], error) {
	if cfg.Max < 1 {
		cfg.Max = 1
	}
	if err := ValidatePoolConfig(cfg); err != nil {
		return nil, err
	}
	p := &ConnectionPool[T]{
		cfg:       cfg,
		factory:   factory,
		destroy:   destroy,
		probe:     probe,
		idle:      list.New(),
		waiters:   list.New(),
		stopEvict: make(chan struct{}),
		stopHC:    make(chan struct{}),
	}
	if cfg.RateLimit > 0 {
		p.limiter = newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	for i := 0; i < cfg.Min; i++ {
		conn, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		p.metrics.Created++
		p.numLive++
		p.idle.PushBack(&pooledConn[T]{conn: conn, idleSince: time.Now()})
	}
	if cfg.EvictionInterval > 0 {
		p.wg.Add(1)
		go p.evictLoop()
	}
	if cfg.HealthCheckEnabled && probe != nil && cfg.HealthCheckInterval > 0 {
		p.wg.Add(1)
		go p.healthLoop()
	}
	return p, nil
}

// Acquired is a connection handle checked out of the pool. Release must be
// called exactly once.
type Acquired[T any] struct {
	pool *ConnectionPool[T]
	pc   *pooledConn[T]
}

// Conn returns the underlying connection.
func (a *Acquired[T]) Conn() T { return a.pc.conn }

// Release returns the connection to the pool. A second call returns
// ErrDoubleRelease without effect.
func (a *Acquired[T]) Release() error {
	return a.pool.release(a.pc)
}

// Acquire blocks until a connection is available, cfg.AcquireTimeout
// elapses (ErrAcquireTimeout), ctx is cancelled, or the pool is draining
// (ErrPoolDrained).
func (p *ConnectionPool[T]) Acquire(ctx context.Context) (*Acquired[T], error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	deadline := ctx
	var cancel context.CancelFunc
	if p.cfg.AcquireTimeout > 0 {
		deadline, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	for {
		p.mu.Lock()
		if p.draining {
			p.mu.Unlock()
			return nil, ErrPoolDrained
		}
		if pc := p.takeIdleLocked(); pc != nil {
			pc.released = false
			p.acquired++
			p.mu.Unlock()
			return &Acquired[T]{pool: p, pc: pc}, nil
		}
		if p.numLive < p.cfg.Max {
			p.numLive++
			p.mu.Unlock()
			conn, err := p.factory(deadline)
			if err != nil {
				p.mu.Lock()
				p.numLive--
				p.mu.Unlock()
				return nil, err
			}
			p.mu.Lock()
			p.metrics.Created++
			p.acquired++
			p.mu.Unlock()
			return &Acquired[T]{pool: p, pc: &pooledConn[T]{conn: conn}}, nil
		}
		ch := make(chan struct{})
		elem := p.waiters.PushBack(ch)
		p.mu.Unlock()

		select {
		case <-ch:
		case <-deadline.Done():
			p.mu.Lock()
			p.waiters.Remove(elem)
			p.mu.Unlock()
			if ctx.Err() != nil {
				return nil, &graph.CancellationError{Cause: ctx.Err()}
			}
			return nil, ErrAcquireTimeout
		}
	}
}

// takeIdleLocked pops the front idle connection, if any. Caller holds mu.
func (p *ConnectionPool[T]) takeIdleLocked() *pooledConn[T] {
	front := p.idle.Front()
	if front == nil {
		return nil
	}
	p.idle.Remove(front)
	return front.Value.(*pooledConn[T])
}

func (p *ConnectionPool[T]) release(pc *pooledConn[T]) error {
	p.mu.Lock()
	if pc.released {
		p.mu.Unlock()
		return ErrDoubleRelease
	}
	pc.released = true
	pc.idleSince = time.Now()
	p.acquired--
	p.idle.PushBack(pc)
	p.wakeOneLocked()
	p.mu.Unlock()
	return nil
}

func (p *ConnectionPool[T]) wakeOneLocked() {
	front := p.waiters.Front()
	if front == nil {
		return
	}
	p.waiters.Remove(front)
	close(front.Value.(chan struct{}))
}

// Drain refuses new acquires and blocks until all in-flight connections
// have been released, then destroys every idle connection.
func (p *ConnectionPool[T]) Drain(ctx context.Context) error {
	p.mu.Lock()
	p.draining = true
	for {
		if p.acquired == 0 {
			break
		}
		p.mu.Unlock()
		select {
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
		p.mu.Lock()
	}
	p.mu.Unlock()
	return p.Clear()
}

// Clear destroys every idle connection immediately.
func (p *ConnectionPool[T]) Clear() error {
	p.mu.Lock()
	var toDestroy []T
	for e := p.idle.Front(); e != nil; e = e.Next() {
		toDestroy = append(toDestroy, e.Value.(*pooledConn[T]).conn)
	}
	p.idle.Init()
	p.numLive -= len(toDestroy)
	p.metrics.Destroyed += int64(len(toDestroy))
	p.mu.Unlock()
	if p.destroy != nil {
		for _, c := range toDestroy {
			p.destroy(c)
		}
	}
	close(p.stopEvict)
	close(p.stopHC)
	p.wg.Wait()
	return nil
}

// Metrics returns a snapshot of pool counters.
func (p *ConnectionPool[T]) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.metrics
	m.Size = p.numLive
	m.Available = p.idle.Len()
	m.Acquired = p.acquired
	return m
}

// Managed acquires a connection, invokes fn, and guarantees Release on
// every exit path (spec.md 4.6: "A managed API wraps user code with
// guaranteed release on all exit paths").
func (p *ConnectionPool[T]) Managed(ctx context.Context, fn func(conn T) error) error {
	acq, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer acq.Release()
	return fn(acq.Conn())
}

func (p *ConnectionPool[T]) evictLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.EvictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.stopEvict:
			return
		}
	}
}

func (p *ConnectionPool[T]) evictIdle() {
	if p.cfg.IdleTimeout <= 0 {
		return
	}
	p.mu.Lock()
	var dead []T
	var next *list.Element
	for e := p.idle.Front(); e != nil; e = next {
		next = e.Next()
		pc := e.Value.(*pooledConn[T])
		if p.numLive <= p.cfg.Min {
			break
		}
		if time.Since(pc.idleSince) >= p.cfg.IdleTimeout {
			p.idle.Remove(e)
			p.numLive--
			dead = append(dead, pc.conn)
		}
	}
	p.metrics.Destroyed += int64(len(dead))
	p.mu.Unlock()
	if p.destroy != nil {
		for _, c := range dead {
			p.destroy(c)
		}
	}
}

func (p *ConnectionPool[T]) healthLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.runHealthChecks()
		case <-p.stopHC:
			return
		}
	}
}

// runHealthChecks probes every currently-idle connection, destroying and
// replacing unhealthy ones up to cfg.Min (spec.md 4.6).
func (p *ConnectionPool[T]) runHealthChecks() {
	p.mu.Lock()
	var toCheck []*pooledConn[T]
	for e := p.idle.Front(); e != nil; e = e.Next() {
		toCheck = append(toCheck, e.Value.(*pooledConn[T]))
	}
	p.mu.Unlock()

	ctx := context.Background()
	for _, pc := range toCheck {
		err := p.probe(ctx, pc.conn)
		p.mu.Lock()
		if err != nil {
			p.metrics.HealthFailures++
			p.removeIdleLocked(pc)
			p.numLive--
		} else {
			p.metrics.HealthPasses++
		}
		p.mu.Unlock()
		if err != nil && p.destroy != nil {
			p.destroy(pc.conn)
		}
	}

	p.mu.Lock()
	deficit := p.cfg.Min - p.numLive
	p.mu.Unlock()
	for i := 0; i < deficit; i++ {
		conn, err := p.factory(ctx)
		if err != nil {
			return
		}
		p.mu.Lock()
		p.metrics.Created++
		p.numLive++
		p.idle.PushBack(&pooledConn[T]{conn: conn, idleSince: time.Now()})
		p.mu.Unlock()
	}
}

func (p *ConnectionPool[T]) removeIdleLocked(target *pooledConn[T]) {
	for e := p.idle.Front(); e != nil; e = e.Next() {
		if e.Value.(*pooledConn[T]) == target {
			p.idle.Remove(e)
			return
		}
	}
}
