// Package pool implements the connection pool described in spec.md §4.2:
// a keyed, bounded, TTL'd resource pool shared across worker goroutines for
// backend clients (memcache/redis/s3/riak connections).
//
// It is modeled on the constructor/destructor-under-exclusive-ownership
// pattern original_source/lib/cache_riak2.c builds on top of APR's
// apr_reslist, expressed with Go generics instead of a void* vtable.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Factory creates a new connection. It may return an error, in which case
// the pool slot is not populated and Acquire fails.
type Factory[T any] func(ctx context.Context) (T, error)

// Destructor releases resources held by a connection that is being retired
// (TTL expiry, invalidation, or pool shutdown).
type Destructor[T any] func(conn T)

// Config bounds a single logical pool, per spec.md §6's server-scope keys.
type Config struct {
	Min      int           // connections Warm pre-creates; Acquire does not pre-create
	SoftMax  int           // idle connections above this are TTL-reaped
	HardMax  int           // absolute ceiling; Acquire blocks beyond this
	TTL      time.Duration // max idle lifetime
	AcquireWait time.Duration // bound on how long Acquire blocks for a free slot
}

// DefaultConfig mirrors spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{Min: 1, SoftMax: 5, HardMax: 200, TTL: 60 * time.Second, AcquireWait: 30 * time.Second}
}

type idleConn[T any] struct {
	conn    T
	idleAt  time.Time
}

// Pool is a single keyed resource pool for one backend instance.
type Pool[T any] struct {
	cfg     Config
	factory Factory[T]
	destroy Destructor[T]

	mu      sync.Mutex
	idle    []idleConn[T]
	live    int // total connections either idle or checked out
	sem     chan struct{}
}

// New creates a Pool bounded by cfg. factory/destroy are invoked under the
// pool's own exclusive ownership (never concurrently for the same slot).
func New[T any](cfg Config, factory Factory[T], destroy Destructor[T]) *Pool[T] {
	if cfg.HardMax <= 0 {
		cfg.HardMax = DefaultConfig().HardMax
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.AcquireWait <= 0 {
		cfg.AcquireWait = DefaultConfig().AcquireWait
	}
	return &Pool[T]{
		cfg:     cfg,
		factory: factory,
		destroy: destroy,
		sem:     make(chan struct{}, cfg.HardMax),
	}
}

// Pooled is a checked-out connection. Callers must call exactly one of
// Release or Invalidate on every exit path.
type Pooled[T any] struct {
	Conn    T
	pool    *Pool[T]
	invalid bool
	done    bool
}

// Release returns the connection to the pool in reusable state.
func (p *Pooled[T]) Release() {
	if p.done {
		return
	}
	p.done = true
	p.pool.release(p, false)
}

// Invalidate marks the connection unreusable; it is destroyed instead of
// being returned to the idle list.
func (p *Pooled[T]) Invalidate() {
	if p.done {
		return
	}
	p.done = true
	p.pool.release(p, true)
}

// Acquire checks out a connection, blocking (bounded by cfg.AcquireWait or
// ctx's deadline, whichever is sooner) until hard_max allows a new one or an
// idle connection becomes available.
func (p *Pool[T]) Acquire(ctx context.Context) (*Pooled[T], error) {
	p.mu.Lock()
	for len(p.idle) > 0 {
		ic := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if p.cfg.TTL > 0 && time.Since(ic.idleAt) > p.cfg.TTL && len(p.idle)+1 > p.cfg.SoftMax {
			// reap: too old and we're above the soft cap
			p.live--
			p.mu.Unlock()
			p.destroy(ic.conn)
			<-p.sem
			p.mu.Lock()
			continue
		}
		p.mu.Unlock()
		return &Pooled[T]{Conn: ic.conn, pool: p}, nil
	}
	p.mu.Unlock()

	acquireCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.AcquireWait > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquireWait)
		defer cancel()
	}

	select {
	case p.sem <- struct{}{}:
	case <-acquireCtx.Done():
		return nil, fmt.Errorf("pool: acquire timed out waiting for a free slot: %w", acquireCtx.Err())
	}

	conn, err := p.factory(ctx)
	if err != nil {
		<-p.sem
		return nil, fmt.Errorf("pool: factory failed: %w", err)
	}

	p.mu.Lock()
	p.live++
	p.mu.Unlock()

	return &Pooled[T]{Conn: conn, pool: p}, nil
}

func (p *Pool[T]) release(pc *Pooled[T], invalidate bool) {
	if invalidate {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
		p.destroy(pc.Conn)
		<-p.sem
		return
	}
	p.mu.Lock()
	p.idle = append(p.idle, idleConn[T]{conn: pc.Conn, idleAt: time.Now()})
	p.mu.Unlock()
}

// Warm pre-creates cfg.Min connections, as spec.md §4.2 requires ("min:
// pre-created on first use").
func (p *Pool[T]) Warm(ctx context.Context) error {
	for i := 0; i < p.cfg.Min; i++ {
		pc, err := p.Acquire(ctx)
		if err != nil {
			return err
		}
		pc.Release()
	}
	return nil
}

// Len reports the number of live connections (idle + checked out). Useful
// for tests.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Close destroys every idle connection. The pool holds no reference to
// checked-out connections: one released after Close goes back onto the
// idle list and is not destroyed.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.live -= len(idle)
	p.mu.Unlock()
	for _, ic := range idle {
		p.destroy(ic.conn)
	}
}
