// Package reqctx implements the per-request handle described in spec.md §9:
// an arena allocator, a single-slot error, a logger, and a clone operation
// for detached child work units (metatile fan-out).
package reqctx

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mapcache-go/mapcache/internal/apperr"
	"github.com/mapcache-go/mapcache/internal/pool"
)

// Arena is a tiny bump allocator for request-scoped strings and byte
// buffers. Real allocation still goes through the Go heap — the value this
// type adds is grouping request-scoped garbage so it can be dropped (and,
// in the common case, pooled and reused) in one motion when the request
// completes, the way the C original's apr_pool_t is used.
type Arena struct {
	mu      sync.Mutex
	buffers [][]byte
}

// Alloc returns a zeroed byte slice of length n owned by the arena.
func (a *Arena) Alloc(n int) []byte {
	b := make([]byte, n)
	a.mu.Lock()
	a.buffers = append(a.buffers, b)
	a.mu.Unlock()
	return b
}

// Reset drops every buffer owned by the arena, making it available for
// reuse on the next request.
func (a *Arena) Reset() {
	a.mu.Lock()
	a.buffers = a.buffers[:0]
	a.mu.Unlock()
}

var arenaPool = sync.Pool{New: func() any { return &Arena{} }}

// AcquireArena fetches a pooled Arena; call Release when the request ends.
func AcquireArena() *Arena { return arenaPool.Get().(*Arena) }

// Context is the per-request handle threaded through every core subsystem.
// It is not safe for concurrent use by multiple goroutines except via
// Clone, which is the supported way to hand request-scoped state to a
// background-style work unit (metatile re-render workers).
type Context struct {
	Std       context.Context
	Arena     *Arena
	Logger    *slog.Logger
	Pools     *pool.Registry
	RequestID string

	mu  sync.Mutex
	err *apperr.Error
}

// New creates a root Context for an incoming request. RequestID is a fresh
// UUID, threaded into Logger so every log line the request produces can be
// correlated across the cache/lock/metatile subsystems it passes through.
func New(std context.Context, logger *slog.Logger, pools *pool.Registry) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Context{
		Std:       std,
		Arena:     AcquireArena(),
		Logger:    logger.With("request_id", id),
		Pools:     pools,
		RequestID: id,
	}
}

// Release returns the context's arena to the pool. Call once, when the
// request is fully done (after the response has been written).
func (c *Context) Release() {
	if c.Arena != nil {
		c.Arena.Reset()
		arenaPool.Put(c.Arena)
		c.Arena = nil
	}
}

// Clone produces a detached child Context that shares the pool registry but
// gets its own arena, error slot, request ID, and a std context derived
// from the parent (so cancellation still propagates, but the child can
// outlive the parent's deadline if constructed with context.Background()
// by the caller first). The child's logger carries the new request ID
// alongside a "parent_request_id" field so a worker's log lines can still
// be traced back to the request that spawned it.
func (c *Context) Clone() *Context {
	id := uuid.New().String()
	return &Context{
		Std:       c.Std,
		Arena:     AcquireArena(),
		Logger:    c.Logger.With("request_id", id, "parent_request_id", c.RequestID),
		Pools:     c.Pools,
		RequestID: id,
	}
}

// SetError records err on the context's single error slot, overwriting
// whatever was there before.
func (c *Context) SetError(err *apperr.Error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// ClearError empties the error slot. Used by back-fill, fan-out delete, and
// the fallback locker, all of which must not let a handled sub-failure leak
// into the caller's view of the request.
func (c *Context) ClearError() {
	c.mu.Lock()
	c.err = nil
	c.mu.Unlock()
}

// HasError reports whether the error slot is currently set.
func (c *Context) HasError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err != nil
}

// Error returns the current error slot value, or nil.
func (c *Context) Error() *apperr.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
