// Package lock implements the cross-process lock manager of spec.md §4.3:
// a distributed/local named mutex with acquire/release/ping, used by the
// tile request pipeline to collapse concurrent misses on the same metatile
// so only one renderer runs (at-most-once rendering).
//
// Grounded line-for-line on original_source/lib/lock.c.
package lock

import (
	"context"
	"log/slog"
	"time"
)

// State is the result of Acquire/Ping.
type State int

const (
	// Acquired means the caller now owns the lock.
	Acquired State = iota
	// Locked means someone else holds it.
	Locked
	// NoEnt means the lock is gone (never held, released, or expired).
	NoEnt
)

func (s State) String() string {
	switch s {
	case Acquired:
		return "ACQUIRED"
	case Locked:
		return "LOCKED"
	default:
		return "NOENT"
	}
}

// Lock is the opaque handle returned by Acquire and consumed by Ping and
// Release. Each locker implementation defines its own concrete shape.
type Lock interface {
	// Resource returns the original resource name the lock was taken for,
	// for logging.
	Resource() string
}

// Locker is the abstraction over named mutexes every variant (disk,
// memcache, fallback) implements.
type Locker interface {
	Acquire(ctx context.Context, resource string) (State, Lock, error)
	Ping(ctx context.Context, l Lock) (State, error)
	Release(ctx context.Context, l Lock) error
	// RetryInterval and Timeout parameterise LockOrWait (spec.md §4.3).
	RetryInterval() time.Duration
	Timeout() time.Duration
}

// LockOrWait implements the pipeline's lock_or_wait protocol: acquire; if
// locked, poll (sleep retry_interval, ping) until NOENT (return false,
// meaning a peer did the work — re-read the cache) or timeout elapses (force
// release the stale lock, return false).
//
// It returns true only when the caller itself acquired the lock and is
// responsible for rendering and releasing it.
func LockOrWait(ctx context.Context, locker Locker, resource string, logger *slog.Logger) (bool, Lock, error) {
	if logger == nil {
		logger = slog.Default()
	}
	state, l, err := locker.Acquire(ctx, resource)
	if err != nil {
		return false, nil, err
	}
	if state == Acquired {
		return true, l, nil
	}

	start := time.Now()
	for state != NoEnt {
		waited := time.Since(start)
		if waited > locker.Timeout() {
			logger.Warn("deleting a possibly stale lock after waiting on it", "resource", resource, "waited_s", waited.Seconds())
			_ = locker.Release(ctx, l)
			return false, nil, nil
		}

		select {
		case <-ctx.Done():
			return false, nil, ctx.Err()
		case <-time.After(locker.RetryInterval()):
		}

		state, err = locker.Ping(ctx, l)
		if err != nil {
			return false, nil, err
		}
	}
	return false, nil, nil
}
