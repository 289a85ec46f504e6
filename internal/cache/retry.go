package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/mapcache-go/mapcache/internal/apperr"
	"github.com/mapcache-go/mapcache/internal/pool"
)

// MaxRetries is the per-call retry budget spec.md §4.1 prescribes for
// networked backends (memcache/redis/riak): "reconnect ... and retry up to
// 3 times, with a warning log per attempt."
const MaxRetries = 3

// WithRetry runs op up to MaxRetries times. On each transport failure it
// logs a warning and, if reconnect is non-nil, calls it to get a fresh
// pooled connection before retrying. On final failure it invalidates pc (so
// the pool destroys it on release) and returns a BackendFatal *apperr.Error.
// On any success it leaves the connection valid for a normal Release by the
// caller.
func WithRetry[T any](ctx context.Context, logger *slog.Logger, backend string, pc *pool.Pooled[T], reconnect func(ctx context.Context, old T) (T, error), op func(conn T) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	var lastErr error
	conn := pc.Conn
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		lastErr = op(conn)
		if lastErr == nil {
			pc.Conn = conn
			return nil
		}
		logger.Warn("backend call failed, retrying", "backend", backend, "attempt", attempt, "error", lastErr)
		if attempt < MaxRetries {
			if reconnect != nil {
				if fresh, rerr := reconnect(ctx, conn); rerr == nil {
					conn = fresh
				}
			}
			time.Sleep(backoff(attempt))
		}
	}
	pc.Invalidate()
	return apperr.BackendFatal(lastErr, "%s: failed after %d attempts", backend, MaxRetries)
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * 20 * time.Millisecond
}
