package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mapcache-go/mapcache/internal/apperr"
	"github.com/mapcache-go/mapcache/internal/pool"
)

// Redis is a Cache backend over github.com/redis/go-redis/v9, pooled the
// same way as the other networked backends even though redis.Client already
// pools connections internally: the outer pool.Pool here governs how many
// *redis.Client handles this process keeps warm, one per (host, db) pair a
// tileset's config might name, per spec.md §4.2's per-backend pool scoping.
type Redis struct {
	CacheName string
	Pool      *pool.Pool[*redis.Client]
	Logger    *slog.Logger
	Expire    time.Duration
}

// reg may be nil (unshared pool); when non-nil and its Sharing flag is set,
// every cache naming the same (addr, db) pair shares one pool, per spec.md
// §6 ConnectionPoolSharing.
func NewRedis(name, addr string, db int, cfg pool.Config, expire time.Duration, reg *pool.Registry, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	key := fmt.Sprintf("redis:%s/%d", addr, db)
	p := pool.Shared[*redis.Client](reg, key, func() *pool.Pool[*redis.Client] {
		return pool.New[*redis.Client](cfg,
			func(ctx context.Context) (*redis.Client, error) {
				client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
				if err := client.Ping(ctx).Err(); err != nil {
					client.Close()
					return nil, err
				}
				return client, nil
			},
			func(c *redis.Client) { c.Close() },
		)
	})
	return &Redis{CacheName: name, Pool: p, Logger: logger, Expire: expire}
}

func (r *Redis) Name() string { return r.CacheName }

func (r *Redis) Get(ctx context.Context, tile *Tile) (Result, error) {
	pc, err := r.Pool.Acquire(ctx)
	if err != nil {
		return Failure, apperr.BackendFatal(err, "redis cache %q: acquire", r.CacheName)
	}
	defer pc.Release()

	var data []byte
	miss := false
	opErr := WithRetry(ctx, r.Logger, "redis:"+r.CacheName, pc, r.reconnect, func(conn *redis.Client) error {
		b, err := conn.Get(ctx, tile.Key()).Bytes()
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if opErr != nil {
		return Failure, opErr
	}
	if miss {
		return Miss, nil
	}
	tile.EncodedData = data
	tile.MTime = time.Now().UTC()
	return Success, nil
}

func (r *Redis) Set(ctx context.Context, tile *Tile) error {
	if tile.EncodedData == nil {
		return apperr.New(apperr.KindInternal, 500, "redis cache %q: tile has no encoded data", r.CacheName)
	}
	pc, err := r.Pool.Acquire(ctx)
	if err != nil {
		return apperr.BackendFatal(err, "redis cache %q: acquire", r.CacheName)
	}
	defer pc.Release()

	return WithRetry(ctx, r.Logger, "redis:"+r.CacheName, pc, r.reconnect, func(conn *redis.Client) error {
		return conn.Set(ctx, tile.Key(), tile.EncodedData, r.Expire).Err()
	})
}

func (r *Redis) Exists(ctx context.Context, tile *Tile) (bool, error) {
	pc, err := r.Pool.Acquire(ctx)
	if err != nil {
		return false, apperr.BackendFatal(err, "redis cache %q: acquire", r.CacheName)
	}
	defer pc.Release()

	var n int64
	opErr := WithRetry(ctx, r.Logger, "redis:"+r.CacheName, pc, r.reconnect, func(conn *redis.Client) error {
		v, err := conn.Exists(ctx, tile.Key()).Result()
		if err != nil {
			return err
		}
		n = v
		return nil
	})
	return n > 0, opErr
}

func (r *Redis) Delete(ctx context.Context, tile *Tile) error {
	pc, err := r.Pool.Acquire(ctx)
	if err != nil {
		return apperr.BackendFatal(err, "redis cache %q: acquire", r.CacheName)
	}
	defer pc.Release()

	return WithRetry(ctx, r.Logger, "redis:"+r.CacheName, pc, r.reconnect, func(conn *redis.Client) error {
		return conn.Del(ctx, tile.Key()).Err()
	})
}

func (r *Redis) MultiSet(ctx context.Context, tiles []*Tile) error {
	if len(tiles) == 0 {
		return nil
	}
	pc, err := r.Pool.Acquire(ctx)
	if err != nil {
		return apperr.BackendFatal(err, "redis cache %q: acquire", r.CacheName)
	}
	defer pc.Release()

	return WithRetry(ctx, r.Logger, "redis:"+r.CacheName, pc, r.reconnect, func(conn *redis.Client) error {
		pipe := conn.Pipeline()
		for _, t := range tiles {
			if t.EncodedData == nil {
				return apperr.New(apperr.KindInternal, 500, "redis cache %q: tile %s has no encoded data", r.CacheName, t.Key())
			}
			pipe.Set(ctx, t.Key(), t.EncodedData, r.Expire)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (r *Redis) reconnect(ctx context.Context, old *redis.Client) (*redis.Client, error) {
	if err := old.Ping(ctx).Err(); err == nil {
		return old, nil
	}
	old.Close()
	return nil, errors.New("redis cache: reconnect not supported mid-retry, relying on client's own pool")
}
