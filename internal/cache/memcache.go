package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/mapcache-go/mapcache/internal/apperr"
	"github.com/mapcache-go/mapcache/internal/pool"
)

// Memcache is a Cache backend over github.com/bradfitz/gomemcache/memcache,
// pooled the same way every networked backend in this package is: a
// pool.Pool[*memcache.Client] supplies one client per call under WithRetry,
// per spec.md §4.1's "reconnect and retry up to 3 times" requirement.
type Memcache struct {
	CacheName string
	Pool      *pool.Pool[*memcache.Client]
	Logger    *slog.Logger
	Expire    time.Duration
}

// NewMemcache dials servers through a connection pool. Each pooled "client"
// is a *memcache.Client bound to the same server list; pooling it still
// matters because spec.md's retry/reconnect contract is uniform across
// backends, and because a fresh client re-resolves server health. reg may be
// nil (unshared pool); when non-nil and its Sharing flag is set, every cache
// naming the same server list shares one pool, per spec.md §6
// ConnectionPoolSharing.
func NewMemcache(name string, servers []string, cfg pool.Config, expire time.Duration, reg *pool.Registry, logger *slog.Logger) *Memcache {
	if logger == nil {
		logger = slog.Default()
	}
	key := "memcache:" + strings.Join(servers, ",")
	p := pool.Shared[*memcache.Client](reg, key, func() *pool.Pool[*memcache.Client] {
		return pool.New[*memcache.Client](cfg,
			func(ctx context.Context) (*memcache.Client, error) {
				return memcache.New(servers...), nil
			},
			func(*memcache.Client) {},
		)
	})
	return &Memcache{CacheName: name, Pool: p, Logger: logger, Expire: expire}
}

func (m *Memcache) Name() string { return m.CacheName }

func (m *Memcache) Get(ctx context.Context, tile *Tile) (Result, error) {
	pc, err := m.Pool.Acquire(ctx)
	if err != nil {
		return Failure, apperr.BackendFatal(err, "memcache cache %q: acquire", m.CacheName)
	}
	defer pc.Release()

	var item *memcache.Item
	opErr := WithRetry(ctx, m.Logger, "memcache:"+m.CacheName, pc, m.reconnect, func(conn *memcache.Client) error {
		it, err := conn.Get(tile.Key())
		if errors.Is(err, memcache.ErrCacheMiss) {
			item = nil
			return nil
		}
		if err != nil {
			return err
		}
		item = it
		return nil
	})
	if opErr != nil {
		return Failure, opErr
	}
	if item == nil {
		return Miss, nil
	}
	tile.EncodedData = item.Value
	tile.MTime = time.Now().UTC()
	return Success, nil
}

func (m *Memcache) Set(ctx context.Context, tile *Tile) error {
	if tile.EncodedData == nil {
		return apperr.New(apperr.KindInternal, 500, "memcache cache %q: tile has no encoded data", m.CacheName)
	}
	pc, err := m.Pool.Acquire(ctx)
	if err != nil {
		return apperr.BackendFatal(err, "memcache cache %q: acquire", m.CacheName)
	}
	defer pc.Release()

	return WithRetry(ctx, m.Logger, "memcache:"+m.CacheName, pc, m.reconnect, func(conn *memcache.Client) error {
		return conn.Set(&memcache.Item{
			Key:        tile.Key(),
			Value:      tile.EncodedData,
			Expiration: int32(m.Expire.Seconds()),
		})
	})
}

func (m *Memcache) Exists(ctx context.Context, tile *Tile) (bool, error) {
	pc, err := m.Pool.Acquire(ctx)
	if err != nil {
		return false, apperr.BackendFatal(err, "memcache cache %q: acquire", m.CacheName)
	}
	defer pc.Release()

	found := false
	opErr := WithRetry(ctx, m.Logger, "memcache:"+m.CacheName, pc, m.reconnect, func(conn *memcache.Client) error {
		_, err := conn.Get(tile.Key())
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, opErr
}

func (m *Memcache) Delete(ctx context.Context, tile *Tile) error {
	pc, err := m.Pool.Acquire(ctx)
	if err != nil {
		return apperr.BackendFatal(err, "memcache cache %q: acquire", m.CacheName)
	}
	defer pc.Release()

	return WithRetry(ctx, m.Logger, "memcache:"+m.CacheName, pc, m.reconnect, func(conn *memcache.Client) error {
		err := conn.Delete(tile.Key())
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil
		}
		return err
	})
}

func (m *Memcache) MultiSet(ctx context.Context, tiles []*Tile) error {
	return DefaultMultiSet(ctx, m, tiles)
}

func (m *Memcache) reconnect(ctx context.Context, old *memcache.Client) (*memcache.Client, error) {
	return old, nil
}
