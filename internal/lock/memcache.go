package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheLock is the Lock handle returned by MemcacheLocker.
type MemcacheLock struct {
	resource string
	key      string
}

func (l *MemcacheLock) Resource() string { return l.resource }

// MemcacheLocker implements a locker on top of memcache's atomic Add,
// exactly as spec.md §4.3 describes: Acquire = add (fails if key exists)
// with value "1" and expiry = timeout seconds; Release = delete; Ping =
// get, not-found => NOENT. Staleness is bounded naturally by the memcache
// expiry.
type MemcacheLocker struct {
	client       *memcache.Client
	KeyPrefix    string
	RetrySeconds time.Duration
	TimeoutSecs  time.Duration
}

// NewMemcacheLocker dials the given memcache servers.
func NewMemcacheLocker(servers []string, keyPrefix string, retry, timeout time.Duration) *MemcacheLocker {
	if retry <= 0 {
		retry = time.Second
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &MemcacheLocker{
		client:       memcache.New(servers...),
		KeyPrefix:    keyPrefix,
		RetrySeconds: retry,
		TimeoutSecs:  timeout,
	}
}

func (m *MemcacheLocker) key(resource string) string {
	return m.KeyPrefix + sanitizeResource(resource)
}

func (m *MemcacheLocker) Acquire(ctx context.Context, resource string) (State, Lock, error) {
	key := m.key(resource)
	l := &MemcacheLock{resource: resource, key: key}

	err := m.client.Add(&memcache.Item{
		Key:        key,
		Value:      []byte("1"),
		Expiration: int32(m.TimeoutSecs.Seconds()),
	})
	if err == nil {
		return Acquired, l, nil
	}
	if errors.Is(err, memcache.ErrNotStored) {
		return Locked, l, nil
	}
	return NoEnt, nil, fmt.Errorf("memcache locker: add %s: %w", key, err)
}

func (m *MemcacheLocker) Ping(ctx context.Context, l Lock) (State, error) {
	ml, ok := l.(*MemcacheLock)
	if !ok {
		return NoEnt, fmt.Errorf("memcache locker: ping on foreign lock")
	}
	_, err := m.client.Get(ml.key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return NoEnt, nil
	}
	if err != nil {
		return NoEnt, err
	}
	return Locked, nil
}

func (m *MemcacheLocker) Release(ctx context.Context, l Lock) error {
	ml, ok := l.(*MemcacheLock)
	if !ok {
		return fmt.Errorf("memcache locker: release on foreign lock")
	}
	err := m.client.Delete(ml.key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (m *MemcacheLocker) RetryInterval() time.Duration { return m.RetrySeconds }
func (m *MemcacheLocker) Timeout() time.Duration       { return m.TimeoutSecs }
