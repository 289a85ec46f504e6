package pool

import (
	"fmt"
	"sync"
)

// Registry maps a backend identity key to its Pool, implementing the
// ConnectionPoolSharing behaviour from spec.md §6: when sharing is enabled,
// every cache that asks Shared for the same key (same servers, address or
// base URL) receives the same *Pool handle instead of creating its own.
type Registry struct {
	Sharing bool

	mu    sync.Mutex
	pools map[string]any
}

// NewRegistry creates an empty pool registry.
func NewRegistry(sharing bool) *Registry {
	return &Registry{Sharing: sharing, pools: make(map[string]any)}
}

// GetOrCreate returns the shared pool for key, creating it with newPool if
// this is the first request for that key (or if sharing is disabled, in
// which case each call with a distinct caller-supplied key gets its own
// pool — callers that want per-alias isolation should key by alias+backend
// instead of by backend name alone).
func GetOrCreate[T any](r *Registry, key string, newPool func() *Pool[T]) *Pool[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.pools[key]; ok {
		return v.(*Pool[T])
	}
	p := newPool()
	r.pools[key] = p
	return p
}

// Shared returns the pool registered for key if r is non-nil and sharing is
// enabled, creating it via newPool on first use; otherwise it always builds
// a fresh, unshared pool. This is the single call site every networked cache
// backend constructor goes through, realizing spec.md §6's
// ConnectionPoolSharing flag: when enabled, every cache across every alias
// that resolves to the same backend identity (key) ends up acquiring
// connections from one *Pool instead of one each.
func Shared[T any](r *Registry, key string, newPool func() *Pool[T]) *Pool[T] {
	if r == nil || !r.Sharing {
		return newPool()
	}
	return GetOrCreate(r, key, newPool)
}

// Get returns the pool registered under key, if any.
func Get[T any](r *Registry, key string) (*Pool[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.pools[key]
	if !ok {
		return nil, false
	}
	p, ok := v.(*Pool[T])
	return p, ok
}

// CloseAll closes every pool in the registry. Pool element types are
// erased, so each pool is responsible for its own Close logic; Registry
// only needs to call a Closer interface.
type Closer interface{ Close() }

func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for key, v := range r.pools {
		closer, ok := v.(Closer)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if rec := recover(); rec != nil && firstErr == nil {
					firstErr = fmt.Errorf("pool %q: panic during close: %v", key, rec)
				}
			}()
			closer.Close()
		}()
	}
	return firstErr
}
