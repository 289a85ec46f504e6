package cache

import (
	"context"
	"sync"
)

// memCache is an in-memory Cache used across this package's tests; it lets
// multitier/retry tests exercise real hit/miss/backfill sequencing without
// a real backend.
type memCache struct {
	CacheName string
	mu        sync.Mutex
	data      map[string][]byte
	getCalls  int
	setCalls  int
	failNext  bool
}

func newMemCache(name string) *memCache {
	return &memCache{CacheName: name, data: make(map[string][]byte)}
}

func (m *memCache) Name() string { return m.CacheName }

func (m *memCache) Get(ctx context.Context, tile *Tile) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	data, ok := m.data[tile.Key()]
	if !ok {
		return Miss, nil
	}
	tile.EncodedData = data
	return Success, nil
}

func (m *memCache) Set(ctx context.Context, tile *Tile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	m.data[tile.Key()] = tile.EncodedData
	return nil
}

func (m *memCache) Exists(ctx context.Context, tile *Tile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[tile.Key()]
	return ok, nil
}

func (m *memCache) Delete(ctx context.Context, tile *Tile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, tile.Key())
	return nil
}

func (m *memCache) MultiSet(ctx context.Context, tiles []*Tile) error {
	return DefaultMultiSet(ctx, m, tiles)
}
