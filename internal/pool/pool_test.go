package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct{ id int32 }

func TestPool_AcquireReleaseReusesConnection(t *testing.T) {
	var created int32
	var destroyed int32

	p := New(Config{HardMax: 2, TTL: time.Minute}, func(ctx context.Context) (*fakeConn, error) {
		return &fakeConn{id: atomic.AddInt32(&created, 1)}, nil
	}, func(c *fakeConn) {
		atomic.AddInt32(&destroyed, 1)
	})

	pc1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	first := pc1.Conn.id
	pc1.Release()

	pc2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, pc2.Conn.id, "released connection should be reused")
	pc2.Release()

	assert.EqualValues(t, 1, atomic.LoadInt32(&created))
	assert.EqualValues(t, 0, atomic.LoadInt32(&destroyed))
}

func TestPool_InvalidateDestroysConnection(t *testing.T) {
	var destroyed int32
	p := New(Config{HardMax: 2}, func(ctx context.Context) (*fakeConn, error) {
		return &fakeConn{}, nil
	}, func(c *fakeConn) {
		atomic.AddInt32(&destroyed, 1)
	})

	pc, err := p.Acquire(context.Background())
	require.NoError(t, err)
	pc.Invalidate()

	assert.EqualValues(t, 1, atomic.LoadInt32(&destroyed))
	assert.Equal(t, 0, p.Len())
}

func TestPool_HardMaxBlocksUntilRelease(t *testing.T) {
	p := New(Config{HardMax: 1, AcquireWait: 50 * time.Millisecond}, func(ctx context.Context) (*fakeConn, error) {
		return &fakeConn{}, nil
	}, func(c *fakeConn) {})

	pc1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	// second acquire should time out while the only slot is checked out
	_, err = p.Acquire(context.Background())
	assert.Error(t, err)

	pc1.Release()

	pc2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	pc2.Release()
}

func TestPool_FactoryErrorDoesNotLeakSlot(t *testing.T) {
	attempt := 0
	p := New(Config{HardMax: 1}, func(ctx context.Context) (*fakeConn, error) {
		attempt++
		if attempt == 1 {
			return nil, assertErr{}
		}
		return &fakeConn{}, nil
	}, func(c *fakeConn) {})

	_, err := p.Acquire(context.Background())
	assert.Error(t, err)

	// the failed factory call must not have consumed the hard_max slot
	pc, err := p.Acquire(context.Background())
	require.NoError(t, err)
	pc.Release()
}

type assertErr struct{}

func (assertErr) Error() string { return "factory failed" }

func TestRegistry_SharingReturnsSameHandle(t *testing.T) {
	r := NewRegistry(true)
	p1 := GetOrCreate(r, "redis-main", func() *Pool[*fakeConn] {
		return New(Config{HardMax: 1}, func(ctx context.Context) (*fakeConn, error) { return &fakeConn{}, nil }, func(c *fakeConn) {})
	})
	p2 := GetOrCreate(r, "redis-main", func() *Pool[*fakeConn] {
		t.Fatal("newPool should not be called again for an existing key")
		return nil
	})
	assert.Same(t, p1, p2)
}
