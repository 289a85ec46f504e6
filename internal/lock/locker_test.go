package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskLocker_AcquireReleasePing(t *testing.T) {
	d := NewDiskLocker(t.TempDir(), 10*time.Millisecond, time.Second)
	ctx := context.Background()

	state, l, err := d.Acquire(ctx, "tileset/grid/3/1/1")
	require.NoError(t, err)
	assert.Equal(t, Acquired, state)

	state2, _, err := d.Acquire(ctx, "tileset/grid/3/1/1")
	require.NoError(t, err)
	assert.Equal(t, Locked, state2, "second acquire on same resource must see LOCKED")

	pingState, err := d.Ping(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, Locked, pingState)

	require.NoError(t, d.Release(ctx, l))

	pingState, err = d.Ping(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, NoEnt, pingState, "ping after release must see NOENT")
}

func TestDiskLocker_SanitizesResourceName(t *testing.T) {
	d := NewDiskLocker(t.TempDir(), time.Millisecond, time.Second)
	_, l, err := d.Acquire(context.Background(), "l1/Grid A/3 x.y~z")
	require.NoError(t, err)
	dl := l.(*DiskLock)
	assert.NotContains(t, dl.path, " ")
	assert.NotContains(t, dl.path, "~")
}

func TestLockOrWait_ConcurrentAcquireCollapsesToOneWinner(t *testing.T) {
	d := NewDiskLocker(t.TempDir(), 5*time.Millisecond, 2*time.Second)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			won, l, err := LockOrWait(ctx, d, "l1/GridA/3/1/1", nil)
			require.NoError(t, err)
			if won {
				mu.Lock()
				acquired++
				mu.Unlock()
				time.Sleep(20 * time.Millisecond)
				require.NoError(t, d.Release(ctx, l))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired, "exactly one worker should have acquired the lock")
}

func TestLockOrWait_ForceReleasesStaleLock(t *testing.T) {
	d := NewDiskLocker(t.TempDir(), 5*time.Millisecond, 20*time.Millisecond)
	ctx := context.Background()

	// simulate a worker that acquired the lock and died before releasing it
	state, _, err := d.Acquire(ctx, "stale")
	require.NoError(t, err)
	require.Equal(t, Acquired, state)

	won, _, err := LockOrWait(ctx, d, "stale", nil)
	require.NoError(t, err)
	assert.False(t, won, "a waiter that times out does not itself win the lock")

	state, err = d.Ping(ctx, &DiskLock{resource: "stale", path: d.lockPath("stale")})
	require.NoError(t, err)
	assert.Equal(t, NoEnt, state, "stale lock should have been force-released")
}

func TestFallbackLocker_FirstSuccessWins(t *testing.T) {
	dirBad := t.TempDir()
	// locker pointed at a directory that doesn't exist forces a non-EEXIST
	// error on Acquire, exercising the fallback path.
	broken := NewDiskLocker(dirBad+"/does/not/exist", time.Millisecond, time.Second)
	good := NewDiskLocker(t.TempDir(), time.Millisecond, time.Second)

	fb := NewFallbackLocker([]Locker{broken, good}, time.Millisecond, time.Second)
	state, l, err := fb.Acquire(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, Acquired, state)

	fl := l.(*FallbackLock)
	assert.Same(t, good, fl.locker)
}

func TestFallbackLocker_AllFailReturnsNoEnt(t *testing.T) {
	broken1 := NewDiskLocker(t.TempDir()+"/nope1", time.Millisecond, time.Second)
	broken2 := NewDiskLocker(t.TempDir()+"/nope2", time.Millisecond, time.Second)
	fb := NewFallbackLocker([]Locker{broken1, broken2}, time.Millisecond, time.Second)

	state, l, err := fb.Acquire(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, NoEnt, state)
	assert.Nil(t, l)
}
