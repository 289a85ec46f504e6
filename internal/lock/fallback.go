package lock

import (
	"context"
	"fmt"
	"time"
)

// FallbackLock rebinds the lock returned by whichever sub-locker actually
// succeeded, so Ping/Release can be delegated to it.
type FallbackLock struct {
	resource string
	locker   Locker
	inner    Lock
}

func (l *FallbackLock) Resource() string { return l.resource }

// FallbackLocker holds an ordered list of sub-lockers. Acquire walks the
// list and returns the first sub-locker that succeeds without error;
// Release/Ping delegate to the sub-locker that produced the lock. Grounded
// on original_source/lib/lock.c's mapcache_locker_fallback_aquire_lock,
// including its "clear the current error if we still have a fallback
// locker to try" behaviour.
type FallbackLocker struct {
	Lockers      []Locker
	RetrySeconds time.Duration
	TimeoutSecs  time.Duration
}

// NewFallbackLocker builds a fallback chain. retry/timeout are the values
// reported to LockOrWait; they are independent of whichever sub-locker's
// own retry/timeout ends up doing the actual work once a lock is held.
func NewFallbackLocker(lockers []Locker, retry, timeout time.Duration) *FallbackLocker {
	if retry <= 0 {
		retry = time.Second
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &FallbackLocker{Lockers: lockers, RetrySeconds: retry, TimeoutSecs: timeout}
}

func (f *FallbackLocker) Acquire(ctx context.Context, resource string) (State, Lock, error) {
	var lastErr error
	for i, child := range f.Lockers {
		state, inner, err := child.Acquire(ctx, resource)
		if err == nil {
			return state, &FallbackLock{resource: resource, locker: child, inner: inner}, nil
		}
		// keep trying the remaining lockers; only surface the last error
		// if every sub-locker failed.
		lastErr = err
		if i < len(f.Lockers)-1 {
			continue
		}
	}
	if lastErr != nil {
		return NoEnt, nil, nil // spec: if all fail, return NOENT (errors are swallowed per §4.3)
	}
	return NoEnt, nil, fmt.Errorf("fallback locker: no sub-lockers configured")
}

func (f *FallbackLocker) Ping(ctx context.Context, l Lock) (State, error) {
	fl, ok := l.(*FallbackLock)
	if !ok {
		return NoEnt, fmt.Errorf("fallback locker: ping on foreign lock")
	}
	return fl.locker.Ping(ctx, fl.inner)
}

func (f *FallbackLocker) Release(ctx context.Context, l Lock) error {
	fl, ok := l.(*FallbackLock)
	if !ok {
		return fmt.Errorf("fallback locker: release on foreign lock")
	}
	return fl.locker.Release(ctx, fl.inner)
}

func (f *FallbackLocker) RetryInterval() time.Duration { return f.RetrySeconds }
func (f *FallbackLocker) Timeout() time.Duration       { return f.TimeoutSecs }
