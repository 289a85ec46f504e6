package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const lockfilePrefix = "_gc_lock"

// sanitizeResource replaces the characters original_source/lib/lock.c
// replaces before turning a resource name into a filename: space, '/',
// '~', '.' all become '#'.
func sanitizeResource(resource string) string {
	replacer := strings.NewReplacer(" ", "#", "/", "#", "~", "#", ".", "#")
	return replacer.Replace(resource)
}

// DiskLock is the Lock handle returned by DiskLocker.
type DiskLock struct {
	resource string
	path     string
}

func (l *DiskLock) Resource() string { return l.resource }

// DiskLocker implements a locker backed by O_CREAT|O_EXCL files on a
// (potentially network-mounted, shared) directory.
type DiskLocker struct {
	Dir           string
	RetrySeconds  time.Duration
	TimeoutSecs   time.Duration
}

// NewDiskLocker creates a disk locker rooted at dir.
func NewDiskLocker(dir string, retry, timeout time.Duration) *DiskLocker {
	if dir == "" {
		dir = os.TempDir()
	}
	if retry <= 0 {
		retry = time.Second
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &DiskLocker{Dir: dir, RetrySeconds: retry, TimeoutSecs: timeout}
}

func (d *DiskLocker) lockPath(resource string) string {
	return filepath.Join(d.Dir, fmt.Sprintf("%s%s.lck", lockfilePrefix, sanitizeResource(resource)))
}

func (d *DiskLocker) Acquire(ctx context.Context, resource string) (State, Lock, error) {
	path := d.lockPath(resource)
	l := &DiskLock{resource: resource, path: path}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return Locked, l, nil
		}
		return NoEnt, nil, fmt.Errorf("disk locker: failed to create lockfile %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		return NoEnt, nil, fmt.Errorf("disk locker: failed to write pid to %s: %w", path, err)
	}
	return Acquired, l, nil
}

func (d *DiskLocker) Ping(ctx context.Context, l Lock) (State, error) {
	dl, ok := l.(*DiskLock)
	if !ok {
		return NoEnt, fmt.Errorf("disk locker: ping on foreign lock")
	}
	if _, err := os.Stat(dl.path); err != nil {
		if os.IsNotExist(err) {
			return NoEnt, nil
		}
		return NoEnt, err
	}
	return Locked, nil
}

func (d *DiskLocker) Release(ctx context.Context, l Lock) error {
	dl, ok := l.(*DiskLock)
	if !ok {
		return fmt.Errorf("disk locker: release on foreign lock")
	}
	err := os.Remove(dl.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (d *DiskLocker) RetryInterval() time.Duration { return d.RetrySeconds }
func (d *DiskLocker) Timeout() time.Duration       { return d.TimeoutSecs }
