//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows

package filelock

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_AndClose(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "test.lock")

	lock, err := Acquire(lockPath)
	require.NoError(t, err, "first acquire should succeed")
	require.NotNil(t, lock)
	assert.Equal(t, lockPath, lock.Path())

	require.NoError(t, lock.Close(), "release should succeed")

	// Lock files persist so waiters and newcomers share one inode.
	_, err = os.Stat(lockPath)
	require.NoError(t, err)
}

func TestAcquire_SecondAcquireFails(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "test.lock")

	lock1, err := Acquire(lockPath)
	require.NoError(t, err, "first acquire should succeed")
	t.Cleanup(func() {
		_ = lock1.Close()
	})

	lock2, err := Acquire(lockPath)
	require.ErrorIs(t, err, ErrLocked, "second acquire should fail while first is held")
	assert.Nil(t, lock2)
}

func TestClose_NilLock(t *testing.T) {
	t.Parallel()

	var lock *Lock
	assert.NoError(t, lock.Close(), "release on nil lock should be no-op")
	assert.Empty(t, lock.Path())
}

func TestClose_Twice(t *testing.T) {
	t.Parallel()

	lock, err := Acquire(filepath.Join(t.TempDir(), "test.lock"))
	require.NoError(t, err)

	require.NoError(t, lock.Close())
	require.NoError(t, lock.Close())
}

func TestAcquire_AfterClose(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "test.lock")

	lock1, err := Acquire(lockPath)
	require.NoError(t, err)
	require.NoError(t, lock1.Close())

	lock2, err := Acquire(lockPath)
	require.NoError(t, err, "re-acquire after release should succeed")
	require.NoError(t, lock2.Close())
}

func TestAcquire_InvalidPath(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "nonexistent", "subdir", "test.lock")

	lock, err := Acquire(lockPath)
	require.Error(t, err, "acquire should fail for invalid path")
	assert.Nil(t, lock)
	assert.Contains(t, err.Error(), "open lock file")
}

func TestAcquireContext_WaitsForRelease(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "test.lock")

	lock1, err := Acquire(lockPath)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = lock1.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lock2, err := AcquireContext(ctx, lockPath, 5*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, lock2.Close())
}

func TestAcquireContext_Canceled(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "test.lock")

	lock1, err := Acquire(lockPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lock1.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = AcquireContext(ctx, lockPath, 5*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireContext_Serializes(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "test.lock")

	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		overlap atomic.Bool
	)

	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			lock, err := AcquireContext(context.Background(), lockPath, time.Millisecond)
			if !assert.NoError(t, err) {
				return
			}
			if holders.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			holders.Add(-1)
			assert.NoError(t, lock.Close())
		}()
	}

	wg.Wait()
	assert.False(t, overlap.Load(), "two goroutines held the lock at once")
}
