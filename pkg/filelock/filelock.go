// Package filelock provides advisory file locks that serialize name
// resolution and creation in one scope across processes.
//
// Lock files are left in place on release: removing them would let a waiter
// lock an unlinked file while a newcomer locks a fresh one.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	// ErrLocked is returned by Acquire when another holder has the lock.
	ErrLocked = errors.New("lock held by another process")
	// ErrUnsupported is returned on platforms without advisory locks.
	ErrUnsupported = errors.New("advisory locking not supported on this platform")
)

// DefaultRetryInterval is how often AcquireContext retries a held lock.
const DefaultRetryInterval = 50 * time.Millisecond

// Lock represents an acquired advisory file lock.
type Lock struct {
	file *os.File
}

// Acquire opens the file at path and takes an exclusive lock without
// waiting. It fails with ErrLocked when the lock is held elsewhere.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	return &Lock{file: f}, nil
}

// AcquireContext retries Acquire every interval until the lock is free or
// ctx is done. A non-positive interval uses DefaultRetryInterval.
func AcquireContext(ctx context.Context, path string, interval time.Duration) (*Lock, error) {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		lock, err := Acquire(path)
		if err == nil || !errors.Is(err, ErrLocked) {
			return lock, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for lock %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	if l == nil || l.file == nil {
		return ""
	}

	return l.file.Name()
}

// Close releases the lock and closes the file. It is safe to call Close on a
// nil Lock.
func (l *Lock) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("unlock: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close lock file: %w", closeErr)
	}

	return nil
}
