package fs

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// LockTimeout is the default timeout for acquiring the model lock.
const LockTimeout = 5 * time.Second

// Lock errors.
var (
	ErrLockTimeout  = errors.New("lock timeout")
	ErrLockFileOpen = errors.New("failed to open lock file")
)

// Lock represents a held flock on a lock file.
type Lock struct {
	path string
	file *os.File
}

// AcquireLockWithTimeout tries to acquire an exclusive flock on path,
// retrying until timeout. The lock file is created if missing.
func AcquireLockWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	file, openErr := os.OpenFile(path, os.O_CREATE|os.O_RDWR, FilePerms) //nolint:gosec // path is inside the model dir
	if openErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockFileOpen, openErr)
	}

	deadline := time.Now().Add(timeout)

	const retryInterval = 10 * time.Millisecond

	for {
		flockErr := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if flockErr == nil {
			return &Lock{path: path, file: file}, nil
		}

		if time.Now().After(deadline) {
			_ = file.Close()

			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}

		time.Sleep(retryInterval)
	}
}

// AcquireLock acquires an exclusive flock with the default timeout.
func AcquireLock(path string) (*Lock, error) {
	return AcquireLockWithTimeout(path, LockTimeout)
}

// Release unlocks and closes the lock file.
func (l *Lock) Release() {
	if l.file != nil {
		_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		_ = l.file.Close()
		l.file = nil
	}
}

// WithLock runs fn while holding an exclusive lock on path.
// The lock is always released when WithLock returns.
func WithLock(path string, fn func() error) error {
	lock, lockErr := AcquireLock(path)
	if lockErr != nil {
		return fmt.Errorf("acquiring lock: %w", lockErr)
	}

	defer lock.Release()

	return fn()
}
