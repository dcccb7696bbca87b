package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
	lockRetryDelay = 50 * time.Millisecond
)

// FileLock is an advisory lock guarding writes to a single file across processes.
type FileLock struct {
	lock *flock.Flock
	path string
}

// NewFileLock creates a lock next to the given file.
func NewFileLock(path string) (*FileLock, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path: %w", err)
	}
	lockPath := absPath + lockFileSuffix
	return &FileLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Lock acquires the lock, waiting until it is free or ctx is done.
func (l *FileLock) Lock(ctx context.Context) error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	if locked {
		return nil
	}

	Log.Debugf("Another idwatch process holds %s, waiting for it", l.path)
	locked, err = l.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock on %s", l.path)
	}
	return nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// GetAbsDBPath resolves the event log database path.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "idwatch", "idwatch.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}
