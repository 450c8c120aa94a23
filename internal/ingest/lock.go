package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
)

// FileLock serializes writers of the local retrieval state across processes.
// Only one ingest or clear may hold it at a time.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, flock: flock.New(path)}
}

// Lock blocks until the lock is available.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock returns false when another process holds the lock.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	l.locked = ok
	return ok, nil
}

// MustTryLock is TryLock that reports a held lock as ERR_204_LOCK_HELD.
func (l *FileLock) MustTryLock() error {
	ok, err := l.TryLock()
	if err != nil {
		return ragerrors.StateError("lock retrieval state", err)
	}
	if !ok {
		return ragerrors.New(ragerrors.ErrCodeLockHeld, "another ingest or clear is running", nil).
			WithDetail("lock", l.path).
			WithSuggestion("wait for the other ragdoc process to finish")
	}
	return nil
}

// Unlock is safe to call more than once.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (l *FileLock) Path() string { return l.path }

func (l *FileLock) IsLocked() bool { return l.locked }
