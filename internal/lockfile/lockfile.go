// Package lockfile provides an advisory, cross-process exclusive lock backed
// by a file, used to keep two bd processes from syncing the same project.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("lock held by another process")

// Lock is an exclusive lock on a file path. The zero value is unusable.
type Lock struct {
	path string
	file *os.File
}

// New returns an unlocked Lock for path.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// TryLock acquires the lock without blocking. It returns ErrLocked when
// another holder exists.
func (l *Lock) TryLock() error {
	if l.file != nil {
		return fmt.Errorf("lock %s already held by this process", l.path)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600) // #nosec G304 - lock path is derived from .beads
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := tryLockFile(f); err != nil {
		_ = f.Close()
		return err
	}
	// Record the holder for humans inspecting a stuck lock.
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	l.file = f
	return nil
}

// Unlock releases the lock. Unlocking an unheld Lock is a no-op.
func (l *Lock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}
