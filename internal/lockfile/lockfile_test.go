package lockfile

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestTryLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".beads", "sync.lock")
	first := New(path)
	if err := first.TryLock(); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}

	// A second descriptor on the same file behaves like another process.
	second := New(path)
	if err := second.TryLock(); !errors.Is(err, ErrLocked) {
		t.Fatalf("second TryLock = %v, want ErrLocked", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := second.TryLock(); err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	if err := second.Unlock(); err != nil {
		t.Fatal(err)
	}
}

func TestUnlockWithoutLock(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "x.lock"))
	if err := l.Unlock(); err != nil {
		t.Errorf("Unlock on unheld lock: %v", err)
	}
}

func TestTryLockTwiceSameHolder(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "x.lock"))
	if err := l.TryLock(); err != nil {
		t.Fatal(err)
	}
	defer l.Unlock()
	if err := l.TryLock(); err == nil {
		t.Error("re-locking a held Lock should fail")
	}
}
