package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// newTestStore opens a fresh file-backed store with prefix "bd".
func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	ctx := context.Background()
	store, err := New(ctx, filepath.Join(t.TempDir(), ".beads", "beads.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.SetConfig(ctx, "issue_prefix", "bd"); err != nil {
		t.Fatalf("failed to set issue_prefix: %v", err)
	}
	return store
}

// fakeClock hands out strictly increasing instants.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func createTestIssue(t *testing.T, store *SQLiteStorage, title string) *types.Issue {
	t.Helper()
	issue, err := store.CreateIssue(context.Background(), &types.Issue{
		Title:     title,
		Priority:  2,
		IssueType: types.TypeTask,
	}, "tester")
	if err != nil {
		t.Fatalf("CreateIssue(%q): %v", title, err)
	}
	return issue
}
