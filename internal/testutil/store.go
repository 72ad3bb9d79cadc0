// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage/sqlite"
)

// NewStore opens a file-backed store under t.TempDir() with the given
// issue prefix. It is closed when the test ends.
func NewStore(t testing.TB, prefix string) *sqlite.SQLiteStorage {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), ".beads", "beads.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if prefix != "" {
		if err := store.SetConfig(ctx, "issue_prefix", prefix); err != nil {
			t.Fatalf("failed to set issue_prefix: %v", err)
		}
	}
	return store
}
