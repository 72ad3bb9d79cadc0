package fixtures

import (
	"context"
	"strings"
	"testing"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage/sqlite"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/testutil"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

func newStore(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	return testutil.NewStore(t, "bd")
}

func TestGenerateSmallConfig(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	cfg := DefaultLargeConfig()
	cfg.TotalIssues = 100
	if err := Generate(ctx, store, cfg); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	all, err := store.ListIssues(ctx, types.IssueFilter{})
	if err != nil {
		t.Fatalf("Failed to list issues: %v", err)
	}
	if len(all) != 100 {
		t.Errorf("Expected 100 issues, got %d", len(all))
	}

	var epics, features, tasks int
	for _, issue := range all {
		switch issue.IssueType {
		case types.TypeEpic:
			epics++
			if strings.Contains(issue.ID, ".") {
				t.Errorf("epic %s has a child id", issue.ID)
			}
		case types.TypeFeature:
			features++
		case types.TypeTask:
			tasks++
			if strings.Count(issue.ID, ".") != 2 {
				t.Errorf("task %s is not a grandchild id", issue.ID)
			}
		}
	}
	if epics != 10 || features != 30 || tasks != 60 {
		t.Errorf("epics=%d features=%d tasks=%d", epics, features, tasks)
	}
}

func TestSmall(t *testing.T) {
	store := newStore(t)
	issues, err := Small(context.Background(), store)
	if err != nil {
		t.Fatalf("Small failed: %v", err)
	}
	if len(issues) != 5 {
		t.Fatalf("got %d issues, want 5", len(issues))
	}
	if len(issues[3].Comments) != 2 || len(issues[2].Dependencies) != 1 {
		t.Errorf("related rows missing: comments=%d deps=%d", len(issues[3].Comments), len(issues[2].Dependencies))
	}
}

func TestLargeFromJSONL(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping JSONL test in short mode")
	}
	store := newStore(t)
	ctx := context.Background()

	if err := LargeFromJSONL(ctx, store, t.TempDir()); err != nil {
		t.Fatalf("LargeFromJSONL failed: %v", err)
	}
	all, err := store.ListIssues(ctx, types.IssueFilter{})
	if err != nil {
		t.Fatalf("Failed to list issues: %v", err)
	}
	if len(all) != 10000 {
		t.Errorf("Expected 10000 issues, got %d", len(all))
	}
}
