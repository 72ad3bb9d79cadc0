package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

func TestCreateAndGetIssue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateIssue(ctx, &types.Issue{
		Title:       "Wire up search",
		Description: "FTS over notes",
		IssueType:   types.TypeFeature,
		Priority:    1,
		Assignee:    types.StringPtr("ana"),
		Labels:      []string{"Backend", "backend", " search "},
		Metadata:    []byte(`{"source":"cli"}`),
	}, "tester")
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if created.Status != types.StatusOpen {
		t.Errorf("status = %q, want open", created.Status)
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Errorf("created_at %v != updated_at %v", created.CreatedAt, created.UpdatedAt)
	}

	got, err := store.GetIssue(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("stored issue mismatch (-created +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"backend", "search"}, got.Labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
}

func TestCreateIssueValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		issue *types.Issue
	}{
		{"empty title", &types.Issue{Title: "  ", Priority: 2}},
		{"bad priority", &types.Issue{Title: "x", Priority: 7}},
		{"bad status", &types.Issue{Title: "x", Priority: 2, Status: "done"}},
		{"bad type", &types.Issue{Title: "x", Priority: 2, IssueType: "story"}},
		{"bad metadata", &types.Issue{Title: "x", Priority: 2, Metadata: []byte(`{nope`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateIssue(ctx, tt.issue, "tester")
			if !errors.Is(err, types.ErrValidation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	issues, err := store.ListIssues(ctx, types.IssueFilter{IncludeTombstones: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 0 {
		t.Errorf("rejected creates left %d rows", len(issues))
	}
}

func TestGetIssueNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetIssue(context.Background(), "bd-nope")
	var nf *types.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestUpdateIssuePartialAndClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	issue, err := store.CreateIssue(ctx, &types.Issue{
		Title:       "Original",
		Description: "keep me",
		Priority:    2,
		Assignee:    types.StringPtr("ana"),
		DesignNotes: types.StringPtr("draft"),
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
		"title":        "Renamed",
		"assignee":     nil,
		"design_notes": "",
		"priority":     0,
		"labels":       []string{"Urgent"},
	}, "tester")
	if err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}
	if updated.Title != "Renamed" || updated.Description != "keep me" || updated.Priority != 0 {
		t.Errorf("unexpected fields: %+v", updated)
	}
	if updated.Assignee != nil || updated.DesignNotes != nil {
		t.Errorf("nullable fields not cleared: assignee=%v design=%v", updated.Assignee, updated.DesignNotes)
	}
	if diff := cmp.Diff([]string{"urgent"}, updated.Labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
	if !updated.UpdatedAt.After(issue.UpdatedAt) {
		t.Errorf("updated_at did not advance: %v -> %v", issue.UpdatedAt, updated.UpdatedAt)
	}

	if _, err := store.UpdateIssue(ctx, issue.ID, map[string]interface{}{"id": "bd-x"}, "tester"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("expected ValidationError for unknown key, got %v", err)
	}
	if _, err := store.UpdateIssue(ctx, issue.ID, map[string]interface{}{"status": "done"}, "tester"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("expected ValidationError for bad status, got %v", err)
	}
	if _, err := store.UpdateIssue(ctx, "bd-none", map[string]interface{}{"title": "x"}, "tester"); !types.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestUpdatedAtStrictlyIncreases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A frozen clock forces the +1ns path.
	frozen := newFakeClock().Now()
	store.now = func() time.Time { return frozen }

	issue := createTestIssue(t, store, "frozen")
	prev := issue.UpdatedAt
	check := func(step string) {
		t.Helper()
		got, err := store.GetIssue(ctx, issue.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !got.UpdatedAt.After(prev) {
			t.Fatalf("%s: updated_at %v not after %v", step, got.UpdatedAt, prev)
		}
		prev = got.UpdatedAt
	}

	if _, err := store.UpdateIssue(ctx, issue.ID, map[string]interface{}{"title": "a"}, "t"); err != nil {
		t.Fatal(err)
	}
	check("update")
	if err := store.AddLabel(ctx, issue.ID, "x", "t"); err != nil {
		t.Fatal(err)
	}
	check("add label")
	c, err := store.AddComment(ctx, issue.ID, "t", "note")
	if err != nil {
		t.Fatal(err)
	}
	check("add comment")
	if err := store.DeleteComment(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	check("delete comment")
	if _, err := store.CloseIssue(ctx, issue.ID, "t"); err != nil {
		t.Fatal(err)
	}
	check("close")
}

func TestCloseReopenManagesClosedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	issue := createTestIssue(t, store, "closable")

	closed, err := store.CloseIssue(ctx, issue.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if closed.Status != types.StatusClosed || closed.ClosedAt == nil {
		t.Fatalf("close: status=%q closed_at=%v", closed.Status, closed.ClosedAt)
	}

	reopened, err := store.ReopenIssue(ctx, issue.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Status != types.StatusOpen || reopened.ClosedAt != nil {
		t.Fatalf("reopen: status=%q closed_at=%v", reopened.Status, reopened.ClosedAt)
	}
}

func TestDeleteIssue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := createTestIssue(t, store, "A")
	b := createTestIssue(t, store, "B")

	if err := store.AddDependency(ctx, &types.Dependency{IssueID: a.ID, DependsOnID: b.ID}, "t"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddComment(ctx, b.ID, "t", "hello"); err != nil {
		t.Fatal(err)
	}

	// Soft delete keeps the row and its edges.
	if err := store.DeleteIssue(ctx, b.ID, false); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	got, err := store.GetIssueDetails(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.StatusTombstone || len(got.Comments) != 1 {
		t.Errorf("tombstone: status=%q comments=%d", got.Status, len(got.Comments))
	}
	visible, err := store.ListIssues(ctx, types.IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 1 || visible[0].ID != a.ID {
		t.Errorf("default list should hide tombstones, got %d issues", len(visible))
	}

	// Hard delete cascades.
	if err := store.DeleteIssue(ctx, b.ID, true); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if _, err := store.GetIssue(ctx, b.ID); !types.IsNotFound(err) {
		t.Errorf("expected NotFound after hard delete, got %v", err)
	}
	deps, err := store.GetDependencies(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 0 {
		t.Errorf("dependency on deleted issue survived: %v", deps)
	}
	var comments int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE issue_id = ?`, b.ID).Scan(&comments); err != nil {
		t.Fatal(err)
	}
	if comments != 0 {
		t.Errorf("%d comments survived hard delete", comments)
	}
	if err := store.DeleteIssue(ctx, b.ID, true); !types.IsNotFound(err) {
		t.Errorf("second delete: expected NotFound, got %v", err)
	}
}

func TestLabels(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	issue := createTestIssue(t, store, "labelled")

	if err := store.AddLabel(ctx, issue.ID, "Backend", "t"); err != nil {
		t.Fatal(err)
	}
	if err := store.AddLabel(ctx, issue.ID, "BACKEND", "t"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("duplicate label: expected ValidationError, got %v", err)
	}
	if err := store.AddLabel(ctx, issue.ID, "  ", "t"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("empty label: expected ValidationError, got %v", err)
	}
	if err := store.RemoveLabel(ctx, issue.ID, "frontend", "t"); !types.IsNotFound(err) {
		t.Errorf("absent label: expected NotFound, got %v", err)
	}
	if err := store.RemoveLabel(ctx, issue.ID, "backend", "t"); err != nil {
		t.Fatal(err)
	}
	labels, err := store.GetLabels(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 0 {
		t.Errorf("labels = %v, want none", labels)
	}
}

func TestComments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	issue := createTestIssue(t, store, "discussed")

	first, err := store.AddComment(ctx, issue.ID, "ana", "first")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddComment(ctx, issue.ID, "ben", "second"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddComment(ctx, issue.ID, "ben", ""); !errors.Is(err, types.ErrValidation) {
		t.Errorf("empty comment: expected ValidationError, got %v", err)
	}
	if _, err := store.AddComment(ctx, "bd-none", "ben", "x"); !types.IsNotFound(err) {
		t.Errorf("missing issue: expected NotFound, got %v", err)
	}

	comments, err := store.GetComments(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 2 || comments[0].ID != first.ID || comments[1].Content != "second" {
		t.Fatalf("unexpected comments: %+v", comments)
	}

	if err := store.DeleteComment(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteComment(ctx, first.ID); !types.IsNotFound(err) {
		t.Errorf("second delete: expected NotFound, got %v", err)
	}
}

func TestDependencies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := createTestIssue(t, store, "A")
	b := createTestIssue(t, store, "B")
	c := createTestIssue(t, store, "C")

	tests := []struct {
		name    string
		dep     types.Dependency
		wantErr error
	}{
		{"a blocked by b", types.Dependency{IssueID: a.ID, DependsOnID: b.ID, Type: types.DepBlocks}, nil},
		{"b blocked by c", types.Dependency{IssueID: b.ID, DependsOnID: c.ID, Type: types.DepBlocks}, nil},
		{"cycle", types.Dependency{IssueID: c.ID, DependsOnID: a.ID, Type: types.DepBlocks}, types.ErrValidation},
		{"related back edge is fine", types.Dependency{IssueID: c.ID, DependsOnID: a.ID, Type: types.DepRelated}, nil},
		{"self", types.Dependency{IssueID: a.ID, DependsOnID: a.ID, Type: types.DepRelated}, types.ErrValidation},
		{"unknown kind", types.Dependency{IssueID: a.ID, DependsOnID: c.ID, Type: "follows"}, types.ErrValidation},
		{"missing target", types.Dependency{IssueID: a.ID, DependsOnID: "bd-none", Type: types.DepBlocks}, types.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dep := tt.dep
			err := store.AddDependency(ctx, &dep, "t")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	dependents, err := store.GetDependents(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(dependents) != 1 || dependents[0].IssueID != a.ID {
		t.Errorf("dependents of B = %+v", dependents)
	}
	all, err := store.GetAllDependencyRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("dependency records keyed by %d issues, want 3", len(all))
	}

	if err := store.RemoveDependency(ctx, a.ID, b.ID, "t"); err != nil {
		t.Fatal(err)
	}
	if err := store.RemoveDependency(ctx, a.ID, b.ID, "t"); !types.IsNotFound(err) {
		t.Errorf("second remove: expected NotFound, got %v", err)
	}
}

func TestGetReadyWork(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	blocked := createTestIssue(t, store, "blocked")
	blocker := createTestIssue(t, store, "blocker")
	free := createTestIssue(t, store, "free")

	if err := store.AddDependency(ctx, &types.Dependency{IssueID: blocked.ID, DependsOnID: blocker.ID, Type: types.DepBlocks}, "t"); err != nil {
		t.Fatal(err)
	}

	ready := func() map[string]bool {
		t.Helper()
		issues, err := store.GetReadyWork(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		out := make(map[string]bool)
		for _, i := range issues {
			out[i.ID] = true
		}
		return out
	}

	got := ready()
	if got[blocked.ID] || !got[blocker.ID] || !got[free.ID] {
		t.Fatalf("ready before close = %v", got)
	}
	if _, err := store.CloseIssue(ctx, blocker.ID, "t"); err != nil {
		t.Fatal(err)
	}
	got = ready()
	if !got[blocked.ID] || got[blocker.ID] {
		t.Fatalf("ready after close = %v", got)
	}
}

func TestListIssuesFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bug, err := store.CreateIssue(ctx, &types.Issue{Title: "bug", Priority: 0, IssueType: types.TypeBug, Labels: []string{"ui"}}, "t")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateIssue(ctx, &types.Issue{Title: "task", Priority: 3, Assignee: types.StringPtr("ben")}, "t"); err != nil {
		t.Fatal(err)
	}

	bugType := types.TypeBug
	tests := []struct {
		name   string
		filter types.IssueFilter
		want   int
	}{
		{"all", types.IssueFilter{}, 2},
		{"by type", types.IssueFilter{IssueType: &bugType}, 1},
		{"by label", types.IssueFilter{Labels: []string{"UI"}}, 1},
		{"by assignee", types.IssueFilter{Assignee: types.StringPtr("ben")}, 1},
		{"by priority", types.IssueFilter{Priority: types.IntPtr(0)}, 1},
		{"by ids", types.IssueFilter{IDs: []string{bug.ID}}, 1},
		{"limit", types.IssueFilter{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues, err := store.ListIssues(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(issues) != tt.want {
				t.Errorf("got %d issues, want %d", len(issues), tt.want)
			}
		})
	}
}
