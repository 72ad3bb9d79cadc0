package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestIssueValidate(t *testing.T) {
	tests := []struct {
		name    string
		issue   Issue
		wantErr string
	}{
		{
			name:  "valid issue",
			issue: Issue{Title: "Fix login", Status: StatusOpen, IssueType: TypeBug, Priority: 1},
		},
		{
			name:    "missing title",
			issue:   Issue{Status: StatusOpen, IssueType: TypeTask, Priority: 2},
			wantErr: "title is required",
		},
		{
			name:    "title too long",
			issue:   Issue{Title: strings.Repeat("x", 501), Status: StatusOpen, IssueType: TypeTask},
			wantErr: "500 characters",
		},
		{
			name:    "priority out of range",
			issue:   Issue{Title: "t", Status: StatusOpen, IssueType: TypeTask, Priority: 5},
			wantErr: "priority must be between 0 and 4",
		},
		{
			name:    "unknown status",
			issue:   Issue{Title: "t", Status: "done", IssueType: TypeTask},
			wantErr: "invalid status",
		},
		{
			name:    "unknown type",
			issue:   Issue{Title: "t", Status: StatusOpen, IssueType: "story"},
			wantErr: "invalid issue type",
		},
		{
			name:    "negative estimate",
			issue:   Issue{Title: "t", Status: StatusOpen, IssueType: TypeTask, EstimateMinutes: IntPtr(-1)},
			wantErr: "estimate_minutes",
		},
		{
			name:    "bad metadata",
			issue:   Issue{Title: "t", Status: StatusOpen, IssueType: TypeTask, Metadata: json.RawMessage(`{`)},
			wantErr: "metadata",
		},
		{
			name: "bad dependency kind",
			issue: Issue{Title: "t", Status: StatusOpen, IssueType: TypeTask,
				Dependencies: []*Dependency{{DependsOnID: "bd-0001", Type: "needs"}}},
			wantErr: "invalid dependency type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.issue.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error should match ErrValidation")
			}
		})
	}
}

func TestNormalizeLabels(t *testing.T) {
	got := NormalizeLabels([]string{" Backend", "backend", "UX", "", "api"})
	want := []string{"api", "backend", "ux"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NormalizeLabels() mismatch (-want +got):\n%s", diff)
	}
	if NormalizeLabels(nil) != nil {
		t.Errorf("NormalizeLabels(nil) should be nil")
	}
}

func TestContentHashIgnoresBookkeepingTimestamps(t *testing.T) {
	base := &Issue{
		ID:        "bd-a1b2",
		Title:     "Search is slow",
		Status:    StatusOpen,
		IssueType: TypeBug,
		Priority:  1,
		Labels:    []string{"perf", "backend"},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	other := base.Clone()
	synced := time.Now()
	other.SyncedAt = &synced
	other.UpdatedAt = time.Now()
	other.Labels = []string{"backend", "perf"}

	if base.ContentHash() != other.ContentHash() {
		t.Errorf("hash should ignore updated_at, synced_at and label order")
	}

	other.WorkingNotes = StringPtr("")
	if base.ContentHash() == other.ContentHash() {
		t.Errorf("hash should distinguish nil from empty working notes")
	}
}

func TestChangedSinceSync(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Minute)

	issue := &Issue{UpdatedAt: now}
	if !issue.ChangedSinceSync() {
		t.Errorf("never-synced issue should count as changed")
	}
	issue.SyncedAt = &now
	if issue.ChangedSinceSync() {
		t.Errorf("issue updated at sync time should not count as changed")
	}
	issue.SyncedAt = &earlier
	if !issue.ChangedSinceSync() {
		t.Errorf("issue updated after sync should count as changed")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Issue{
		ID:       "bd-x",
		Assignee: StringPtr("alice"),
		Labels:   []string{"a"},
		Comments: []*Comment{{ID: "c1", Content: "hi"}},
		Metadata: json.RawMessage(`{"k":1}`),
	}
	c := orig.Clone()
	*c.Assignee = "bob"
	c.Labels[0] = "b"
	c.Comments[0].Content = "changed"
	c.Metadata[2] = 'x'

	if *orig.Assignee != "alice" || orig.Labels[0] != "a" || orig.Comments[0].Content != "hi" || string(orig.Metadata) != `{"k":1}` {
		t.Errorf("Clone shares memory with original: %+v", orig)
	}
}

func TestInterchangeFieldOrder(t *testing.T) {
	issue := &Issue{
		ID:        "bd-0001",
		Title:     "t",
		IssueType: TypeTask,
		Status:    StatusOpen,
		Priority:  2,
		SpecID:    StringPtr("spec-1"),
	}
	data, err := json.Marshal(issue)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	order := []string{`"id"`, `"title"`, `"description"`, `"type"`, `"status"`, `"priority"`, `"created_at"`, `"updated_at"`, `"spec_id"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(s, key)
		if idx < 0 {
			t.Fatalf("missing key %s in %s", key, s)
		}
		if idx < last {
			t.Errorf("key %s out of order in %s", key, s)
		}
		last = idx
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
	}{
		{&SchemaError{Version: 2, Err: errors.New("boom")}, ErrSchema},
		{NewNotFound("issue", "bd-1"), ErrNotFound},
		{NewValidationError("status", "bad"), ErrValidation},
		{&IdCollisionError{Prefix: "bd", Attempts: 5}, ErrIDCollision},
		{&ImportParseError{Line: 3, Err: errors.New("eof")}, ErrParse},
		{&ConflictDetected{ConflictID: "c", IssueID: "bd-1"}, ErrConflict},
		{&SyncError{Step: "pull", Err: errors.New("auth")}, ErrSync},
		{&IoError{Op: "write", Path: "/x", Err: errors.New("disk")}, ErrIO},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.sentinel) {
			t.Errorf("%T should match %v", tt.err, tt.sentinel)
		}
	}
	if !IsNotFound(NewNotFound("label", "x")) {
		t.Errorf("IsNotFound should match")
	}
}
