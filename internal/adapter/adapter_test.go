package adapter

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

func TestPriorityRoundTrip(t *testing.T) {
	for p := 0; p <= 4; p++ {
		got, err := ParsePriority(FormatPriority(p))
		if err != nil || got != p {
			t.Errorf("ParsePriority(FormatPriority(%d)) = %d, %v", p, got, err)
		}
	}

	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"P1", 1, false},
		{" p3 ", 3, false},
		{"2", 2, false},
		{"p5", 0, true},
		{"-1", 0, true},
		{"high", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.wantErr {
				if !errors.Is(err, types.ErrValidation) {
					t.Fatalf("ParsePriority(%q) error = %v, want ValidationError", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParsePriority(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
			}
		})
	}
}

func sampleIssues() []*types.Issue {
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	issue := func(id string, deps ...*types.Dependency) *types.Issue {
		return &types.Issue{ID: id, Title: id, IssueType: types.TypeTask, Status: types.StatusOpen, Priority: 2,
			CreatedAt: at, UpdatedAt: at, Dependencies: deps}
	}
	dep := func(from, to string, typ types.DependencyType) *types.Dependency {
		return &types.Dependency{IssueID: from, DependsOnID: to, Type: typ, CreatedAt: at}
	}
	return []*types.Issue{
		issue("bd-a1"),
		issue("bd-a1.1"),
		issue("bd-a1.2", dep("bd-a1.2", "bd-a1.1", types.DepBlocks)),
		issue("bd-a1.10"),
		issue("bd-b2", dep("bd-b2", "bd-a1", types.DepRelated), dep("bd-b2", "bd-c3", types.DepParentChild)),
		issue("bd-c3"),
	}
}

func TestToViewsResolvesBothDirections(t *testing.T) {
	views := ToViews(sampleIssues())
	byID := make(map[string]*View)
	for _, v := range views {
		byID[v.ID] = v
	}

	type rel struct {
		Parent    *string
		Children  []string
		BlockedBy []string
		Blocks    []string
		Related   []Link
	}
	parentOf := func(s string) *string { return &s }
	tests := []struct {
		id   string
		want rel
	}{
		{"bd-a1", rel{Children: []string{"bd-a1.1", "bd-a1.2", "bd-a1.10"}, Related: []Link{{ID: "bd-b2", Type: "related"}}}},
		{"bd-a1.1", rel{Parent: parentOf("bd-a1"), Blocks: []string{"bd-a1.2"}}},
		{"bd-a1.2", rel{Parent: parentOf("bd-a1"), BlockedBy: []string{"bd-a1.1"}}},
		{"bd-b2", rel{Parent: parentOf("bd-c3"), Related: []Link{{ID: "bd-a1", Type: "related", Outgoing: true}}}},
		{"bd-c3", rel{Children: []string{"bd-b2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			v := byID[tt.id]
			got := rel{Parent: v.Parent, Children: v.Children, BlockedBy: v.BlockedBy, Blocks: v.Blocks, Related: v.Related}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("relationships mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToViewWithoutIndex(t *testing.T) {
	issues := sampleIssues()
	v := ToView(issues[1], nil)
	if v.Priority != "p2" {
		t.Errorf("Priority = %q, want p2", v.Priority)
	}
	if len(v.Blocks) != 0 || len(v.Children) != 0 {
		t.Errorf("expected no incoming relationships without an index, got blocks=%v children=%v", v.Blocks, v.Children)
	}
}

func TestFromViewKeepsOwnedEdges(t *testing.T) {
	issues := sampleIssues()
	views := ToViews(issues)
	for i, v := range views {
		back, err := FromView(v)
		if err != nil {
			t.Fatalf("FromView(%s): %v", v.ID, err)
		}
		want := issues[i]
		opts := cmp.Options{
			cmpopts.EquateEmpty(),
			cmpopts.IgnoreFields(types.Dependency{}, "CreatedAt"),
			cmpopts.SortSlices(func(a, b *types.Dependency) bool { return a.DependsOnID < b.DependsOnID }),
		}
		if diff := cmp.Diff(want, back, opts); diff != "" {
			t.Errorf("%s round trip mismatch (-want +got):\n%s", v.ID, diff)
		}
	}
}

func TestFromViewRejectsBadPriority(t *testing.T) {
	_, err := FromView(&View{ID: "bd-a1", Title: "x", Priority: "urgent"})
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestPatchJSONDistinguishesNullFromAbsent(t *testing.T) {
	var p Patch
	if err := json.Unmarshal([]byte(`{"title":"New","assignee":null,"design_notes":"sketch","priority":"p1"}`), &p); err != nil {
		t.Fatal(err)
	}
	updates, err := PatchToUpdates(p)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"title":        "New",
		"assignee":     nil,
		"design_notes": "sketch",
		"priority":     1,
	}
	if diff := cmp.Diff(want, updates); diff != "" {
		t.Errorf("updates mismatch (-want +got):\n%s", diff)
	}
}

func TestPatchMarshalOmitsUnset(t *testing.T) {
	title := "Renamed"
	p := Patch{Title: &title, Assignee: Clear[string](), EstimateMinutes: Set(45)}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"title":"Renamed","assignee":null,"estimate_minutes":45}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestPatchToUpdatesRejectsBadPriority(t *testing.T) {
	bad := "p9"
	if _, err := PatchToUpdates(Patch{Priority: &bad}); !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}
