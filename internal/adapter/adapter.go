// Package adapter maps stored issues to and from the shape handed to
// callers outside the engine (CLI JSON output, the public API).
package adapter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/utils"
)

// View is the external representation of an issue. Priority is "p0".."p4"
// and relationships are resolved into both directions.
type View struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Assignee    *string  `json:"assignee,omitempty"`
	Labels      []string `json:"labels,omitempty"`

	Parent    *string  `json:"parent,omitempty"`
	Children  []string `json:"children,omitempty"`
	BlockedBy []string `json:"blocked_by,omitempty"`
	Blocks    []string `json:"blocks,omitempty"`
	Related   []Link   `json:"related,omitempty"`

	Comments []CommentView `json:"comments,omitempty"`

	EstimateMinutes    *int            `json:"estimate_minutes,omitempty"`
	DesignNotes        *string         `json:"design_notes,omitempty"`
	AcceptanceCriteria *string         `json:"acceptance_criteria,omitempty"`
	WorkingNotes       *string         `json:"working_notes,omitempty"`
	ExternalRef        *string         `json:"external_ref,omitempty"`
	SpecID             *string         `json:"spec_id,omitempty"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`
}

// Link is a non-blocking relationship. Outgoing is true when the edge is
// stored on this issue.
type Link struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Outgoing bool   `json:"outgoing"`
}

// CommentView is a comment as shown to callers.
type CommentView struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// FormatPriority renders 0..4 as "p0".."p4".
func FormatPriority(p int) string {
	return "p" + strconv.Itoa(p)
}

// ParsePriority accepts "p0".."p4" (any case) or a bare digit.
func ParsePriority(s string) (int, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "p")
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 || n > 4 {
		return 0, types.NewValidationError("priority", fmt.Sprintf("invalid priority %q (expected p0-p4)", s))
	}
	return n, nil
}

// Index carries the relationships that are only visible from other issues:
// children and incoming dependency edges.
type Index struct {
	children map[string][]string
	incoming map[string][]*types.Dependency
}

// NewIndex builds an Index over issues. deps maps issue id to its outgoing
// edges, as returned by GetAllDependencyRecords; when nil, each issue's own
// Dependencies field is used.
func NewIndex(issues []*types.Issue, deps map[string][]*types.Dependency) *Index {
	idx := &Index{
		children: make(map[string][]string),
		incoming: make(map[string][]*types.Dependency),
	}
	for _, issue := range issues {
		if parent, ok := utils.ParentID(issue.ID); ok {
			idx.children[parent] = append(idx.children[parent], issue.ID)
		}
		if deps == nil {
			idx.addEdges(issue.Dependencies)
		}
	}
	for _, edges := range deps {
		idx.addEdges(edges)
	}
	for parent := range idx.children {
		sortChildren(idx.children[parent])
	}
	return idx
}

func (idx *Index) addEdges(edges []*types.Dependency) {
	for _, d := range edges {
		idx.incoming[d.DependsOnID] = append(idx.incoming[d.DependsOnID], d)
	}
}

// sortChildren orders ids by child number so .10 follows .9.
func sortChildren(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := utils.ChildNumber(ids[i]), utils.ChildNumber(ids[j])
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})
}

// ToView converts issue. idx may be nil, in which case only the edges
// stored on the issue itself are reported.
func ToView(issue *types.Issue, idx *Index) *View {
	v := &View{
		ID:                 issue.ID,
		Title:              issue.Title,
		Description:        issue.Description,
		Type:               string(issue.IssueType),
		Status:             string(issue.Status),
		Priority:           FormatPriority(issue.Priority),
		Assignee:           issue.Assignee,
		Labels:             issue.Labels,
		EstimateMinutes:    issue.EstimateMinutes,
		DesignNotes:        issue.DesignNotes,
		AcceptanceCriteria: issue.AcceptanceCriteria,
		WorkingNotes:       issue.WorkingNotes,
		ExternalRef:        issue.ExternalRef,
		SpecID:             issue.SpecID,
		Metadata:           issue.Metadata,
		CreatedAt:          issue.CreatedAt,
		UpdatedAt:          issue.UpdatedAt,
		ClosedAt:           issue.ClosedAt,
		SyncedAt:           issue.SyncedAt,
	}

	if parent, ok := utils.ParentID(issue.ID); ok {
		v.Parent = &parent
	}

	for _, d := range issue.Dependencies {
		switch d.Type {
		case types.DepBlocks:
			v.BlockedBy = append(v.BlockedBy, d.DependsOnID)
		case types.DepParentChild:
			if v.Parent == nil {
				parent := d.DependsOnID
				v.Parent = &parent
			}
		default:
			v.Related = append(v.Related, Link{ID: d.DependsOnID, Type: string(d.Type), Outgoing: true})
		}
	}

	if idx != nil {
		v.Children = append(v.Children, idx.children[issue.ID]...)
		for _, d := range idx.incoming[issue.ID] {
			switch d.Type {
			case types.DepBlocks:
				v.Blocks = append(v.Blocks, d.IssueID)
			case types.DepParentChild:
				if !contains(v.Children, d.IssueID) {
					v.Children = append(v.Children, d.IssueID)
				}
			default:
				v.Related = append(v.Related, Link{ID: d.IssueID, Type: string(d.Type)})
			}
		}
	}
	sort.Strings(v.BlockedBy)
	sort.Strings(v.Blocks)
	sort.SliceStable(v.Related, func(i, j int) bool { return v.Related[i].ID < v.Related[j].ID })

	for _, c := range issue.Comments {
		v.Comments = append(v.Comments, CommentView{ID: c.ID, Author: c.Author, Content: c.Content, CreatedAt: c.CreatedAt})
	}
	return v
}

// ToViews converts a batch, resolving relationships among its members.
func ToViews(issues []*types.Issue) []*View {
	idx := NewIndex(issues, nil)
	views := make([]*View, 0, len(issues))
	for _, issue := range issues {
		views = append(views, ToView(issue, idx))
	}
	return views
}

// FromView converts back to the stored shape. Only edges owned by the
// issue (BlockedBy, outgoing Related, a Parent not implied by the id) become
// dependencies; Blocks and Children belong to the other issues.
func FromView(v *View) (*types.Issue, error) {
	priority, err := ParsePriority(v.Priority)
	if err != nil {
		return nil, err
	}
	issue := &types.Issue{
		ID:                 v.ID,
		Title:              v.Title,
		Description:        v.Description,
		IssueType:          types.IssueType(v.Type),
		Status:             types.Status(v.Status),
		Priority:           priority,
		Assignee:           v.Assignee,
		Labels:             v.Labels,
		EstimateMinutes:    v.EstimateMinutes,
		DesignNotes:        v.DesignNotes,
		AcceptanceCriteria: v.AcceptanceCriteria,
		WorkingNotes:       v.WorkingNotes,
		ExternalRef:        v.ExternalRef,
		SpecID:             v.SpecID,
		Metadata:           v.Metadata,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
		ClosedAt:           v.ClosedAt,
		SyncedAt:           v.SyncedAt,
	}

	for _, id := range v.BlockedBy {
		issue.Dependencies = append(issue.Dependencies, &types.Dependency{IssueID: v.ID, DependsOnID: id, Type: types.DepBlocks})
	}
	if v.Parent != nil {
		if implied, ok := utils.ParentID(v.ID); !ok || implied != *v.Parent {
			issue.Dependencies = append(issue.Dependencies, &types.Dependency{IssueID: v.ID, DependsOnID: *v.Parent, Type: types.DepParentChild})
		}
	}
	for _, l := range v.Related {
		if l.Outgoing {
			issue.Dependencies = append(issue.Dependencies, &types.Dependency{IssueID: v.ID, DependsOnID: l.ID, Type: types.DependencyType(l.Type)})
		}
	}
	for _, c := range v.Comments {
		issue.Comments = append(issue.Comments, &types.Comment{ID: c.ID, IssueID: v.ID, Author: c.Author, Content: c.Content, CreatedAt: c.CreatedAt})
	}
	return issue, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
