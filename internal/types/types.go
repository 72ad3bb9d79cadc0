// Package types defines core data structures for the bd issue tracker.
package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"hash"
	"sort"
	"strings"
	"time"
)

// Issue represents a trackable work item.
//
// Field order matches the JSONL interchange record so encoding/json emits
// a stable field order and exported diffs stay minimal.
type Issue struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IssueType   IssueType `json:"type"`
	Status      Status    `json:"status"`
	Priority    int       `json:"priority"` // 0 is valid (P0/critical)
	Assignee    *string   `json:"assignee,omitempty"`
	Labels      []string  `json:"labels,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`

	Comments     []*Comment    `json:"comments,omitempty"`
	Dependencies []*Dependency `json:"dependencies,omitempty"`

	// Metadata is an opaque structured blob owned by the caller.
	Metadata json.RawMessage `json:"metadata,omitempty"`
	// SyncedAt is the UpdatedAt of the version last reconciled with a peer.
	// A local edit moves UpdatedAt past it.
	SyncedAt *time.Time `json:"synced_at,omitempty"`

	ExternalRef        *string `json:"external_ref,omitempty"`
	EstimateMinutes    *int    `json:"estimate_minutes,omitempty"`
	DesignNotes        *string `json:"design_notes,omitempty"`
	AcceptanceCriteria *string `json:"acceptance_criteria,omitempty"`
	WorkingNotes       *string `json:"working_notes,omitempty"`
	SpecID             *string `json:"spec_id,omitempty"`
}

// Status represents the current state of an issue
type Status string

// Issue status constants
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
	StatusDeferred   Status = "deferred"
	StatusTombstone  Status = "tombstone" // Soft-deleted issue
	StatusPinned     Status = "pinned"
	StatusHooked     Status = "hooked"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusClosed,
		StatusDeferred, StatusTombstone, StatusPinned, StatusHooked:
		return true
	}
	return false
}

// IssueType categorizes the kind of work
type IssueType string

// Issue type constants
const (
	TypeTask    IssueType = "task"
	TypeBug     IssueType = "bug"
	TypeFeature IssueType = "feature"
	TypeEpic    IssueType = "epic"
	TypeChore   IssueType = "chore"
)

// IsValid checks if the issue type value is valid
func (t IssueType) IsValid() bool {
	switch t {
	case TypeTask, TypeBug, TypeFeature, TypeEpic, TypeChore:
		return true
	}
	return false
}

// DependencyType categorizes the relationship
type DependencyType string

// Dependency type constants
const (
	DepBlocks         DependencyType = "blocks"
	DepParentChild    DependencyType = "parent-child"
	DepRelatesTo      DependencyType = "relates-to"
	DepRelated        DependencyType = "related"
	DepDuplicates     DependencyType = "duplicates"
	DepSupersedes     DependencyType = "supersedes"
	DepCausedBy       DependencyType = "caused-by"
	DepDiscoveredFrom DependencyType = "discovered-from"
)

// IsValid checks if the dependency type is one of the recognized kinds
func (d DependencyType) IsValid() bool {
	switch d {
	case DepBlocks, DepParentChild, DepRelatesTo, DepRelated,
		DepDuplicates, DepSupersedes, DepCausedBy, DepDiscoveredFrom:
		return true
	}
	return false
}

// AffectsReadyWork returns true if this dependency type blocks work.
func (d DependencyType) AffectsReadyWork() bool {
	return d == DepBlocks
}

// Dependency represents a relationship between issues.
// IssueID is the blocked (dependent) side, DependsOnID the blocker.
type Dependency struct {
	IssueID     string         `json:"issue_id"`
	DependsOnID string         `json:"depends_on_id"`
	Type        DependencyType `json:"type"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Comment represents a comment on an issue
type Comment struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issue_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Label represents a tag on an issue
type Label struct {
	IssueID string `json:"issue_id"`
	Label   string `json:"label"`
}

// ConflictStatus is the lifecycle state of a merge conflict
type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
)

// Conflict captures both sides of an issue that diverged locally and remotely
// since the last sync.
type Conflict struct {
	ID        string         `json:"id"`
	IssueID   string         `json:"issue_id"`
	Local     *Issue         `json:"local"`
	Remote    *Issue         `json:"remote"`
	CreatedAt time.Time      `json:"created_at"`
	Status    ConflictStatus `json:"status"`
}

// Resolution selects which side of a conflict wins.
type Resolution string

const (
	ResolveLocal  Resolution = "local"
	ResolveRemote Resolution = "remote"
)

// IsValid reports whether r names a side.
func (r Resolution) IsValid() bool {
	return r == ResolveLocal || r == ResolveRemote
}

// IssueFilter is used to filter issue listings
type IssueFilter struct {
	Status            *Status
	IssueType         *IssueType
	Priority          *int
	Assignee          *string
	Labels            []string // AND semantics
	IDs               []string
	IncludeTombstones bool
	Limit             int
}

// SearchOptions tunes a full-text query.
type SearchOptions struct {
	Limit             int // 0 means DefaultSearchLimit
	IncludeTombstones bool
}

// DefaultSearchLimit caps search results when no limit is given.
const DefaultSearchLimit = 50

// SearchResult is one ranked hit from the full-text index.
type SearchResult struct {
	Issue   *Issue  `json:"issue"`
	Score   float64 `json:"score"`   // higher is more relevant
	Snippet string  `json:"snippet"` // matched terms wrapped in [ ]
}

// MaxTitleLength bounds Issue.Title.
const MaxTitleLength = 500

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return NewValidationError("title", "title is required")
	}
	if len(i.Title) > MaxTitleLength {
		return NewValidationError("title", fmt.Sprintf("title must be %d characters or less (got %d)", MaxTitleLength, len(i.Title)))
	}
	if i.Priority < 0 || i.Priority > 4 {
		return NewValidationError("priority", fmt.Sprintf("priority must be between 0 and 4 (got %d)", i.Priority))
	}
	if !i.Status.IsValid() {
		return NewValidationError("status", fmt.Sprintf("invalid status: %q", i.Status))
	}
	if !i.IssueType.IsValid() {
		return NewValidationError("type", fmt.Sprintf("invalid issue type: %q", i.IssueType))
	}
	if i.EstimateMinutes != nil && *i.EstimateMinutes < 0 {
		return NewValidationError("estimate_minutes", "estimate_minutes cannot be negative")
	}
	if len(i.Metadata) > 0 && !json.Valid(i.Metadata) {
		return NewValidationError("metadata", "metadata must be valid JSON")
	}
	for _, l := range i.Labels {
		if NormalizeLabel(l) == "" {
			return NewValidationError("labels", "labels cannot be empty")
		}
	}
	for _, d := range i.Dependencies {
		if !d.Type.IsValid() {
			return NewValidationError("dependencies", fmt.Sprintf("invalid dependency type: %q", d.Type))
		}
	}
	return nil
}

// SetDefaults applies default values for fields omitted during JSONL import.
func (i *Issue) SetDefaults() {
	if i.Status == "" {
		i.Status = StatusOpen
	}
	if i.IssueType == "" {
		i.IssueType = TypeTask
	}
}

// IsTombstone returns true if the issue has been soft-deleted
func (i *Issue) IsTombstone() bool {
	return i.Status == StatusTombstone
}

// ChangedSinceSync reports whether the issue was modified after its last
// reconciliation. Issues that were never synced count as changed.
func (i *Issue) ChangedSinceSync() bool {
	if i.SyncedAt == nil {
		return true
	}
	return i.UpdatedAt.After(*i.SyncedAt)
}

// NormalizeLabel lower-cases and trims a label.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// NormalizeLabels normalizes, de-duplicates and sorts labels.
func NormalizeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		n := NormalizeLabel(l)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ContentHash creates a deterministic hash of the issue's content,
// including labels, dependencies and comments. Timestamps that only track
// bookkeeping (created_at, updated_at, synced_at) are excluded so the same
// content hashes identically on every clone.
func (i *Issue) ContentHash() string {
	h := sha256.New()
	w := hashFieldWriter{h}

	w.str(i.ID)
	w.str(i.Title)
	w.str(i.Description)
	w.str(string(i.IssueType))
	w.str(string(i.Status))
	w.int(i.Priority)
	w.strPtr(i.Assignee)
	w.timePtr(i.ClosedAt)
	w.strPtr(i.ExternalRef)
	w.intPtr(i.EstimateMinutes)
	w.strPtr(i.DesignNotes)
	w.strPtr(i.AcceptanceCriteria)
	w.strPtr(i.WorkingNotes)
	w.strPtr(i.SpecID)
	w.str(string(CompactMetadata(i.Metadata)))

	for _, l := range NormalizeLabels(i.Labels) {
		w.str(l)
	}
	w.str("|deps")
	deps := make([]string, 0, len(i.Dependencies))
	for _, d := range i.Dependencies {
		deps = append(deps, d.DependsOnID+"\x00"+string(d.Type))
	}
	sort.Strings(deps)
	for _, d := range deps {
		w.str(d)
	}
	w.str("|comments")
	comments := append([]*Comment(nil), i.Comments...)
	sort.Slice(comments, func(a, b int) bool { return comments[a].ID < comments[b].ID })
	for _, c := range comments {
		w.str(c.ID)
		w.str(c.Author)
		w.str(c.Content)
		w.str(c.CreatedAt.UTC().Format(time.RFC3339Nano))
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}

// CompactMetadata strips insignificant whitespace so equal JSON blobs
// compare equal byte for byte. Invalid JSON is returned unchanged.
func CompactMetadata(m json.RawMessage) json.RawMessage {
	if len(m) == 0 {
		return m
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, m); err != nil {
		return m
	}
	return buf.Bytes()
}

// hashFieldWriter writes each value followed by a null separator.
type hashFieldWriter struct {
	h hash.Hash
}

func (w hashFieldWriter) str(s string) {
	w.h.Write([]byte(s))
	w.h.Write([]byte{0})
}

func (w hashFieldWriter) int(n int) {
	w.h.Write([]byte(fmt.Sprintf("%d", n)))
	w.h.Write([]byte{0})
}

func (w hashFieldWriter) strPtr(p *string) {
	if p != nil {
		w.h.Write([]byte("="))
		w.h.Write([]byte(*p))
	}
	w.h.Write([]byte{0})
}

func (w hashFieldWriter) intPtr(p *int) {
	if p != nil {
		w.h.Write([]byte(fmt.Sprintf("=%d", *p)))
	}
	w.h.Write([]byte{0})
}

func (w hashFieldWriter) timePtr(p *time.Time) {
	if p != nil {
		w.h.Write([]byte(p.UTC().Format(time.RFC3339Nano)))
	}
	w.h.Write([]byte{0})
}

// Clone returns a deep copy of the issue.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	c := *i
	c.Assignee = cloneStr(i.Assignee)
	c.ExternalRef = cloneStr(i.ExternalRef)
	c.DesignNotes = cloneStr(i.DesignNotes)
	c.AcceptanceCriteria = cloneStr(i.AcceptanceCriteria)
	c.WorkingNotes = cloneStr(i.WorkingNotes)
	c.SpecID = cloneStr(i.SpecID)
	if i.EstimateMinutes != nil {
		v := *i.EstimateMinutes
		c.EstimateMinutes = &v
	}
	if i.ClosedAt != nil {
		t := *i.ClosedAt
		c.ClosedAt = &t
	}
	if i.SyncedAt != nil {
		t := *i.SyncedAt
		c.SyncedAt = &t
	}
	if i.Metadata != nil {
		c.Metadata = append(json.RawMessage(nil), i.Metadata...)
	}
	if i.Labels != nil {
		c.Labels = append([]string(nil), i.Labels...)
	}
	if i.Comments != nil {
		c.Comments = make([]*Comment, len(i.Comments))
		for k, cm := range i.Comments {
			cc := *cm
			c.Comments[k] = &cc
		}
	}
	if i.Dependencies != nil {
		c.Dependencies = make([]*Dependency, len(i.Dependencies))
		for k, d := range i.Dependencies {
			dd := *d
			c.Dependencies[k] = &dd
		}
	}
	return &c
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StringPtr is a small helper for building issues in code and tests.
func StringPtr(s string) *string { return &s }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
