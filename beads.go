// Package beads provides a minimal public API for embedding bd's issue
// datastore in other Go programs.
//
// Most callers open a project with Open (or share handles through a
// Registry) and work with the Engine methods. Views and Patches give the
// caller-facing representation used by the bd CLI.
package beads

import (
	"context"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/adapter"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/beads"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/engine"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// Engine is a handle on one project's datastore.
type Engine = engine.Engine

// Options configures Open and NewRegistry.
type Options = engine.Options

// Registry shares one Engine per project directory.
type Registry = engine.Registry

// InitResult describes a freshly initialized project.
type InitResult = engine.InitResult

// Open returns an Engine for an initialized project. The database is
// opened on first use.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	return engine.Open(ctx, opts)
}

// Init creates the .beads directory for projectDir. Safe to call again.
func Init(ctx context.Context, projectDir, prefix string) (*InitResult, error) {
	return engine.Init(ctx, projectDir, prefix)
}

// NewRegistry returns an empty Registry whose engines use defaults.
func NewRegistry(defaults Options) *Registry {
	return engine.NewRegistry(defaults)
}

// FindBeadsDir finds the .beads/ directory for startDir or its ancestors.
// Returns empty string if not found.
func FindBeadsDir(startDir string) string {
	return beads.FindBeadsDir(startDir)
}

// Caller-facing representation
type (
	View        = adapter.View
	Link        = adapter.Link
	CommentView = adapter.CommentView
	Patch       = adapter.Patch
)

// ToView converts an issue without resolving incoming edges.
func ToView(issue *Issue) *View {
	return adapter.ToView(issue, nil)
}

// Core types from internal/types
type (
	Issue          = types.Issue
	Status         = types.Status
	IssueType      = types.IssueType
	Dependency     = types.Dependency
	DependencyType = types.DependencyType
	Label          = types.Label
	Comment        = types.Comment
	Conflict       = types.Conflict
	Resolution     = types.Resolution
	IssueFilter    = types.IssueFilter
	SearchOptions  = types.SearchOptions
	SearchResult   = types.SearchResult
)

// Error types
type (
	SchemaError      = types.SchemaError
	NotFoundError    = types.NotFoundError
	ValidationError  = types.ValidationError
	IdCollisionError = types.IdCollisionError
	ImportParseError = types.ImportParseError
	ConflictDetected = types.ConflictDetected
	SyncError        = types.SyncError
	IoError          = types.IoError
)

var (
	ErrNotFound       = types.ErrNotFound
	ErrValidation     = types.ErrValidation
	ErrConflict       = types.ErrConflict
	ErrNotInitialized = types.ErrNotInitialized
)

// Status constants
const (
	StatusOpen       = types.StatusOpen
	StatusInProgress = types.StatusInProgress
	StatusBlocked    = types.StatusBlocked
	StatusClosed     = types.StatusClosed
	StatusDeferred   = types.StatusDeferred
	StatusTombstone  = types.StatusTombstone
)

// IssueType constants
const (
	TypeBug     = types.TypeBug
	TypeFeature = types.TypeFeature
	TypeTask    = types.TypeTask
	TypeEpic    = types.TypeEpic
	TypeChore   = types.TypeChore
)

// DependencyType constants
const (
	DepBlocks         = types.DepBlocks
	DepRelated        = types.DepRelated
	DepParentChild    = types.DepParentChild
	DepDiscoveredFrom = types.DepDiscoveredFrom
)

// Resolution constants
const (
	ResolveLocal  = types.ResolveLocal
	ResolveRemote = types.ResolveRemote
)
