// Package storage defines the interface for issue storage backends.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// Storage defines the interface for issue storage backends
type Storage interface {
	// Issues
	CreateIssue(ctx context.Context, issue *types.Issue, actor string) (*types.Issue, error)
	CreateChildIssue(ctx context.Context, parentID string, issue *types.Issue, actor string) (*types.Issue, error)
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	GetIssueDetails(ctx context.Context, id string) (*types.Issue, error)
	ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)
	UpdateIssue(ctx context.Context, id string, updates map[string]interface{}, actor string) (*types.Issue, error)
	CloseIssue(ctx context.Context, id string, actor string) (*types.Issue, error)
	ReopenIssue(ctx context.Context, id string, actor string) (*types.Issue, error)
	DeleteIssue(ctx context.Context, id string, hard bool) error
	GetReadyWork(ctx context.Context, limit int) ([]*types.Issue, error)

	// Comments
	AddComment(ctx context.Context, issueID, author, content string) (*types.Comment, error)
	GetComments(ctx context.Context, issueID string) ([]*types.Comment, error)
	DeleteComment(ctx context.Context, commentID string) error

	// Labels
	AddLabel(ctx context.Context, issueID, label, actor string) error
	RemoveLabel(ctx context.Context, issueID, label, actor string) error
	GetLabels(ctx context.Context, issueID string) ([]string, error)

	// Dependencies
	AddDependency(ctx context.Context, dep *types.Dependency, actor string) error
	RemoveDependency(ctx context.Context, issueID, dependsOnID string, actor string) error
	GetDependencies(ctx context.Context, issueID string) ([]*types.Dependency, error)
	GetDependents(ctx context.Context, issueID string) ([]*types.Dependency, error)
	GetAllDependencyRecords(ctx context.Context) (map[string][]*types.Dependency, error)

	// Search
	Search(ctx context.Context, query string, opts types.SearchOptions) ([]*types.SearchResult, error)

	// Conflicts
	ListConflicts(ctx context.Context) ([]*types.Conflict, error)
	GetConflict(ctx context.Context, id string) (*types.Conflict, error)
	ResolveConflict(ctx context.Context, id string, choice types.Resolution, actor string) (*types.Issue, error)
	DismissConflict(ctx context.Context, id string) error

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Config
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)

	// Lifecycle
	Close() error
	Path() string
	UnderlyingDB() *sql.DB
}

// Transaction is the set of operations the importer and conflict
// resolution need inside a single database transaction. Timestamps and ids
// are taken from the caller as-is.
type Transaction interface {
	// GetIssueDetails returns the issue with labels, comments and
	// dependencies, or nil when absent.
	GetIssueDetails(ctx context.Context, id string) (*types.Issue, error)
	// InsertIssue stores an issue with its labels and comments, registering
	// its id in the id ledger.
	InsertIssue(ctx context.Context, issue *types.Issue) error
	// ReplaceIssue overwrites every column, the label set and the comment
	// set (comments are merged by id; local-only comments are kept).
	ReplaceIssue(ctx context.Context, issue *types.Issue) (commentsAdded int, err error)
	// SetDependencies replaces the outgoing dependency set of issueID.
	// Edges to unknown issues are skipped and returned.
	SetDependencies(ctx context.Context, issueID string, deps []*types.Dependency) (skipped []string, err error)
	// MarkSynced sets synced_at without touching updated_at.
	MarkSynced(ctx context.Context, issueID string, at time.Time) error
	// MarkReconciled sets both updated_at and synced_at to at.
	MarkReconciled(ctx context.Context, issueID string, at time.Time) error
	// BumpUpdatedAt moves updated_at strictly past floor.
	BumpUpdatedAt(ctx context.Context, issueID string, floor time.Time) error
	// UpsertConflict records a conflict for issueID, refreshing an existing
	// open conflict for the same issue instead of adding a second one.
	UpsertConflict(ctx context.Context, local, remote *types.Issue) (id string, created bool, err error)
	// GetOpenConflictForIssue returns the open conflict for issueID or nil.
	GetOpenConflictForIssue(ctx context.Context, issueID string) (*types.Conflict, error)
	// DeleteConflict removes a conflict row; NotFoundError if absent.
	DeleteConflict(ctx context.Context, id string) error
}
