// Package engine is the per-project entry point: it owns one store handle,
// opened on first use, and serializes every call through it.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/adapter"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/beads"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/configfile"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/debug"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/export"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/git"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/importer"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/migrate"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage/sqlite"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/syncer"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/utils"
)

// SyncLockName is the cross-process sync lock inside .beads.
const SyncLockName = "sync.lock"

// Options configures an Engine.
type Options struct {
	ProjectDir string
	// Prefix is stored as issue_prefix when the database has none yet.
	Prefix        string
	Git           syncer.Git // defaults to git.New(ProjectDir)
	Cooldown      time.Duration
	CommitMessage string
	NoPush        bool
	Clock         func() time.Time
}

// Engine serves one project. All methods are safe for concurrent use and
// run one at a time.
type Engine struct {
	mu       sync.Mutex
	opts     Options
	beadsDir string
	cfg      *configfile.Config
	store    *sqlite.SQLiteStorage
	syncer   *syncer.Syncer
	closed   bool
}

// Open prepares an Engine for opts.ProjectDir. The database is not opened
// until the first call that needs it. A project without .beads returns
// types.ErrNotInitialized.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	dir, err := filepath.Abs(opts.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project dir: %w", err)
	}
	opts.ProjectDir = dir

	beadsDir := filepath.Join(dir, beads.DirName)
	if info, err := os.Stat(beadsDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: no %s directory in %s (run 'bd init')", types.ErrNotInitialized, beads.DirName, dir)
	}
	cfg, err := configfile.LoadOrDefault(beadsDir)
	if err != nil {
		return nil, err
	}
	if opts.Git == nil {
		opts.Git = git.New(dir)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{opts: opts, beadsDir: beadsDir, cfg: cfg}, nil
}

// ProjectDir returns the absolute project directory.
func (e *Engine) ProjectDir() string { return e.opts.ProjectDir }

// BeadsDir returns the project's .beads directory.
func (e *Engine) BeadsDir() string { return e.beadsDir }

// DatabasePath returns the database file location.
func (e *Engine) DatabasePath() string { return e.cfg.DatabasePath(e.beadsDir) }

// JSONLPath returns the interchange file location.
func (e *Engine) JSONLPath() string { return e.cfg.JSONLPath(e.beadsDir) }

// AttachmentsPath returns the attachment directory.
func (e *Engine) AttachmentsPath() string { return e.cfg.AttachmentsPath(e.beadsDir) }

// open lazily opens the store. Callers hold e.mu.
func (e *Engine) open(ctx context.Context) (*sqlite.SQLiteStorage, error) {
	if e.closed {
		return nil, fmt.Errorf("engine for %s is closed", e.opts.ProjectDir)
	}
	if e.store != nil {
		return e.store, nil
	}

	store, err := sqlite.New(ctx, e.DatabasePath())
	if err != nil {
		return nil, err
	}
	if e.opts.Prefix != "" {
		existing, err := store.GetConfig(ctx, "issue_prefix")
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if existing == "" {
			if err := store.SetConfig(ctx, "issue_prefix", e.opts.Prefix); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
	}
	debug.Logf("engine: opened %s\n", e.DatabasePath())

	e.store = store
	e.syncer = syncer.New(store, e.opts.Git, syncer.Options{
		JSONLPath:     e.JSONLPath(),
		Cooldown:      e.opts.Cooldown,
		Clock:         e.opts.Clock,
		CommitMessage: e.opts.CommitMessage,
		LockPath:      filepath.Join(e.beadsDir, SyncLockName),
		NoPush:        e.opts.NoPush,
	})
	return store, nil
}

// with runs fn against the open store under the engine lock.
func (e *Engine) with(ctx context.Context, fn func(store *sqlite.SQLiteStorage) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	store, err := e.open(ctx)
	if err != nil {
		return err
	}
	return fn(store)
}

// Close releases the database handle. Further calls fail.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.store == nil {
		return nil
	}
	err := e.store.Close()
	e.store = nil
	e.syncer = nil
	return err
}

// ResolveID expands a partial or unprefixed id to a full one.
func (e *Engine) ResolveID(ctx context.Context, input string) (string, error) {
	var id string
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		id, err = utils.ResolvePartialID(ctx, store, input)
		return err
	})
	return id, err
}

// CreateIssue creates a root issue, or a child of parentID when non-empty.
func (e *Engine) CreateIssue(ctx context.Context, issue *types.Issue, parentID, actor string) (*types.Issue, error) {
	var created *types.Issue
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		if parentID != "" {
			created, err = store.CreateChildIssue(ctx, parentID, issue, actor)
		} else {
			created, err = store.CreateIssue(ctx, issue, actor)
		}
		return err
	})
	return created, err
}

// GetIssue returns the issue with its labels, comments and dependencies.
func (e *Engine) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	var issue *types.Issue
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		issue, err = store.GetIssueDetails(ctx, id)
		return err
	})
	return issue, err
}

// ListIssues returns issues matching filter.
func (e *Engine) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	var issues []*types.Issue
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		issues, err = store.ListIssues(ctx, filter)
		return err
	})
	return issues, err
}

// UpdateIssue applies a raw update map.
func (e *Engine) UpdateIssue(ctx context.Context, id string, updates map[string]interface{}, actor string) (*types.Issue, error) {
	var issue *types.Issue
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		issue, err = store.UpdateIssue(ctx, id, updates, actor)
		return err
	})
	return issue, err
}

// ApplyPatch applies an external patch.
func (e *Engine) ApplyPatch(ctx context.Context, id string, patch adapter.Patch, actor string) (*types.Issue, error) {
	updates, err := adapter.PatchToUpdates(patch)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return e.GetIssue(ctx, id)
	}
	return e.UpdateIssue(ctx, id, updates, actor)
}

// CloseIssue closes id.
func (e *Engine) CloseIssue(ctx context.Context, id, actor string) (*types.Issue, error) {
	var issue *types.Issue
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		issue, err = store.CloseIssue(ctx, id, actor)
		return err
	})
	return issue, err
}

// ReopenIssue reopens id.
func (e *Engine) ReopenIssue(ctx context.Context, id, actor string) (*types.Issue, error) {
	var issue *types.Issue
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		issue, err = store.ReopenIssue(ctx, id, actor)
		return err
	})
	return issue, err
}

// DeleteIssue tombstones id, or removes it entirely when hard is set.
func (e *Engine) DeleteIssue(ctx context.Context, id string, hard bool) error {
	return e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		return store.DeleteIssue(ctx, id, hard)
	})
}

// ReadyWork returns open issues with no open blockers.
func (e *Engine) ReadyWork(ctx context.Context, limit int) ([]*types.Issue, error) {
	var issues []*types.Issue
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		issues, err = store.GetReadyWork(ctx, limit)
		return err
	})
	return issues, err
}

// AddComment appends a comment to issueID.
func (e *Engine) AddComment(ctx context.Context, issueID, author, content string) (*types.Comment, error) {
	var c *types.Comment
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		c, err = store.AddComment(ctx, issueID, author, content)
		return err
	})
	return c, err
}

// DeleteComment removes a comment by id.
func (e *Engine) DeleteComment(ctx context.Context, commentID string) error {
	return e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		return store.DeleteComment(ctx, commentID)
	})
}

// AddLabel attaches a normalized label. A duplicate is a ValidationError.
func (e *Engine) AddLabel(ctx context.Context, issueID, label, actor string) error {
	return e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		return store.AddLabel(ctx, issueID, label, actor)
	})
}

// RemoveLabel detaches a label.
func (e *Engine) RemoveLabel(ctx context.Context, issueID, label, actor string) error {
	return e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		return store.RemoveLabel(ctx, issueID, label, actor)
	})
}

// AddDependency adds an edge, rejecting blocking edges that would close a
// cycle.
func (e *Engine) AddDependency(ctx context.Context, dep *types.Dependency, actor string) error {
	return e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		return store.AddDependency(ctx, dep, actor)
	})
}

// RemoveDependency deletes the edge issueID -> dependsOnID.
func (e *Engine) RemoveDependency(ctx context.Context, issueID, dependsOnID, actor string) error {
	return e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		return store.RemoveDependency(ctx, issueID, dependsOnID, actor)
	})
}

// Search runs a ranked full-text query.
func (e *Engine) Search(ctx context.Context, query string, opts types.SearchOptions) ([]*types.SearchResult, error) {
	var results []*types.SearchResult
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		results, err = store.Search(ctx, query, opts)
		return err
	})
	return results, err
}

// ListConflicts returns the open conflicts recorded by imports.
func (e *Engine) ListConflicts(ctx context.Context) ([]*types.Conflict, error) {
	var conflicts []*types.Conflict
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		conflicts, err = store.ListConflicts(ctx)
		return err
	})
	return conflicts, err
}

// GetConflict returns one conflict with both snapshots.
func (e *Engine) GetConflict(ctx context.Context, id string) (*types.Conflict, error) {
	var conflict *types.Conflict
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		conflict, err = store.GetConflict(ctx, id)
		return err
	})
	return conflict, err
}

// ResolveConflict keeps the local or the remote side and removes the
// conflict. It returns the issue as stored afterwards.
func (e *Engine) ResolveConflict(ctx context.Context, id string, choice types.Resolution, actor string) (*types.Issue, error) {
	var issue *types.Issue
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		issue, err = store.ResolveConflict(ctx, id, choice, actor)
		return err
	})
	return issue, err
}

// DismissConflict drops the conflict without touching the issue.
func (e *Engine) DismissConflict(ctx context.Context, id string) error {
	return e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		return store.DismissConflict(ctx, id)
	})
}

// Export writes every issue to path, or to the interchange file when path
// is empty.
func (e *Engine) Export(ctx context.Context, path string, force bool) (*export.Result, error) {
	if path == "" {
		path = e.JSONLPath()
	}
	var result *export.Result
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		result, err = export.WriteJSONL(ctx, store, path, export.Options{Force: force})
		return err
	})
	return result, err
}

// Import merges path (the interchange file when empty) into the store.
func (e *Engine) Import(ctx context.Context, path string, dryRun bool) (*importer.Result, error) {
	if path == "" {
		path = e.JSONLPath()
	}
	var result *importer.Result
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		result, err = importer.ImportFile(ctx, store, path, importer.Options{DryRun: dryRun, Now: e.opts.Clock})
		return err
	})
	return result, err
}

// Migrate imports a legacy export. Attachments go to the project's
// attachment directory unless opts names another.
func (e *Engine) Migrate(ctx context.Context, opts migrate.Options) (*migrate.Result, error) {
	if opts.AttachmentsSrc != "" && opts.AttachmentsDst == "" {
		opts.AttachmentsDst = e.AttachmentsPath()
	}
	if opts.Now == nil {
		opts.Now = e.opts.Clock
	}
	var result *migrate.Result
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		result, err = migrate.Run(ctx, store, opts)
		return err
	})
	return result, err
}

// Sync runs one sync cycle.
func (e *Engine) Sync(ctx context.Context) (*syncer.Result, error) {
	var result *syncer.Result
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		var err error
		result, err = e.syncer.Sync(ctx)
		return err
	})
	return result, err
}

// Views converts issues to the external shape, resolving children and
// incoming edges against the whole store.
func (e *Engine) Views(ctx context.Context, issues []*types.Issue) ([]*adapter.View, error) {
	var views []*adapter.View
	err := e.with(ctx, func(store *sqlite.SQLiteStorage) error {
		all, err := store.ListIssues(ctx, types.IssueFilter{})
		if err != nil {
			return err
		}
		deps, err := store.GetAllDependencyRecords(ctx)
		if err != nil {
			return err
		}
		idx := adapter.NewIndex(all, deps)
		views = make([]*adapter.View, 0, len(issues))
		for _, issue := range issues {
			if issue.Dependencies == nil {
				withDeps := *issue
				withDeps.Dependencies = deps[issue.ID]
				issue = &withDeps
			}
			views = append(views, adapter.ToView(issue, idx))
		}
		return nil
	})
	return views, err
}
