// Package syncer runs the export, commit, pull, import, push cycle that
// keeps a project's store converged with its git remote.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/debug"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/export"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/importer"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/lockfile"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// Git is the version-control collaborator a sync cycle drives.
type Git interface {
	// Commit stages and commits path; unchanged files are not committed.
	Commit(ctx context.Context, path, message string) error
	// Pull rebases local commits onto the remote.
	Pull(ctx context.Context) error
	// Push publishes local commits.
	Push(ctx context.Context) error
}

// LastSyncAtKey is the metadata key written after a completed cycle.
const LastSyncAtKey = "last_sync_at"

// DefaultCommitMessage is used when Options.CommitMessage is empty.
const DefaultCommitMessage = "bd sync: update issues"

// Skip reasons reported in Result.SkipReason.
const (
	SkipCooldown   = "cooldown"
	SkipInProgress = "sync already in progress"
	SkipLocked     = "locked by another process"
)

// Options configures a Syncer.
type Options struct {
	JSONLPath     string
	Cooldown      time.Duration    // minimum interval between cycles; 0 disables
	Clock         func() time.Time // defaults to time.Now
	CommitMessage string
	LockPath      string // cross-process lock file; empty disables
	NoPush        bool
}

// Result describes one Sync call.
type Result struct {
	Skipped     bool             `json:"skipped"`
	SkipReason  string           `json:"skip_reason,omitempty"`
	WorkingTree *importer.Result `json:"working_tree,omitempty"` // checked-out file merged before export
	Exported    int              `json:"exported"`
	Import      *importer.Result `json:"import,omitempty"`
	Pushed      bool             `json:"pushed"`
}

// Syncer drives sync cycles for one project. Safe for concurrent use; at
// most one cycle runs at a time.
type Syncer struct {
	store   storage.Storage
	git     Git
	opts    Options
	limiter *rate.Limiter
	running sync.Mutex
}

// New builds a Syncer. git may be nil only if Sync is never called.
func New(store storage.Storage, git Git, opts Options) *Syncer {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.CommitMessage == "" {
		opts.CommitMessage = DefaultCommitMessage
	}
	limit := rate.Inf
	if opts.Cooldown > 0 {
		limit = rate.Every(opts.Cooldown)
	}
	return &Syncer{
		store:   store,
		git:     git,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Sync runs one cycle: export → commit → pull → import → push.
//
// The checked-out interchange file is merged into the store before the
// export, so records a peer committed earlier are never overwritten by a
// store that has not seen them. After the import the store is exported and
// committed again, leaving the pushed file equal to what every converged
// clone would export.
//
// Inside the cooldown window, or while another cycle holds the lock, Sync
// returns a skipped Result without touching git or the store. The window
// is measured from the last completed cycle recorded in the store, so it
// holds across processes. A failing git step before import aborts the
// cycle, so nothing is imported from a partially merged file. A push
// failure is returned together with the Result, since the import has
// already been applied.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	if s.git == nil {
		return nil, &types.SyncError{Step: "commit", Err: errors.New("no git collaborator configured")}
	}
	if !s.running.TryLock() {
		return &Result{Skipped: true, SkipReason: SkipInProgress}, nil
	}
	defer s.running.Unlock()

	if s.opts.LockPath != "" {
		lock := lockfile.New(s.opts.LockPath)
		if err := lock.TryLock(); err != nil {
			if errors.Is(err, lockfile.ErrLocked) {
				return &Result{Skipped: true, SkipReason: SkipLocked}, nil
			}
			return nil, &types.SyncError{Step: "lock", Err: err}
		}
		defer func() { _ = lock.Unlock() }()
	}

	now := s.opts.Clock()
	if s.inCooldown(ctx, now) || !s.limiter.AllowN(now, 1) {
		debug.Logf("sync skipped: inside %s cooldown\n", s.opts.Cooldown)
		return &Result{Skipped: true, SkipReason: SkipCooldown}, nil
	}

	result := &Result{}
	checkedOut, err := s.importFile(ctx)
	if err != nil {
		return nil, err
	}
	result.WorkingTree = checkedOut

	exported, err := s.exportAndCommit(ctx)
	if err != nil {
		return nil, err
	}
	result.Exported = exported

	if err := s.git.Pull(ctx); err != nil {
		return nil, &types.SyncError{Step: "pull", Err: err}
	}

	imported, err := s.importFile(ctx)
	if err != nil {
		return nil, err
	}
	result.Import = imported

	if _, err := s.exportAndCommit(ctx); err != nil {
		return result, err
	}

	if !s.opts.NoPush {
		if err := s.git.Push(ctx); err != nil {
			return result, &types.SyncError{Step: "push", Err: err}
		}
		result.Pushed = true
	}

	if err := s.store.SetMetadata(ctx, LastSyncAtKey, s.opts.Clock().UTC().Format(time.RFC3339Nano)); err != nil {
		return result, fmt.Errorf("failed to record sync time: %w", err)
	}
	debug.Logf("sync: exported=%d created=%d updated=%d conflicts=%d pushed=%v\n",
		result.Exported, imported.Created, imported.Updated, imported.Conflicts, result.Pushed)
	return result, nil
}

// inCooldown reports whether the last completed cycle, possibly run by
// another process, ended less than Cooldown before now.
func (s *Syncer) inCooldown(ctx context.Context, now time.Time) bool {
	if s.opts.Cooldown <= 0 {
		return false
	}
	raw, err := s.store.GetMetadata(ctx, LastSyncAtKey)
	if err != nil || raw == "" {
		return false
	}
	last, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		debug.Logf("sync: ignoring unreadable %s %q: %v\n", LastSyncAtKey, raw, err)
		return false
	}
	return now.Sub(last) < s.opts.Cooldown
}

func (s *Syncer) importFile(ctx context.Context) (*importer.Result, error) {
	result, err := importer.ImportFile(ctx, s.store, s.opts.JSONLPath, importer.Options{Now: s.opts.Clock})
	if err != nil {
		return nil, &types.SyncError{Step: "import", Err: err}
	}
	return result, nil
}

func (s *Syncer) exportAndCommit(ctx context.Context) (int, error) {
	exported, err := export.WriteJSONL(ctx, s.store, s.opts.JSONLPath, export.Options{})
	if err != nil {
		return 0, &types.SyncError{Step: "export", Err: err}
	}
	if err := s.git.Commit(ctx, s.opts.JSONLPath, s.opts.CommitMessage); err != nil {
		return 0, &types.SyncError{Step: "commit", Err: err}
	}
	return exported.Exported, nil
}
