// Package importer merges interchange records into the store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/debug"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// commentNamespace derives ids for comments that arrive without one.
var commentNamespace = uuid.MustParse("6f1d8a4e-6b63-4c1e-9a53-2f0f6d2b7c11")

// Metadata keys written after a successful import.
const (
	LastImportAtKey = "last_import_at"
)

// Options contains import configuration
type Options struct {
	DryRun bool             // Preview changes without applying them
	Now    func() time.Time // Clock for last_import_at and missing created_at; defaults to time.Now
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// Result contains statistics about the import operation
type Result struct {
	Created             int                       `json:"created"`   // New issues inserted
	Updated             int                       `json:"updated"`   // Local copies overwritten by newer remote ones
	Unchanged           int                       `json:"unchanged"` // Identical content (idempotent)
	Stale               int                       `json:"stale"`     // Remote copy older than an unedited local one
	KeptLocal           int                       `json:"kept_local"`
	Conflicts           int                       `json:"conflicts"` // Newly recorded conflicts
	ConflictIDs         []string                  `json:"conflict_ids,omitempty"`
	CommentsAdded       int                       `json:"comments_added"`
	Invalid             []string                  `json:"invalid,omitempty"`              // Records rejected by validation
	SkippedDependencies []string                  `json:"skipped_dependencies,omitempty"` // Edges to unknown issues
	ParseErrors         []*types.ImportParseError `json:"-"`
}

// Changed reports whether the import wrote anything.
func (r *Result) Changed() bool {
	return r.Created > 0 || r.Updated > 0 || r.Conflicts > 0 || r.CommentsAdded > 0
}

var errDryRun = errors.New("dry run")

// ImportFile parses path and imports its records. A missing file imports
// nothing.
func ImportFile(ctx context.Context, store storage.Storage, path string, opts Options) (*Result, error) {
	f, err := os.Open(path) // #nosec G304 - path is the configured interchange file
	if err != nil {
		if os.IsNotExist(err) {
			return &Result{}, nil
		}
		return nil, &types.IoError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	issues, parseErrs, err := ParseJSONL(f)
	if err != nil {
		return nil, err
	}
	result, err := ImportIssues(ctx, store, issues, opts)
	if err != nil {
		return nil, err
	}
	result.ParseErrors = parseErrs
	return result, nil
}

// ImportIssues merges issues into store inside one transaction.
//
// For each record:
//   - absent locally: inserted, synced_at = its updated_at
//   - same content: unchanged; both sides settle on the later updated_at
//   - local unedited since its last sync: the remote copy wins when newer
//   - both sides edited since the last sync: a conflict is recorded and the
//     local copy is left alone
//   - local edited, remote not: local is kept
//
// Local issues missing from issues are never touched. Dependencies are
// applied after every record is in place; edges to unknown issues are
// skipped and reported.
func ImportIssues(ctx context.Context, store storage.Storage, issues []*types.Issue, opts Options) (*Result, error) {
	result := &Result{}
	now := opts.now()

	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var written []*types.Issue
		for _, incoming := range issues {
			rec, err := normalize(incoming, now)
			if err != nil {
				result.Invalid = append(result.Invalid, fmt.Sprintf("%s: %v", incoming.ID, err))
				continue
			}
			applied, err := mergeOne(ctx, tx, rec, result)
			if err != nil {
				return err
			}
			if applied {
				written = append(written, rec)
			}
		}

		for _, rec := range written {
			skipped, err := tx.SetDependencies(ctx, rec.ID, rec.Dependencies)
			if err != nil {
				return err
			}
			result.SkippedDependencies = append(result.SkippedDependencies, skipped...)
		}

		if opts.DryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return nil, err
	}

	if !opts.DryRun {
		if err := store.SetMetadata(ctx, LastImportAtKey, now.Format(time.RFC3339Nano)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to record import time: %v\n", err)
		}
	}
	debug.Logf("import: created=%d updated=%d unchanged=%d stale=%d conflicts=%d\n",
		result.Created, result.Updated, result.Unchanged, result.Stale, result.Conflicts)
	return result, nil
}

// mergeOne applies a single record and reports whether its dependencies
// should be written.
func mergeOne(ctx context.Context, tx storage.Transaction, rec *types.Issue, result *Result) (bool, error) {
	local, err := tx.GetIssueDetails(ctx, rec.ID)
	if err != nil {
		return false, err
	}

	if local == nil {
		rec.SyncedAt = timePtr(rec.UpdatedAt)
		if err := tx.InsertIssue(ctx, rec); err != nil {
			return false, err
		}
		result.Created++
		result.CommentsAdded += len(rec.Comments)
		return true, nil
	}

	if local.ContentHash() == rec.ContentHash() {
		result.Unchanged++
		at := local.UpdatedAt
		if rec.UpdatedAt.After(at) {
			at = rec.UpdatedAt
		}
		if local.UpdatedAt.Equal(at) && local.SyncedAt != nil && local.SyncedAt.Equal(at) {
			return false, nil
		}
		return false, tx.MarkReconciled(ctx, local.ID, at)
	}

	if !local.ChangedSinceSync() {
		if !rec.UpdatedAt.After(local.UpdatedAt) {
			result.Stale++
			return false, nil
		}
		rec.SyncedAt = timePtr(rec.UpdatedAt)
		added, err := tx.ReplaceIssue(ctx, rec)
		if err != nil {
			return false, err
		}
		result.Updated++
		result.CommentsAdded += added
		return true, nil
	}

	// local.SyncedAt is the updated_at of the version last reconciled, so a
	// later remote updated_at means the remote moved on as well.
	remoteChanged := local.SyncedAt == nil || rec.UpdatedAt.After(*local.SyncedAt)
	if !remoteChanged {
		result.KeptLocal++
		return false, nil
	}

	id, created, err := tx.UpsertConflict(ctx, local, rec)
	if err != nil {
		return false, err
	}
	if created {
		result.Conflicts++
		result.ConflictIDs = append(result.ConflictIDs, id)
		debug.Logf("import: %v\n", &types.ConflictDetected{ConflictID: id, IssueID: rec.ID})
	}
	return false, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// normalize validates a remote record and fills fields older writers may
// have omitted. The caller's value is not modified.
func normalize(in *types.Issue, now time.Time) (*types.Issue, error) {
	rec := in.Clone()
	rec.SetDefaults()
	rec.Labels = types.NormalizeLabels(rec.Labels)
	if string(rec.Metadata) == "null" {
		rec.Metadata = nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	rec.SyncedAt = nil

	for _, c := range rec.Comments {
		c.IssueID = rec.ID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = rec.CreatedAt
		}
		if c.ID == "" {
			c.ID = uuid.NewSHA1(commentNamespace, []byte(rec.ID+"\x00"+c.Author+"\x00"+c.Content+"\x00"+c.CreatedAt.UTC().Format(time.RFC3339Nano))).String()
		}
	}
	for _, d := range rec.Dependencies {
		d.IssueID = rec.ID
		if d.Type == "" {
			d.Type = types.DepBlocks
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
