// Package migrate performs the one-time import of a predecessor tracker's
// JSONL export and attachment directory into a store.
package migrate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/debug"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/importer"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// Options names the legacy sources and where attachments go.
type Options struct {
	LegacyJSONL    string
	AttachmentsSrc string // optional
	AttachmentsDst string // required when AttachmentsSrc is set
	DryRun         bool
	Now            func() time.Time
}

// Result reports what a migration added.
type Result struct {
	Issues             int                       `json:"issues"`
	Comments           int                       `json:"comments"`
	AttachmentsCopied  int                       `json:"attachments_copied"`
	AttachmentsSkipped int                       `json:"attachments_skipped"`
	Import             *importer.Result          `json:"import,omitempty"`
	ParseErrors        []*types.ImportParseError `json:"-"`
}

// Run migrates opts.LegacyJSONL into store through the importer, so
// re-running it is safe: unchanged records are left alone and comments keep
// ids derived from their legacy ids. A missing or empty source is a
// successful no-op. The legacy files are only read.
func Run(ctx context.Context, store storage.Storage, opts Options) (*Result, error) {
	result := &Result{}

	if opts.LegacyJSONL != "" {
		if err := migrateIssues(ctx, store, opts, result); err != nil {
			return nil, err
		}
	}

	if opts.AttachmentsSrc != "" && !opts.DryRun {
		if opts.AttachmentsDst == "" {
			return nil, types.NewValidationError("attachments", "destination directory is required")
		}
		copied, skipped, err := copyAttachments(opts.AttachmentsSrc, opts.AttachmentsDst)
		if err != nil {
			return nil, err
		}
		result.AttachmentsCopied = copied
		result.AttachmentsSkipped = skipped
	}

	debug.Logf("migrate: issues=%d comments=%d attachments=%d\n",
		result.Issues, result.Comments, result.AttachmentsCopied)
	return result, nil
}

func migrateIssues(ctx context.Context, store storage.Storage, opts Options, result *Result) error {
	f, err := os.Open(opts.LegacyJSONL) // #nosec G304 - user-supplied legacy export, read only
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &types.IoError{Op: "open", Path: opts.LegacyJSONL, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &types.IoError{Op: "stat", Path: opts.LegacyJSONL, Err: err}
	}
	// Records without timestamps take the file's mtime, which stays fixed
	// as long as the source is untouched.
	fallback := info.ModTime().UTC().Truncate(time.Second)

	records, parseErrs, err := parseLegacy(f)
	if err != nil {
		return err
	}
	result.ParseErrors = parseErrs
	for _, perr := range parseErrs {
		fmt.Fprintf(os.Stderr, "Warning: skipping legacy record: %v\n", perr)
	}
	if len(records) == 0 {
		return nil
	}

	issues := make([]*types.Issue, 0, len(records))
	for _, rec := range records {
		issues = append(issues, rec.toIssue(fallback))
	}

	imported, err := importer.ImportIssues(ctx, store, issues, importer.Options{DryRun: opts.DryRun, Now: opts.Now})
	if err != nil {
		return fmt.Errorf("failed to import legacy records: %w", err)
	}
	result.Import = imported
	result.Issues = imported.Created
	result.Comments = imported.CommentsAdded
	return nil
}
