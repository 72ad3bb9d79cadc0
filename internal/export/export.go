// Package export writes the whole store to the JSONL interchange file.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/debug"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// Options tunes an export.
type Options struct {
	// Force allows replacing a non-empty file with an empty export.
	Force bool
}

// Result reports what an export wrote.
type Result struct {
	Exported int    `json:"exported"`
	Path     string `json:"path"`
}

// LoadAll returns every issue, tombstones included, with labels, comments
// and dependencies populated, sorted by id.
func LoadAll(ctx context.Context, store storage.Storage) ([]*types.Issue, error) {
	issues, err := store.ListIssues(ctx, types.IssueFilter{IncludeTombstones: true})
	if err != nil {
		return nil, fmt.Errorf("failed to get issues: %w", err)
	}
	sort.Slice(issues, func(i, j int) bool {
		return issues[i].ID < issues[j].ID
	})

	// Populate dependencies for all issues (avoid N+1)
	allDeps, err := store.GetAllDependencyRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	for _, issue := range issues {
		issue.Dependencies = allDeps[issue.ID]
		comments, err := store.GetComments(ctx, issue.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get comments for %s: %w", issue.ID, err)
		}
		issue.Comments = comments
	}
	return issues, nil
}

// WriteJSONL exports the store to path, one issue per line. The file is
// written to a temporary sibling and renamed into place, so readers only
// ever see the old or the new content.
func WriteJSONL(ctx context.Context, store storage.Storage, path string, opts Options) (*Result, error) {
	issues, err := LoadAll(ctx, store)
	if err != nil {
		return nil, err
	}

	// Safety check: prevent exporting empty database over non-empty JSONL
	if len(issues) == 0 && !opts.Force {
		existingCount, countErr := CountLines(path)
		if countErr != nil {
			if !os.IsNotExist(countErr) {
				fmt.Fprintf(os.Stderr, "Warning: failed to read existing JSONL: %v\n", countErr)
			}
		} else if existingCount > 0 {
			return nil, &types.IoError{Op: "export", Path: path, Err: fmt.Errorf(
				"refusing to export empty database over non-empty JSONL file (JSONL: %d issues)", existingCount)}
		}
	}

	if err := writeAtomic(path, issues); err != nil {
		return nil, err
	}
	debug.Logf("exported %d issues to %s\n", len(issues), path)
	return &Result{Exported: len(issues), Path: path}, nil
}

func writeAtomic(path string, issues []*types.Issue) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &types.IoError{Op: "mkdir", Path: dir, Err: err}
	}
	tempFile, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return &types.IoError{Op: "create", Path: dir, Err: err}
	}
	tempPath := tempFile.Name()
	defer func() {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
	}()

	w := bufio.NewWriter(tempFile)
	encoder := json.NewEncoder(w)
	for _, issue := range issues {
		if err := encoder.Encode(issue); err != nil {
			return &types.IoError{Op: "encode", Path: tempPath, Err: fmt.Errorf("issue %s: %w", issue.ID, err)}
		}
	}
	if err := w.Flush(); err != nil {
		return &types.IoError{Op: "write", Path: tempPath, Err: err}
	}
	if err := tempFile.Sync(); err != nil {
		return &types.IoError{Op: "sync", Path: tempPath, Err: err}
	}
	if err := tempFile.Close(); err != nil {
		return &types.IoError{Op: "close", Path: tempPath, Err: err}
	}

	if err := os.Rename(tempPath, path); err != nil {
		return &types.IoError{Op: "rename", Path: path, Err: err}
	}
	if err := os.Chmod(path, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to set file permissions: %v\n", err)
	}
	return nil
}

// CountLines returns the number of non-empty lines in a JSONL file.
func CountLines(path string) (int, error) {
	f, err := os.Open(path) // #nosec G304 - path is the configured export file
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	count := 0
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			count++
		}
	}
	return count, scanner.Err()
}
