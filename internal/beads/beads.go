// Package beads locates .beads project directories and maintains the files
// that live next to the database.
package beads

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/configfile"
)

// DirName is the per-project state directory.
const DirName = ".beads"

// CanonicalDatabaseName is the default database filename inside .beads/.
const CanonicalDatabaseName = configfile.DefaultDatabase

// GitignoreRules keep the database files and the sync lock out of git while
// the JSONL export stays committed.
var GitignoreRules = []string{"*.db", "*.db-*", "sync.lock"}

// canonicalizePath returns an absolute, symlink-resolved path, falling back
// to the absolute path when resolution fails.
func canonicalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// FindBeadsDir finds the .beads/ directory for startDir.
// Search order:
//  1. $BEADS_DIR environment variable (points to a .beads directory)
//  2. .beads/ in startDir or its ancestors
//
// Returns empty string if not found.
func FindBeadsDir(startDir string) string {
	if beadsDir := os.Getenv("BEADS_DIR"); beadsDir != "" {
		abs := canonicalizePath(beadsDir)
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return abs
		}
	}
	if startDir == "" {
		return ""
	}

	dir := canonicalizePath(startDir)
	for {
		beadsDir := filepath.Join(dir, DirName)
		if info, err := os.Stat(beadsDir); err == nil && info.IsDir() {
			return beadsDir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// FindDatabasePath returns the database named by metadata.json in the
// .beads directory found from startDir, or the canonical beads.db when it
// exists. Returns empty string if no database is found.
func FindDatabasePath(startDir string) string {
	beadsDir := FindBeadsDir(startDir)
	if beadsDir == "" {
		return ""
	}
	if cfg, err := configfile.Load(beadsDir); err == nil && cfg != nil {
		dbPath := cfg.DatabasePath(beadsDir)
		if _, err := os.Stat(dbPath); err == nil {
			return dbPath
		}
	}
	canonicalDB := filepath.Join(beadsDir, CanonicalDatabaseName)
	if _, err := os.Stat(canonicalDB); err == nil {
		return canonicalDB
	}
	return ""
}

// EnsureGitignore adds any missing GitignoreRules to beadsDir/.gitignore,
// keeping existing lines.
func EnsureGitignore(beadsDir string) error {
	path := filepath.Join(beadsDir, ".gitignore")

	existing := make(map[string]bool)
	var content []byte
	if data, err := os.ReadFile(path); err == nil { // #nosec G304 - path inside .beads
		content = data
		scanner := bufio.NewScanner(strings.NewReader(string(data)))
		for scanner.Scan() {
			existing[strings.TrimSpace(scanner.Text())] = true
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read .gitignore: %w", err)
	}

	var missing []string
	for _, rule := range GitignoreRules {
		if !existing[rule] {
			missing = append(missing, rule)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.Write(content)
	if len(content) > 0 && content[len(content)-1] != '\n' {
		sb.WriteByte('\n')
	}
	if len(content) == 0 {
		sb.WriteString("# bd database files (the JSONL export is committed)\n")
	}
	for _, rule := range missing {
		sb.WriteString(rule)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil { // #nosec G306 - gitignore is meant to be readable
		return fmt.Errorf("failed to write .gitignore: %w", err)
	}
	return nil
}
