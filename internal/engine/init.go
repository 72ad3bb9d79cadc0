package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/beads"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/config"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/configfile"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage/sqlite"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

var prefixPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_]*$`)

// projectConfig is the initial .beads/config.yaml.
type projectConfig struct {
	IssuePrefix string     `yaml:"issue-prefix"`
	Sync        syncConfig `yaml:"sync"`
}

type syncConfig struct {
	Cooldown string `yaml:"cooldown"`
	NoPush   bool   `yaml:"no-push"`
}

const configHeader = `# bd configuration for this repository.
# Every key can be overridden with a BD_* environment variable,
# e.g. BD_SYNC_COOLDOWN=1m.
`

// InitResult reports what Init created.
type InitResult struct {
	BeadsDir     string `json:"beads_dir"`
	DatabasePath string `json:"database"`
	Prefix       string `json:"prefix"`
}

// Init creates .beads/ under projectDir with metadata.json, config.yaml,
// the .gitignore rules and a database whose issue_prefix is prefix.
// Running it again keeps existing files; a different prefix is rejected.
func Init(ctx context.Context, projectDir, prefix string) (*InitResult, error) {
	if !prefixPattern.MatchString(prefix) {
		return nil, types.NewValidationError("prefix", fmt.Sprintf("invalid prefix %q (lowercase letters, digits and _)", prefix))
	}
	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project dir: %w", err)
	}
	beadsDir := filepath.Join(dir, beads.DirName)
	if err := os.MkdirAll(beadsDir, 0o750); err != nil {
		return nil, &types.IoError{Op: "mkdir", Path: beadsDir, Err: err}
	}

	cfg, err := configfile.Load(beadsDir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = configfile.DefaultConfig()
		cfg.BDVersion = sqlite.BinaryVersion
		if err := cfg.Save(beadsDir); err != nil {
			return nil, err
		}
	}

	if err := writeProjectConfig(beadsDir, prefix); err != nil {
		return nil, err
	}
	if err := beads.EnsureGitignore(beadsDir); err != nil {
		return nil, err
	}

	dbPath := cfg.DatabasePath(beadsDir)
	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	existing, err := store.GetConfig(ctx, "issue_prefix")
	if err != nil {
		return nil, err
	}
	switch existing {
	case "":
		if err := store.SetConfig(ctx, "issue_prefix", prefix); err != nil {
			return nil, err
		}
	case prefix:
	default:
		return nil, types.NewValidationError("prefix", fmt.Sprintf("database already uses prefix %q", existing))
	}

	return &InitResult{BeadsDir: beadsDir, DatabasePath: dbPath, Prefix: prefix}, nil
}

// writeProjectConfig writes config.yaml unless one already exists.
func writeProjectConfig(beadsDir, prefix string) error {
	path := filepath.Join(beadsDir, config.FileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	err := enc.Encode(projectConfig{
		IssuePrefix: prefix,
		Sync:        syncConfig{Cooldown: "30s"},
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", config.FileName, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode %s: %w", config.FileName, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return &types.IoError{Op: "write", Path: path, Err: err}
	}
	return nil
}
