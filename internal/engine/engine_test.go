package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/adapter"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/configfile"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/migrate"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// recordingGit satisfies syncer.Git without running git.
type recordingGit struct {
	mu    sync.Mutex
	calls []string
}

func (g *recordingGit) record(step string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, step)
	return nil
}

func (g *recordingGit) Commit(ctx context.Context, path, message string) error {
	return g.record("commit")
}
func (g *recordingGit) Pull(ctx context.Context) error { return g.record("pull") }
func (g *recordingGit) Push(ctx context.Context) error { return g.record("push") }

func initProject(t *testing.T) (string, *Engine, *recordingGit) {
	t.Helper()
	dir := t.TempDir()
	if _, err := Init(context.Background(), dir, "bd"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	g := &recordingGit{}
	e, err := Open(context.Background(), Options{ProjectDir: dir, Git: g})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return dir, e, g
}

func TestInitCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	result, err := Init(context.Background(), dir, "proj")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	beadsDir := filepath.Join(dir, ".beads")
	if result.BeadsDir != beadsDir {
		t.Errorf("BeadsDir = %s, want %s", result.BeadsDir, beadsDir)
	}
	for _, name := range []string{"metadata.json", "config.yaml", ".gitignore", "beads.db"} {
		if _, err := os.Stat(filepath.Join(beadsDir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}

	gitignore, err := os.ReadFile(filepath.Join(beadsDir, ".gitignore"))
	if err != nil {
		t.Fatal(err)
	}
	for _, rule := range []string{"*.db", "*.db-*", SyncLockName} {
		if !strings.Contains(string(gitignore), rule+"\n") {
			t.Errorf(".gitignore missing %q:\n%s", rule, gitignore)
		}
	}

	raw, err := os.ReadFile(filepath.Join(beadsDir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var cfg projectConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("config.yaml does not parse: %v", err)
	}
	if diff := cmp.Diff(projectConfig{IssuePrefix: "proj", Sync: syncConfig{Cooldown: "30s"}}, cfg); diff != "" {
		t.Errorf("config.yaml mismatch (-want +got):\n%s", diff)
	}

	meta, err := configfile.Load(beadsDir)
	if err != nil || meta == nil {
		t.Fatalf("metadata.json: %v %v", meta, err)
	}
	if meta.Database != configfile.DefaultDatabase || meta.JSONLExport != configfile.DefaultJSONLExport {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestInitIsRepeatable(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	if _, err := Init(ctx, dir, "bd"); err != nil {
		t.Fatal(err)
	}
	if _, err := Init(ctx, dir, "bd"); err != nil {
		t.Fatalf("second Init with same prefix: %v", err)
	}
	if _, err := Init(ctx, dir, "other"); !errors.Is(err, types.ErrValidation) {
		t.Fatalf("Init with new prefix: err = %v, want ValidationError", err)
	}
}

func TestInitRejectsBadPrefix(t *testing.T) {
	for _, prefix := range []string{"", "Bad", "has-dash", "_x"} {
		if _, err := Init(context.Background(), t.TempDir(), prefix); !errors.Is(err, types.ErrValidation) {
			t.Errorf("Init(%q): err = %v, want ValidationError", prefix, err)
		}
	}
}

func TestOpenRequiresInit(t *testing.T) {
	_, err := Open(context.Background(), Options{ProjectDir: t.TempDir()})
	if !errors.Is(err, types.ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
}

func TestOpenIsLazy(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".beads"), 0o750); err != nil {
		t.Fatal(err)
	}
	e, err := Open(context.Background(), Options{ProjectDir: dir, Prefix: "lazy", Git: &recordingGit{}})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, err := os.Stat(e.DatabasePath()); !os.IsNotExist(err) {
		t.Fatalf("database exists before first use: %v", err)
	}
	issue, err := e.CreateIssue(context.Background(), &types.Issue{Title: "First"}, "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(issue.ID, "lazy-") {
		t.Errorf("id %s does not use configured prefix", issue.ID)
	}
	if _, err := os.Stat(e.DatabasePath()); err != nil {
		t.Errorf("database not created on first use: %v", err)
	}
}

func TestEngineIssueLifecycle(t *testing.T) {
	ctx := context.Background()
	_, e, _ := initProject(t)

	epic, err := e.CreateIssue(ctx, &types.Issue{Title: "Epic", IssueType: types.TypeEpic}, "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	first, err := e.CreateIssue(ctx, &types.Issue{Title: "Schema"}, epic.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.CreateIssue(ctx, &types.Issue{Title: "Importer"}, epic.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.AddDependency(ctx, &types.Dependency{IssueID: second.ID, DependsOnID: first.ID, Type: types.DepBlocks}, "tester"); err != nil {
		t.Fatal(err)
	}

	ready, err := e.ReadyWork(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range ready {
		if r.ID == second.ID {
			t.Errorf("blocked issue %s reported as ready", second.ID)
		}
	}

	issues, err := e.ListIssues(ctx, types.IssueFilter{IDs: []string{epic.ID, first.ID}})
	if err != nil {
		t.Fatal(err)
	}
	views, err := e.Views(ctx, issues)
	if err != nil {
		t.Fatal(err)
	}
	byID := map[string]*adapter.View{}
	for _, v := range views {
		byID[v.ID] = v
	}
	if diff := cmp.Diff([]string{first.ID, second.ID}, byID[epic.ID].Children); diff != "" {
		t.Errorf("epic children mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{second.ID}, byID[first.ID].Blocks); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}

	assignee := "alice"
	title := "Schema v2"
	updated, err := e.ApplyPatch(ctx, first.ID, adapter.Patch{Title: &title, Assignee: adapter.Set(assignee)}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != title || updated.Assignee == nil || *updated.Assignee != assignee {
		t.Errorf("patch not applied: %+v", updated)
	}
	cleared, err := e.ApplyPatch(ctx, first.ID, adapter.Patch{Assignee: adapter.Clear[string]()}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if cleared.Assignee != nil {
		t.Errorf("assignee not cleared: %v", *cleared.Assignee)
	}

	id, err := e.ResolveID(ctx, strings.TrimPrefix(epic.ID, "bd-"))
	if err != nil || id != epic.ID {
		t.Errorf("ResolveID = %q, %v; want %s", id, err, epic.ID)
	}
}

func TestEngineSyncDrivesGit(t *testing.T) {
	ctx := context.Background()
	_, e, g := initProject(t)
	if _, err := e.CreateIssue(ctx, &types.Issue{Title: "Sync me"}, "", "tester"); err != nil {
		t.Fatal(err)
	}

	result, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Skipped || result.Exported != 1 || !result.Pushed {
		t.Errorf("result = %+v", result)
	}
	if diff := cmp.Diff([]string{"commit", "pull", "commit", "push"}, g.calls); diff != "" {
		t.Errorf("git calls mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(e.JSONLPath()); err != nil {
		t.Errorf("interchange file not written: %v", err)
	}
}

func TestEngineExportThenImportIsUnchanged(t *testing.T) {
	ctx := context.Background()
	_, e, _ := initProject(t)
	for _, title := range []string{"One", "Two"} {
		if _, err := e.CreateIssue(ctx, &types.Issue{Title: title}, "", "tester"); err != nil {
			t.Fatal(err)
		}
	}
	exported, err := e.Export(ctx, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if exported.Exported != 2 {
		t.Fatalf("Exported = %d, want 2", exported.Exported)
	}
	result, err := e.Import(ctx, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Unchanged != 2 || result.Changed() {
		t.Errorf("import result = %+v", result)
	}
}

func TestEngineMigrateDefaultsAttachmentDir(t *testing.T) {
	ctx := context.Background()
	_, e, _ := initProject(t)

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "log.txt"), []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}
	legacy := filepath.Join(t.TempDir(), "legacy.jsonl")
	if err := os.WriteFile(legacy, []byte(`{"id":"bd-old1","title":"Legacy","comments":[{"id":1,"author":"a","text":"hi"}]}`+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := e.Migrate(ctx, migrate.Options{LegacyJSONL: legacy, AttachmentsSrc: src})
	if err != nil {
		t.Fatal(err)
	}
	if result.Issues != 1 || result.Comments != 1 || result.AttachmentsCopied != 1 {
		t.Errorf("result = %+v", result)
	}
	if _, err := os.Stat(filepath.Join(e.AttachmentsPath(), "log.txt")); err != nil {
		t.Errorf("attachment not copied into project: %v", err)
	}
}

func TestClosedEngineRefusesCalls(t *testing.T) {
	_, e, _ := initProject(t)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ListIssues(context.Background(), types.IssueFilter{}); err == nil {
		t.Fatal("expected error after Close")
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
