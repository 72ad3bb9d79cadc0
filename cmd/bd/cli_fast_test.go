package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/config"
)

// In-process CLI tests call rootCmd.Execute directly. Failing commands exit
// the process, so only success paths are exercised here.

var inProcessMutex sync.Mutex // rootCmd, cobra flag state and viper are not thread-safe

// setupCLITestDB creates a fresh initialized bd project for CLI tests
func setupCLITestDB(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	runBDInProcess(t, tmpDir, "init", "--prefix", "test", "--quiet")
	return tmpDir
}

// resetFlags returns every flag under cmd to its default so values from one
// invocation do not leak into the next.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runBDInProcess runs bd in dir and returns its stdout.
func runBDInProcess(t *testing.T, dir string, args ...string) string {
	t.Helper()

	inProcessMutex.Lock()
	defer inProcessMutex.Unlock()

	oldStdout := os.Stdout
	oldStderr := os.Stderr
	oldDir, _ := os.Getwd()

	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to chdir to %s: %v", dir, err)
	}

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	// Drain the pipes concurrently so large outputs cannot block the command.
	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = outBuf.ReadFrom(rOut) }()
	go func() { defer wg.Done(); _, _ = errBuf.ReadFrom(rErr) }()

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	// Reset all global state to prevent contamination between tests
	if registry != nil {
		_ = registry.CloseAll()
	}
	registry = nil
	eng = nil
	dbPath = ""
	actor = ""
	jsonOutput = false
	projectDir = ""
	resetFlags(rootCmd)
	rootCmd.SetArgs(nil)
	config.ResetForTesting()

	_ = wOut.Close()
	_ = wErr.Close()
	wg.Wait()
	os.Stdout = oldStdout
	os.Stderr = oldStderr
	_ = os.Chdir(oldDir)

	if err != nil {
		t.Fatalf("bd %v failed: %v\nStdout: %s\nStderr: %s", args, err, outBuf.String(), errBuf.String())
	}
	return outBuf.String()
}

// createIssue runs bd create --json and returns the new id.
func createIssue(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out := runBDInProcess(t, dir, append([]string{"create", "--json"}, args...)...)
	var view map[string]interface{}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("Failed to parse JSON: %v\nOutput: %s", err, out)
	}
	id, _ := view["id"].(string)
	if id == "" {
		t.Fatalf("create returned no id: %s", out)
	}
	return id
}

func showIssue(t *testing.T, dir, id string) map[string]interface{} {
	t.Helper()
	out := runBDInProcess(t, dir, "show", id, "--json")
	var views []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("Failed to parse JSON: %v\nOutput: %s", err, out)
	}
	if len(views) != 1 {
		t.Fatalf("Expected 1 issue, got %d", len(views))
	}
	return views[0]
}

func TestCLI_Init(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow CLI test in short mode")
	}
	tmpDir := setupCLITestDB(t)
	for _, name := range []string{"beads.db", "metadata.json", "config.yaml", ".gitignore"} {
		if _, err := os.Stat(filepath.Join(tmpDir, ".beads", name)); err != nil {
			t.Errorf("Expected .beads/%s: %v", name, err)
		}
	}
	// A second init is harmless.
	runBDInProcess(t, tmpDir, "init", "--prefix", "test", "--quiet")
}

func TestCLI_Create(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow CLI test in short mode")
	}
	tmpDir := setupCLITestDB(t)
	out := runBDInProcess(t, tmpDir, "create", "Test issue", "-p", "1", "-l", "cli,fast", "--json")

	var view map[string]interface{}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("Failed to parse JSON: %v\nOutput: %s", err, out)
	}
	if view["title"] != "Test issue" {
		t.Errorf("Expected title 'Test issue', got: %v", view["title"])
	}
	if view["priority"] != "p1" {
		t.Errorf("Expected priority p1, got: %v", view["priority"])
	}
	if id, _ := view["id"].(string); !strings.HasPrefix(id, "test-") {
		t.Errorf("Expected id with prefix test-, got: %v", view["id"])
	}
}

func TestCLI_List(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow CLI test in short mode")
	}
	tmpDir := setupCLITestDB(t)
	createIssue(t, tmpDir, "First", "-p", "1")
	createIssue(t, tmpDir, "Second", "-p", "2")

	out := runBDInProcess(t, tmpDir, "list", "--json")
	var issues []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &issues); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}
	if len(issues) != 2 {
		t.Errorf("Expected 2 issues, got %d", len(issues))
	}

	out = runBDInProcess(t, tmpDir, "list", "--priority", "p1")
	if !strings.Contains(out, "First") || strings.Contains(out, "Second") {
		t.Errorf("Expected only 'First' for --priority p1, got: %s", out)
	}
}

func TestCLI_UpdateAndClear(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow CLI test in short mode")
	}
	tmpDir := setupCLITestDB(t)
	id := createIssue(t, tmpDir, "Issue to update", "-a", "alice")

	runBDInProcess(t, tmpDir, "update", id, "--status", "in_progress", "--notes", "halfway")
	view := showIssue(t, tmpDir, id)
	if view["status"] != "in_progress" {
		t.Errorf("Expected status 'in_progress', got: %v", view["status"])
	}
	if view["working_notes"] != "halfway" {
		t.Errorf("Expected working notes 'halfway', got: %v", view["working_notes"])
	}

	runBDInProcess(t, tmpDir, "update", id, "--clear", "assignee")
	view = showIssue(t, tmpDir, id)
	if a, ok := view["assignee"]; ok && a != nil {
		t.Errorf("Expected assignee cleared, got: %v", a)
	}
	if view["status"] != "in_progress" {
		t.Errorf("Clearing assignee changed status to %v", view["status"])
	}
}

func TestCLI_CloseAndReopen(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow CLI test in short mode")
	}
	tmpDir := setupCLITestDB(t)
	id := createIssue(t, tmpDir, "Issue to close")

	runBDInProcess(t, tmpDir, "close", id)
	view := showIssue(t, tmpDir, id)
	if view["status"] != "closed" {
		t.Errorf("Expected status 'closed', got: %v", view["status"])
	}
	if view["closed_at"] == nil {
		t.Error("Expected closed_at to be set")
	}

	runBDInProcess(t, tmpDir, "reopen", id)
	view = showIssue(t, tmpDir, id)
	if view["status"] != "open" {
		t.Errorf("Expected status 'open', got: %v", view["status"])
	}
}

func TestCLI_ParentAndDependencies(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow CLI test in short mode")
	}
	tmpDir := setupCLITestDB(t)
	epic := createIssue(t, tmpDir, "Epic", "-t", "epic")
	child := createIssue(t, tmpDir, "Child", "--parent", epic)
	if child != epic+".1" {
		t.Fatalf("Expected child id %s.1, got %s", epic, child)
	}
	blocker := createIssue(t, tmpDir, "Blocker")
	runBDInProcess(t, tmpDir, "dep", "add", child, blocker)

	view := showIssue(t, tmpDir, epic)
	children, _ := view["children"].([]interface{})
	if len(children) != 1 || children[0] != child {
		t.Errorf("Expected children [%s], got %v", child, view["children"])
	}
	view = showIssue(t, tmpDir, blocker)
	blocks, _ := view["blocks"].([]interface{})
	if len(blocks) != 1 || blocks[0] != child {
		t.Errorf("Expected blocks [%s], got %v", child, view["blocks"])
	}

	out := runBDInProcess(t, tmpDir, "ready")
	if strings.Contains(out, "Child") {
		t.Errorf("Blocked child should not be ready: %s", out)
	}
	runBDInProcess(t, tmpDir, "dep", "remove", child, blocker)
	out = runBDInProcess(t, tmpDir, "ready")
	if !strings.Contains(out, "Child") {
		t.Errorf("Expected unblocked child to be ready: %s", out)
	}
}

func TestCLI_CommentsAndLabels(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow CLI test in short mode")
	}
	tmpDir := setupCLITestDB(t)
	id := createIssue(t, tmpDir, "Discussed")

	runBDInProcess(t, tmpDir, "comment", id, "first thoughts")
	runBDInProcess(t, tmpDir, "label", "add", id, "ui", "urgent")
	runBDInProcess(t, tmpDir, "label", "remove", id, "urgent")

	view := showIssue(t, tmpDir, id)
	comments, _ := view["comments"].([]interface{})
	if len(comments) != 1 {
		t.Fatalf("Expected 1 comment, got %v", view["comments"])
	}
	labels, _ := view["labels"].([]interface{})
	if len(labels) != 1 || labels[0] != "ui" {
		t.Errorf("Expected labels [ui], got %v", view["labels"])
	}
}

func TestCLI_Search(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow CLI test in short mode")
	}
	tmpDir := setupCLITestDB(t)
	createIssue(t, tmpDir, "Login page crashes on submit")
	createIssue(t, tmpDir, "Update docs")

	out := runBDInProcess(t, tmpDir, "search", "login crash", "--json")
	var hits []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &hits); err != nil {
		t.Fatalf("Failed to parse JSON: %v\nOutput: %s", err, out)
	}
	if len(hits) != 1 || hits[0]["title"] != "Login page crashes on submit" {
		t.Errorf("Expected the login issue, got %v", hits)
	}
}

func TestCLI_ExportImport(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow CLI test in short mode")
	}
	src := setupCLITestDB(t)
	id := createIssue(t, src, "Travels between projects", "-p", "0")
	out := filepath.Join(t.TempDir(), "issues.jsonl")
	runBDInProcess(t, src, "export", "-o", out)

	dst := setupCLITestDB(t)
	runBDInProcess(t, dst, "import", "-i", out)
	view := showIssue(t, dst, id)
	if view["title"] != "Travels between projects" || view["priority"] != "p0" {
		t.Errorf("Imported issue mismatch: %v", view)
	}

	// Re-importing the same file changes nothing.
	res := runBDInProcess(t, dst, "import", "-i", out, "--json")
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(res), &result); err != nil {
		t.Fatalf("Failed to parse JSON: %v\nOutput: %s", err, res)
	}
	if result["created"] != float64(0) || result["unchanged"] != float64(1) {
		t.Errorf("Expected 0 created and 1 unchanged, got %v", result)
	}
}

func TestCLI_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow CLI test in short mode")
	}
	tmpDir := setupCLITestDB(t)
	id := createIssue(t, tmpDir, "Doomed")
	runBDInProcess(t, tmpDir, "delete", id)

	out := runBDInProcess(t, tmpDir, "list", "--json")
	if strings.Contains(out, id) {
		t.Errorf("Deleted issue still listed: %s", out)
	}
	out = runBDInProcess(t, tmpDir, "list", "--all", "--json")
	if !strings.Contains(out, id) {
		t.Errorf("Expected tombstone with --all: %s", out)
	}
}

func TestCLI_Version(t *testing.T) {
	out := runBDInProcess(t, t.TempDir(), "version")
	if !strings.Contains(out, Version) {
		t.Errorf("Expected version %s in output: %s", Version, out)
	}
}

func TestCLI_Migrate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow CLI test in short mode")
	}
	tmpDir := setupCLITestDB(t)
	legacy := filepath.Join(t.TempDir(), "legacy.jsonl")
	data := `{"id":"old-1","title":"Legacy bug","status":"in-progress","priority":"high","issue_type":"bug","created_at":"2024-01-02T03:04:05Z","updated_at":"2024-01-02T03:04:05Z"}` + "\n"
	if err := os.WriteFile(legacy, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	res := runBDInProcess(t, tmpDir, "migrate", "--from", legacy, "--json")
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(res), &result); err != nil {
		t.Fatalf("Failed to parse JSON: %v\nOutput: %s", err, res)
	}
	if result["issues"] != float64(1) {
		t.Errorf("Expected 1 migrated issue, got %v", result)
	}

	res = runBDInProcess(t, tmpDir, "migrate", "--from", legacy, "--json")
	result = nil
	if err := json.Unmarshal([]byte(res), &result); err != nil {
		t.Fatalf("Failed to parse JSON: %v\nOutput: %s", err, res)
	}
	if result["issues"] != float64(0) {
		t.Errorf("Second migration added issues: %v", result)
	}
}
