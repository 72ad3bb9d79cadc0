package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// newRepo creates a repository with one commit on branch main.
func newRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gitCmd(t, dir, "init", "-q", "-b", "main")
	gitCmd(t, dir, "config", "user.email", "test@example.com")
	gitCmd(t, dir, "config", "user.name", "Test")
	gitCmd(t, dir, "config", "commit.gpgsign", "false")
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitCmd(t, dir, "add", "README")
	gitCmd(t, dir, "commit", "-q", "-m", "init")
	return dir
}

func TestCommitSkipsUnchangedFile(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := newRepo(t)
	repo := New(dir)
	path := filepath.Join(dir, "issues.jsonl")

	if err := os.WriteFile(path, []byte(`{"id":"bd-1"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := repo.Commit(ctx, path, "bd sync: test"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := repo.Commit(ctx, path, "bd sync: again"); err != nil {
		t.Fatalf("second Commit: %v", err)
	}

	count := gitCmd(t, dir, "rev-list", "--count", "HEAD")
	if count != "2" {
		t.Errorf("commit count = %s, want 2", count)
	}
	if msg := gitCmd(t, dir, "log", "-1", "--format=%s"); msg != "bd sync: test" {
		t.Errorf("last message = %q", msg)
	}
}

func TestPullPushWithoutRemoteAreNoOps(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	repo := New(newRepo(t))

	if repo.HasRemote(ctx) {
		t.Fatal("fresh repo has a remote")
	}
	if err := repo.Pull(ctx); err != nil {
		t.Errorf("Pull: %v", err)
	}
	if err := repo.Push(ctx); err != nil {
		t.Errorf("Push: %v", err)
	}
}

func TestPushThenPullBetweenClones(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	bare := filepath.Join(t.TempDir(), "remote.git")
	gitCmd(t, filepath.Dir(bare), "init", "-q", "--bare", "-b", "main", bare)

	first := newRepo(t)
	gitCmd(t, first, "remote", "add", "origin", bare)
	firstRepo := New(first)
	// Remote is empty, so the pull is skipped.
	if err := firstRepo.Pull(ctx); err != nil {
		t.Fatalf("Pull before first push: %v", err)
	}
	if err := firstRepo.Push(ctx); err != nil {
		t.Fatalf("Push: %v", err)
	}

	second := filepath.Join(t.TempDir(), "second")
	gitCmd(t, filepath.Dir(second), "clone", "-q", bare, second)
	gitCmd(t, second, "config", "user.email", "test@example.com")
	gitCmd(t, second, "config", "user.name", "Test")
	path := filepath.Join(second, "issues.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	secondRepo := New(second)
	if err := secondRepo.Commit(ctx, path, "from second"); err != nil {
		t.Fatal(err)
	}
	if err := secondRepo.Push(ctx); err != nil {
		t.Fatal(err)
	}

	if err := firstRepo.Pull(ctx); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if _, err := os.Stat(filepath.Join(first, "issues.jsonl")); err != nil {
		t.Errorf("pulled file missing: %v", err)
	}
}

func TestPullTakesRemoteSideOfConflictingHunk(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	bare := filepath.Join(t.TempDir(), "remote.git")
	gitCmd(t, filepath.Dir(bare), "init", "-q", "--bare", "-b", "main", bare)
	first := newRepo(t)
	gitCmd(t, first, "remote", "add", "origin", bare)
	firstRepo := New(first)
	firstPath := filepath.Join(first, "issues.jsonl")
	if err := os.WriteFile(firstPath, []byte("base\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := firstRepo.Commit(ctx, firstPath, "base"); err != nil {
		t.Fatal(err)
	}
	if err := firstRepo.Push(ctx); err != nil {
		t.Fatal(err)
	}

	second := filepath.Join(t.TempDir(), "second")
	gitCmd(t, filepath.Dir(second), "clone", "-q", bare, second)
	gitCmd(t, second, "config", "user.email", "test@example.com")
	gitCmd(t, second, "config", "user.name", "Test")
	gitCmd(t, second, "config", "commit.gpgsign", "false")
	secondRepo := New(second)
	secondPath := filepath.Join(second, "issues.jsonl")

	if err := os.WriteFile(firstPath, []byte("from first\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := firstRepo.Commit(ctx, firstPath, "first edit"); err != nil {
		t.Fatal(err)
	}
	if err := firstRepo.Push(ctx); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(secondPath, []byte("from second\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := secondRepo.Commit(ctx, secondPath, "second edit"); err != nil {
		t.Fatal(err)
	}
	if err := secondRepo.Pull(ctx); err != nil {
		t.Fatalf("Pull over a conflicting edit: %v", err)
	}
	data, err := os.ReadFile(secondPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "from first\n" {
		t.Errorf("after pull file = %q, want the remote side", data)
	}
	unmerged, err := secondRepo.HasUnmergedPaths(ctx)
	if err != nil || unmerged {
		t.Errorf("HasUnmergedPaths = %v, %v", unmerged, err)
	}
}

func TestHasUnmergedPathsCleanTree(t *testing.T) {
	requireGit(t)
	repo := New(newRepo(t))
	unmerged, err := repo.HasUnmergedPaths(context.Background())
	if err != nil || unmerged {
		t.Errorf("HasUnmergedPaths = %v, %v", unmerged, err)
	}
	if !repo.IsRepo(context.Background()) {
		t.Error("IsRepo = false")
	}
}
