// Package git runs the git subprocesses a sync cycle needs.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/debug"
)

// Repo is a working tree driven through the git binary.
type Repo struct {
	// Dir is the working directory for every git invocation.
	Dir string
	// Remote overrides the branch's configured remote.
	Remote string
}

// New returns a Repo rooted at dir.
func New(dir string) *Repo {
	return &Repo{Dir: dir}
}

func (r *Repo) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...) // #nosec G204 - fixed git subcommands
	cmd.Dir = r.Dir
	return cmd
}

// run executes git and returns trimmed stdout. Failures carry combined output.
func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := r.command(ctx, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	debug.Logf("git %s\n", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w\n%s", args[0], err, strings.TrimSpace(stderr.String()+stdout.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsRepo reports whether Dir is inside a git working tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	return r.command(ctx, "rev-parse", "--git-dir").Run() == nil
}

// HasUnmergedPaths reports unmerged paths or a merge in progress.
func (r *Repo) HasUnmergedPaths(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 2 {
			continue
		}
		switch line[:2] {
		case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
			return true, nil
		}
	}
	if r.command(ctx, "rev-parse", "-q", "--verify", "MERGE_HEAD").Run() == nil {
		return true, nil
	}
	return false, nil
}

// HasChanges reports whether path has uncommitted changes.
func (r *Repo) HasChanges(ctx context.Context, path string) (bool, error) {
	out, err := r.run(ctx, "status", "--porcelain", "--", path)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// Commit stages path and commits it. Nothing happens when path is unchanged.
func (r *Repo) Commit(ctx context.Context, path, message string) error {
	changed, err := r.HasChanges(ctx, path)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if _, err := r.run(ctx, "add", "--", path); err != nil {
		return err
	}
	if message == "" {
		message = fmt.Sprintf("bd sync: %s", time.Now().Format("2006-01-02 15:04:05"))
	}
	_, err = r.run(ctx, "commit", "-m", message, "--", path)
	return err
}

// HasRemote reports whether any remote is configured.
func (r *Repo) HasRemote(ctx context.Context) bool {
	out, err := r.run(ctx, "remote")
	return err == nil && out != ""
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return out, nil
}

// remoteFor picks Remote, then branch.<name>.remote, then origin.
func (r *Repo) remoteFor(ctx context.Context, branch string) string {
	if r.Remote != "" {
		return r.Remote
	}
	if out, err := r.run(ctx, "config", "--get", "branch."+branch+".remote"); err == nil && out != "" {
		return out
	}
	return "origin"
}

// remoteHasBranch reports whether remote already carries branch.
func (r *Repo) remoteHasBranch(ctx context.Context, remote, branch string) (bool, error) {
	err := r.command(ctx, "ls-remote", "--exit-code", "--heads", remote, branch).Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 2 {
		return false, nil
	}
	return false, fmt.Errorf("git ls-remote failed: %w", err)
}

// Pull rebases the current branch onto its remote counterpart. Conflicting
// hunks take the remote side; the sync cycle re-exports local state after
// importing. It is a no-op without a remote or before the branch was ever
// pushed.
func (r *Repo) Pull(ctx context.Context) error {
	if !r.HasRemote(ctx) {
		return nil
	}
	branch, err := r.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	remote := r.remoteFor(ctx, branch)
	exists, err := r.remoteHasBranch(ctx, remote, branch)
	if err != nil {
		return err
	}
	if !exists {
		debug.Logf("git pull skipped: %s has no branch %s\n", remote, branch)
		return nil
	}
	_, err = r.run(ctx, "pull", "--rebase", "-X", "ours", remote, branch)
	return err
}

// Push publishes the current branch. It is a no-op without a remote.
func (r *Repo) Push(ctx context.Context) error {
	if !r.HasRemote(ctx) {
		return nil
	}
	branch, err := r.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	_, err = r.run(ctx, "push", "--set-upstream", r.remoteFor(ctx, branch), branch)
	return err
}
