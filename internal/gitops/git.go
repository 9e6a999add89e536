// Package gitops wraps the git primitives the change pipeline needs. Every
// mutating operation takes a dryRun flag so stages can be exercised without a
// repository.
package gitops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hochfrequenz/issue-agent/internal/domain"
)

// ErrBranchCreate marks a failure to fetch or create the working branch
var ErrBranchCreate = errors.New("branch creation failed")

const (
	dryRunStageMsg  = "Dry run: patch validated but not applied."
	dryRunCommitMsg = "Dry run: index not committed."
)

// Identity overrides author and committer for a commit. Empty fields keep git's configuration.
type Identity struct {
	Name  string
	Email string
}

// Workspace performs git operations against one working tree. Only one
// pipeline may use a working tree at a time.
type Workspace struct {
	repoDir    string
	remote     string
	baseBranch string
	bin        string
}

// NewWorkspace creates a Workspace for repoDir tracking remote/baseBranch
func NewWorkspace(repoDir, remote, baseBranch string) *Workspace {
	if remote == "" {
		remote = "origin"
	}
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &Workspace{
		repoDir:    repoDir,
		remote:     remote,
		baseBranch: baseBranch,
		bin:        "git",
	}
}

// Remote returns the configured remote name
func (w *Workspace) Remote() string {
	return w.remote
}

// CreateBranch fetches the remote and creates and switches to name, based on
// remote/base when that ref exists and on HEAD otherwise.
func (w *Workspace) CreateBranch(ctx context.Context, name string, dryRun bool) error {
	if dryRun {
		return nil
	}
	if out, err := w.git(ctx, nil, "fetch", w.remote); err != nil {
		return fmt.Errorf("%w: git fetch %s: %s: %v", ErrBranchCreate, w.remote, out, err)
	}

	base := w.remote + "/" + w.baseBranch
	if _, err := w.git(ctx, nil, "rev-parse", "--verify", "--quiet", base); err != nil {
		base = "HEAD"
	}

	if out, err := w.git(ctx, nil, "checkout", "-b", name, base); err != nil {
		return fmt.Errorf("%w: git checkout -b %s: %s: %v", ErrBranchCreate, name, out, err)
	}
	return nil
}

// CheckoutBranch switches to an existing branch
func (w *Workspace) CheckoutBranch(ctx context.Context, name string, dryRun bool) error {
	if dryRun {
		return nil
	}
	if out, err := w.git(ctx, nil, "checkout", name); err != nil {
		return fmt.Errorf("git checkout %s: %s: %w", name, out, err)
	}
	return nil
}

// CurrentBranch returns the checked out branch name. Dry runs return "".
func (w *Workspace) CurrentBranch(ctx context.Context, dryRun bool) (string, error) {
	if dryRun {
		return "", nil
	}
	out, err := w.git(ctx, nil, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %s: %w", out, err)
	}
	return strings.TrimSpace(out), nil
}

// StagePatch applies diffText to the working tree and index in one step.
// On apply failure it returns ok=false with git's diagnostic verbatim; err is
// reserved for faults outside git apply itself. The temporary patch file is
// removed on every path.
func (w *Workspace) StagePatch(ctx context.Context, diffText string, dryRun bool) (ok bool, msg string, err error) {
	tmp, err := os.CreateTemp("", "issue-agent-*.patch")
	if err != nil {
		return false, "", fmt.Errorf("creating patch file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, werr := tmp.WriteString(diffText)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return false, "", fmt.Errorf("writing patch file: %w", werr)
	}

	if dryRun {
		return true, dryRunStageMsg, nil
	}

	stderr, err := w.gitStderr(ctx, "apply", "--index", tmpPath)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, stderr, nil
		}
		return false, "", fmt.Errorf("git apply: %w", err)
	}
	return true, "Patch applied and indexed.", nil
}

// CommitIndex commits the staged index and returns the new commit ID.
// Dry runs return a marker message instead.
func (w *Workspace) CommitIndex(ctx context.Context, message string, who Identity, dryRun bool) (domain.CommitResult, error) {
	if dryRun {
		return domain.CommitResult{DryRun: true, Message: dryRunCommitMsg}, nil
	}

	var env []string
	if who.Name != "" {
		env = append(env, "GIT_AUTHOR_NAME="+who.Name, "GIT_COMMITTER_NAME="+who.Name)
	}
	if who.Email != "" {
		env = append(env, "GIT_AUTHOR_EMAIL="+who.Email, "GIT_COMMITTER_EMAIL="+who.Email)
	}

	if out, err := w.git(ctx, env, "commit", "-m", message); err != nil {
		return domain.CommitResult{}, fmt.Errorf("git commit: %s: %w", out, err)
	}
	out, err := w.git(ctx, nil, "rev-parse", "HEAD")
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("git rev-parse HEAD: %s: %w", out, err)
	}
	return domain.CommitResult{CommitID: strings.TrimSpace(out)}, nil
}

// PushBranch pushes name to remote with upstream tracking. An empty remote
// means the workspace default. A rejected push returns ok=false and git's stderr.
func (w *Workspace) PushBranch(ctx context.Context, name, remote string, dryRun bool) (ok bool, msg string, err error) {
	if remote == "" {
		remote = w.remote
	}
	if dryRun {
		return true, fmt.Sprintf("Dry run: would have pushed branch %s to %s.", name, remote), nil
	}

	stderr, err := w.gitStderr(ctx, "push", "--set-upstream", remote, name)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, stderr, nil
		}
		return false, "", fmt.Errorf("git push: %w", err)
	}
	return true, "Pushed.", nil
}

// ListTree returns every path tracked at HEAD
func (w *Workspace) ListTree(ctx context.Context) ([]string, error) {
	out, err := w.git(ctx, nil, "ls-tree", "-r", "HEAD", "--name-only")
	if err != nil {
		return nil, fmt.Errorf("git ls-tree: %s: %w", out, err)
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// git runs a git subcommand in the repo and returns combined output
func (w *Workspace) git(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, w.bin, args...)
	cmd.Dir = w.repoDir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// gitStderr runs a git subcommand and returns only its stderr
func (w *Workspace) gitStderr(ctx context.Context, args ...string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.bin, args...)
	cmd.Dir = w.repoDir
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}
