// Package tools implements the capabilities the reasoning model may call:
// read_file, list_repo_tree, run_tests and apply_patch.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/issue-agent/internal/domain"
	"github.com/hochfrequenz/issue-agent/internal/ledger"
	"github.com/hochfrequenz/issue-agent/internal/pipeline"
	"github.com/hochfrequenz/issue-agent/internal/reasoner"
)

// Tool names as seen by the model
const (
	ReadFileTool     = "read_file"
	ListRepoTreeTool = "list_repo_tree"
	RunTestsTool     = "run_tests"
	ApplyPatchTool   = "apply_patch"
)

// ErrOutsideRepo is returned for paths that resolve outside the repository
var ErrOutsideRepo = errors.New("path is outside the repository")

// Applier runs the change pipeline
type Applier interface {
	Apply(ctx context.Context, req domain.ChangeRequest) domain.ChangeResult
}

// TreeLister lists tracked files
type TreeLister interface {
	ListTree(ctx context.Context) ([]string, error)
}

// ChangeRecorder persists change results
type ChangeRecorder interface {
	RecordChange(c *ledger.Change) error
}

// Options configures a Toolbox for one session
type Options struct {
	RepoRoot    string
	Repo        string
	IssueNumber int
	DryRun      bool
	TestCommand []string
	Tree        TreeLister
	Pipeline    Applier
	Ledger      ChangeRecorder // optional
	Now         func() time.Time
	Logger      *slog.Logger
}

// Toolbox holds the tool implementations bound to one repository and issue
type Toolbox struct {
	opts Options
	log  *slog.Logger

	mu  sync.Mutex
	prs []domain.PullRequest
}

// New creates a Toolbox
func New(opts Options) *Toolbox {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolbox{opts: opts, log: logger}
}

// resolve joins path onto the repository root and rejects escapes
func (t *Toolbox) resolve(path string) (string, error) {
	root, err := filepath.Abs(t.opts.RepoRoot)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.FromSlash(path))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRepo, path)
	}
	return full, nil
}

// ReadFile returns the content of a repository file, or "" when it does not exist.
func (t *Toolbox) ReadFile(path string) (string, error) {
	full, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ListRepoTree returns the tracked files of the repository
func (t *Toolbox) ListRepoTree(ctx context.Context) ([]string, error) {
	return t.opts.Tree.ListTree(ctx)
}

// RunTests runs the configured test command in the repository root. It
// returns stdout, or stderr when stdout is empty. A failing test run is not
// an error; its output is the result.
func (t *Toolbox) RunTests(ctx context.Context) (string, error) {
	if len(t.opts.TestCommand) == 0 {
		return "", fmt.Errorf("no test command configured")
	}
	cmd := exec.CommandContext(ctx, t.opts.TestCommand[0], t.opts.TestCommand[1:]...)
	cmd.Dir = t.opts.RepoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", fmt.Errorf("run tests: %w", err)
	}
	t.log.Debug("tests finished", "command", strings.Join(t.opts.TestCommand, " "), "failed", err != nil)

	if stdout.Len() > 0 {
		return stdout.String(), nil
	}
	return stderr.String(), nil
}

// ApplyPatch proposes newContent for path through the change pipeline on a
// fresh branch and records the outcome.
func (t *Toolbox) ApplyPatch(ctx context.Context, path, newContent, summary string) domain.ChangeResult {
	req := domain.ChangeRequest{
		Path:          path,
		NewContent:    newContent,
		CommitSummary: summary,
		BranchName:    pipeline.BranchName(t.opts.IssueNumber, path, summary, t.opts.Now()),
		IssueNumber:   t.opts.IssueNumber,
		DryRun:        t.opts.DryRun,
	}

	var res domain.ChangeResult
	if _, err := t.resolve(path); err != nil {
		res = domain.ChangeResult{Branch: req.BranchName, DryRun: req.DryRun, Error: err.Error()}
	} else {
		res = t.opts.Pipeline.Apply(ctx, req)
	}

	if res.PullRequest != nil {
		t.mu.Lock()
		t.prs = append(t.prs, *res.PullRequest)
		t.mu.Unlock()
	}

	if t.opts.Ledger != nil {
		if err := t.opts.Ledger.RecordChange(ledger.NewChange(t.opts.Repo, req, res)); err != nil {
			t.log.Warn("failed to record change", "error", err)
		}
	}
	return res
}

// PullRequests returns the pull requests opened through this toolbox
func (t *Toolbox) PullRequests() []domain.PullRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.PullRequest(nil), t.prs...)
}

// Registry exposes the toolbox as reasoner tools
func (t *Toolbox) Registry() (*reasoner.Registry, error) {
	return reasoner.NewRegistry(
		reasoner.Tool{
			Name:        ReadFileTool,
			Description: "Read a file from the repository. Returns an empty string if the file does not exist.",
			Params:      []reasoner.Param{{Name: "path", Description: "Repository-relative path", Required: true}},
			Handler: func(_ context.Context, args map[string]string) (string, error) {
				return t.ReadFile(args["path"])
			},
		},
		reasoner.Tool{
			Name:        ListRepoTreeTool,
			Description: "List every tracked file in the repository, one path per line.",
			Handler: func(ctx context.Context, _ map[string]string) (string, error) {
				files, err := t.ListRepoTree(ctx)
				if err != nil {
					return "", err
				}
				return strings.Join(files, "\n"), nil
			},
		},
		reasoner.Tool{
			Name:        RunTestsTool,
			Description: "Run the project's test suite and return its output.",
			Handler: func(ctx context.Context, _ map[string]string) (string, error) {
				return t.RunTests(ctx)
			},
		},
		reasoner.Tool{
			Name:        ApplyPatchTool,
			Description: "Replace the whole content of one file, commit it on a new branch and open a pull request.",
			Params: []reasoner.Param{
				{Name: "path", Description: "Repository-relative path", Required: true},
				{Name: "new_content", Description: "Complete new file content", Required: true},
				{Name: "summary", Description: "One-line commit message", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]string) (string, error) {
				res := t.ApplyPatch(ctx, args["path"], args["new_content"], args["summary"])
				data, err := json.Marshal(res)
				if err != nil {
					return "", err
				}
				return string(data), nil
			},
		},
	)
}
