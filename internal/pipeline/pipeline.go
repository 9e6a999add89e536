// Package pipeline turns a proposed file content into a branch, a patch, a
// commit, a pushed branch and an opened pull request.
//
// Stages run in order and each gates the next: branch, diff, stage, commit,
// push, publish. The pipeline stops at the first failing stage and reports
// it in ChangeResult.Error; Apply itself never returns an error or panics.
// Effects of completed stages are not rolled back, so a commit made before
// a failed push stays on the local branch.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hochfrequenz/issue-agent/internal/domain"
	"github.com/hochfrequenz/issue-agent/internal/gitops"
	"github.com/hochfrequenz/issue-agent/internal/prbot"
)

// NoChanges is the error reported when the proposed content equals the current content
const NoChanges = "No changes detected."

// Workspace is the subset of gitops.Workspace the pipeline drives
type Workspace interface {
	CreateBranch(ctx context.Context, name string, dryRun bool) error
	StagePatch(ctx context.Context, diffText string, dryRun bool) (bool, string, error)
	CommitIndex(ctx context.Context, message string, who gitops.Identity, dryRun bool) (domain.CommitResult, error)
	PushBranch(ctx context.Context, name, remote string, dryRun bool) (bool, string, error)
}

// Differ computes the unified diff for a proposed change
type Differ interface {
	Unified(path, newContent string) (string, error)
}

// Publisher opens pull requests
type Publisher interface {
	CreatePR(ctx context.Context, branch, title, body, base string, dryRun bool) (*domain.PullRequest, error)
}

// Labeler is implemented by publishers that can label an opened PR
type Labeler interface {
	AddLabels(ctx context.Context, prNumber int, labels []string) error
}

// Options configures a Pipeline
type Options struct {
	Identity   gitops.Identity
	Remote     string
	BaseBranch string
	AutoLabel  bool
	Logger     *slog.Logger
}

// Pipeline composes diff, git and PR operations into one change application
type Pipeline struct {
	ws     Workspace
	differ Differ
	pub    Publisher
	opts   Options
	log    *slog.Logger
}

// New creates a Pipeline
func New(ws Workspace, differ Differ, pub Publisher, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{ws: ws, differ: differ, pub: pub, opts: opts, log: logger}
}

// Apply runs every stage for req and reports the outcome. Fields filled by
// stages that completed are kept when a later stage fails.
func (p *Pipeline) Apply(ctx context.Context, req domain.ChangeRequest) (res domain.ChangeResult) {
	res = domain.ChangeResult{DryRun: req.DryRun, Branch: req.BranchName}
	log := p.log.With("branch", req.BranchName, "path", req.Path, "dry_run", req.DryRun)

	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprint(r)
			log.Error("change pipeline panicked", "error", res.Error)
		}
	}()

	fail := func(stage, msg string) domain.ChangeResult {
		res.Error = msg
		log.Warn("change pipeline stopped", "stage", stage, "error", msg)
		return res
	}

	if err := p.ws.CreateBranch(ctx, req.BranchName, req.DryRun); err != nil {
		return fail("branch", err.Error())
	}

	patch, err := p.differ.Unified(req.Path, req.NewContent)
	if err != nil {
		return fail("diff", err.Error())
	}
	res.Patch = patch
	if strings.TrimSpace(patch) == "" {
		return fail("diff", NoChanges)
	}

	ok, msg, err := p.ws.StagePatch(ctx, patch, req.DryRun)
	if err != nil {
		return fail("stage", err.Error())
	}
	if !ok {
		return fail("stage", "git apply failed: "+msg)
	}

	commit, err := p.ws.CommitIndex(ctx, req.CommitSummary, p.opts.Identity, req.DryRun)
	if err != nil {
		return fail("commit", err.Error())
	}
	res.Applied = true
	res.Commit = &commit

	ok, msg, err = p.ws.PushBranch(ctx, req.BranchName, p.opts.Remote, req.DryRun)
	if err != nil {
		return fail("push", err.Error())
	}
	res.PushStatus = msg
	if !ok {
		return fail("push", "Push failed: "+msg)
	}

	pr, err := p.pub.CreatePR(ctx, req.BranchName,
		prbot.BuildPRTitle(req.IssueNumber, req.CommitSummary),
		prbot.BuildPRBody(req.IssueNumber, patch),
		p.opts.BaseBranch, req.DryRun)
	if err != nil {
		return fail("publish", err.Error())
	}
	res.PullRequest = pr

	p.label(ctx, log, pr, patch)

	log.Info("change applied", "commit", res.CommitID(), "pr", pr.HTMLURL)
	return res
}

// label tags a live PR by diff category. Failures are logged only.
func (p *Pipeline) label(ctx context.Context, log *slog.Logger, pr *domain.PullRequest, patch string) {
	if !p.opts.AutoLabel || pr.DryRun || pr.Number == 0 {
		return
	}
	labeler, ok := p.pub.(Labeler)
	if !ok {
		return
	}
	labels := prbot.GetLabels(prbot.AnalyzeDiff(patch))
	if err := labeler.AddLabels(ctx, pr.Number, labels); err != nil {
		log.Warn("labelling pull request failed", "pr", pr.Number, "error", err)
	}
}
