// Package controller drives the resumable iteration loop for one repo/issue task.
//
// Each iteration sends the issue, its comments and the accumulated history
// to the reasoner, appends the result and persists the session. The loop ends
// when a result contains CompletionSentinel, when the wall-clock budget is
// spent, or after maxIterations iterations. Every terminal state is
// persisted once more before Run returns.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hochfrequenz/issue-agent/internal/domain"
	"github.com/hochfrequenz/issue-agent/internal/ledger"
	"github.com/hochfrequenz/issue-agent/internal/notify"
	"github.com/hochfrequenz/issue-agent/internal/prompts"
	"github.com/hochfrequenz/issue-agent/internal/reasoner"
)

// CompletionSentinel in a reasoning result ends the loop
const CompletionSentinel = "TASK_COMPLETE"

// DefaultBudget bounds the wall-clock time of one Run
const DefaultBudget = 30 * time.Minute

// SessionStore loads and saves the single persisted session
type SessionStore interface {
	Load() (*domain.Session, error)
	Save(sess *domain.Session) error
}

// IssueSource fetches the task context of an issue
type IssueSource interface {
	Fetch(ctx context.Context, repo string, issueNumber int) (*domain.IssueContext, error)
}

// Toolset is the set of tools offered to the reasoner for one task
type Toolset interface {
	Registry() (*reasoner.Registry, error)
	PullRequests() []domain.PullRequest
}

// ToolsetFactory binds a Toolset to a repo/issue
type ToolsetFactory func(repo string, issueNumber int) Toolset

// InstructionsBuilder renders the standing instructions
type InstructionsBuilder interface {
	BuildInstructions(data prompts.InstructionsData) (string, error)
}

// IterationRecorder keeps an append-only record of iterations
type IterationRecorder interface {
	RecordIteration(it *ledger.Iteration) error
}

// CompletionReporter tells the issue that the task is done
type CompletionReporter interface {
	ReportCompletion(ctx context.Context, repo string, issueNumber, iterations int, prs []domain.PullRequest) (string, error)
}

// Options configures optional collaborators and limits
type Options struct {
	Budget   time.Duration
	DryRun   bool
	Now      func() time.Time
	Notifier notify.Notifier
	Ledger   IterationRecorder
	Reporter CompletionReporter
	Logger   *slog.Logger
}

// Controller runs the iteration loop
type Controller struct {
	store        SessionStore
	issues       IssueSource
	reasoner     reasoner.Reasoner
	tools        ToolsetFactory
	instructions InstructionsBuilder
	opts         Options
	log          *slog.Logger
}

// Outcome summarises a finished Run
type Outcome struct {
	State        domain.TerminalState
	Session      *domain.Session
	Iterations   int // executed by this Run
	Resumed      bool
	PullRequests []domain.PullRequest
}

// New creates a Controller
func New(store SessionStore, issues IssueSource, r reasoner.Reasoner, tools ToolsetFactory, instructions InstructionsBuilder, opts Options) *Controller {
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NoopNotifier{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:        store,
		issues:       issues,
		reasoner:     r,
		tools:        tools,
		instructions: instructions,
		opts:         opts,
		log:          logger,
	}
}

// Run executes up to maxIterations iterations for repo/issue, resuming the
// persisted session when it belongs to the same task. A reasoner failure
// stops the loop and is returned; the session file then holds the last
// completed iteration. Persistence failures are returned as they occur.
func (c *Controller) Run(ctx context.Context, repo string, issueNumber, maxIterations int) (*Outcome, error) {
	start := c.opts.Now()
	log := c.log.With("repo", repo, "issue", issueNumber)

	sess, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	out := &Outcome{Resumed: sess.Matches(repo, issueNumber)}
	if !out.Resumed {
		sess = domain.NewSession(repo, issueNumber)
	}
	out.Session = sess

	issueCtx, err := c.issues.Fetch(ctx, repo, issueNumber)
	if err != nil {
		return nil, err
	}

	toolset := c.tools(repo, issueNumber)
	registry, err := toolset.Registry()
	if err != nil {
		return nil, fmt.Errorf("build tools: %w", err)
	}

	var names []string
	for _, t := range registry.Tools() {
		names = append(names, t.Name)
	}
	instructions, err := c.instructions.BuildInstructions(prompts.InstructionsData{
		Repo:        repo,
		IssueNumber: issueNumber,
		Tools:       names,
		DryRun:      c.opts.DryRun,
		Sentinel:    CompletionSentinel,
	})
	if err != nil {
		return nil, fmt.Errorf("build instructions: %w", err)
	}

	first := sess.LastIteration
	log.Info("starting iterations", "from", first, "max", maxIterations, "resumed", out.Resumed)

	for i := first; i < first+maxIterations; i++ {
		ilog := log.With("iteration", i)

		prompt := reasoner.Prompt{
			Issue:        issueCtx.Issue,
			Comments:     issueCtx.Comments,
			History:      sess.History,
			Instructions: instructions,
		}
		result, err := c.reasoner.Run(ctx, prompt, registry)
		if err != nil {
			return out, fmt.Errorf("iteration %d: %w", i, err)
		}

		sess.Append(i, result)
		out.Iterations++
		if err := c.store.Save(sess); err != nil {
			return out, fmt.Errorf("save session: %w", err)
		}
		c.record(ilog, sess, i, result)
		ilog.Info("iteration finished", "result_len", len(result))

		if strings.Contains(result, CompletionSentinel) {
			return c.finish(ctx, log, out, toolset, domain.StateComplete)
		}
		if c.opts.Now().Sub(start) > c.opts.Budget {
			return c.finish(ctx, log, out, toolset, domain.StateTimedOut)
		}
	}

	return c.finish(ctx, log, out, toolset, domain.StateExhausted)
}

// finish persists the terminal state and reports it. Reporting failures are logged only.
func (c *Controller) finish(ctx context.Context, log *slog.Logger, out *Outcome, toolset Toolset, state domain.TerminalState) (*Outcome, error) {
	out.State = state
	out.PullRequests = toolset.PullRequests()

	if err := c.store.Save(out.Session); err != nil {
		return out, fmt.Errorf("save session: %w", err)
	}
	log.Info("session stopped", "state", state, "iterations", out.Iterations, "prs", len(out.PullRequests))

	if state == domain.StateComplete && c.opts.Reporter != nil {
		if _, err := c.opts.Reporter.ReportCompletion(ctx, out.Session.RepoName, out.Session.IssueNumber, len(out.Session.History), out.PullRequests); err != nil {
			log.Warn("failed to comment on issue", "error", err)
		}
	}
	if err := c.opts.Notifier.Send(ctx, notify.ForTerminalState(out.Session, state, out.PullRequests)); err != nil {
		log.Warn("failed to send notification", "error", err)
	}
	return out, nil
}

func (c *Controller) record(log *slog.Logger, sess *domain.Session, iteration int, result string) {
	if c.opts.Ledger == nil {
		return
	}
	err := c.opts.Ledger.RecordIteration(&ledger.Iteration{
		SessionID: domain.SessionID(sess.RepoName, sess.IssueNumber),
		Repo:      sess.RepoName,
		Issue:     sess.IssueNumber,
		Iteration: iteration,
		Result:    result,
	})
	if err != nil {
		log.Warn("failed to record iteration", "error", err)
	}
}
