package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/issue-agent/internal/config"
	"github.com/hochfrequenz/issue-agent/internal/controller"
	"github.com/hochfrequenz/issue-agent/internal/diff"
	"github.com/hochfrequenz/issue-agent/internal/gitops"
	"github.com/hochfrequenz/issue-agent/internal/issues"
	"github.com/hochfrequenz/issue-agent/internal/ledger"
	"github.com/hochfrequenz/issue-agent/internal/notify"
	"github.com/hochfrequenz/issue-agent/internal/pipeline"
	"github.com/hochfrequenz/issue-agent/internal/prbot"
	"github.com/hochfrequenz/issue-agent/internal/prompts"
	"github.com/hochfrequenz/issue-agent/internal/reasoner"
	"github.com/hochfrequenz/issue-agent/internal/session"
	"github.com/hochfrequenz/issue-agent/internal/tools"
)

// loadConfig reads the config file, overlays the environment and the
// --dry-run flag, and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithLocalFallback(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("dry-run"); f != nil && f.Changed {
		cfg.DryRun = dryRunFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openLedger(cfg *config.Config) (*ledger.Store, error) {
	store, err := ledger.New(cfg.General.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", cfg.General.LedgerPath, err)
	}
	return store, nil
}

// agent bundles the collaborators of one configured run
type agent struct {
	cfg        *config.Config
	workspace  *gitops.Workspace
	controller *controller.Controller
}

// newAgent wires the controller for repo from cfg
func newAgent(cfg *config.Config, repo string, led *ledger.Store) (*agent, error) {
	budget, err := cfg.Budget()
	if err != nil {
		return nil, err
	}
	llmTimeout, err := cfg.LLMTimeout()
	if err != nil {
		return nil, err
	}

	root := cfg.General.RepoRoot
	ws := gitops.NewWorkspace(root, cfg.GitHub.Remote, cfg.GitHub.BaseBranch)
	bot := prbot.NewPRBot(prbot.Options{
		APIURL:     cfg.GitHub.APIURL,
		WebURL:     cfg.GitHub.WebURL,
		Owner:      cfg.GitHub.Owner,
		Repo:       repo,
		Token:      cfg.GitHub.Token,
		BaseBranch: cfg.GitHub.BaseBranch,
	})
	pipe := pipeline.New(ws, diff.NewGenerator(root), bot, pipeline.Options{
		Identity:   gitops.Identity{Name: cfg.Git.AuthorName, Email: cfg.Git.AuthorEmail},
		Remote:     cfg.GitHub.Remote,
		BaseBranch: cfg.GitHub.BaseBranch,
		AutoLabel:  cfg.GitHub.AutoLabel,
		Logger:     logger,
	})

	fetcher := issues.NewFetcher(cfg.GitHub.Owner, cfg.GitHub.BaseBranch, cfg.GitHub.Token)
	chat := reasoner.NewChatClient(reasoner.ChatOptions{
		BaseURL:       cfg.LLMBaseURL(),
		Model:         cfg.LLM.Model,
		APIKey:        cfg.LLM.APIKey,
		MaxToolRounds: cfg.LLM.MaxToolRounds,
		Timeout:       llmTimeout,
		Logger:        logger,
	})

	toolset := func(repo string, issueNumber int) controller.Toolset {
		opts := tools.Options{
			RepoRoot:    root,
			Repo:        repo,
			IssueNumber: issueNumber,
			DryRun:      cfg.DryRun,
			TestCommand: cfg.Tests.Command,
			Tree:        ws,
			Pipeline:    pipe,
			Logger:      logger,
		}
		if led != nil {
			opts.Ledger = led
		}
		return tools.New(opts)
	}

	ctrlOpts := controller.Options{
		Budget: budget,
		DryRun: cfg.DryRun,
		Notifier: notify.NewMultiNotifier(
			notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
			notify.NewDesktopNotifier(cfg.Notifications.Desktop),
		),
		Reporter: issues.NewReporter(fetcher, cfg.DryRun),
		Logger:   logger,
	}
	if led != nil {
		ctrlOpts.Ledger = led
	}

	ctrl := controller.New(
		session.NewFileStore(cfg.StatePath()),
		fetcher,
		chat,
		toolset,
		prompts.DefaultLoader(root, cfg.General.PromptsDir),
		ctrlOpts,
	)
	return &agent{cfg: cfg, workspace: ws, controller: ctrl}, nil
}

// run executes the loop and returns the working tree to the branch it started on
func (a *agent) run(ctx context.Context, repo string, issueNumber, maxIterations int) (*controller.Outcome, error) {
	start, err := a.workspace.CurrentBranch(ctx, a.cfg.DryRun)
	if err != nil {
		return nil, fmt.Errorf("working tree: %w", err)
	}

	out, runErr := a.controller.Run(ctx, repo, issueNumber, maxIterations)

	if start != "" {
		if err := a.workspace.CheckoutBranch(context.WithoutCancel(ctx), start, a.cfg.DryRun); err != nil {
			logger.Warn("failed to restore branch", "branch", start, "error", err)
		}
	}
	return out, runErr
}
