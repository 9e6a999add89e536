package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/issue-agent/internal/config"
	"github.com/hochfrequenz/issue-agent/internal/domain"
	"github.com/hochfrequenz/issue-agent/internal/ledger"
	"github.com/hochfrequenz/issue-agent/internal/observer"
	"github.com/hochfrequenz/issue-agent/internal/schedule"
	"github.com/hochfrequenz/issue-agent/internal/session"
	"github.com/hochfrequenz/issue-agent/tui"
)

var (
	maxIterations int
	historyFull   bool
	changesLimit  int
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run REPO ISSUE",
		Short: "Work on an issue, resuming a saved session when it matches",
		Args:  cobra.ExactArgs(2),
		RunE:  runRun,
	}
	runCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iterations to run (default from config)")
	rootCmd.AddCommand(runCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the saved session",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print the iteration history of the saved session",
		RunE:  runHistory,
	}
	historyCmd.Flags().BoolVar(&historyFull, "full", false, "print whole results instead of first lines")
	rootCmd.AddCommand(historyCmd)

	// changes command
	changesCmd := &cobra.Command{
		Use:   "changes [REPO [ISSUE]]",
		Short: "List proposed changes from the ledger",
		Args:  cobra.MaximumNArgs(2),
		RunE:  runChanges,
	}
	changesCmd.Flags().IntVar(&changesLimit, "limit", 20, "maximum number of changes")
	rootCmd.AddCommand(changesCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the session file and print new iterations",
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	// schedule command
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the [[schedule]] entries from the config until interrupted",
		RunE:  runSchedule,
	}
	rootCmd.AddCommand(scheduleCmd)

	// tui command
	tuiCmd := &cobra.Command{
		Use:   "tui [REPO ISSUE]",
		Short: "Browse session history and changes",
		Args:  cobra.RangeArgs(0, 2),
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)
}

func parseIssue(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid issue number %q", s)
	}
	return n, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	repo := args[0]
	issueNumber, err := parseIssue(args[1])
	if err != nil {
		return err
	}
	if maxIterations <= 0 {
		maxIterations = cfg.General.MaxIterations
	}

	led, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	a, err := newAgent(cfg, repo, led)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.DryRun {
		fmt.Println("Dry run: no branches, commits, pushes or pull requests will be made.")
	}
	out, err := a.run(ctx, repo, issueNumber, maxIterations)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s after %d iteration(s) this run, %d total\n",
		out.Session.Key(), out.State, out.Iterations, len(out.Session.History))
	for _, pr := range out.PullRequests {
		fmt.Printf("  PR: %s\n", pr.HTMLURL)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := cfg.StatePath()
	sess, err := session.NewFileStore(path).Load()
	if err != nil {
		return err
	}
	if sess == nil {
		fmt.Printf("No session saved at %s\n", path)
		return nil
	}

	fmt.Printf("Session:    %s\n", sess.Key())
	fmt.Printf("File:       %s", path)
	if info, err := os.Stat(path); err == nil {
		fmt.Printf(" (%s, saved %s)", humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
	}
	fmt.Println()
	fmt.Printf("Iterations: %d (next: %d)\n", len(sess.History), sess.LastIteration)
	if n := len(sess.History); n > 0 {
		last := sess.History[n-1]
		fmt.Printf("Last:       #%d %s\n", last.Iteration, firstLine(last.Result))
		if strings.Contains(last.Result, "TASK_COMPLETE") {
			fmt.Println("State:      complete")
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sess, err := session.NewFileStore(cfg.StatePath()).Load()
	if err != nil {
		return err
	}
	if sess == nil || len(sess.History) == 0 {
		fmt.Println("No iterations recorded")
		return nil
	}

	fmt.Printf("%s\n", sess.Key())
	for _, rec := range sess.History {
		printRecord(rec)
	}
	return nil
}

func printRecord(rec domain.IterationRecord) {
	if historyFull {
		fmt.Printf("--- iteration %d ---\n%s\n", rec.Iteration, rec.Result)
		return
	}
	fmt.Printf("  #%-3d %s\n", rec.Iteration, firstLine(rec.Result))
}

func runChanges(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := ledger.ListOptions{Limit: changesLimit}
	if len(args) > 0 {
		opts.Repo = args[0]
	}
	if len(args) > 1 {
		if opts.Issue, err = parseIssue(args[1]); err != nil {
			return err
		}
	}

	led, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	changes, err := led.ListChanges(opts)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Println("No changes recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tTASK\tPATH\tBRANCH\tRESULT")
	for _, c := range changes {
		fmt.Fprintf(w, "%s\t%s#%d\t%s\t%s\t%s\n",
			humanize.Time(c.CreatedAt), c.Repo, c.Issue, c.Path, c.Branch, changeOutcome(c))
	}
	return w.Flush()
}

func changeOutcome(c *ledger.Change) string {
	prefix := ""
	if c.DryRun {
		prefix = "(dry) "
	}
	switch {
	case c.Error != "":
		return prefix + "error: " + c.Error
	case c.PRURL != "":
		return prefix + c.PRURL
	case c.Applied:
		return prefix + "applied"
	default:
		return prefix + "-"
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := cfg.StatePath()
	w, err := observer.NewSessionWatcher(path, session.NewFileStore(path), func(sess *domain.Session, added []domain.IterationRecord) {
		fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), sess.Key())
		for _, rec := range added {
			printRecord(rec)
		}
	})
	if err != nil {
		return err
	}
	w.SetLogger(logger)

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", path)
	w.Start(ctx)
	<-ctx.Done()
	w.Stop()
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Schedules) == 0 {
		return fmt.Errorf("no [[schedule]] entries in config")
	}

	sched, err := schedule.NewScheduler(cfg.Schedules, logger)
	if err != nil {
		return err
	}

	led, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	for _, name := range sched.Names() {
		fmt.Printf("  %-20s next run %s\n", name, humanize.Time(sched.NextRun(name)))
	}

	// All entries share one working tree and one session file
	var tree sync.Mutex
	run := func(ctx context.Context, entry config.ScheduleConfig) error {
		tree.Lock()
		defer tree.Unlock()

		a, err := newAgent(cfg, entry.Repo, led)
		if err != nil {
			return err
		}
		iterations := entry.MaxIterations
		if iterations <= 0 {
			iterations = cfg.General.MaxIterations
		}
		out, err := a.run(ctx, entry.Repo, entry.Issue, iterations)
		if err != nil {
			return err
		}
		logger.Info("scheduled session stopped", "schedule", entry.Name, "state", out.State, "iterations", out.Iterations)
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()
	sched.Start(ctx, run)
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sessions := session.NewFileStore(cfg.StatePath())
	var repo string
	var issueNumber int
	switch len(args) {
	case 2:
		repo = args[0]
		if issueNumber, err = parseIssue(args[1]); err != nil {
			return err
		}
	case 0:
		sess, err := sessions.Load()
		if err != nil {
			return err
		}
		if sess == nil {
			return fmt.Errorf("no saved session; pass REPO ISSUE")
		}
		repo, issueNumber = sess.RepoName, sess.IssueNumber
	default:
		return fmt.Errorf("pass both REPO and ISSUE or neither")
	}

	led, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	model := tui.NewModel(tui.ModelConfig{
		Repo:  repo,
		Issue: issueNumber,
		Source: tui.StoreSource{
			Sessions: sessions,
			Ledger:   led,
			Repo:     repo,
			Issue:    issueNumber,
		},
	})
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
