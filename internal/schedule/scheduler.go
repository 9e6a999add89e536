// Package schedule reruns resumable sessions on cron schedules.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/issue-agent/internal/config"
)

// RunFunc executes one scheduled run
type RunFunc func(ctx context.Context, entry config.ScheduleConfig) error

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

type entry struct {
	cfg   config.ScheduleConfig
	sched cron.Schedule
}

// Scheduler manages scheduled session runs. An entry never overlaps itself:
// a due entry whose previous run is still going is skipped.
type Scheduler struct {
	entries map[string]entry
	lastRun map[string]time.Time
	running map[string]bool
	now     func() time.Time
	tick    time.Duration
	log     *slog.Logger
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for the given entries
func NewScheduler(entries []config.ScheduleConfig, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		entries: make(map[string]entry),
		lastRun: make(map[string]time.Time),
		running: make(map[string]bool),
		now:     time.Now,
		tick:    time.Minute,
		log:     logger,
	}

	for _, cfg := range entries {
		sched, err := ParseCron(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: invalid cron expression: %w", cfg.Name, err)
		}
		if _, dup := s.entries[cfg.Name]; dup {
			return nil, fmt.Errorf("schedule %s: duplicate name", cfg.Name)
		}
		s.entries[cfg.Name] = entry{cfg: cfg, sched: sched}
	}

	return s, nil
}

// NextRun returns the next scheduled run time for an entry
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return e.sched.Next(s.now())
}

// ShouldRun returns true if an entry is due and not already running
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok || s.running[name] {
		return false
	}

	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		lastRun = s.now().Add(-24 * time.Hour)
	}
	return s.now().After(e.sched.Next(lastRun))
}

// tryStart marks an entry running if it is due. It reports whether it did.
func (s *Scheduler) tryStart(name string) bool {
	if !s.ShouldRun(name) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

// markComplete marks an entry as finished
func (s *Scheduler) markComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = s.now()
}

// Names returns all entry names, sorted
func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunDue starts every due entry in its own goroutine and returns the names started
func (s *Scheduler) RunDue(ctx context.Context, run RunFunc) []string {
	var started []string
	for _, name := range s.Names() {
		if !s.tryStart(name) {
			continue
		}
		s.mu.RLock()
		cfg := s.entries[name].cfg
		s.mu.RUnlock()

		started = append(started, name)
		s.wg.Add(1)
		go func(c config.ScheduleConfig) {
			defer s.wg.Done()
			defer s.markComplete(c.Name)
			log := s.log.With("schedule", c.Name, "repo", c.Repo, "issue", c.Issue)
			log.Info("scheduled run starting")
			if err := run(ctx, c); err != nil {
				log.Error("scheduled run failed", "error", err)
				return
			}
			log.Info("scheduled run finished")
		}(cfg)
	}
	return started
}

// Start checks entries every tick until ctx is cancelled, then waits for
// running entries to return.
func (s *Scheduler) Start(ctx context.Context, run RunFunc) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.RunDue(ctx, run)
		}
	}
}

// Wait blocks until all started runs have returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
