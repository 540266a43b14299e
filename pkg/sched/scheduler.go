// Package sched runs mode-aware periodic tasks and the calendar-driven
// mode transitions.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bcnofne/shipos/pkg/config"
)

// TaskFunc is one scheduled job. The returned string is logged as its
// result.
type TaskFunc func(ctx context.Context) (string, error)

// Task is a registered periodic job.
type Task struct {
	Name         string
	Fn           TaskFunc
	Interval     time.Duration
	Condition    func() bool
	AllowedModes []string

	LastRun  time.Time
	RunCount int
}

// shouldRun applies the due/mode/condition gates.
func (t *Task) shouldRun(now time.Time, mode string) bool {
	if now.Sub(t.LastRun) < t.Interval {
		return false
	}
	if len(t.AllowedModes) > 0 && !slices.Contains(t.AllowedModes, mode) {
		return false
	}
	if t.Condition != nil && !t.Condition() {
		return false
	}
	return true
}

// TaskResult reports one task execution.
type TaskResult struct {
	Name    string
	Success bool
	Result  string
	Err     error
}

// Scheduler holds the task list and drives it from a single ticker loop.
type Scheduler struct {
	cfg    *config.SchedConfig
	modeFn func() string
	logger *slog.Logger

	mu    sync.Mutex
	tasks []*Task

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler. modeFn supplies the current operating mode at
// each tick.
func New(cfg *config.SchedConfig, modeFn func() string) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		modeFn: modeFn,
		logger: slog.Default().With("component", "scheduler"),
	}
}

// Register appends a task. Nil condition and empty allowed-modes mean
// unconditional.
func (s *Scheduler) Register(name string, fn TaskFunc, interval time.Duration, condition func() bool, allowedModes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, &Task{
		Name:         name,
		Fn:           fn,
		Interval:     interval,
		Condition:    condition,
		AllowedModes: allowedModes,
	})
	s.logger.Info("Task registered", "name", name, "interval", interval, "allowed_modes", allowedModes)
}

// RunDue executes every task whose gates pass, sequentially, and returns
// per-task results.
func (s *Scheduler) RunDue(ctx context.Context, mode string) []TaskResult {
	now := time.Now()

	s.mu.Lock()
	var due []*Task
	for _, t := range s.tasks {
		if t.shouldRun(now, mode) {
			t.LastRun = now
			t.RunCount++
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	var results []TaskResult
	for _, t := range due {
		result, err := t.Fn(ctx)
		tr := TaskResult{Name: t.Name, Success: err == nil, Result: result, Err: err}
		if err != nil {
			s.logger.Error("Task failed", "name", t.Name, "error", err)
		} else if result != "" {
			s.logger.Info("Task completed", "name", t.Name, "result", result)
		}
		results = append(results, tr)
	}
	return results
}

// Start launches the ticker loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	s.logger.Info("Scheduler started", "tick", s.cfg.Tick.Duration, "tasks", len(s.tasks))
}

// Stop signals the loop to exit and waits for it.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Tick.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue(ctx, s.modeFn())
		}
	}
}

// Stats renders a short per-task run summary for status output.
func (s *Scheduler) Stats() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := ""
	for _, t := range s.tasks {
		last := "never"
		if !t.LastRun.IsZero() {
			last = t.LastRun.Format("15:04:05")
		}
		out += fmt.Sprintf("%s: %d runs, last %s\n", t.Name, t.RunCount, last)
	}
	return out
}
