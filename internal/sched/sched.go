// Package sched runs the bot's periodic work: the alert poll and the
// manager token refresh. Tasks tick on a shared one second clock and
// never overlap themselves.
package sched

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a named periodic job.
type Task struct {
	ID       string
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

type taskState struct {
	task    Task
	lastRun time.Time
	nextRun time.Time
	running atomic.Bool
}

// Scheduler dispatches tasks from a single ticker loop.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*taskState
	logger *slog.Logger
	tick   time.Duration
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*taskState),
		logger: logger,
		tick:   time.Second,
	}
}

// Add registers a task, replacing any existing task with the same ID.
// The first run happens one interval from now.
func (s *Scheduler) Add(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = &taskState{
		task:    task,
		nextRun: time.Now().Add(task.Interval),
	}
	s.logger.Info("scheduled task added", "id", task.ID, "name", task.Name, "interval", task.Interval)
}

func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	s.logger.Info("scheduled task removed", "id", id)
}

// Start runs the ticker loop until the context ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started")
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case now := <-ticker.C:
			s.runDue(ctx, now)
		}
	}
}

// runDue starts every due task on its own goroutine. A task still
// running from a previous tick is skipped, not stacked.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*taskState, 0, len(s.tasks))
	for _, ts := range s.tasks {
		if now.After(ts.nextRun) {
			ts.lastRun = now
			ts.nextRun = now.Add(ts.task.Interval)
			due = append(due, ts)
		}
	}
	s.mu.Unlock()

	for _, ts := range due {
		if !ts.running.CompareAndSwap(false, true) {
			s.logger.Warn("task still running, skipping tick", "id", ts.task.ID)
			continue
		}
		go func(ts *taskState) {
			defer ts.running.Store(false)
			ts.task.Run(ctx)
		}(ts)
	}
}
