package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one unit of scheduled maintenance work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Sweeper drives the retention tasks on a fixed interval in a background
// goroutine. A deployment registers the automated cleanup and the expired
// export cleanup; each tick runs every task, isolating failures per task.
type Sweeper struct {
	interval time.Duration
	tasks    []Task
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type SweeperOption func(*Sweeper)

// WithInterval sets the time between runs.
func WithInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.interval = interval
	}
}

// WithSweeperLogger sets the logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func NewSweeper(tasks []Task, opts ...SweeperOption) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		interval: 24 * time.Hour,
		tasks:    tasks,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the schedule loop in a background goroutine.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// RunOnce executes every task immediately, outside the schedule.
func (s *Sweeper) RunOnce() {
	s.sweep()
}

func (s *Sweeper) sweep() {
	for _, task := range s.tasks {
		if err := task.Run(s.ctx); err != nil {
			if s.logger != nil {
				s.logger.Error("scheduled task failed",
					"task", task.Name,
					"error", err,
				)
			}
			// keep going; one failing task must not starve the rest
			continue
		}
		if s.logger != nil {
			s.logger.Info("scheduled task completed", "task", task.Name)
		}
	}
}
