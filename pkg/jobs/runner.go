// Package jobs runs the engine's periodic batches (reminder dispatch, trial
// sweep) inside the serve process.
//
// Each registered job runs in its own goroutine: it sleeps until its
// schedule's next time, runs, logs the outcome and repeats until the context
// is canceled. Runs of one job never overlap. Jobs must be safe against
// overlapping with another process running the same batch; both engine
// batches are, through the reminder ledger and conditional trial expiry.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
)

// Func is one run of a job. now is the scheduled time.
type Func func(ctx context.Context, now time.Time) error

type job struct {
	name     string
	schedule Schedule
	fn       Func
}

// Runner executes registered jobs on their schedules.
type Runner struct {
	mu     sync.Mutex
	jobs   map[string]job
	logger *slog.Logger
	now    func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source used to compute the next run.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		jobs:   make(map[string]job),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a job.
func (r *Runner) Add(name string, schedule Schedule, fn Func) error {
	if name == "" || schedule == nil || fn == nil {
		return ErrInvalidJobDefinition
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[name]; exists {
		return ErrJobAlreadyRegistered
	}
	r.jobs[name] = job{name: name, schedule: schedule, fn: fn}

	r.logger.Info("registered periodic job",
		logger.Component("jobs"),
		slog.String("job", name),
		slog.String("schedule", schedule.String()),
	)
	return nil
}

// Run blocks until ctx is canceled. Job failures are logged and never stop
// the runner.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	jobs := make([]job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	if len(jobs) == 0 {
		return ErrRunnerNotConfigured
	}

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx, j)
		}()
	}
	wg.Wait()
	return nil
}

func (r *Runner) loop(ctx context.Context, j job) {
	for {
		next := j.schedule.Next(r.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		r.runOnce(ctx, j, next)
	}
}

func (r *Runner) runOnce(ctx context.Context, j job, scheduled time.Time) {
	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.LogAttrs(ctx, slog.LevelError, "periodic job panicked",
				logger.Component("jobs"),
				slog.String("job", j.name),
				slog.Any("panic", p),
			)
		}
	}()

	if err := j.fn(ctx, scheduled); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "periodic job failed",
			logger.Component("jobs"),
			slog.String("job", j.name),
			logger.Duration(time.Since(started)),
			logger.Error(err),
		)
		return
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "periodic job finished",
		logger.Component("jobs"),
		slog.String("job", j.name),
		logger.Duration(time.Since(started)),
	)
}
