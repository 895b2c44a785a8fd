package admsrelay

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sourcegraph/conc"
)

const faultBackoffGrowth = 4

// Task is one unit of repeating work run by the Scheduler.
type Task struct {
	Name string
	// Run performs one cycle. It is called with a context that is never
	// canceled, so a cycle always runs to completion.
	Run func(ctx context.Context) error
	// Interval is the delay between successful cycles.
	Interval time.Duration
	// FaultDelay is the first delay after a failed cycle. Consecutive
	// failures double it up to four times its value.
	FaultDelay time.Duration
}

// Scheduler runs tasks in independent repeat-with-delay loops until shutdown.
type Scheduler struct {
	tasks []Task
	cfg   Config
}

// NewScheduler runs the Poller and the RetryWorker on their configured intervals.
func NewScheduler(poller *Poller, worker *RetryWorker, opts ...Option) *Scheduler {
	if poller == nil {
		panic("admsrelay: nil Poller")
	}
	if worker == nil {
		panic("admsrelay: nil RetryWorker")
	}

	cfg := buildConfig(opts)
	s := &Scheduler{cfg: cfg}
	s.Add(Task{
		Name: "poll",
		Run: func(ctx context.Context) error {
			result, err := poller.RunOnce(ctx)
			if result.Fetched > 0 {
				cfg.Logger.Info("admsrelay poll cycle",
					"fetched", result.Fetched,
					"dispatched", result.Dispatched,
					"skipped", result.Skipped,
					"cursor", result.Cursor.Format(TimeLayout),
				)
			}

			return err
		},
		Interval:   cfg.PollInterval,
		FaultDelay: cfg.PollFaultDelay,
	})
	s.Add(Task{
		Name: "retry",
		Run: func(ctx context.Context) error {
			result, err := worker.RunOnce(ctx)
			if result.Attempted > 0 {
				cfg.Logger.Info("admsrelay retry cycle",
					"attempted", result.Attempted,
					"delivered", result.Delivered,
					"retried", result.Retried,
					"dead", result.Dead,
				)
			}

			return err
		},
		Interval:   cfg.RetryInterval,
		FaultDelay: cfg.RetryFaultDelay,
	})

	return s
}

// Add registers an extra task. It must be called before Run.
func (s *Scheduler) Add(task Task) {
	if task.Run == nil {
		panic("admsrelay: nil Task.Run")
	}
	if task.FaultDelay <= 0 {
		task.FaultDelay = task.Interval
	}
	s.tasks = append(s.tasks, task)
}

// Run starts every task and blocks until ctx is canceled and all loops have
// finished their current cycle.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg conc.WaitGroup
	for _, task := range s.tasks {
		wg.Go(func() {
			s.loop(ctx, task)
		})
	}
	wg.Wait()

	return nil
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	faults := backoff.NewExponentialBackOff()
	faults.InitialInterval = task.FaultDelay
	faults.MaxInterval = task.FaultDelay * faultBackoffGrowth
	faults.Multiplier = 2
	faults.RandomizationFactor = 0
	faults.Reset()

	s.cfg.Logger.Info("admsrelay task started", "task", task.Name, "interval", task.Interval)
	for ctx.Err() == nil {
		wait := task.Interval
		if err := s.runCycle(ctx, task); err != nil {
			wait = faults.NextBackOff()
			s.cfg.Logger.Error("admsrelay task cycle failed", "task", task.Name, "err", err, "retry_in", wait)
		} else {
			faults.Reset()
		}

		if err := sleep(ctx, wait); err != nil {
			break
		}
	}
	s.cfg.Logger.Info("admsrelay task stopped", "task", task.Name)
}

func (s *Scheduler) runCycle(ctx context.Context, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: %v", ErrTaskPanic, task.Name, rec)
		}
	}()

	return task.Run(context.WithoutCancel(ctx))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
