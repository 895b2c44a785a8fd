package admsrelay

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsTasksUntilCanceled(t *testing.T) {
	var polls, retries atomic.Int32
	s := &Scheduler{cfg: buildConfig(nil)}
	s.Add(Task{Name: "a", Interval: time.Millisecond, Run: func(context.Context) error {
		polls.Add(1)
		return nil
	}})
	s.Add(Task{Name: "b", Interval: time.Millisecond, Run: func(context.Context) error {
		retries.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for polls.Load() < 3 || retries.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("tasks did not run: a=%d b=%d", polls.Load(), retries.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
}

func TestSchedulerFinishesCycleOnShutdown(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	var cycleCtxErr atomic.Value

	s := &Scheduler{cfg: buildConfig(nil)}
	s.Add(Task{Name: "slow", Interval: time.Hour, Run: func(ctx context.Context) error {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			cycleCtxErr.Store(err)
		}
		finished.Store(true)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-started
	cancel()
	select {
	case <-done:
		t.Fatalf("scheduler must wait for the running cycle")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
	if !finished.Load() {
		t.Fatalf("cycle must run to completion")
	}
	if cycleCtxErr.Load() != nil {
		t.Fatalf("cycle context must not be canceled mid-cycle")
	}
}

func TestSchedulerBacksOffAfterFault(t *testing.T) {
	var calls atomic.Int32
	var stamps [3]atomic.Int64

	s := &Scheduler{cfg: buildConfig(nil)}
	s.Add(Task{
		Name:       "flaky",
		Interval:   time.Millisecond,
		FaultDelay: 40 * time.Millisecond,
		Run: func(context.Context) error {
			n := calls.Add(1)
			if n <= 3 {
				stamps[n-1].Store(time.Now().UnixNano())
			}
			if n == 1 {
				return errBoom
			}
			if n == 2 {
				panic("bad record")
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("task did not recover, calls=%d", calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	first := time.Duration(stamps[1].Load() - stamps[0].Load())
	second := time.Duration(stamps[2].Load() - stamps[1].Load())
	if first < 40*time.Millisecond {
		t.Fatalf("expected fault delay after error, got %s", first)
	}
	if second < 80*time.Millisecond {
		t.Fatalf("expected growing delay after consecutive faults, got %s", second)
	}
}

func TestRunCycleRecoversPanic(t *testing.T) {
	s := &Scheduler{cfg: buildConfig(nil)}
	err := s.runCycle(context.Background(), Task{Name: "p", Run: func(context.Context) error { panic("x") }})
	if !errors.Is(err, ErrTaskPanic) {
		t.Fatalf("expected ErrTaskPanic, got %v", err)
	}
}

func TestNewSchedulerRegistersPollAndRetry(t *testing.T) {
	queue := newMemQueue()
	sender := newScriptedSender()
	signer, _ := NewSigner("secret")
	dispatcher, _ := NewDispatcher([]string{"https://a.test"}, signer, sender, queue)
	poller := NewPoller(&logSource{}, &memCursor{}, dispatcher)
	worker := NewRetryWorker(queue, sender)

	s := NewScheduler(poller, worker, WithPollInterval(time.Second), WithRetryInterval(2*time.Second))
	if len(s.tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(s.tasks))
	}
	if s.tasks[0].Name != "poll" || s.tasks[0].Interval != time.Second || s.tasks[0].FaultDelay != defaultPollFaultDelay {
		t.Fatalf("unexpected poll task %+v", s.tasks[0])
	}
	if s.tasks[1].Name != "retry" || s.tasks[1].Interval != 2*time.Second {
		t.Fatalf("unexpected retry task %+v", s.tasks[1])
	}
}
