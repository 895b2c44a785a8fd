package admsrelay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// RetryResult summarizes one retry cycle.
type RetryResult struct {
	Attempted int
	Delivered int
	Retried   int
	Dead      int
}

// RetryWorker redelivers queued attempts until they succeed or are dead-lettered.
type RetryWorker struct {
	queue  Queue
	sender Sender
	cfg    Config

	backlogMu sync.Mutex
	backlogAt time.Time
}

// NewRetryWorker constructs a RetryWorker with defaults and optional settings.
func NewRetryWorker(queue Queue, sender Sender, opts ...Option) *RetryWorker {
	if queue == nil {
		panic("admsrelay: nil Queue")
	}
	if sender == nil {
		panic("admsrelay: nil Sender")
	}

	return &RetryWorker{
		queue:  queue,
		sender: sender,
		cfg:    buildConfig(opts),
	}
}

// RunOnce redelivers one batch of due attempts.
//
// Payload and signature are sent verbatim. Queue mutation faults do not stop
// the batch; they are returned joined once every attempt has been tried, and
// the affected attempts are picked up again on a later cycle.
func (w *RetryWorker) RunOnce(ctx context.Context) (RetryResult, error) {
	start := time.Now()
	defer func() {
		w.cfg.Metrics.ObserveCycleDuration("retry", time.Since(start))
	}()

	var result RetryResult
	attempts, err := w.queue.DueForRetry(ctx, w.cfg.MaxRetry, w.cfg.RetryBatchSize)
	if err != nil {
		w.cfg.Metrics.AddErrors(ErrorKindQueue, 1)

		return result, fmt.Errorf("admsrelay: load due attempts: %w", err)
	}
	if len(attempts) > w.cfg.RetryBatchSize {
		attempts = attempts[:w.cfg.RetryBatchSize]
	}

	var errs []error
	for _, attempt := range attempts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)

			break
		}
		result.Attempted++
		if err := w.redeliver(ctx, attempt, &result); err != nil {
			errs = append(errs, err)
		}
	}

	w.cfg.Metrics.AddDelivered(result.Delivered)
	w.cfg.Metrics.AddRetries(result.Retried)
	w.cfg.Metrics.AddDead(result.Dead)
	if len(errs) > 0 {
		w.cfg.Metrics.AddErrors(ErrorKindQueue, len(errs))
	}
	w.maybeRecordBacklog(ctx)

	return result, errors.Join(errs...)
}

func (w *RetryWorker) redeliver(ctx context.Context, attempt DeliveryAttempt, result *RetryResult) error {
	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	sendErr := w.sender.Send(sendCtx, Delivery{
		Destination: attempt.Destination,
		Payload:     attempt.Payload,
		Signature:   attempt.Signature,
	})
	cancel()

	if sendErr == nil {
		if err := w.queue.MarkSucceeded(ctx, attempt.ID); err != nil {
			w.cfg.Logger.Error("admsrelay mark succeeded failed", "id", attempt.ID, "err", err)

			return fmt.Errorf("admsrelay: mark %s succeeded: %w", attempt.ID, err)
		}
		result.Delivered++
		w.cfg.Logger.Info("admsrelay redelivered", "id", attempt.ID, "destination", attempt.Destination)
		if w.cfg.NotifyDeliveries {
			notify(ctx, w.cfg.Notifier, w.cfg.Logger, FormatNotice("RETRY WEBHOOK "+w.cfg.ServiceName, string(attempt.Payload)))
		}

		return nil
	}

	w.cfg.Logger.Warn("admsrelay redelivery failed", "id", attempt.ID, "destination", attempt.Destination, "retry", attempt.RetryCount+1, "err", sendErr)

	if w.cfg.FailureClassifier(ctx, attempt, sendErr) == FailureDead {
		if deadLetterer, ok := w.queue.(DeadLetterer); ok {
			if err := deadLetterer.MarkDead(ctx, attempt.ID, sendErr); err != nil {
				w.cfg.Logger.Error("admsrelay dead-letter failed", "id", attempt.ID, "err", err)

				return fmt.Errorf("admsrelay: dead-letter %s: %w", attempt.ID, err)
			}
			attempt.Status = StatusDead
			result.Dead++
			w.signalDead(ctx, attempt, sendErr)

			return nil
		}
		w.cfg.Logger.Warn("admsrelay queue does not support dead-lettering; falling back to retry", "id", attempt.ID)
	}

	state, err := w.queue.IncrementRetry(ctx, attempt.ID, w.cfg.MaxRetry, sendErr)
	if err != nil {
		w.cfg.Logger.Error("admsrelay increment retry failed", "id", attempt.ID, "err", err)

		return fmt.Errorf("admsrelay: increment retry %s: %w", attempt.ID, err)
	}
	result.Retried++
	attempt.RetryCount = state.RetryCount
	attempt.Status = state.Status
	if attempt.Dead() {
		result.Dead++
		w.signalDead(ctx, attempt, sendErr)
	}

	return nil
}

// signalDead surfaces a dead-lettered attempt to the operator.
func (w *RetryWorker) signalDead(ctx context.Context, attempt DeliveryAttempt, cause error) {
	w.cfg.Logger.Error("admsrelay delivery dead-lettered",
		"id", attempt.ID,
		"destination", attempt.Destination,
		"retries", attempt.RetryCount,
		"err", cause,
	)
	body := fmt.Sprintf("id: %s\ndestination: %s\nretries: %d\nerror: %v\n\n%s",
		attempt.ID, attempt.Destination, attempt.RetryCount, cause, attempt.Payload)
	notify(ctx, w.cfg.Notifier, w.cfg.Logger, FormatNotice("DEAD WEBHOOK "+w.cfg.ServiceName, body))
}

func (w *RetryWorker) maybeRecordBacklog(ctx context.Context) {
	counter, ok := w.queue.(BacklogCounter)
	if !ok {
		return
	}
	if ctx.Err() != nil {
		return
	}

	if w.cfg.BacklogInterval > 0 {
		now := w.cfg.Clock.Now()
		w.backlogMu.Lock()
		nextAllowed := w.backlogAt.Add(w.cfg.BacklogInterval)
		if !w.backlogAt.IsZero() && now.Before(nextAllowed) {
			w.backlogMu.Unlock()

			return
		}
		w.backlogAt = now
		w.backlogMu.Unlock()
	}

	pending, err := counter.PendingCount(ctx)
	if err != nil {
		w.cfg.Logger.Warn("admsrelay pending count failed", "err", err)

		return
	}
	w.cfg.Metrics.SetPending(pending)

	dead, err := counter.DeadCount(ctx)
	if err != nil {
		w.cfg.Logger.Warn("admsrelay dead count failed", "err", err)

		return
	}
	w.cfg.Metrics.SetDeadLetters(dead)
	if dead > 0 {
		w.cfg.Logger.Warn("admsrelay dead-letter backlog", "count", dead)
	}
}
