package admsrelay

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"
)

// PayloadDispatcher hands a payload to every destination.
type PayloadDispatcher interface {
	Dispatch(ctx context.Context, payload Payload) (DispatchResult, error)
}

// DispatchResult lists destinations by outcome, in configuration order.
type DispatchResult struct {
	Delivered []string
	Queued    []string
}

// Dispatcher fans a signed payload out to all destinations and enqueues failures.
type Dispatcher struct {
	destinations []string
	signer       *Signer
	sender       Sender
	queue        Queue
	cfg          Config
}

var _ PayloadDispatcher = (*Dispatcher)(nil)

type destinationOutcome struct {
	destination string
	sendErr     error
	enqueueErr  error
}

// NewDispatcher constructs a Dispatcher for a static destination list.
func NewDispatcher(destinations []string, signer *Signer, sender Sender, queue Queue, opts ...Option) (*Dispatcher, error) {
	if signer == nil {
		panic("admsrelay: nil Signer")
	}
	if sender == nil {
		panic("admsrelay: nil Sender")
	}
	if queue == nil {
		panic("admsrelay: nil Queue")
	}
	if len(destinations) == 0 {
		return nil, ErrNoDestinations
	}

	return &Dispatcher{
		destinations: append([]string(nil), destinations...),
		signer:       signer,
		sender:       sender,
		queue:        queue,
		cfg:          buildConfig(opts),
	}, nil
}

// Dispatch delivers payload to every destination concurrently.
//
// A failed delivery is not an error: it is enqueued for retry. Dispatch
// returns an error only when a failed delivery could not be enqueued, in
// which case the caller must not treat the payload as handled.
func (d *Dispatcher) Dispatch(ctx context.Context, payload Payload) (DispatchResult, error) {
	signature := d.signer.Sign(payload)
	outcomes := make([]destinationOutcome, len(d.destinations))

	workers := d.cfg.FanoutWorkers
	if workers <= 0 || workers > len(d.destinations) {
		workers = len(d.destinations)
	}
	p := pool.New().WithMaxGoroutines(workers)
	for i, destination := range d.destinations {
		p.Go(func() {
			outcomes[i] = d.deliver(ctx, destination, payload, signature)
		})
	}
	p.Wait()

	var (
		result DispatchResult
		errs   []error
	)
	for _, outcome := range outcomes {
		switch {
		case outcome.sendErr == nil:
			result.Delivered = append(result.Delivered, outcome.destination)
		case outcome.enqueueErr == nil:
			result.Queued = append(result.Queued, outcome.destination)
		default:
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrEnqueueFailed, outcome.destination, outcome.enqueueErr))
		}
	}

	d.cfg.Metrics.AddDelivered(len(result.Delivered))
	d.cfg.Metrics.AddQueued(len(result.Queued))
	if len(errs) > 0 {
		d.cfg.Metrics.AddErrors(ErrorKindQueue, len(errs))
	}

	if d.cfg.NotifyDeliveries {
		for range result.Delivered {
			notify(ctx, d.cfg.Notifier, d.cfg.Logger, FormatNotice("WEBHOOK "+d.cfg.ServiceName, payload.String()))
		}
	}

	return result, errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, destination string, payload Payload, signature string) destinationOutcome {
	outcome := destinationOutcome{destination: destination}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	outcome.sendErr = d.sender.Send(sendCtx, Delivery{
		Destination: destination,
		Payload:     payload,
		Signature:   signature,
	})
	cancel()

	if outcome.sendErr == nil {
		d.cfg.Logger.Info("admsrelay delivered", "destination", destination)

		return outcome
	}

	d.cfg.Logger.Warn("admsrelay delivery failed, queueing for retry", "destination", destination, "err", outcome.sendErr)
	id, err := d.queue.Enqueue(ctx, DeliveryAttempt{
		Payload:     append([]byte(nil), payload...),
		Signature:   signature,
		Destination: destination,
	})
	if err != nil {
		d.cfg.Logger.Error("admsrelay enqueue failed", "destination", destination, "err", err)
		outcome.enqueueErr = err

		return outcome
	}
	d.cfg.Logger.Debug("admsrelay delivery queued", "destination", destination, "id", id)

	return outcome
}
