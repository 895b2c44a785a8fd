package admsrelay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PollResult summarizes one poll cycle.
type PollResult struct {
	Fetched    int
	Dispatched int
	Skipped    int
	Cursor     time.Time
}

// Poller moves the cursor through the access log and dispatches new records.
type Poller struct {
	source     RecordSource
	cursor     CursorStore
	dispatcher PayloadDispatcher
	cfg        Config
}

// NewPoller constructs a Poller with defaults and optional settings.
func NewPoller(source RecordSource, cursor CursorStore, dispatcher PayloadDispatcher, opts ...Option) *Poller {
	if source == nil {
		panic("admsrelay: nil RecordSource")
	}
	if cursor == nil {
		panic("admsrelay: nil CursorStore")
	}
	if dispatcher == nil {
		panic("admsrelay: nil PayloadDispatcher")
	}

	return &Poller{
		source:     source,
		cursor:     cursor,
		dispatcher: dispatcher,
		cfg:        buildConfig(opts),
	}
}

// RunOnce fetches one batch after the cursor, dispatches it in order and
// advances the cursor to the last handled record.
//
// A source fault leaves the cursor untouched. An empty batch advances the
// cursor to now. A dispatch that could not durably enqueue a failure stops
// the batch and leaves the cursor before the offending record.
func (p *Poller) RunOnce(ctx context.Context) (PollResult, error) {
	start := time.Now()
	defer func() {
		p.cfg.Metrics.ObserveCycleDuration("poll", time.Since(start))
	}()

	cursor := p.cursor.Read(ctx)
	result := PollResult{Cursor: cursor}

	p.cfg.Logger.Debug("admsrelay fetching records", "after", cursor.Format(TimeLayout))
	events, err := p.source.Fetch(ctx, cursor, p.cfg.BatchSize)
	if err != nil {
		p.cfg.Metrics.AddErrors(ErrorKindSource, 1)

		return result, fmt.Errorf("admsrelay: fetch records: %w", err)
	}
	events = unhandled(events, cursor)
	if len(events) > p.cfg.BatchSize {
		events = events[:p.cfg.BatchSize]
	}
	result.Fetched = len(events)
	p.cfg.Metrics.AddFetched(len(events))

	if len(events) == 0 {
		p.cfg.Logger.Debug("admsrelay no new records")

		return p.advance(ctx, result, p.cfg.Clock.Now())
	}

	for i, event := range events {
		payload, err := BuildPayload(event)
		if err != nil {
			p.cfg.Logger.Error("admsrelay skipping malformed record", "key", event.Key, "at", event.CursorTime().Format(TimeLayout), "err", err)
			p.cfg.Metrics.AddErrors(ErrorKindPayload, 1)
			result.Skipped++

			continue
		}

		if _, err := p.dispatcher.Dispatch(ctx, payload); err != nil {
			partial, advanceErr := p.advance(ctx, result, safeCursor(events[:i], event.CursorTime()))

			return partial, errors.Join(fmt.Errorf("admsrelay: dispatch record: %w", err), advanceErr)
		}
		result.Dispatched++
	}

	return p.advance(ctx, result, events[len(events)-1].CursorTime())
}

// advance persists next when it moves the cursor forward.
func (p *Poller) advance(ctx context.Context, result PollResult, next time.Time) (PollResult, error) {
	next = next.Truncate(time.Second)
	if next.IsZero() || !next.After(result.Cursor) {
		return result, nil
	}
	if err := p.cursor.Write(ctx, next); err != nil {
		p.cfg.Metrics.AddErrors(ErrorKindCheckpoint, 1)

		return result, fmt.Errorf("admsrelay: write checkpoint: %w", err)
	}
	result.Cursor = next

	return result, nil
}

// unhandled drops records in the cursor's second or earlier. The cycle that
// persisted the cursor already dispatched them.
func unhandled(events []FingerprintEvent, cursor time.Time) []FingerprintEvent {
	floor := NextSecond(cursor)
	kept := make([]FingerprintEvent, 0, len(events))
	for _, event := range events {
		if !event.CursorTime().Before(floor) {
			kept = append(kept, event)
		}
	}

	return kept
}

// safeCursor returns the latest handled time strictly before the failing
// record, so records sharing its timestamp are read again.
func safeCursor(handled []FingerprintEvent, failedAt time.Time) time.Time {
	limit := failedAt.Truncate(time.Second)
	for i := len(handled) - 1; i >= 0; i-- {
		at := handled[i].CursorTime().Truncate(time.Second)
		if at.Before(limit) {
			return at
		}
	}

	return time.Time{}
}
