package admsrelay

import (
	"context"
	"time"
)

// CheckpointBackend persists a single cursor value.
type CheckpointBackend interface {
	// Load returns the stored cursor. found is false when nothing was ever stored.
	Load(ctx context.Context) (cursor time.Time, found bool, err error)
	// Save replaces the stored cursor. A crash during Save must leave either
	// the old or the new value, never a partial one.
	Save(ctx context.Context, cursor time.Time) error
}

// CursorStore is the view of the checkpoint the Poller depends on.
type CursorStore interface {
	// Read returns the current cursor. It always returns a usable value.
	Read(ctx context.Context) time.Time
	// Write persists a new cursor.
	Write(ctx context.Context, cursor time.Time) error
}

// Checkpoint implements CursorStore over a backend.
//
// Read never fails: when nothing is stored it persists and returns the
// current time, and when the backend faults it logs and returns the current
// time without persisting it.
type Checkpoint struct {
	backend CheckpointBackend
	clock   Clock
	logger  Logger
}

var _ CursorStore = (*Checkpoint)(nil)

// NewCheckpoint wraps a backend.
func NewCheckpoint(backend CheckpointBackend, opts ...Option) *Checkpoint {
	if backend == nil {
		panic("admsrelay: nil CheckpointBackend")
	}

	cfg := buildConfig(opts)

	return &Checkpoint{backend: backend, clock: cfg.Clock, logger: cfg.Logger}
}

// Read returns the last persisted cursor, initializing it to now when absent.
func (c *Checkpoint) Read(ctx context.Context) time.Time {
	cursor, found, err := c.backend.Load(ctx)
	if err != nil {
		now := c.now()
		c.logger.Error("admsrelay checkpoint read failed, falling back to now", "err", err, "cursor", now.Format(TimeLayout))

		return now
	}
	if found {
		return cursor
	}

	now := c.now()
	if err := c.backend.Save(ctx, now); err != nil {
		c.logger.Error("admsrelay checkpoint init failed", "err", err)
	} else {
		c.logger.Info("admsrelay checkpoint initialized", "cursor", now.Format(TimeLayout))
	}

	return now
}

// Write persists cursor, replacing the previous value.
func (c *Checkpoint) Write(ctx context.Context, cursor time.Time) error {
	cursor = cursor.Truncate(time.Second)
	if err := c.backend.Save(ctx, cursor); err != nil {
		return err
	}
	c.logger.Debug("admsrelay checkpoint saved", "cursor", cursor.Format(TimeLayout))

	return nil
}

func (c *Checkpoint) now() time.Time {
	return c.clock.Now().Truncate(time.Second)
}
