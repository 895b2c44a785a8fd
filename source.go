package admsrelay

import (
	"context"
	"time"
)

// RecordSource yields successful authentication records from the access log.
type RecordSource interface {
	// Fetch returns up to limit records whose cursor time falls in a later
	// whole second than after, that is at or after NextSecond(after),
	// ordered by cursor time ascending.
	Fetch(ctx context.Context, after time.Time, limit int) ([]FingerprintEvent, error)
}

// NextSecond returns the start of the second following cursor. Cursors are
// kept at second precision, so every record before it has been handled.
func NextSecond(cursor time.Time) time.Time {
	return cursor.Truncate(time.Second).Add(time.Second)
}

// RecordSourceFunc adapts a function to RecordSource.
type RecordSourceFunc func(ctx context.Context, after time.Time, limit int) ([]FingerprintEvent, error)

// Fetch implements RecordSource.
func (fn RecordSourceFunc) Fetch(ctx context.Context, after time.Time, limit int) ([]FingerprintEvent, error) {
	return fn(ctx, after, limit)
}
