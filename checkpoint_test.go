package admsrelay

import (
	"context"
	"testing"
	"time"
)

type memBackend struct {
	value   time.Time
	found   bool
	loadErr error
	saveErr error
	saves   []time.Time
}

func (b *memBackend) Load(context.Context) (time.Time, bool, error) {
	return b.value, b.found, b.loadErr
}

func (b *memBackend) Save(_ context.Context, cursor time.Time) error {
	if b.saveErr != nil {
		return b.saveErr
	}
	b.value, b.found = cursor, true
	b.saves = append(b.saves, cursor)
	return nil
}

func TestCheckpointReadInitializesToNow(t *testing.T) {
	backend := &memBackend{}
	now := at(7).Add(250 * time.Millisecond)
	cp := NewCheckpoint(backend, WithClock(fixedClock(now)))

	got := cp.Read(context.Background())
	if !got.Equal(at(7)) {
		t.Fatalf("expected now truncated, got %s", got)
	}
	if len(backend.saves) != 1 || !backend.saves[0].Equal(at(7)) {
		t.Fatalf("initial cursor must be persisted")
	}

	if got := cp.Read(context.Background()); !got.Equal(at(7)) {
		t.Fatalf("second read must return stored value")
	}
	if len(backend.saves) != 1 {
		t.Fatalf("stored value must not be rewritten")
	}
}

func TestCheckpointReadDegradesToNow(t *testing.T) {
	backend := &memBackend{loadErr: errBoom}
	cp := NewCheckpoint(backend, WithClock(fixedClock(at(9))))

	if got := cp.Read(context.Background()); !got.Equal(at(9)) {
		t.Fatalf("expected now on backend fault, got %s", got)
	}
	if len(backend.saves) != 0 {
		t.Fatalf("fault fallback must not be persisted")
	}
}

func TestCheckpointReadSurvivesInitFailure(t *testing.T) {
	cp := NewCheckpoint(&memBackend{saveErr: errBoom}, WithClock(fixedClock(at(3))))

	if got := cp.Read(context.Background()); !got.Equal(at(3)) {
		t.Fatalf("expected now, got %s", got)
	}
}

func TestCheckpointWriteTruncates(t *testing.T) {
	backend := &memBackend{}
	cp := NewCheckpoint(backend)

	if err := cp.Write(context.Background(), at(5).Add(900*time.Millisecond)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !backend.value.Equal(at(5)) {
		t.Fatalf("expected second precision, got %s", backend.value)
	}
}
