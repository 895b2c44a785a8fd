package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/velmie/admsrelay"
)

const defaultPebbleKey = "checkpoint/cursor"

// PebbleStore keeps the cursor in an embedded Pebble database.
type PebbleStore struct {
	db  *pebble.DB
	key []byte
}

var _ admsrelay.CheckpointBackend = (*PebbleStore)(nil)

// OpenPebble opens (or creates) a Pebble database in dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	if dir == "" {
		return nil, ErrPathRequired
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("admsrelay checkpoint: open pebble %s: %w", dir, err)
	}

	return &PebbleStore{db: db, key: []byte(defaultPebbleKey)}, nil
}

// Close releases the database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// Load reads the cursor key.
func (s *PebbleStore) Load(_ context.Context) (time.Time, bool, error) {
	val, closer, err := s.db.Get(s.key)
	if errors.Is(err, pebble.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("admsrelay checkpoint: pebble get: %w", err)
	}
	defer closer.Close()

	return decode(val)
}

// Save replaces the cursor key with a synced write.
func (s *PebbleStore) Save(_ context.Context, cursor time.Time) error {
	if err := s.db.Set(s.key, encode(cursor), pebble.Sync); err != nil {
		return fmt.Errorf("admsrelay checkpoint: pebble set: %w", err)
	}

	return nil
}
