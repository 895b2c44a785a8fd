package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/velmie/admsrelay"
)

// FileStore keeps the cursor in a single file.
type FileStore struct {
	path string
}

var _ admsrelay.CheckpointBackend = (*FileStore)(nil)

// NewFileStore returns a store writing to path. The parent directory must exist.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, ErrPathRequired
	}

	return &FileStore{path: path}, nil
}

// Path returns the checkpoint file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the cursor file.
func (s *FileStore) Load(_ context.Context) (time.Time, bool, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("admsrelay checkpoint: read %s: %w", s.path, err)
	}

	return decode(raw)
}

// Save writes the cursor to a temporary file in the same directory, syncs it
// and renames it over the previous file.
func (s *FileStore) Save(_ context.Context, cursor time.Time) (err error) {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("admsrelay checkpoint: create temp: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(encode(cursor)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("admsrelay checkpoint: write temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("admsrelay checkpoint: sync temp: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("admsrelay checkpoint: close temp: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("admsrelay checkpoint: replace %s: %w", s.path, err)
	}

	syncDir(dir)

	return nil
}

// syncDir flushes the rename. Some platforms cannot fsync directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
