package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/velmie/admsrelay"
)

const (
	defaultCleanupLimit      = 10000
	defaultCleanupEvery      = time.Hour
	defaultCleanupLockPrefix = "admsrelay:cleanup:"
)

// CleanupOptions defines which delivery attempts to purge.
type CleanupOptions struct {
	// Before removes rows older than this timestamp (required).
	Before time.Time
	// Limit caps the number of rows deleted per call (0 uses the default).
	Limit int
	// IncludePending also removes pending rows created before the cutoff.
	IncludePending bool
}

// CleanupResult reports how many rows were removed.
type CleanupResult struct {
	Dead    int64
	Pending int64
}

// CleanupMaintainerConfig controls periodic purging of dead attempts.
type CleanupMaintainerConfig struct {
	// Table is the queue table name. Use schema.table for non-default schema.
	Table string
	// Retention removes rows older than now-retention (required).
	Retention time.Duration
	// CheckEvery is the interval between cleanup runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per run (0 uses the default).
	Limit int
	// IncludePending removes stale pending rows in addition to dead rows.
	IncludePending bool
	// LockName is the advisory lock name. Defaults to admsrelay:cleanup:<table>.
	LockName string
	Clock    admsrelay.Clock
	Logger   admsrelay.Logger
}

// CleanupMaintainer runs periodic dead-letter purges.
type CleanupMaintainer struct {
	store *Store
	cfg   CleanupMaintainerConfig
}

// Cleanup removes dead rows (and optionally pending rows) older than opts.Before.
// Dead rows are aged by their last update, pending rows by creation time.
func (s *Store) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	if opts.Before.IsZero() {
		return CleanupResult{}, ErrCleanupBeforeRequired
	}
	limit := opts.Limit
	if limit == 0 {
		limit = defaultCleanupLimit
	}
	if limit < 0 {
		return CleanupResult{}, ErrCleanupLimitInvalid
	}

	dead, err := s.cleanup(ctx, s.queries.cleanupDead, admsrelay.StatusDead, opts.Before, limit)
	if err != nil {
		return CleanupResult{}, err
	}

	var pending int64
	if remaining := limit - int(dead); opts.IncludePending && remaining > 0 {
		pending, err = s.cleanup(ctx, s.queries.cleanupPending, admsrelay.StatusPending, opts.Before, remaining)
		if err != nil {
			return CleanupResult{Dead: dead}, err
		}
	}

	return CleanupResult{Dead: dead, Pending: pending}, nil
}

// NewCleanupMaintainer creates a new cleanup maintainer with defaults applied.
func NewCleanupMaintainer(db *sql.DB, cfg CleanupMaintainerConfig) (*CleanupMaintainer, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if cfg.Retention <= 0 {
		return nil, ErrCleanupRetentionInvalid
	}
	if cfg.Clock == nil {
		cfg.Clock = admsrelay.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = admsrelay.NopLogger{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCleanupEvery
	}
	if cfg.Limit == 0 {
		cfg.Limit = defaultCleanupLimit
	}
	if cfg.Limit < 0 {
		return nil, ErrCleanupLimitInvalid
	}

	store, err := NewStore(db, WithTable(cfg.Table), WithClock(cfg.Clock))
	if err != nil {
		return nil, err
	}
	cfg.Table = store.table
	if cfg.LockName == "" {
		cfg.LockName = defaultCleanupLockPrefix + cfg.Table
	}

	return &CleanupMaintainer{store: store, cfg: cfg}, nil
}

// Run purges on every tick until the context is canceled.
func (m *CleanupMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	m.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *CleanupMaintainer) runOnce(ctx context.Context) {
	res, err := m.Ensure(ctx)
	if err != nil {
		m.cfg.Logger.Warn("admsrelay cleanup failed", "err", err)

		return
	}
	if res.Dead > 0 || res.Pending > 0 {
		m.cfg.Logger.Info("admsrelay cleanup removed attempts", "dead", res.Dead, "pending", res.Pending)
	}
}

// Ensure executes a single cleanup pass under a MySQL advisory lock.
func (m *CleanupMaintainer) Ensure(ctx context.Context) (CleanupResult, error) {
	conn, err := m.store.db.Conn(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("admsrelay mysql: cleanup conn failed: %w", err)
	}
	defer conn.Close()

	locked, err := m.tryLock(ctx, conn)
	if err != nil {
		return CleanupResult{}, err
	}
	if !locked {
		m.cfg.Logger.Debug("admsrelay cleanup lock held by another session")

		return CleanupResult{}, nil
	}
	defer m.releaseLock(ctx, conn)

	return m.store.Cleanup(ctx, CleanupOptions{
		Before:         m.cfg.Clock.Now().Add(-m.cfg.Retention),
		Limit:          m.cfg.Limit,
		IncludePending: m.cfg.IncludePending,
	})
}

func (s *Store) cleanup(ctx context.Context, query string, status admsrelay.Status, before time.Time, limit int) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, status, before, limit)
	if err != nil {
		return 0, fmt.Errorf("admsrelay mysql: cleanup %s failed: %w", status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("admsrelay mysql: cleanup rows failed: %w", err)
	}

	return affected, nil
}

func (m *CleanupMaintainer) tryLock(ctx context.Context, conn *sql.Conn) (bool, error) {
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", m.cfg.LockName).Scan(&got); err != nil {
		return false, fmt.Errorf("admsrelay mysql: acquire cleanup lock failed: %w", err)
	}

	return got.Valid && got.Int64 == 1, nil
}

func (m *CleanupMaintainer) releaseLock(ctx context.Context, conn *sql.Conn) {
	var released sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", m.cfg.LockName).Scan(&released); err != nil {
		m.cfg.Logger.Warn("admsrelay cleanup release lock failed", "err", err)
	}
}
