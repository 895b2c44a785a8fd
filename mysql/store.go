package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/velmie/admsrelay"
)

const maxErrorLen = 1024

// Executor allows inserting within an existing transaction.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements admsrelay.Queue on a MySQL table.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var (
	_ admsrelay.Queue          = (*Store)(nil)
	_ admsrelay.DeadLetterer   = (*Store)(nil)
	_ admsrelay.BacklogCounter = (*Store)(nil)
)

// NewStore constructs a MySQL queue with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a MySQL queue or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Enqueue persists a failed delivery with retry count zero.
func (s *Store) Enqueue(ctx context.Context, attempt admsrelay.DeliveryAttempt) (uuid.UUID, error) {
	return s.Insert(ctx, s.db, attempt)
}

// Insert persists a failed delivery using the provided executor.
func (s *Store) Insert(ctx context.Context, exec Executor, attempt admsrelay.DeliveryAttempt) (uuid.UUID, error) {
	if exec == nil {
		return uuid.Nil, ErrExecutorRequired
	}
	if err := attempt.Validate(); err != nil {
		return uuid.Nil, err
	}

	id := attempt.ID
	if id == uuid.Nil {
		var err error
		id, err = s.cfg.Generator()
		if err != nil {
			return uuid.Nil, fmt.Errorf("admsrelay mysql: generate id failed: %w", err)
		}
	}

	_, err := exec.ExecContext(
		ctx,
		s.queries.insert,
		id.String(),
		[]byte(attempt.Payload),
		attempt.Signature,
		attempt.Destination,
		s.cfg.Clock.Now(),
		admsrelay.StatusPending,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("admsrelay mysql: insert failed: %w", err)
	}

	return id, nil
}

// DueForRetry returns pending attempts with fewer than maxRetry retries, oldest first.
func (s *Store) DueForRetry(ctx context.Context, maxRetry, limit int) ([]admsrelay.DeliveryAttempt, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if maxRetry <= 0 {
		return nil, admsrelay.ErrInvalidMaxRetry
	}

	rows, err := s.db.QueryContext(ctx, s.queries.selectDue, admsrelay.StatusPending, maxRetry, limit)
	if err != nil {
		return nil, fmt.Errorf("admsrelay mysql: select failed: %w", err)
	}
	defer rows.Close()

	attempts := make([]admsrelay.DeliveryAttempt, 0, limit)
	for rows.Next() {
		var (
			attempt   admsrelay.DeliveryAttempt
			payload   []byte
			lastError sql.NullString
		)
		if err := rows.Scan(
			&attempt.ID,
			&payload,
			&attempt.Signature,
			&attempt.Destination,
			&attempt.CreatedAt,
			&attempt.RetryCount,
			&attempt.Status,
			&lastError,
		); err != nil {
			return nil, fmt.Errorf("admsrelay mysql: scan failed: %w", err)
		}
		attempt.Payload = payload
		attempt.LastError = lastError.String
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("admsrelay mysql: rows failed: %w", err)
	}

	return attempts, nil
}

// MarkSucceeded deletes a delivered attempt.
func (s *Store) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, s.queries.deleteOne, id.String())
	if err != nil {
		return fmt.Errorf("admsrelay mysql: delete failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("admsrelay mysql: delete rows failed: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", admsrelay.ErrAttemptNotFound, id)
	}

	return nil
}

// IncrementRetry records a failed redelivery in its own transaction and
// returns the resulting state. An attempt already dead or at maxRetry is left
// unchanged.
func (s *Store) IncrementRetry(ctx context.Context, id uuid.UUID, maxRetry int, cause error) (admsrelay.RetryState, error) {
	if maxRetry <= 0 {
		return admsrelay.RetryState{}, admsrelay.ErrInvalidMaxRetry
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return admsrelay.RetryState{}, fmt.Errorf("admsrelay mysql: begin tx failed: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		s.queries.incrementRetry,
		maxRetry,
		admsrelay.StatusDead,
		truncateError(cause),
		id.String(),
		admsrelay.StatusPending,
		maxRetry,
	); err != nil {
		return admsrelay.RetryState{}, rollbackWith(tx, fmt.Errorf("admsrelay mysql: increment update failed: %w", err))
	}

	state, err := s.state(ctx, tx, id)
	if err != nil {
		return admsrelay.RetryState{}, rollbackWith(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return admsrelay.RetryState{}, rollbackWith(tx, fmt.Errorf("admsrelay mysql: commit failed: %w", err))
	}

	return state, nil
}

// MarkDead dead-letters an attempt regardless of its retry count.
func (s *Store) MarkDead(ctx context.Context, id uuid.UUID, cause error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("admsrelay mysql: begin tx failed: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.queries.markDead, admsrelay.StatusDead, truncateError(cause), id.String()); err != nil {
		return rollbackWith(tx, fmt.Errorf("admsrelay mysql: dead update failed: %w", err))
	}
	if _, err := s.state(ctx, tx, id); err != nil {
		return rollbackWith(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return rollbackWith(tx, fmt.Errorf("admsrelay mysql: commit failed: %w", err))
	}

	return nil
}

// PendingCount returns the number of attempts still eligible for retry.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	return s.countByStatus(ctx, admsrelay.StatusPending)
}

// DeadCount returns the number of dead-lettered attempts.
func (s *Store) DeadCount(ctx context.Context) (int, error) {
	return s.countByStatus(ctx, admsrelay.StatusDead)
}

func (s *Store) countByStatus(ctx context.Context, status admsrelay.Status) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countByStatus, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("admsrelay mysql: %s count failed: %w", status, err)
	}

	return count, nil
}

func (s *Store) state(ctx context.Context, tx *sql.Tx, id uuid.UUID) (admsrelay.RetryState, error) {
	var state admsrelay.RetryState
	err := tx.QueryRowContext(ctx, s.queries.selectState, id.String()).Scan(&state.RetryCount, &state.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return state, fmt.Errorf("%w: %s", admsrelay.ErrAttemptNotFound, id)
	}
	if err != nil {
		return state, fmt.Errorf("admsrelay mysql: select state failed: %w", err)
	}

	return state, nil
}

func rollbackWith(tx *sql.Tx, err error) error {
	rollbackErr := tx.Rollback()
	if rollbackErr == nil || errors.Is(rollbackErr, sql.ErrTxDone) {
		return err
	}

	return errors.Join(err, fmt.Errorf("admsrelay mysql: rollback failed: %w", rollbackErr))
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	return string([]rune(msg)[:maxErrorLen])
}
