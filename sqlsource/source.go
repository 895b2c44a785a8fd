// Package sqlsource reads successful authentication records from the NGAC
// access log through database/sql.
package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/velmie/admsrelay"
)

// Dialect selects placeholder and row-limit syntax.
type Dialect string

const (
	// DialectMySQL uses ? placeholders and LIMIT.
	DialectMySQL Dialect = "mysql"
	// DialectPostgres uses $n placeholders and LIMIT.
	DialectPostgres Dialect = "postgres"
	// DialectTop uses ? placeholders and SELECT TOP n, as Access and SQL Server do.
	DialectTop Dialect = "top"
)

const (
	defaultTable = "NGAC_LOG"
	// successResult is the authresult value of an accepted authentication.
	successResult = 0
)

var (
	// ErrDBRequired indicates a nil database handle.
	ErrDBRequired = errors.New("admsrelay sqlsource: db is required")
	// ErrUnsupportedDialect indicates an unknown dialect name.
	ErrUnsupportedDialect = errors.New("admsrelay sqlsource: unsupported dialect")
	// ErrInvalidTableName indicates an unsafe table identifier.
	ErrInvalidTableName = errors.New("admsrelay sqlsource: invalid table name")
	// ErrInvalidLimit indicates a non-positive fetch limit.
	ErrInvalidLimit = errors.New("admsrelay sqlsource: limit must be positive")
)

// Source implements admsrelay.RecordSource over an NGAC_LOG table.
type Source struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

var _ admsrelay.RecordSource = (*Source)(nil)

// Option configures the Source.
type Option func(*Source)

// WithTable overrides the log table name.
func WithTable(name string) Option {
	return func(s *Source) {
		s.table = name
	}
}

// New builds a Source for the given dialect.
func New(db *sql.DB, dialect Dialect, opts ...Option) (*Source, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	s := &Source{db: db, dialect: dialect, table: defaultTable}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.query(1); err != nil {
		return nil, err
	}

	return s, nil
}

// ParseDialect validates a dialect name.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(name))); d {
	case DialectMySQL, DialectPostgres, DialectTop:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, name)
	}
}

// Fetch returns accepted records with slogtime in a later second than the
// cursor, oldest first.
func (s *Source) Fetch(ctx context.Context, after time.Time, limit int) ([]admsrelay.FingerprintEvent, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	query, err := s.query(limit)
	if err != nil {
		return nil, err
	}

	args := []any{successResult, admsrelay.NextSecond(after)}
	if s.dialect != DialectTop {
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("admsrelay sqlsource: query failed: %w", err)
	}
	defer rows.Close()

	events := make([]admsrelay.FingerprintEvent, 0, limit)
	for rows.Next() {
		var (
			ev       admsrelay.FingerprintEvent
			pin      sql.NullString
			workCode sql.NullString
			slogtime sql.NullTime
		)
		if err := rows.Scan(&ev.Key, &pin, &ev.LoggedAt, &ev.Status, &ev.Verification, &workCode, &slogtime); err != nil {
			return nil, fmt.Errorf("admsrelay sqlsource: scan failed: %w", err)
		}
		ev.PIN = pin.String
		ev.WorkCode = strings.TrimSpace(workCode.String)
		if slogtime.Valid {
			ev.ServerLoggedAt = slogtime.Time
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("admsrelay sqlsource: rows failed: %w", err)
	}

	return events, nil
}

func (s *Source) query(limit int) (string, error) {
	table, err := sanitizeTableName(s.table)
	if err != nil {
		return "", err
	}

	const cols = "l.nodeid, l.userid, l.logtime, l.authresult, l.authtype, l.functionno, l.slogtime"
	switch s.dialect {
	case DialectMySQL:
		return fmt.Sprintf(
			"SELECT %s FROM %s l WHERE l.authresult = ? AND l.slogtime >= ? ORDER BY l.slogtime ASC LIMIT ?",
			cols, table,
		), nil
	case DialectPostgres:
		return fmt.Sprintf(
			"SELECT %s FROM %s l WHERE l.authresult = $1 AND l.slogtime >= $2 ORDER BY l.slogtime ASC LIMIT $3",
			cols, table,
		), nil
	case DialectTop:
		return fmt.Sprintf(
			"SELECT TOP %d %s FROM %s l WHERE l.authresult = ? AND l.slogtime >= ? ORDER BY l.slogtime ASC",
			limit, cols, table,
		), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, s.dialect)
	}
}

func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTableName)
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" || strings.IndexFunc(part, notIdentRune) >= 0 {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	return name, nil
}

func notIdentRune(r rune) bool {
	return r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z')
}
