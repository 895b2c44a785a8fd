package mysql

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("admsrelay mysql: db is required")
	// ErrExecutorRequired is returned when an insert is called with a nil executor.
	ErrExecutorRequired = errors.New("admsrelay mysql: executor is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("admsrelay mysql: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("admsrelay mysql: invalid table name")
	// ErrInvalidLimit is returned when a query limit is not positive.
	ErrInvalidLimit = errors.New("admsrelay mysql: limit must be positive")
	// ErrCleanupBeforeRequired is returned when cleanup cutoff is missing.
	ErrCleanupBeforeRequired = errors.New("admsrelay mysql: cleanup before time is required")
	// ErrCleanupLimitInvalid is returned when cleanup limit is negative.
	ErrCleanupLimitInvalid = errors.New("admsrelay mysql: cleanup limit must be non-negative")
	// ErrCleanupRetentionInvalid is returned when cleanup retention is not positive.
	ErrCleanupRetentionInvalid = errors.New("admsrelay mysql: cleanup retention must be positive")
)
