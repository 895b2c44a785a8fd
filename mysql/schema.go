package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// The payload is stored as bytes so the signed body round-trips verbatim.
const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id CHAR(36) NOT NULL,
	payload MEDIUMBLOB NOT NULL,
	signature VARCHAR(128) NOT NULL,
	webhook_url VARCHAR(2048) NOT NULL,
	` + "`timestamp`" + ` DATETIME(6) NOT NULL,
	retry_count INT NOT NULL DEFAULT 0,
	status SMALLINT NOT NULL DEFAULT 0,
	last_error VARCHAR(1024) NULL,
	updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
	PRIMARY KEY (id),
	INDEX idx_status_retry (status, retry_count, ` + "`timestamp`" + `)
);`

// Schema returns the queue table definition.
func Schema(table string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name), nil
}

// EnsureSchema creates the queue table when it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB, table string) error {
	if db == nil {
		return ErrDBRequired
	}
	schema, err := Schema(table)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("admsrelay mysql: create table %s: %w", table, err)
	}

	return nil
}

// sanitizeTableName accepts [schema.]table made of letters, digits and underscores.
func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
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
