package mysql

import (
	"fmt"
	"strings"
	"time"

	driver "github.com/go-sql-driver/mysql"
)

// NormalizeDSN forces parseTime on a go-sql-driver DSN and, unless loc is
// given, reads DATETIME columns in the local zone to match the naive
// timestamps of the access log.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("admsrelay mysql: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	if !strings.Contains(dsn, "loc=") {
		cfg.Loc = time.Local
	}

	return cfg.FormatDSN(), nil
}
