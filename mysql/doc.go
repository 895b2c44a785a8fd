// Package mysql provides a MySQL 8.0+ delivery queue for admsrelay.
//
// Failed deliveries live in a single table (default "logs") keyed by a UUID v7.
// Every mutation is a single statement or a short READ COMMITTED transaction,
// so the Dispatcher may enqueue while the RetryWorker drains.
//
// The DSN must enable parseTime so that DATETIME columns scan into time.Time.
// See Schema for the table definition and CleanupMaintainer for purging old
// dead-lettered rows.
package mysql
