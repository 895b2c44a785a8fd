// Package checkpoint provides durable backends for the poll cursor.
//
// FileStore keeps the cursor as a single "YYYY-MM-DD HH:MM:SS" line in a plain
// file and replaces it with write-new-then-rename. PebbleStore keeps the same
// string under a fixed key in an embedded Pebble database and writes with
// pebble.Sync. Both implement admsrelay.CheckpointBackend.
package checkpoint
