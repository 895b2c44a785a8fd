package mysql

import "fmt"

type queries struct {
	insert         string
	selectDue      string
	selectState    string
	deleteOne      string
	incrementRetry string
	markDead       string
	countByStatus  string
	cleanupDead    string
	cleanupPending string
}

func newQueries(table string) queries {
	cols := "id, payload, signature, webhook_url, `timestamp`, retry_count, status, last_error"

	return queries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (id, payload, signature, webhook_url, `timestamp`, retry_count, status) VALUES (?, ?, ?, ?, ?, 0, ?)",
			table,
		),
		selectDue: fmt.Sprintf(
			"SELECT %s FROM %s WHERE status = ? AND retry_count < ? ORDER BY `timestamp` ASC, id ASC LIMIT ?",
			cols,
			table,
		),
		selectState: fmt.Sprintf("SELECT retry_count, status FROM %s WHERE id = ?", table),
		deleteOne:   fmt.Sprintf("DELETE FROM %s WHERE id = ?", table),
		// MySQL evaluates single-table SET assignments left to right, so status
		// sees the retry count from before the increment.
		incrementRetry: fmt.Sprintf(
			"UPDATE %s SET status = CASE WHEN retry_count + 1 >= ? THEN ? ELSE status END, "+
				"retry_count = retry_count + 1, last_error = ? "+
				"WHERE id = ? AND status = ? AND retry_count < ?",
			table,
		),
		markDead:      fmt.Sprintf("UPDATE %s SET status = ?, last_error = ? WHERE id = ?", table),
		countByStatus: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = ?", table),
		cleanupDead: fmt.Sprintf(
			"DELETE FROM %s WHERE status = ? AND updated_at <= ? ORDER BY `timestamp` ASC LIMIT ?",
			table,
		),
		cleanupPending: fmt.Sprintf(
			"DELETE FROM %s WHERE status = ? AND `timestamp` <= ? ORDER BY `timestamp` ASC LIMIT ?",
			table,
		),
	}
}
