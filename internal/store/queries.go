package store

import (
	"fmt"
	"strings"
)

// SQL query constants for the store. Placeholders are ? and rebound per
// dialect. Partition table names are filled in with fmt from the partition
// registry, never from input.

var listingSelectColumns = strings.Join(listingColumns, ", ")

func queryGetListing(table string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE mls = ?", listingSelectColumns, table)
}

func queryGetHistory(table string) string {
	return fmt.Sprintf("SELECT mls, history FROM %s WHERE mls = ?", table)
}

func queryListMLS(table string) string {
	return fmt.Sprintf("SELECT mls FROM %s ORDER BY mls", table)
}

func queryListMLSByType(table string) string {
	return fmt.Sprintf("SELECT mls FROM %s WHERE property_type = ? ORDER BY mls", table)
}

const (
	queryInsertJobRun = `
		INSERT INTO job_runs (id, job_name, started_at, status)
		VALUES (?, ?, ?, 'running')`

	queryCompleteJobRun = `
		UPDATE job_runs SET
			completed_at  = ?,
			status        = ?,
			error_text    = ?,
			rows_affected = ?
		WHERE id = ?`

	queryListJobRuns = `
		SELECT id, job_name, started_at, completed_at, status,
			COALESCE(error_text, ''), rows_affected
		FROM job_runs
		WHERE job_name = ?
		ORDER BY started_at DESC
		LIMIT ?`

	queryListLatestJobRuns = `
		SELECT id, job_name, started_at, completed_at, status,
			COALESCE(error_text, ''), rows_affected
		FROM job_runs r
		WHERE started_at = (
			SELECT MAX(started_at) FROM job_runs WHERE job_name = r.job_name
		)
		ORDER BY job_name`

	queryMarkStaleJobRunsCrashed = `
		UPDATE job_runs SET
			status       = 'crashed',
			completed_at = ?
		WHERE status = 'running' AND started_at < ?`

	queryDeleteOldJobRuns = `
		DELETE FROM job_runs WHERE started_at < ?`

	// The first recorded halt wins; its reason is the one operators need.
	querySaveHalt = `
		INSERT INTO partition_halts (partition_name, reason, halted_at)
		VALUES (?, ?, ?)
		ON CONFLICT (partition_name) DO NOTHING`

	queryDeleteHalt = `
		DELETE FROM partition_halts WHERE partition_name = ?`

	queryListHalts = `
		SELECT partition_name, reason, halted_at
		FROM partition_halts
		ORDER BY partition_name`

	querySchemaMigrationExists = `
		SELECT COUNT(*) FROM schema_migrations WHERE version = ?`

	queryRecordSchemaMigration = `
		INSERT INTO schema_migrations (version) VALUES (?)`
)
