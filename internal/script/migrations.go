package script

import (
	"database/sql"

	"winsentry/pkg/plugin"
)

// migrations defines the script module's schema in ascending version order.
var migrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create script_jobs and script_job_output",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE script_jobs (
					id          TEXT PRIMARY KEY,
					label       TEXT NOT NULL DEFAULT '',
					source_type TEXT NOT NULL,
					path        TEXT NOT NULL DEFAULT '',
					status      TEXT NOT NULL,
					exit_code   INTEGER,
					error       TEXT,
					queued_at   DATETIME NOT NULL,
					started_at  DATETIME,
					finished_at DATETIME
				)
			`)
			if err != nil {
				return err
			}

			_, err = tx.Exec(`
				CREATE TABLE script_job_output (
					job_id  TEXT NOT NULL REFERENCES script_jobs(id),
					stream  TEXT NOT NULL CHECK (stream IN ('stdout', 'stderr')),
					content TEXT NOT NULL,
					PRIMARY KEY (job_id, stream)
				)
			`)
			if err != nil {
				return err
			}

			_, err = tx.Exec(`
				CREATE INDEX idx_script_jobs_queued_at
				ON script_jobs (queued_at DESC)
			`)
			return err
		},
	},
}
