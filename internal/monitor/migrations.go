package monitor

import (
	"database/sql"

	"winsentry/pkg/plugin"
)

// migrations defines the monitor module's schema in ascending version order.
var migrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create monitor_items and monitor_status_history",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE monitor_items (
					id                 INTEGER PRIMARY KEY AUTOINCREMENT,
					class              TEXT    NOT NULL,
					name               TEXT    NOT NULL DEFAULT '',
					port_number        INTEGER NOT NULL DEFAULT 0,
					process_id         INTEGER NOT NULL DEFAULT 0,
					process_name       TEXT    NOT NULL DEFAULT '',
					service_name       TEXT    NOT NULL DEFAULT '',
					metric             TEXT    NOT NULL DEFAULT '',
					drive_letter       TEXT    NOT NULL DEFAULT '',
					threshold_value    REAL    NOT NULL DEFAULT 0,
					interval_seconds   INTEGER NOT NULL DEFAULT 60,
					enabled            INTEGER NOT NULL DEFAULT 1,
					duration_threshold INTEGER NOT NULL DEFAULT 1,
					max_attempts       INTEGER NOT NULL DEFAULT 5,
					retry_multiplier   INTEGER NOT NULL DEFAULT 10,
					trigger_on         TEXT    NOT NULL DEFAULT 'stopped',
					on_stopped         TEXT    NOT NULL DEFAULT '{}',
					on_running         TEXT    NOT NULL DEFAULT '{}',
					created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)
			`)
			if err != nil {
				return err
			}

			_, err = tx.Exec(`
				CREATE TABLE monitor_status_history (
					id         INTEGER PRIMARY KEY AUTOINCREMENT,
					class      TEXT    NOT NULL,
					item_id    INTEGER NOT NULL,
					status     TEXT    NOT NULL,
					detail     TEXT,
					changed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)
			`)
			if err != nil {
				return err
			}

			_, err = tx.Exec(`
				CREATE INDEX idx_status_history_item
				ON monitor_status_history (class, item_id, changed_at DESC)
			`)
			return err
		},
	},
	{
		Version:     2,
		Description: "index enabled items per class",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE INDEX idx_monitor_items_class_enabled
				ON monitor_items (class, enabled)
			`)
			return err
		},
	},
}
