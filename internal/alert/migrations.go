package alert

import (
	"database/sql"

	"winsentry/pkg/plugin"
)

// migrations defines the alert module's schema in ascending version order.
var migrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create alert rules, templates, servers, recipients, send log",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE alert_templates (
					id         INTEGER PRIMARY KEY AUTOINCREMENT,
					name       TEXT NOT NULL,
					subject    TEXT NOT NULL,
					body       TEXT NOT NULL,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE alert_servers (
					id           INTEGER PRIMARY KEY AUTOINCREMENT,
					name         TEXT NOT NULL,
					host         TEXT NOT NULL,
					port         INTEGER NOT NULL,
					username     TEXT NOT NULL DEFAULT '',
					password     TEXT NOT NULL DEFAULT '',
					from_address TEXT NOT NULL,
					use_ssl      INTEGER NOT NULL DEFAULT 0,
					created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE alert_rules (
					id             INTEGER PRIMARY KEY AUTOINCREMENT,
					name           TEXT NOT NULL,
					kind           TEXT NOT NULL,
					enabled        INTEGER NOT NULL DEFAULT 1,
					class          TEXT NOT NULL DEFAULT '',
					item_id        INTEGER NOT NULL DEFAULT 0,
					from_status    TEXT NOT NULL DEFAULT '',
					to_status      TEXT NOT NULL DEFAULT '',
					status         TEXT NOT NULL DEFAULT '',
					interval_count INTEGER NOT NULL DEFAULT 0,
					schedule       TEXT NOT NULL DEFAULT '',
					every_seconds  INTEGER NOT NULL DEFAULT 0,
					at_clock       TEXT NOT NULL DEFAULT '',
					template_id    INTEGER NOT NULL REFERENCES alert_templates(id),
					server_id      INTEGER NOT NULL REFERENCES alert_servers(id),
					last_run_at    DATETIME,
					last_result    TEXT NOT NULL DEFAULT '',
					created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE alert_recipients (
					rule_id INTEGER NOT NULL REFERENCES alert_rules(id),
					address TEXT NOT NULL,
					PRIMARY KEY (rule_id, address)
				)`,
				`CREATE TABLE alert_send_log (
					id        INTEGER PRIMARY KEY AUTOINCREMENT,
					rule_id   INTEGER NOT NULL,
					recipient TEXT NOT NULL,
					subject   TEXT NOT NULL,
					succeeded INTEGER NOT NULL,
					error     TEXT NOT NULL DEFAULT '',
					sent_at   DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_alert_rules_kind_enabled ON alert_rules (kind, enabled)`,
				`CREATE INDEX idx_alert_send_log_sent_at ON alert_send_log (sent_at DESC)`,
			}
			for _, stmt := range stmts {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
}
