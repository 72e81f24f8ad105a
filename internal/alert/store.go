package alert

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"winsentry/internal/monitor"
	"winsentry/pkg/plugin"
)

// Store persists alert rules, recipients, templates, email servers, and
// the send log.
type Store struct {
	backend plugin.Store
}

// NewStore wraps the shared database for alert queries.
func NewStore(backend plugin.Store) *Store {
	return &Store{backend: backend}
}

const ruleColumns = `id, name, kind, enabled, class, item_id, from_status,
	to_status, status, interval_count, schedule, every_seconds, at_clock,
	template_id, server_id, last_run_at, last_result, created_at, updated_at`

// CreateRule validates and inserts a rule, returning its id.
func (s *Store) CreateRule(ctx context.Context, r *Rule) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validate rule: %w", err)
	}

	res, err := s.backend.DB().ExecContext(ctx, `
		INSERT INTO alert_rules (
			name, kind, enabled, class, item_id, from_status, to_status,
			status, interval_count, schedule, every_seconds, at_clock,
			template_id, server_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.Kind, r.Enabled, r.Class, r.ItemID, r.FromStatus,
		r.ToStatus, r.Status, r.IntervalCount, r.Schedule,
		int(r.Every.Seconds()), r.At, r.TemplateID, r.ServerID,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// GetRule loads one rule by id.
func (s *Store) GetRule(ctx context.Context, id int64) (*Rule, error) {
	row := s.backend.DB().QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM alert_rules WHERE id = ?", id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %d: %w", id, err)
	}
	return r, nil
}

// ListEnabled returns enabled rules of one kind.
func (s *Store) ListEnabled(ctx context.Context, kind RuleKind) ([]Rule, error) {
	rows, err := s.backend.DB().QueryContext(ctx,
		"SELECT "+ruleColumns+" FROM alert_rules WHERE kind = ? AND enabled = 1 ORDER BY id",
		kind,
	)
	if err != nil {
		return nil, fmt.Errorf("list enabled %s rules: %w", kind, err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// SetEnabled toggles a rule.
func (s *Store) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.backend.DB().ExecContext(ctx,
		"UPDATE alert_rules SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		enabled, id,
	)
	if err != nil {
		return fmt.Errorf("set rule %d enabled: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("rule %d not found", id)
	}
	return nil
}

// DeleteRule removes a rule and its recipient bindings.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	return s.backend.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM alert_recipients WHERE rule_id = ?", id,
		); err != nil {
			return fmt.Errorf("delete rule %d recipients: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete rule %d: %w", id, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("rule %d not found", id)
		}
		return nil
	})
}

// MarkRun records a rule's last firing time and outcome summary.
func (s *Store) MarkRun(ctx context.Context, id int64, at time.Time, result string) error {
	_, err := s.backend.DB().ExecContext(ctx,
		"UPDATE alert_rules SET last_run_at = ?, last_result = ? WHERE id = ?",
		at.UTC().Format(time.RFC3339), result, id,
	)
	if err != nil {
		return fmt.Errorf("mark rule %d run: %w", id, err)
	}
	return nil
}

// SetRecipients replaces a rule's recipient list.
func (s *Store) SetRecipients(ctx context.Context, ruleID int64, addresses []string) error {
	return s.backend.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM alert_recipients WHERE rule_id = ?", ruleID,
		); err != nil {
			return fmt.Errorf("clear recipients: %w", err)
		}
		for _, addr := range addresses {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO alert_recipients (rule_id, address) VALUES (?, ?)",
				ruleID, addr,
			); err != nil {
				return fmt.Errorf("insert recipient %s: %w", addr, err)
			}
		}
		return nil
	})
}

// Recipients returns a rule's recipient addresses.
func (s *Store) Recipients(ctx context.Context, ruleID int64) ([]string, error) {
	rows, err := s.backend.DB().QueryContext(ctx,
		"SELECT address FROM alert_recipients WHERE rule_id = ? ORDER BY address",
		ruleID,
	)
	if err != nil {
		return nil, fmt.Errorf("recipients for rule %d: %w", ruleID, err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// CreateTemplate inserts a template, returning its id.
func (s *Store) CreateTemplate(ctx context.Context, t *Template) error {
	res, err := s.backend.DB().ExecContext(ctx,
		"INSERT INTO alert_templates (name, subject, body) VALUES (?, ?, ?)",
		t.Name, t.Subject, t.Body,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// GetTemplate loads one template by id.
func (s *Store) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	var t Template
	var created, updated string
	err := s.backend.DB().QueryRowContext(ctx,
		"SELECT id, name, subject, body, created_at, updated_at FROM alert_templates WHERE id = ?",
		id,
	).Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get template %d: %w", id, err)
	}
	t.CreatedAt = parseStoredTime(created)
	t.UpdatedAt = parseStoredTime(updated)
	return &t, nil
}

// CreateServer validates and inserts an email server, returning its id.
func (s *Store) CreateServer(ctx context.Context, srv *Server) error {
	if err := srv.Validate(); err != nil {
		return fmt.Errorf("validate server: %w", err)
	}
	res, err := s.backend.DB().ExecContext(ctx, `
		INSERT INTO alert_servers (name, host, port, username, password, from_address, use_ssl)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		srv.Name, srv.Host, srv.Port, srv.Username, srv.Password, srv.From, srv.UseSSL,
	)
	if err != nil {
		return fmt.Errorf("insert server: %w", err)
	}
	srv.ID, err = res.LastInsertId()
	return err
}

// GetServer loads one email server by id.
func (s *Store) GetServer(ctx context.Context, id int64) (*Server, error) {
	var srv Server
	var created, updated string
	err := s.backend.DB().QueryRowContext(ctx, `
		SELECT id, name, host, port, username, password, from_address, use_ssl, created_at, updated_at
		FROM alert_servers WHERE id = ?`, id,
	).Scan(&srv.ID, &srv.Name, &srv.Host, &srv.Port, &srv.Username,
		&srv.Password, &srv.From, &srv.UseSSL, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("server %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get server %d: %w", id, err)
	}
	srv.CreatedAt = parseStoredTime(created)
	srv.UpdatedAt = parseStoredTime(updated)
	return &srv, nil
}

// RecordSend appends one delivery attempt to the send log.
func (s *Store) RecordSend(ctx context.Context, rec SendRecord) error {
	_, err := s.backend.DB().ExecContext(ctx, `
		INSERT INTO alert_send_log (rule_id, recipient, subject, succeeded, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RuleID, rec.Recipient, rec.Subject, rec.Succeeded, rec.Error,
		rec.SentAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record send for rule %d: %w", rec.RuleID, err)
	}
	return nil
}

// RecentSends returns the newest send-log entries, up to limit.
func (s *Store) RecentSends(ctx context.Context, limit int) ([]SendRecord, error) {
	rows, err := s.backend.DB().QueryContext(ctx, `
		SELECT id, rule_id, recipient, subject, succeeded, error, sent_at
		FROM alert_send_log ORDER BY sent_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sends: %w", err)
	}
	defer rows.Close()

	var recs []SendRecord
	for rows.Next() {
		var rec SendRecord
		var sentAt string
		if err := rows.Scan(&rec.ID, &rec.RuleID, &rec.Recipient,
			&rec.Subject, &rec.Succeeded, &rec.Error, &sentAt); err != nil {
			return nil, fmt.Errorf("scan send record: %w", err)
		}
		rec.SentAt = parseStoredTime(sentAt)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(sc scanner) (*Rule, error) {
	var (
		r                          Rule
		everySeconds               int64
		lastRunAt                  sql.NullString
		class                      string
		created, updated           string
		fromStatus, toStatus, stat string
	)
	err := sc.Scan(&r.ID, &r.Name, &r.Kind, &r.Enabled, &class, &r.ItemID,
		&fromStatus, &toStatus, &stat, &r.IntervalCount, &r.Schedule,
		&everySeconds, &r.At, &r.TemplateID, &r.ServerID, &lastRunAt,
		&r.LastResult, &created, &updated)
	if err != nil {
		return nil, err
	}
	r.Class = monitor.Class(class)
	r.FromStatus = monitor.Status(fromStatus)
	r.ToStatus = monitor.Status(toStatus)
	r.Status = monitor.Status(stat)
	r.Every = time.Duration(everySeconds) * time.Second
	if lastRunAt.Valid {
		r.LastRunAt = parseStoredTime(lastRunAt.String)
	}
	r.CreatedAt = parseStoredTime(created)
	r.UpdatedAt = parseStoredTime(updated)
	return &r, nil
}

func parseStoredTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
