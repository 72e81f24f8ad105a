package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"winsentry/pkg/plugin"
)

// Store persists monitored items and their status-change history.
// All item classes share one table; identity columns are nullable and
// class-specific.
type Store struct {
	backend plugin.Store
}

// NewStore wraps the shared database for monitor queries.
func NewStore(backend plugin.Store) *Store {
	return &Store{backend: backend}
}

// StatusChange is one persisted status transition for an item.
type StatusChange struct {
	ID        int64
	Class     Class
	ItemID    int64
	Status    Status
	Detail    map[string]string
	ChangedAt time.Time
}

const itemColumns = `id, class, name, port_number, process_id, process_name,
	service_name, metric, drive_letter, threshold_value,
	interval_seconds, enabled, duration_threshold, max_attempts,
	retry_multiplier, trigger_on, on_stopped, on_running,
	created_at, updated_at`

// CreateItem validates and inserts a new monitored item, returning its id.
func (s *Store) CreateItem(ctx context.Context, item *Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validate item: %w", err)
	}

	onStopped, err := json.Marshal(item.OnStopped)
	if err != nil {
		return fmt.Errorf("marshal on_stopped: %w", err)
	}
	onRunning, err := json.Marshal(item.OnRunning)
	if err != nil {
		return fmt.Errorf("marshal on_running: %w", err)
	}

	res, err := s.backend.DB().ExecContext(ctx, `
		INSERT INTO monitor_items (
			class, name, port_number, process_id, process_name,
			service_name, metric, drive_letter, threshold_value,
			interval_seconds, enabled, duration_threshold, max_attempts,
			retry_multiplier, trigger_on, on_stopped, on_running
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Class, item.Name, item.Port, item.PID, item.ProcessName,
		item.ServiceName, item.Metric, item.Drive, item.Threshold,
		int(item.Interval.Seconds()), item.Enabled, item.DurationThreshold,
		item.MaxAttempts, item.RetryMultiplier, item.TriggerOn,
		string(onStopped), string(onRunning),
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}

	item.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

// GetItem returns one item by class and id.
func (s *Store) GetItem(ctx context.Context, class Class, id int64) (*Item, error) {
	row := s.backend.DB().QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM monitor_items WHERE class = ? AND id = ?",
		class, id,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %s/%d not found", class, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s/%d: %w", class, id, err)
	}
	return item, nil
}

// ListEnabled returns all enabled items of one class, oldest first.
func (s *Store) ListEnabled(ctx context.Context, class Class) ([]Item, error) {
	rows, err := s.backend.DB().QueryContext(ctx,
		"SELECT "+itemColumns+" FROM monitor_items WHERE class = ? AND enabled = 1 ORDER BY id",
		class,
	)
	if err != nil {
		return nil, fmt.Errorf("list enabled %s items: %w", class, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s item: %w", class, err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ListAll returns every item regardless of class or enabled flag.
func (s *Store) ListAll(ctx context.Context) ([]Item, error) {
	rows, err := s.backend.DB().QueryContext(ctx,
		"SELECT "+itemColumns+" FROM monitor_items ORDER BY class, id",
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// SetEnabled toggles an item's enabled flag.
func (s *Store) SetEnabled(ctx context.Context, class Class, id int64, enabled bool) error {
	res, err := s.backend.DB().ExecContext(ctx,
		"UPDATE monitor_items SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE class = ? AND id = ?",
		enabled, class, id,
	)
	if err != nil {
		return fmt.Errorf("set enabled %s/%d: %w", class, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item %s/%d not found", class, id)
	}
	return nil
}

// DeleteItem removes an item and its status history.
func (s *Store) DeleteItem(ctx context.Context, class Class, id int64) error {
	return s.backend.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM monitor_status_history WHERE class = ? AND item_id = ?",
			class, id,
		); err != nil {
			return fmt.Errorf("delete status history %s/%d: %w", class, id, err)
		}
		res, err := tx.ExecContext(ctx,
			"DELETE FROM monitor_items WHERE class = ? AND id = ?",
			class, id,
		)
		if err != nil {
			return fmt.Errorf("delete item %s/%d: %w", class, id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("item %s/%d not found", class, id)
		}
		return nil
	})
}

// RecordStatusChange appends a status transition to the history.
func (s *Store) RecordStatusChange(ctx context.Context, class Class, itemID int64, status Status, detail map[string]string, at time.Time) error {
	var detailJSON []byte
	if len(detail) > 0 {
		var err error
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal detail: %w", err)
		}
	}

	_, err := s.backend.DB().ExecContext(ctx, `
		INSERT INTO monitor_status_history (class, item_id, status, detail, changed_at)
		VALUES (?, ?, ?, ?, ?)`,
		class, itemID, status, nullString(string(detailJSON)), at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record status change %s/%d: %w", class, itemID, err)
	}
	return nil
}

// LatestStatusChange returns the most recent persisted transition for an
// item, or nil if the item has no history yet.
func (s *Store) LatestStatusChange(ctx context.Context, class Class, itemID int64) (*StatusChange, error) {
	row := s.backend.DB().QueryRowContext(ctx, `
		SELECT id, class, item_id, status, detail, changed_at
		FROM monitor_status_history
		WHERE class = ? AND item_id = ?
		ORDER BY changed_at DESC, id DESC
		LIMIT 1`,
		class, itemID,
	)

	sc, err := scanStatusChange(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest status change %s/%d: %w", class, itemID, err)
	}
	return sc, nil
}

// StatusHistory returns up to limit transitions for an item, newest first.
func (s *Store) StatusHistory(ctx context.Context, class Class, itemID int64, limit int) ([]StatusChange, error) {
	rows, err := s.backend.DB().QueryContext(ctx, `
		SELECT id, class, item_id, status, detail, changed_at
		FROM monitor_status_history
		WHERE class = ? AND item_id = ?
		ORDER BY changed_at DESC, id DESC
		LIMIT ?`,
		class, itemID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("status history %s/%d: %w", class, itemID, err)
	}
	defer rows.Close()

	var changes []StatusChange
	for rows.Next() {
		sc, err := scanStatusChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		changes = append(changes, *sc)
	}
	return changes, rows.Err()
}

// PruneStatusHistory deletes transitions older than the cutoff and returns
// the number removed.
func (s *Store) PruneStatusHistory(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.backend.DB().ExecContext(ctx,
		"DELETE FROM monitor_status_history WHERE changed_at < ?",
		before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("prune status history: %w", err)
	}
	return res.RowsAffected()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (*Item, error) {
	var (
		item               Item
		intervalSeconds    int64
		onStopped          string
		onRunning          string
		createdAt, updated string
	)
	err := sc.Scan(
		&item.ID, &item.Class, &item.Name, &item.Port, &item.PID,
		&item.ProcessName, &item.ServiceName, &item.Metric, &item.Drive,
		&item.Threshold, &intervalSeconds, &item.Enabled,
		&item.DurationThreshold, &item.MaxAttempts, &item.RetryMultiplier,
		&item.TriggerOn, &onStopped, &onRunning, &createdAt, &updated,
	)
	if err != nil {
		return nil, err
	}

	item.Interval = time.Duration(intervalSeconds) * time.Second
	if err := json.Unmarshal([]byte(onStopped), &item.OnStopped); err != nil {
		return nil, fmt.Errorf("unmarshal on_stopped: %w", err)
	}
	if err := json.Unmarshal([]byte(onRunning), &item.OnRunning); err != nil {
		return nil, fmt.Errorf("unmarshal on_running: %w", err)
	}
	item.CreatedAt = parseStoredTime(createdAt)
	item.UpdatedAt = parseStoredTime(updated)
	return &item, nil
}

func scanStatusChange(sc scanner) (*StatusChange, error) {
	var (
		change    StatusChange
		detail    sql.NullString
		changedAt string
	)
	if err := sc.Scan(&change.ID, &change.Class, &change.ItemID, &change.Status, &detail, &changedAt); err != nil {
		return nil, err
	}
	if detail.Valid && detail.String != "" {
		if err := json.Unmarshal([]byte(detail.String), &change.Detail); err != nil {
			return nil, fmt.Errorf("unmarshal detail: %w", err)
		}
	}
	change.ChangedAt = parseStoredTime(changedAt)
	return &change, nil
}

// parseStoredTime handles both RFC3339 (our inserts) and SQLite's
// CURRENT_TIMESTAMP format.
func parseStoredTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
