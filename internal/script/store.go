package script

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"winsentry/pkg/plugin"
)

// Store persists script jobs and their captured output.
type Store struct {
	backend plugin.Store
}

// NewStore wraps the shared database for script queries.
func NewStore(backend plugin.Store) *Store {
	return &Store{backend: backend}
}

// InsertJob records a freshly queued job.
func (s *Store) InsertJob(ctx context.Context, job Job) error {
	_, err := s.backend.DB().ExecContext(ctx, `
		INSERT INTO script_jobs (id, label, source_type, path, status, queued_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.Label, job.Spec.Type, job.Spec.Path, job.Status,
		job.QueuedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// MarkRunning records that a worker picked the job up.
func (s *Store) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	_, err := s.backend.DB().ExecContext(ctx,
		"UPDATE script_jobs SET status = ?, started_at = ? WHERE id = ?",
		StatusRunning, startedAt.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("mark job %s running: %w", id, err)
	}
	return nil
}

// FinishJob records the terminal state and captured output in one
// transaction.
func (s *Store) FinishJob(ctx context.Context, job Job, stdout, stderr []byte) error {
	return s.backend.Tx(ctx, func(tx *sql.Tx) error {
		var startedAt any
		if !job.StartedAt.IsZero() {
			startedAt = job.StartedAt.UTC().Format(time.RFC3339)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE script_jobs
			SET status = ?, exit_code = ?, error = ?, started_at = COALESCE(?, started_at), finished_at = ?
			WHERE id = ?`,
			job.Status, job.ExitCode, job.Error, startedAt,
			job.FinishedAt.UTC().Format(time.RFC3339), job.ID,
		)
		if err != nil {
			return fmt.Errorf("finish job %s: %w", job.ID, err)
		}

		for stream, content := range map[string][]byte{"stdout": stdout, "stderr": stderr} {
			if len(content) == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO script_job_output (job_id, stream, content) VALUES (?, ?, ?)",
				job.ID, stream, string(content),
			); err != nil {
				return fmt.Errorf("store %s for job %s: %w", stream, job.ID, err)
			}
		}
		return nil
	})
}

// GetJob loads one persisted job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.backend.DB().QueryRowContext(ctx, `
		SELECT id, label, source_type, path, status, exit_code, error,
		       queued_at, started_at, finished_at
		FROM script_jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// ListRecent returns the newest jobs first, up to limit.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.backend.DB().QueryContext(ctx, `
		SELECT id, label, source_type, path, status, exit_code, error,
		       queued_at, started_at, finished_at
		FROM script_jobs ORDER BY queued_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Output returns the captured content for one stream of a job.
func (s *Store) Output(ctx context.Context, id, stream string) (string, error) {
	var content string
	err := s.backend.DB().QueryRowContext(ctx,
		"SELECT content FROM script_job_output WHERE job_id = ? AND stream = ?",
		id, stream,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s for job %s: %w", stream, id, err)
	}
	return content, nil
}

// PruneJobs deletes jobs (and their output) finished before the cutoff.
func (s *Store) PruneJobs(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := s.backend.Tx(ctx, func(tx *sql.Tx) error {
		cutoff := before.UTC().Format(time.RFC3339)
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM script_job_output WHERE job_id IN (
				SELECT id FROM script_jobs WHERE finished_at IS NOT NULL AND finished_at < ?
			)`, cutoff,
		); err != nil {
			return fmt.Errorf("prune job output: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			"DELETE FROM script_jobs WHERE finished_at IS NOT NULL AND finished_at < ?",
			cutoff,
		)
		if err != nil {
			return fmt.Errorf("prune jobs: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*Job, error) {
	var (
		job                            Job
		exitCode                       sql.NullInt64
		errMsg                         sql.NullString
		queuedAt, startedAt, finshedAt sql.NullString
	)
	err := sc.Scan(&job.ID, &job.Label, &job.Spec.Type, &job.Spec.Path,
		&job.Status, &exitCode, &errMsg, &queuedAt, &startedAt, &finshedAt)
	if err != nil {
		return nil, err
	}
	job.ExitCode = int(exitCode.Int64)
	job.Error = errMsg.String
	job.QueuedAt = parseStoredTime(queuedAt.String)
	job.StartedAt = parseStoredTime(startedAt.String)
	job.FinishedAt = parseStoredTime(finshedAt.String)
	return &job, nil
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
