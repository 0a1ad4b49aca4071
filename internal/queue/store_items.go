package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrJobNotFound is returned by writes that target a job that no longer exists.
var ErrJobNotFound = errors.New("job not found")

// ErrJobFinished is returned by Update when the stored job is already
// completed, failed or cancelled. Only Requeue moves a job out of those.
var ErrJobFinished = errors.New("job already finished")

// NewJob validates cmd and inserts a queued job.
func (s *Store) NewJob(ctx context.Context, title string, cmd Command) (*Job, error) {
	if err := ValidateCommand(cmd); err != nil {
		return nil, err
	}
	commandJSON, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = inferTitle(cmd)
	}
	timestamp := formatTime(time.Now())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (title, command_json, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		title,
		string(commandJSON),
		StatusQueued,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. A missing job yields (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists the mutable fields of job and stamps UpdatedAt. A row that
// is already terminal is left untouched and ErrJobFinished is returned.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	commandJSON, err := json.Marshal(job.Command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	prepared, err := encodePreparedInputs(job.PreparedInputs)
	if err != nil {
		return fmt.Errorf("marshal prepared inputs: %w", err)
	}
	job.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET title = ?, command_json = ?, status = ?, status_detail = ?,
             prepared_inputs_json = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		job.Title,
		string(commandJSON),
		job.Status,
		nullableString(job.StatusDetail),
		prepared,
		formatTime(job.UpdatedAt),
		job.ID,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		current, getErr := s.GetByID(ctx, job.ID)
		if getErr == nil && current != nil {
			return fmt.Errorf("update job %d (%s): %w", job.ID, current.Status, ErrJobFinished)
		}
		return fmt.Errorf("update job %d: %w", job.ID, ErrJobNotFound)
	}
	return nil
}

// Claim moves a queued job to preparing in one statement. It returns nil when
// the job is gone or no longer queued, so a concurrent cancel always wins.
func (s *Store) Claim(ctx context.Context, id int64) (*Job, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, status_detail = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		StatusPreparing,
		formatTime(time.Now()),
		id,
		StatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, id)
}

// List returns jobs ordered by id, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextQueued returns the oldest queued job, or nil when the queue is idle.
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		StatusQueued,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued job: %w", err)
	}
	return job, nil
}

func inferTitle(cmd Command) string {
	if len(cmd.Outputs) > 0 && cmd.Outputs[0].BaseName != "" {
		return cmd.Outputs[0].BaseName
	}
	if len(cmd.Inputs) == 0 {
		return "Untitled job"
	}
	input := strings.TrimRight(cmd.Inputs[0], "/")
	if idx := strings.LastIndexAny(input, "/\\"); idx >= 0 {
		input = input[idx+1:]
	}
	if idx := strings.IndexAny(input, "?#"); idx >= 0 {
		input = input[:idx]
	}
	if input == "" {
		return "Untitled job"
	}
	return input
}
