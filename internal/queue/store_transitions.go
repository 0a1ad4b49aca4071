package queue

import (
	"context"
	"fmt"
	"time"
)

// ResetStuckPreparing returns jobs left in preparing by an interrupted daemon
// to the queue. Prepared inputs are discarded since their staging directory
// is swept on startup.
func (s *Store) ResetStuckPreparing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, status_detail = ?, prepared_inputs_json = NULL, updated_at = ?
         WHERE status = ?`,
		StatusQueued,
		ResetStuckDetail,
		formatTime(time.Now()),
		StatusPreparing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// Requeue moves failed or cancelled jobs back to queued. With no ids every
// failed job is retried.
func (s *Store) Requeue(ctx context.Context, ids ...int64) (int64, error) {
	now := formatTime(time.Now())
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs
             SET status = ?, status_detail = ?, prepared_inputs_json = NULL, updated_at = ?
             WHERE status = ?`,
			StatusQueued, RetryRequestedDetail, now, StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	query := `UPDATE jobs
        SET status = ?, status_detail = ?, prepared_inputs_json = NULL, updated_at = ?
        WHERE id IN (` + makePlaceholders(len(ids)) + `) AND status IN (?, ?)`
	args := idArgs([]any{StatusQueued, RetryRequestedDetail, now}, ids)
	args = append(args, StatusFailed, StatusCancelled)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// CancelQueued marks a job cancelled if it has not been picked up yet. It
// reports whether a row changed.
func (s *Store) CancelQueued(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, status_detail = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusCancelled,
		CancelledDetail,
		formatTime(time.Now()),
		id,
		StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("cancel job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
