package api

import (
	"context"

	"mediaconv/internal/queue"
)

// QueueActionService captures queue operations needed by per-job retry.
type QueueActionService interface {
	Describe(ctx context.Context, id int64) (*Job, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
}

type RetryJobOutcome string

const (
	RetryJobUpdated      RetryJobOutcome = "retried"
	RetryJobNotFound     RetryJobOutcome = "not_found"
	RetryJobNotRetryable RetryJobOutcome = "not_retryable"
)

type RetryJobResult struct {
	ID          int64           `json:"id"`
	Outcome     RetryJobOutcome `json:"outcome"`
	PriorStatus string          `json:"priorStatus,omitempty"`
}

type RetryJobsResult struct {
	UpdatedCount int64            `json:"updatedCount"`
	Jobs         []RetryJobResult `json:"jobs"`
}

// Retryable reports whether a job in status may be sent back to the queue.
func Retryable(status queue.Status) bool {
	return status == queue.StatusFailed || status == queue.StatusCancelled
}

// RetryJobsByID validates ids and retries only failed or cancelled jobs.
func RetryJobsByID(ctx context.Context, service QueueActionService, ids []int64) (RetryJobsResult, error) {
	result := RetryJobsResult{Jobs: make([]RetryJobResult, 0, len(ids))}
	for _, id := range ids {
		job, err := service.Describe(ctx, id)
		if err != nil {
			return RetryJobsResult{}, err
		}
		if job == nil {
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotFound})
			continue
		}
		status, ok := queue.ParseStatus(job.Status)
		if !ok || !Retryable(status) {
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotRetryable, PriorStatus: job.Status})
			continue
		}
		updated, err := service.Retry(ctx, []int64{id})
		if err != nil {
			return RetryJobsResult{}, err
		}
		if updated > 0 {
			result.UpdatedCount += updated
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobUpdated, PriorStatus: job.Status})
			continue
		}
		result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotRetryable, PriorStatus: job.Status})
	}
	return result, nil
}

// QueueRemoveService captures queue operations needed by per-job removal.
type QueueRemoveService interface {
	Describe(ctx context.Context, id int64) (*Job, error)
	Remove(ctx context.Context, ids []int64) (int64, error)
}

type RemoveJobOutcome string

const (
	RemoveJobRemoved  RemoveJobOutcome = "removed"
	RemoveJobNotFound RemoveJobOutcome = "not_found"
	RemoveJobBusy     RemoveJobOutcome = "busy"
)

type RemoveJobResult struct {
	ID          int64            `json:"id"`
	Outcome     RemoveJobOutcome `json:"outcome"`
	PriorStatus string           `json:"priorStatus,omitempty"`
}

type RemoveJobsResult struct {
	RemovedCount int64             `json:"removedCount"`
	Jobs         []RemoveJobResult `json:"jobs"`
}

// Removable reports whether a job in status may be deleted. A preparing job
// still owns its staging directory and has to be cancelled first.
func Removable(status queue.Status) bool {
	return status != queue.StatusPreparing
}

// RemoveJobsByID deletes each job that is not being prepared.
func RemoveJobsByID(ctx context.Context, service QueueRemoveService, ids []int64) (RemoveJobsResult, error) {
	result := RemoveJobsResult{Jobs: make([]RemoveJobResult, 0, len(ids))}
	for _, id := range ids {
		job, err := service.Describe(ctx, id)
		if err != nil {
			return RemoveJobsResult{}, err
		}
		if job == nil {
			result.Jobs = append(result.Jobs, RemoveJobResult{ID: id, Outcome: RemoveJobNotFound})
			continue
		}
		if status, ok := queue.ParseStatus(job.Status); ok && !Removable(status) {
			result.Jobs = append(result.Jobs, RemoveJobResult{ID: id, Outcome: RemoveJobBusy, PriorStatus: job.Status})
			continue
		}
		removed, err := service.Remove(ctx, []int64{id})
		if err != nil {
			return RemoveJobsResult{}, err
		}
		if removed == 0 {
			result.Jobs = append(result.Jobs, RemoveJobResult{ID: id, Outcome: RemoveJobNotFound})
			continue
		}
		result.RemovedCount += removed
		result.Jobs = append(result.Jobs, RemoveJobResult{ID: id, Outcome: RemoveJobRemoved, PriorStatus: job.Status})
	}
	return result, nil
}
