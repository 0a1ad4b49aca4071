package api

import (
	"context"

	"mediaconv/internal/queue"
)

// JobStore is the read side of the job queue served to clients.
type JobStore interface {
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	GetByID(ctx context.Context, id int64) (*queue.Job, error)
}

// JobService renders stored jobs as transport DTOs.
type JobService struct {
	store JobStore
}

// NewJobService wraps store.
func NewJobService(store JobStore) *JobService {
	return &JobService{store: store}
}

// List returns jobs with any of statuses, or every job when none are given.
func (s *JobService) List(ctx context.Context, statuses ...queue.Status) ([]Job, error) {
	jobs, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Describe returns one job, or nil when id is unknown.
func (s *JobService) Describe(ctx context.Context, id int64) (*Job, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}

// Stats returns a count for every known status; missing ones read zero.
func (s *JobService) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// RetryCandidates returns the ids a retry with no explicit ids targets: every
// failed job, oldest first. Cancelled jobs are only retried by id.
func (s *JobService) RetryCandidates(ctx context.Context) ([]int64, error) {
	jobs, err := s.store.List(ctx, queue.StatusFailed)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	return ids, nil
}
