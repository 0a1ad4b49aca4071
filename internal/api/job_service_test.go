package api

import (
	"context"
	"testing"

	"mediaconv/internal/queue"
)

type jobStoreStub struct {
	jobs []*queue.Job
}

func (s *jobStoreStub) List(_ context.Context, statuses ...queue.Status) ([]*queue.Job, error) {
	var out []*queue.Job
	for _, job := range s.jobs {
		if len(statuses) == 0 {
			out = append(out, job)
			continue
		}
		for _, status := range statuses {
			if job.Status == status {
				out = append(out, job)
				break
			}
		}
	}
	return out, nil
}

func (s *jobStoreStub) Stats(context.Context) (map[queue.Status]int, error) {
	stats := map[queue.Status]int{}
	for _, job := range s.jobs {
		stats[job.Status]++
	}
	return stats, nil
}

func (s *jobStoreStub) GetByID(_ context.Context, id int64) (*queue.Job, error) {
	for _, job := range s.jobs {
		if job.ID == id {
			return job, nil
		}
	}
	return nil, nil
}

func TestJobService(t *testing.T) {
	svc := NewJobService(&jobStoreStub{jobs: []*queue.Job{
		{ID: 1, Title: "a", Status: queue.StatusFailed, StatusDetail: "Download input 0 failed"},
		{ID: 2, Title: "b", Status: queue.StatusCancelled},
		{ID: 3, Title: "c", Status: queue.StatusFailed},
		{ID: 4, Title: "d", Status: queue.StatusReady},
	}})
	ctx := context.Background()

	ids, err := svc.RetryCandidates(ctx)
	if err != nil {
		t.Fatalf("RetryCandidates: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("retry candidates = %v, want [1 3]", ids)
	}

	job, err := svc.Describe(ctx, 1)
	if err != nil || job == nil {
		t.Fatalf("Describe: %v %v", job, err)
	}
	if job.Status != "failed" || job.StatusDetail != "Download input 0 failed" {
		t.Fatalf("unexpected dto: %+v", job)
	}
	if missing, err := svc.Describe(ctx, 99); err != nil || missing != nil {
		t.Fatalf("missing job = %+v, %v", missing, err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["failed"] != 2 || stats["queued"] != 0 {
		t.Fatalf("stats = %v", stats)
	}
	ready, err := svc.List(ctx, queue.StatusReady)
	if err != nil || len(ready) != 1 || ready[0].ID != 4 {
		t.Fatalf("List(ready) = %+v, %v", ready, err)
	}
}
