package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"mediaconv/internal/api"
	"mediaconv/internal/config"
	"mediaconv/internal/queue"
	"mediaconv/internal/staging"
	"mediaconv/internal/workflow"
)

type queueAPI interface {
	List(ctx context.Context, statuses []queue.Status) ([]api.Job, error)
	Describe(ctx context.Context, id int64) (*api.Job, error)
	Stats(ctx context.Context) (map[string]int, error)
	Enqueue(ctx context.Context, title string, cmd api.Command) (*api.Job, error)
	Cancel(ctx context.Context, id int64) (string, error)
	RetryJobs(ctx context.Context, ids []int64) (api.RetryJobsResult, error)
	RemoveJobs(ctx context.Context, ids []int64) (api.RemoveJobsResult, error)
}

// --- HTTP adapter ---

type queueHTTPAdapter struct {
	client *daemonClient
}

func (a *queueHTTPAdapter) List(ctx context.Context, statuses []queue.Status) ([]api.Job, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, status := range statuses {
			names[i] = string(status)
		}
		path += "?status=" + url.QueryEscape(strings.Join(names, ","))
	}
	var resp api.JobListResponse
	if err := a.client.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (a *queueHTTPAdapter) Describe(ctx context.Context, id int64) (*api.Job, error) {
	var resp api.JobResponse
	if err := a.client.call(ctx, http.MethodGet, fmt.Sprintf("/api/jobs/%d", id), nil, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &resp.Job, nil
}

func (a *queueHTTPAdapter) Stats(ctx context.Context) (map[string]int, error) {
	status, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Workflow.QueueStats, nil
}

func (a *queueHTTPAdapter) Enqueue(ctx context.Context, title string, cmd api.Command) (*api.Job, error) {
	var resp api.JobResponse
	req := api.EnqueueRequest{Title: title, Command: cmd}
	if err := a.client.call(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

func (a *queueHTTPAdapter) Cancel(ctx context.Context, id int64) (string, error) {
	var resp api.CancelResponse
	if err := a.client.call(ctx, http.MethodPost, fmt.Sprintf("/api/jobs/%d/cancel", id), nil, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return "", queue.ErrJobNotFound
		}
		return "", err
	}
	return resp.Outcome, nil
}

func (a *queueHTTPAdapter) RetryJobs(ctx context.Context, ids []int64) (api.RetryJobsResult, error) {
	if len(ids) == 0 {
		failed, err := a.List(ctx, []queue.Status{queue.StatusFailed})
		if err != nil {
			return api.RetryJobsResult{}, err
		}
		ids = jobIDs(failed)
	}
	result := api.RetryJobsResult{Jobs: make([]api.RetryJobResult, 0, len(ids))}
	for _, id := range ids {
		code, data, err := a.client.raw(ctx, http.MethodPost, fmt.Sprintf("/api/jobs/%d/retry", id), nil)
		if err != nil {
			return api.RetryJobsResult{}, err
		}
		switch code {
		case http.StatusOK, http.StatusNotFound, http.StatusConflict:
		default:
			return api.RetryJobsResult{}, decodeAPIError(code, data)
		}
		var single api.RetryJobsResult
		if err := json.Unmarshal(data, &single); err != nil {
			return api.RetryJobsResult{}, fmt.Errorf("decode retry response: %w", err)
		}
		result.UpdatedCount += single.UpdatedCount
		result.Jobs = append(result.Jobs, single.Jobs...)
	}
	return result, nil
}

func (a *queueHTTPAdapter) RemoveJobs(ctx context.Context, ids []int64) (api.RemoveJobsResult, error) {
	result := api.RemoveJobsResult{Jobs: make([]api.RemoveJobResult, 0, len(ids))}
	for _, id := range ids {
		err := a.client.call(ctx, http.MethodDelete, fmt.Sprintf("/api/jobs/%d", id), nil, nil)
		switch {
		case err == nil:
			result.RemovedCount++
			result.Jobs = append(result.Jobs, api.RemoveJobResult{ID: id, Outcome: api.RemoveJobRemoved})
		case isStatus(err, http.StatusNotFound):
			result.Jobs = append(result.Jobs, api.RemoveJobResult{ID: id, Outcome: api.RemoveJobNotFound})
		case isStatus(err, http.StatusConflict):
			result.Jobs = append(result.Jobs, api.RemoveJobResult{ID: id, Outcome: api.RemoveJobBusy})
		default:
			return api.RemoveJobsResult{}, fmt.Errorf("remove job %d: %w", id, err)
		}
	}
	return result, nil
}

func isStatus(err error, code int) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.status == code
}

// --- Store adapter ---

// queueStoreAdapter serves queue commands while no daemon is running.
type queueStoreAdapter struct {
	store  *queue.Store
	reader *api.JobService
	paths  *staging.Resolver
}

func newQueueStoreAdapter(cfg *config.Config, store *queue.Store) *queueStoreAdapter {
	return &queueStoreAdapter{
		store:  store,
		reader: api.NewJobService(store),
		paths:  staging.NewResolver(cfg.Paths.StagingDir),
	}
}

func (a *queueStoreAdapter) List(ctx context.Context, statuses []queue.Status) ([]api.Job, error) {
	return a.reader.List(ctx, statuses...)
}

func (a *queueStoreAdapter) Describe(ctx context.Context, id int64) (*api.Job, error) {
	return a.reader.Describe(ctx, id)
}

func (a *queueStoreAdapter) Stats(ctx context.Context) (map[string]int, error) {
	return a.reader.Stats(ctx)
}

func (a *queueStoreAdapter) Enqueue(ctx context.Context, title string, cmd api.Command) (*api.Job, error) {
	job, err := a.store.NewJob(ctx, title, cmd.ToQueue())
	if err != nil {
		return nil, err
	}
	dto := api.FromJob(job)
	return &dto, nil
}

func (a *queueStoreAdapter) Cancel(ctx context.Context, id int64) (string, error) {
	cancelled, err := a.store.CancelQueued(ctx, id)
	if err != nil {
		return "", err
	}
	if cancelled {
		return string(workflow.CancelDequeued), nil
	}
	job, err := a.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", queue.ErrJobNotFound
	}
	if job.Status == queue.StatusPreparing {
		return "", fmt.Errorf("job %d is being prepared; cancel it through the running daemon", id)
	}
	return string(workflow.CancelNotApplicable), nil
}

// Retry satisfies api.QueueActionService.
func (a *queueStoreAdapter) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.store.Requeue(ctx, ids...)
}

func (a *queueStoreAdapter) RetryJobs(ctx context.Context, ids []int64) (api.RetryJobsResult, error) {
	if len(ids) == 0 {
		candidates, err := a.reader.RetryCandidates(ctx)
		if err != nil {
			return api.RetryJobsResult{}, err
		}
		ids = candidates
	}
	return api.RetryJobsByID(ctx, a, ids)
}

// Remove satisfies api.QueueRemoveService and releases staging directories.
func (a *queueStoreAdapter) Remove(ctx context.Context, ids []int64) (int64, error) {
	var removed int64
	for _, id := range ids {
		ok, err := a.store.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
			_ = a.paths.RemoveJobDir(id)
		}
	}
	return removed, nil
}

func (a *queueStoreAdapter) RemoveJobs(ctx context.Context, ids []int64) (api.RemoveJobsResult, error) {
	return api.RemoveJobsByID(ctx, a, ids)
}

func jobIDs(jobs []api.Job) []int64 {
	ids := make([]int64, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	return ids
}
