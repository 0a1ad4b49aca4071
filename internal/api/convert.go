package api

import (
	"time"

	"mediaconv/internal/queue"
	"mediaconv/internal/workflow"
)

// FromJob converts a queue record to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:             job.ID,
		Title:          job.Title,
		Status:         string(job.Status),
		StatusDetail:   job.StatusDetail,
		Command:        FromCommand(job.Command),
		PreparedInputs: append([]string(nil), job.PreparedInputs...),
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a slice of queue records into API DTOs.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromCommand converts a queue command to its transport form.
func FromCommand(cmd queue.Command) Command {
	out := Command{
		Inputs:       append([]string(nil), cmd.Inputs...),
		Args:         append([]string(nil), cmd.Args...),
		OutputFolder: cmd.OutputFolder,
	}
	for _, spec := range cmd.Outputs {
		out.Outputs = append(out.Outputs, Output{BaseName: spec.BaseName, Ext: spec.Ext})
	}
	return out
}

// ToQueue converts a transport command into the queue model.
func (c Command) ToQueue() queue.Command {
	out := queue.Command{
		Inputs:       append([]string(nil), c.Inputs...),
		Args:         append([]string(nil), c.Args...),
		OutputFolder: c.OutputFolder,
	}
	for _, o := range c.Outputs {
		out.Outputs = append(out.Outputs, queue.OutputSpec{BaseName: o.BaseName, Ext: o.Ext})
	}
	return out
}

// MergeQueueStats keys queue counts by status string and fills in zero
// counts for every known status.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:      summary.Running,
		CurrentJobID: summary.CurrentJobID,
		QueueStats:   MergeQueueStats(summary.QueueStats),
		LastError:    summary.LastError,
	}
	if summary.CurrentFor > 0 {
		wf.CurrentForSeconds = summary.CurrentFor.Round(time.Millisecond).Seconds()
	}
	if summary.LastJob != nil {
		last := FromJob(summary.LastJob)
		wf.LastJob = &last
	}
	return wf
}
