package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediaconv/internal/engine"
	"mediaconv/internal/logging"
	"mediaconv/internal/outputs"
	"mediaconv/internal/queue"
	"mediaconv/internal/services"
	"mediaconv/internal/staging"
)

// handoff allocates output paths and submits a ready job to the engine. A
// failed hand-off fails the job since nothing else will pick it up.
func (m *Manager) handoff(ctx context.Context, job *queue.Job) {
	logger := logging.WithContext(ctx, m.logger)
	requestID, _ := services.RequestIDFromContext(ctx)

	paths, err := outputs.PlanForJob(ctx, job, m.cfg.Paths.OutputDir)
	if err == nil {
		err = m.engine.Submit(ctx, engine.ReadyEvent{
			JobID:     job.ID,
			RequestID: requestID,
			Title:     job.Title,
			Inputs:    append([]string(nil), job.PreparedInputs...),
			Args:      append([]string(nil), job.Command.Args...),
			Outputs:   paths,
			ReadyAt:   time.Now().UTC(),
		})
	}
	if err != nil {
		m.setLastError(err)
		cause := fmt.Errorf("engine hand-off: %w", err)
		failed, werr := m.states.Transition(context.WithoutCancel(ctx), job, queue.StatusFailed, "Error: "+err.Error(), true)
		if werr == nil {
			m.setLastJob(failed)
			m.reportFailure(ctx, failed, cause)
		}
		staging.RemoveAllIgnoreError(m.paths.JobDir(job.ID))
		logging.ErrorWithContext(logger, "engine hand-off failed", "engine_handoff_failed",
			logging.Error(cause),
			logging.String(logging.FieldErrorHint, "check the bus connection and engine subscribers"),
		)
		_ = m.notifier.ReportNonFatal(ctx, cause, "engine hand-off", job.Title)
		return
	}

	logger.Info("job handed to engine",
		logging.Int("outputs", len(paths)),
		logging.String(logging.FieldEventType, "engine_handoff"),
	)
	if err := m.notifier.NotifyJobReady(ctx, job.Title, len(job.PreparedInputs)); err != nil {
		logger.Debug("ready notification failed", logging.Error(err))
	}
}

// reportFailure is the Preparer's failure handler.
func (m *Manager) reportFailure(ctx context.Context, job *queue.Job, cause error) {
	if job == nil {
		return
	}
	m.setLastError(cause)
	requestID, _ := services.RequestIDFromContext(ctx)
	details := services.Details(cause)
	if err := m.engine.ReportFailure(ctx, engine.FailedEvent{
		JobID:     job.ID,
		RequestID: requestID,
		Title:     job.Title,
		Reason:    job.StatusDetail,
		Kind:      string(details.Kind),
		FailedAt:  time.Now().UTC(),
	}); err != nil {
		m.logger.Debug("failure event not delivered", logging.Error(err))
	}
	if err := m.notifier.NotifyJobFailed(ctx, job.Title, job.StatusDetail); err != nil {
		m.logger.Debug("failure notification failed", logging.Error(err))
	}
}

var (
	// ErrStaleStatus reports an engine status for a job that is already terminal.
	ErrStaleStatus = errors.New("job already finished")
	// ErrIllegalTransition reports an engine status for a job the engine was
	// never handed, one still queued or preparing.
	ErrIllegalTransition = errors.New("job not handed to the engine")
)

// HandleEngineStatus applies a status reported by the conversion engine.
// Only ready and running jobs accept one. Terminal statuses release the
// job's staging directory.
func (m *Manager) HandleEngineStatus(ctx context.Context, event engine.StatusEvent) error {
	job, err := m.store.GetByID(ctx, event.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %d: %w", event.JobID, queue.ErrJobNotFound)
	}
	switch {
	case job.Status.IsTerminal():
		return fmt.Errorf("job %d is %s: %w", job.ID, job.Status, ErrStaleStatus)
	case job.Status != queue.StatusReady && job.Status != queue.StatusRunning:
		return fmt.Errorf("job %d is %s, engine reported %s: %w", job.ID, job.Status, event.Status, ErrIllegalTransition)
	}
	updated, err := m.states.Transition(ctx, job, event.Status, event.Detail, true)
	if errors.Is(err, queue.ErrJobFinished) {
		return fmt.Errorf("job %d: %w", job.ID, ErrStaleStatus)
	}
	if err != nil {
		return err
	}
	m.setLastJob(updated)
	if event.Status.IsTerminal() {
		if err := m.paths.RemoveJobDir(job.ID); err != nil {
			logging.WarnWithContext(m.logger, "failed to release staging directory", "staging_release_failed",
				logging.Int64(logging.FieldJobID, job.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "directory removed by the next startup sweep"),
			)
		}
	}
	m.logger.Info("engine status applied",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("status", string(event.Status)),
		logging.String(logging.FieldEventType, "engine_status"),
	)
	return nil
}
