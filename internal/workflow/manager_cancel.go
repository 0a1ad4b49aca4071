package workflow

import (
	"context"
	"fmt"

	"mediaconv/internal/logging"
	"mediaconv/internal/queue"
)

// CancelOutcome describes what CancelJob did.
type CancelOutcome string

const (
	// CancelInterrupted means an in-flight preparation was interrupted; the
	// job ends up failed with "Job was cancelled".
	CancelInterrupted CancelOutcome = "interrupted"
	// CancelDequeued means a job that had not started was marked cancelled.
	CancelDequeued CancelOutcome = "cancelled"
	// CancelNotApplicable means the job exists but is past preparation.
	CancelNotApplicable CancelOutcome = "not_applicable"
)

// CancelJob interrupts the preparation of id or withdraws it from the queue.
func (m *Manager) CancelJob(ctx context.Context, id int64) (CancelOutcome, error) {
	if m.interruptCurrent(id) {
		return CancelInterrupted, nil
	}

	changed, err := m.store.CancelQueued(ctx, id)
	if err != nil {
		return "", err
	}
	if changed {
		m.logger.Info("queued job cancelled",
			logging.Int64(logging.FieldJobID, id),
			logging.String(logging.FieldEventType, "job_cancelled"),
		)
		return CancelDequeued, nil
	}

	job, err := m.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", fmt.Errorf("job %d: %w", id, queue.ErrJobNotFound)
	}
	// The worker may have claimed the job after the first look.
	if job.Status == queue.StatusPreparing && m.interruptCurrent(id) {
		return CancelInterrupted, nil
	}
	return CancelNotApplicable, nil
}

func (m *Manager) interruptCurrent(id int64) bool {
	m.mu.RLock()
	current := m.currentID
	cancel := m.currentCancel
	m.mu.RUnlock()
	if current != id || cancel == nil {
		return false
	}
	cancel()
	m.logger.Info("preparation cancel requested",
		logging.Int64(logging.FieldJobID, id),
		logging.String(logging.FieldEventType, "prepare_cancel_requested"),
	)
	return true
}
