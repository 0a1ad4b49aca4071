package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"mediaconv/internal/logging"
	"mediaconv/internal/queue"
	"mediaconv/internal/services"
)

// Start recovers from any interrupted run and begins processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	m.running = true
	m.mu.Unlock()

	if err := m.Recover(ctx); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return err
	}

	// Cancelling ctx and calling Stop both end the run with errShutdown, so
	// the preparer can tell a shutdown from a user cancel.
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	stopOnParent := context.AfterFunc(ctx, func() { cancel(errShutdown) })
	m.mu.Lock()
	m.cancel = func() {
		stopOnParent()
		cancel(errShutdown)
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop interrupts the in-flight preparation and waits for the worker.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := m.store.NextQueued(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleNextJobError(ctx, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}
		m.processJob(ctx, job)
	}
}

func (m *Manager) handleNextJobError(ctx context.Context, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(m.logger, "failed to fetch next queued job", "queue_fetch_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.errorRetryInterval):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-time.After(m.pollInterval):
	}
}

// processJob claims one job, prepares it and hands the result to the
// engine. A job cancelled before the claim is skipped.
func (m *Manager) processJob(ctx context.Context, job *queue.Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.currentID = job.ID
	m.currentCancel = cancel
	m.currentStart = time.Now()
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.currentID = 0
		m.currentCancel = nil
		m.currentStart = time.Time{}
		m.mu.Unlock()
	}()

	claimed, err := m.store.Claim(ctx, job.ID)
	if err != nil {
		m.handleNextJobError(ctx, err)
		return
	}
	if claimed == nil {
		m.logger.Debug("job left the queue before it was claimed",
			logging.Int64(logging.FieldJobID, job.ID))
		return
	}

	requestID := uuid.NewString()
	jobCtx = services.WithRequestID(jobCtx, requestID)
	result := m.preparer.Prepare(jobCtx, claimed)
	m.setLastJob(result.Job)
	if result.Err != nil {
		if errors.Is(result.Err, errShutdown) {
			m.logger.Info("daemon shutting down, interrupted job requeued",
				logging.Int64(logging.FieldJobID, job.ID),
				logging.String(logging.FieldEventType, "prepare_requeued"),
			)
		}
		return
	}
	// A ready job is handed off even when shutdown began meanwhile; nothing
	// would resubmit it after a restart.
	m.handoff(services.WithJobID(context.WithoutCancel(jobCtx), job.ID), result.Job)
}
