package workflow

import (
	"context"
	"time"

	"mediaconv/internal/logging"
	"mediaconv/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running      bool
	CurrentJobID int64
	CurrentFor   time.Duration
	LastError    string
	LastJob      *queue.Job
	QueueStats   map[queue.Status]int
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:      m.running,
		CurrentJobID: m.currentID,
		LastJob:      m.lastJob.Clone(),
	}
	if !m.currentStart.IsZero() {
		summary.CurrentFor = time.Since(m.currentStart)
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}
