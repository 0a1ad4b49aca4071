package workflow

import (
	"context"
	"fmt"

	"mediaconv/internal/logging"
	"mediaconv/internal/queue"
	"mediaconv/internal/staging"
)

// Recover returns interrupted preparations to the queue and removes staging
// directories that no ready or running job still needs.
func (m *Manager) Recover(ctx context.Context) error {
	reset, err := m.store.ResetStuckPreparing(ctx)
	if err != nil {
		return fmt.Errorf("reset interrupted jobs: %w", err)
	}
	if reset > 0 {
		m.logger.Info("requeued interrupted preparations",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "recovery_requeue"),
		)
	}

	live, err := m.store.List(ctx, queue.StatusReady, queue.StatusRunning)
	if err != nil {
		return fmt.Errorf("list live jobs: %w", err)
	}
	keep := make(map[int64]struct{}, len(live))
	for _, job := range live {
		keep[job.ID] = struct{}{}
	}

	root := m.paths.Root()
	orphaned := staging.CleanOrphaned(ctx, root, keep, m.logger)
	stale := staging.CleanStale(ctx, root, m.cfg.StagingMaxAge(), m.logger)
	if removed := len(orphaned.Removed) + len(stale.Removed); removed > 0 {
		m.logger.Info("staging sweep complete",
			logging.Int("removed", removed),
			logging.Int("errors", len(orphaned.Errors)+len(stale.Errors)),
			logging.String(logging.FieldEventType, "staging_sweep"),
		)
	}
	return nil
}
