package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/nats-io/nats.go"

	"mediaconv/internal/api"
	"mediaconv/internal/bus"
	"mediaconv/internal/config"
	"mediaconv/internal/engine"
	"mediaconv/internal/logging"
	"mediaconv/internal/notifications"
	"mediaconv/internal/queue"
	"mediaconv/internal/staging"
	"mediaconv/internal/workflow"
)

// ErrJobBusy is returned when removing a job that is being prepared.
var ErrJobBusy = errors.New("job is being prepared")

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	paths    *staging.Resolver
	bus      *bus.Client
	notifier notifications.Service
	queueSvc *api.JobService

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	api       *apiServer
	statusSub *nats.Subscription
	cancel    context.CancelFunc
	running   atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	BusConnected bool
	APIAddress   string
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithBus subscribes the daemon to engine status messages on client.
func WithBus(client *bus.Client) Option {
	return func(d *Daemon) { d.bus = client }
}

// WithNotifier overrides the notification service built from config.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) { d.notifier = n }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		paths:    staging.NewResolver(cfg.Paths.StagingDir),
		queueSvc: api.NewJobService(store),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager, subscribes
// to engine status messages, and starts the API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mediaconv daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	if d.bus != nil && strings.TrimSpace(d.cfg.Bus.StatusSubject) != "" {
		sub, err := d.bus.SubscribeJSON(d.cfg.Bus.StatusSubject, d.handleStatusMessage)
		if err != nil {
			d.workflow.Stop()
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("subscribe engine status: %w", err)
		}
		d.statusSub = sub
	}

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err == nil {
		err = srv.start(runCtx)
	}
	if err != nil {
		d.unsubscribe()
		d.workflow.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.api = srv
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("mediaconv daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.apiAddress()),
		logging.Bool("bus", d.bus != nil),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.api = nil
	d.unsubscribe()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mediaconv daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.bus.Close()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

func (d *Daemon) unsubscribe() {
	if d.statusSub == nil {
		return
	}
	if err := d.statusSub.Unsubscribe(); err != nil {
		d.logger.Debug("status unsubscribe failed", logging.Error(err))
	}
	d.statusSub = nil
}

func (d *Daemon) apiAddress() string {
	if d.api == nil {
		return ""
	}
	return d.api.address()
}

// handleStatusMessage applies one engine status message from the bus.
func (d *Daemon) handleStatusMessage(ctx context.Context, data []byte) {
	event, err := engine.DecodeStatus(data)
	if err != nil {
		logging.WarnWithContext(d.logger, "ignoring malformed engine status", "engine_status_invalid",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "engine must publish {job_id, status, detail}"),
		)
		return
	}
	if err := d.workflow.HandleEngineStatus(ctx, event); err != nil {
		if errors.Is(err, workflow.ErrStaleStatus) || errors.Is(err, workflow.ErrIllegalTransition) || errors.Is(err, queue.ErrJobNotFound) {
			d.logger.Debug("engine status ignored",
				logging.Int64(logging.FieldJobID, event.JobID),
				logging.Error(err),
			)
			return
		}
		logging.ErrorWithContext(d.logger, "failed to apply engine status", "engine_status_failed",
			logging.Int64(logging.FieldJobID, event.JobID),
			logging.String("status", string(event.Status)),
			logging.Error(err),
		)
		return
	}
	if event.Status == queue.StatusFailed {
		job, err := d.store.GetByID(ctx, event.JobID)
		if err == nil && job != nil {
			_ = d.notifier.NotifyJobFailed(ctx, job.Title, event.Detail)
		}
	}
}

// Enqueue validates and stores a new job and wakes the worker.
func (d *Daemon) Enqueue(ctx context.Context, title string, cmd queue.Command) (*queue.Job, error) {
	job, err := d.store.NewJob(ctx, title, cmd)
	if err != nil {
		return nil, err
	}
	d.logger.Info("job queued",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("title", job.Title),
		logging.Int("inputs", len(cmd.Inputs)),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	d.workflow.Notify()
	return job, nil
}

// ListJobs returns jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses []queue.Status) ([]api.Job, error) {
	return d.queueSvc.List(ctx, statuses...)
}

// Describe returns one job or nil when it does not exist.
func (d *Daemon) Describe(ctx context.Context, id int64) (*api.Job, error) {
	return d.queueSvc.Describe(ctx, id)
}

// CancelJob interrupts or withdraws a job.
func (d *Daemon) CancelJob(ctx context.Context, id int64) (workflow.CancelOutcome, error) {
	return d.workflow.CancelJob(ctx, id)
}

// Retry requeues failed or cancelled jobs and wakes the worker.
func (d *Daemon) Retry(ctx context.Context, ids []int64) (int64, error) {
	updated, err := d.store.Requeue(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		d.workflow.Notify()
	}
	return updated, nil
}

// RetryJobs retries each id and reports a per-job outcome.
func (d *Daemon) RetryJobs(ctx context.Context, ids []int64) (api.RetryJobsResult, error) {
	return api.RetryJobsByID(ctx, d, ids)
}

// Remove deletes jobs and their staging directories. A job being prepared
// must be cancelled first.
func (d *Daemon) Remove(ctx context.Context, ids []int64) (int64, error) {
	var removed int64
	for _, id := range ids {
		job, err := d.store.GetByID(ctx, id)
		if err != nil {
			return removed, err
		}
		if job == nil {
			continue
		}
		if job.Status == queue.StatusPreparing {
			return removed, fmt.Errorf("job %d: %w", id, ErrJobBusy)
		}
		ok, err := d.store.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if !ok {
			continue
		}
		removed++
		if err := d.paths.RemoveJobDir(id); err != nil {
			logging.WarnWithContext(d.logger, "failed to remove staging directory", "staging_remove_failed",
				logging.Int64(logging.FieldJobID, id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "directory removed by the next startup sweep"),
			)
		}
	}
	return removed, nil
}

// RemoveJobs removes each id and reports a per-job outcome.
func (d *Daemon) RemoveJobs(ctx context.Context, ids []int64) (api.RemoveJobsResult, error) {
	return api.RemoveJobsByID(ctx, d, ids)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	address := d.apiAddress()
	d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.cfg.QueueDBPath(),
		LockFilePath: d.lockPath,
		BusConnected: d.bus.Connected(),
		APIAddress:   address,
	}
}

func toAPIStatus(status Status) api.DaemonStatus {
	return api.DaemonStatus{
		Running:      status.Running,
		PID:          os.Getpid(),
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		BusConnected: status.BusConnected,
		Workflow:     api.FromStatusSummary(status.Workflow),
	}
}
