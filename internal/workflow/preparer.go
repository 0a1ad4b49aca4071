package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediaconv/internal/logging"
	"mediaconv/internal/notifications"
	"mediaconv/internal/queue"
	"mediaconv/internal/services"
	"mediaconv/internal/staging"
)

// errShutdown is the cancellation cause of a worker being stopped.
var errShutdown = errors.New("workflow shutting down")

// Transitioner persists job status changes.
type Transitioner interface {
	Transition(ctx context.Context, job *queue.Job, status queue.Status, detail string, blocking bool) (*queue.Job, error)
}

// Materializer resolves a job's inputs into tempDir.
type Materializer interface {
	Materialize(ctx context.Context, job *queue.Job, tempDir string) (*queue.Job, error)
}

// FailureHandler is told about a failed preparation after the failure has
// been persisted and before the staging directory is removed.
type FailureHandler func(ctx context.Context, job *queue.Job, err error)

// Result is the outcome of one preparation pass. Job is the last persisted
// snapshot; Err is nil when the job is ready.
type Result struct {
	Job      *queue.Job
	Err      error
	Duration time.Duration
}

// Preparer takes one job from queued to ready or failed.
type Preparer struct {
	paths        *staging.Resolver
	materializer Materializer
	states       Transitioner
	notifier     notifications.Service
	onFailure    FailureHandler
	logger       *slog.Logger
}

// PreparerOption customizes a Preparer.
type PreparerOption func(*Preparer)

// WithFailureHandler registers fn to run after a failure is recorded.
func WithFailureHandler(fn FailureHandler) PreparerOption {
	return func(p *Preparer) { p.onFailure = fn }
}

// WithNotifier sets the collector for non-fatal failure reports.
func WithNotifier(n notifications.Service) PreparerOption {
	return func(p *Preparer) { p.notifier = n }
}

// NewPreparer constructs a Preparer.
func NewPreparer(paths *staging.Resolver, materializer Materializer, states Transitioner, logger *slog.Logger, opts ...PreparerOption) *Preparer {
	p := &Preparer{
		paths:        paths,
		materializer: materializer,
		states:       states,
		notifier:     notifications.NewService(nil),
		logger:       logging.NewComponentLogger(logger, "preparer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare runs one preparation pass for job. It never panics on input
// failures; every failure path records the job as failed and removes its
// staging directory.
func (p *Preparer) Prepare(ctx context.Context, job *queue.Job) Result {
	start := time.Now()
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithStage(ctx, "prepare")
	logger := logging.WithContext(ctx, p.logger)

	job, err := p.states.Transition(ctx, job, queue.StatusPreparing, "", true)
	if err != nil {
		return p.fail(ctx, job, err, "", start)
	}
	logger.Info("preparing job",
		logging.String("title", job.Title),
		logging.Int("inputs", len(job.Command.Inputs)),
		logging.String(logging.FieldEventType, "prepare_started"),
	)

	tempDir, err := p.paths.TempDirForJob(job.ID)
	if err != nil {
		return p.fail(ctx, job, err, "", start)
	}

	prepared, err := p.materializer.Materialize(ctx, job, tempDir)
	if err != nil {
		return p.fail(ctx, prepared, err, tempDir, start)
	}

	ready, err := p.states.Transition(ctx, prepared, queue.StatusReady, "", true)
	if err != nil {
		return p.fail(ctx, prepared, err, tempDir, start)
	}
	duration := time.Since(start)
	logger.Info("job prepared",
		logging.Int("inputs", len(ready.PreparedInputs)),
		logging.Duration("duration", duration),
		logging.String(logging.FieldEventType, "prepare_completed"),
	)
	return Result{Job: ready, Duration: duration}
}

// fail persists the failure, runs the failure handler, removes tempDir, and
// reports the error for diagnostics, in that order.
func (p *Preparer) fail(ctx context.Context, job *queue.Job, cause error, tempDir string, start time.Time) Result {
	if errors.Is(context.Cause(ctx), errShutdown) {
		return p.requeue(ctx, job, cause, tempDir, start)
	}
	writeCtx := context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, p.logger)
	message := services.UserMessage(cause)
	details := services.Details(cause)

	failed, err := p.states.Transition(writeCtx, job, queue.StatusFailed, message, true)
	if err != nil {
		logger.Error("failed to persist job failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "failure_persist_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}

	if p.onFailure != nil {
		p.onFailure(writeCtx, failed, cause)
	}

	if tempDir != "" {
		staging.RemoveAllIgnoreError(tempDir)
	}

	attrs := []logging.Attr{
		logging.String("status_detail", message),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String("error_operation", details.Operation),
		logging.Error(cause),
		logging.Duration("duration", time.Since(start)),
	}
	if details.Kind == services.KindCancelled {
		logger.Info("job preparation cancelled", logging.Args(append(attrs, logging.String(logging.FieldEventType, "prepare_cancelled"))...)...)
	} else {
		logging.ErrorWithContext(logger, "job preparation failed", "prepare_failed", attrs...)
	}

	if reportErr := p.notifier.ReportNonFatal(writeCtx, cause, "preparer", message); reportErr != nil {
		logger.Debug("non-fatal report failed", logging.Error(reportErr))
	}
	return Result{Job: failed, Err: cause, Duration: time.Since(start)}
}

// requeue puts a job interrupted by shutdown back in the queue. No failure is
// recorded and no failure handler or report runs.
func (p *Preparer) requeue(ctx context.Context, job *queue.Job, cause error, tempDir string, start time.Time) Result {
	logger := logging.WithContext(ctx, p.logger)
	if tempDir != "" {
		staging.RemoveAllIgnoreError(tempDir)
	}
	if job == nil {
		return Result{Err: fmt.Errorf("%w: %w", errShutdown, cause), Duration: time.Since(start)}
	}
	next := job.Clone()
	next.PreparedInputs = nil
	queued, err := p.states.Transition(context.WithoutCancel(ctx), next, queue.StatusQueued, queue.InterruptedDetail, true)
	if err != nil {
		logger.Warn("failed to requeue interrupted job",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job is reset by the next startup recovery"),
		)
	}
	logger.Info("job preparation interrupted by shutdown",
		logging.Duration("duration", time.Since(start)),
		logging.String(logging.FieldEventType, "prepare_interrupted"),
	)
	return Result{Job: queued, Err: fmt.Errorf("%w: %w", errShutdown, cause), Duration: time.Since(start)}
}
