// Package jobstate persists job status transitions through a single ordered
// writer so later writes never land before earlier ones.
package jobstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"mediaconv/internal/logging"
	"mediaconv/internal/queue"
	"mediaconv/internal/services"
)

const writeQueueSize = 256

// ErrClosed is reported for blocking transitions issued after Close.
var ErrClosed = errors.New("job state bridge closed")

// Updater persists a job snapshot.
type Updater interface {
	Update(ctx context.Context, job *queue.Job) error
}

type write struct {
	ctx context.Context
	job *queue.Job
	ack chan error
}

// Bridge applies job writes in issue order on one goroutine.
type Bridge struct {
	store  Updater
	logger *slog.Logger

	writes chan write
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// New starts a bridge writing to store.
func New(store Updater, logger *slog.Logger) *Bridge {
	b := &Bridge{
		store:  store,
		logger: logging.NewComponentLogger(logger, "jobstate"),
		writes: make(chan write, writeQueueSize),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bridge) run() {
	defer close(b.done)
	for w := range b.writes {
		err := b.store.Update(w.ctx, w.job)
		if w.ack != nil {
			w.ack <- err
			continue
		}
		if err != nil {
			b.logger.Debug("status update dropped",
				logging.Int64(logging.FieldJobID, w.job.ID),
				logging.String("status", string(w.job.Status)),
				logging.Error(err),
			)
		}
	}
}

// Transition returns a new snapshot of job with status and detail applied and
// writes it. Blocking calls wait for the write and report failures as
// services.ErrPersistence. Non-blocking calls never fail; a write that cannot
// be queued or applied is dropped.
func (b *Bridge) Transition(ctx context.Context, job *queue.Job, status queue.Status, detail string, blocking bool) (*queue.Job, error) {
	next := job.Clone()
	next.Status = status
	next.StatusDetail = detail

	// Writes outlive the caller's cancellation so a failure caused by
	// cancelling the job is still recorded.
	w := write{ctx: context.WithoutCancel(ctx), job: next.Clone()}
	if blocking {
		w.ack = make(chan error, 1)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		if blocking {
			return next, services.Wrap(services.ErrPersistence, "persist job", "", ErrClosed)
		}
		return next, nil
	}
	if blocking {
		b.writes <- w
	} else {
		select {
		case b.writes <- w:
		default:
			b.mu.RUnlock()
			b.noteDropped(next)
			return next, nil
		}
	}
	b.mu.RUnlock()

	if !blocking {
		return next, nil
	}
	if err := <-w.ack; err != nil {
		return next, services.Wrap(services.ErrPersistence, "persist job", "", err)
	}
	return next, nil
}

func (b *Bridge) noteDropped(job *queue.Job) {
	b.logger.Debug("status update dropped",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("status", string(job.Status)),
		logging.String("reason", "write queue full"),
	)
}

// Close stops accepting writes and waits for queued ones to finish.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	close(b.writes)
	b.mu.Unlock()
	<-b.done
}
