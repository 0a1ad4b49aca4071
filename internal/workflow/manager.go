package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mediaconv/internal/config"
	"mediaconv/internal/engine"
	"mediaconv/internal/logging"
	"mediaconv/internal/notifications"
	"mediaconv/internal/queue"
	"mediaconv/internal/staging"
)

// Manager runs the single preparation worker.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	preparer *Preparer
	states   Transitioner
	paths    *staging.Resolver
	engine   engine.Engine
	notifier notifications.Service
	logger   *slog.Logger

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	wake               chan struct{}

	mu            sync.RWMutex
	running       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	lastErr       error
	lastJob       *queue.Job
	currentID     int64
	currentCancel context.CancelFunc
	currentStart  time.Time
}

// Dependencies bundles the collaborators a Manager drives.
type Dependencies struct {
	Store        *queue.Store
	Paths        *staging.Resolver
	States       Transitioner
	Materializer Materializer
	Engine       engine.Engine
	Notifier     notifications.Service
}

// NewManager wires a Manager and its Preparer.
func NewManager(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Manager {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	eng := deps.Engine
	if eng == nil {
		eng = engine.NewLogEngine(logger)
	}
	m := &Manager{
		cfg:                cfg,
		store:              deps.Store,
		states:             deps.States,
		paths:              deps.Paths,
		engine:             eng,
		notifier:           notifier,
		logger:             logging.NewComponentLogger(logger, "workflow"),
		pollInterval:       cfg.QueuePollInterval(),
		errorRetryInterval: cfg.ErrorRetryInterval(),
		wake:               make(chan struct{}, 1),
	}
	m.preparer = NewPreparer(deps.Paths, deps.Materializer, deps.States, logger,
		WithNotifier(notifier),
		WithFailureHandler(m.reportFailure),
	)
	return m
}

// Notify wakes the worker so a freshly queued job is picked up without
// waiting for the next poll.
func (m *Manager) Notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	m.lastJob = job.Clone()
	m.mu.Unlock()
}
