package workflow_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"mediaconv/internal/config"
	"mediaconv/internal/engine"
	"mediaconv/internal/fetch"
	"mediaconv/internal/jobstate"
	"mediaconv/internal/materialize"
	"mediaconv/internal/queue"
	"mediaconv/internal/staging"
	"mediaconv/internal/testsupport"
	"mediaconv/internal/workflow"
)

type stubContent struct {
	failWith error
}

func (s *stubContent) OpenReadStream(_ context.Context, uri string) (io.ReadCloser, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return io.NopCloser(strings.NewReader("bytes of " + uri)), nil
}

type recordingEngine struct {
	mu     sync.Mutex
	ready  []engine.ReadyEvent
	failed []engine.FailedEvent
}

func (r *recordingEngine) Submit(_ context.Context, event engine.ReadyEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = append(r.ready, event)
	return nil
}

func (r *recordingEngine) ReportFailure(_ context.Context, event engine.FailedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, event)
	return nil
}

func (r *recordingEngine) readyEvents() []engine.ReadyEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.ReadyEvent(nil), r.ready...)
}

func (r *recordingEngine) failedEvents() []engine.FailedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.FailedEvent(nil), r.failed...)
}

type recordingNotifier struct {
	mu       sync.Mutex
	ready    []string
	failed   []string
	nonFatal []string
}

func (n *recordingNotifier) NotifyJobReady(_ context.Context, title string, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = append(n.ready, title)
	return nil
}

func (n *recordingNotifier) NotifyJobFailed(_ context.Context, title, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, title)
	return nil
}

func (n *recordingNotifier) ReportNonFatal(_ context.Context, _ error, _, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nonFatal = append(n.nonFatal, message)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func (n *recordingNotifier) failedTitles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.failed...)
}

func (n *recordingNotifier) nonFatalMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.nonFatal...)
}

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	paths    *staging.Resolver
	bridge   *jobstate.Bridge
	engine   *recordingEngine
	notifier *recordingNotifier
	content  *stubContent
	prepare  *materialize.Materializer
	manager  *workflow.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bridge := jobstate.New(store, nil)
	t.Cleanup(bridge.Close)

	h := &harness{
		cfg:      cfg,
		store:    store,
		paths:    staging.NewResolver(cfg.Paths.StagingDir),
		bridge:   bridge,
		engine:   &recordingEngine{},
		notifier: &recordingNotifier{},
		content:  &stubContent{},
	}
	downloads := materialize.FetchEngine{Downloader: fetch.New(fetch.Config{})}
	h.prepare = materialize.New(h.content, downloads, bridge, materialize.Options{PollInterval: cfg.DownloadPollInterval()})
	h.manager = workflow.NewManager(cfg, workflow.Dependencies{
		Store:        store,
		Paths:        h.paths,
		States:       bridge,
		Materializer: h.prepare,
		Engine:       h.engine,
		Notifier:     h.notifier,
	}, nil)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.manager.Stop)
	h.manager.Notify()
}

func waitForJob(t *testing.T, store *queue.Store, id int64, match func(*queue.Job) bool) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job != nil && match(job) {
			return job
		}
		if time.Now().After(deadline) {
			if job != nil {
				t.Fatalf("job %d never matched; last status %s %q", id, job.Status, job.StatusDetail)
			}
			t.Fatalf("job %d never matched", id)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func hasStatus(status queue.Status) func(*queue.Job) bool {
	return func(j *queue.Job) bool { return j.Status == status }
}
