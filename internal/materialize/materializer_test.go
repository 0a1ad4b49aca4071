package materialize

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mediaconv/internal/fetch"
	"mediaconv/internal/queue"
	"mediaconv/internal/services"
)

type recordedTransition struct {
	status   queue.Status
	detail   string
	blocking bool
}

type fakeStates struct {
	mu    sync.Mutex
	calls []recordedTransition
}

func (f *fakeStates) Transition(_ context.Context, job *queue.Job, status queue.Status, detail string, blocking bool) (*queue.Job, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedTransition{status, detail, blocking})
	f.mu.Unlock()
	next := job.Clone()
	next.Status = status
	next.StatusDetail = detail
	return next, nil
}

func (f *fakeStates) blockingDetails() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.blocking {
			out = append(out, c.detail)
		}
	}
	return out
}

func (f *fakeStates) progressDetails() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if !c.blocking {
			out = append(out, c.detail)
		}
	}
	return out
}

type fakeContent struct {
	opened []string
	fail   map[string]error
}

func (f *fakeContent) OpenReadStream(_ context.Context, uri string) (io.ReadCloser, error) {
	f.opened = append(f.opened, uri)
	if err := f.fail[uri]; err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader("payload:" + uri)), nil
}

func newJob(inputs ...string) *queue.Job {
	return &queue.Job{ID: 9, Status: queue.StatusPreparing, Command: queue.Command{Inputs: inputs}}
}

func newMaterializer(resolver *fakeContent, states *fakeStates) *Materializer {
	downloader := fetch.New(fetch.Config{})
	return New(resolver, FetchEngine{Downloader: downloader}, states, Options{PollInterval: 10 * time.Millisecond})
}

func TestFileInputsPassThrough(t *testing.T) {
	tempDir := t.TempDir()
	states := &fakeStates{}
	m := newMaterializer(&fakeContent{}, states)

	job, err := m.Materialize(context.Background(), newJob("/videos/a.mov", "file:///videos/b.mov"), tempDir)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	want := []string{"/videos/a.mov", "/videos/b.mov"}
	if strings.Join(job.PreparedInputs, ",") != strings.Join(want, ",") {
		t.Fatalf("prepared = %v, want %v", job.PreparedInputs, want)
	}
	entries, _ := os.ReadDir(tempDir)
	if len(entries) != 0 {
		t.Fatalf("file inputs must not be copied, found %d entries", len(entries))
	}
	if len(states.calls) != 0 {
		t.Fatalf("file inputs need no status writes, got %+v", states.calls)
	}
}

func TestContentInputsCopiedInOrder(t *testing.T) {
	tempDir := t.TempDir()
	states := &fakeStates{}
	resolver := &fakeContent{}
	m := newMaterializer(resolver, states)

	job, err := m.Materialize(context.Background(), newJob("content://dir/a", "/local.mov", "content://dir/b"), tempDir)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	wantPrepared := []string{
		filepath.Join(tempDir, "input_0"),
		"/local.mov",
		filepath.Join(tempDir, "input_2"),
	}
	if strings.Join(job.PreparedInputs, ",") != strings.Join(wantPrepared, ",") {
		t.Fatalf("prepared = %v", job.PreparedInputs)
	}
	data, err := os.ReadFile(filepath.Join(tempDir, "input_2"))
	if err != nil || string(data) != "payload:content://dir/b" {
		t.Fatalf("input_2 = %q err=%v", data, err)
	}
	if got := states.blockingDetails(); strings.Join(got, "|") != "Copying input 0|Copying input 2" {
		t.Fatalf("blocking details = %v", got)
	}
	if job.Command.Inputs[0] != "content://dir/a" {
		t.Fatal("original inputs must be preserved")
	}
}

func TestFailureStopsLaterInputs(t *testing.T) {
	resolver := &fakeContent{fail: map[string]error{"content://dir/second": errors.New("stream closed")}}
	m := newMaterializer(resolver, &fakeStates{})

	_, err := m.Materialize(context.Background(), newJob("content://dir/first", "content://dir/second", "content://dir/third"), t.TempDir())
	if !errors.Is(err, services.ErrInputCopy) {
		t.Fatalf("expected ErrInputCopy, got %v", err)
	}
	if got := services.UserMessage(err); got != "Prepare input 1 failed: stream closed" {
		t.Fatalf("user message = %q", got)
	}
	if len(resolver.opened) != 2 {
		t.Fatalf("third input must not be attempted, opened %v", resolver.opened)
	}
}

func TestUnsupportedScheme(t *testing.T) {
	resolver := &fakeContent{}
	m := newMaterializer(resolver, &fakeStates{})

	_, err := m.Materialize(context.Background(), newJob("ftp://host/a.mov", "content://dir/b"), t.TempDir())
	if !errors.Is(err, services.ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
	if got := services.UserMessage(err); got != "Unsupported input scheme ftp" {
		t.Fatalf("user message = %q", got)
	}
	if len(resolver.opened) != 0 {
		t.Fatal("later inputs must not be attempted")
	}
}

func TestDownloadWithProgress(t *testing.T) {
	payload := strings.Repeat("x", 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "65536")
		_, _ = w.Write([]byte(payload[:1024]))
		w.(http.Flusher).Flush()
		time.Sleep(60 * time.Millisecond)
		_, _ = w.Write([]byte(payload[1024:]))
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	states := &fakeStates{}
	m := newMaterializer(&fakeContent{}, states)

	job, err := m.Materialize(context.Background(), newJob(srv.URL+"/a.mov"), tempDir)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	dest := filepath.Join(tempDir, "input_0")
	if job.PreparedInputs[0] != dest {
		t.Fatalf("prepared = %v", job.PreparedInputs)
	}
	info, err := os.Stat(dest)
	if err != nil || info.Size() != int64(len(payload)) {
		t.Fatalf("downloaded file stat = %v, err=%v", info, err)
	}
	if got := states.blockingDetails(); len(got) != 1 || got[0] != "Downloading input 0" {
		t.Fatalf("blocking details = %v", got)
	}
	progress := states.progressDetails()
	if len(progress) == 0 {
		t.Fatal("expected at least one progress update")
	}
	for _, detail := range progress {
		if !strings.HasPrefix(detail, "Downloading input 0\n") || !strings.Contains(detail, "/s") {
			t.Fatalf("unexpected progress detail %q", detail)
		}
	}
}

func TestDownloadFailureUsesEngineCause(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	m := newMaterializer(&fakeContent{}, &fakeStates{})
	_, err := m.Materialize(context.Background(), newJob(srv.URL+"/missing.mov"), t.TempDir())
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected ErrDownload, got %v", err)
	}
	if got := services.UserMessage(err); !strings.HasPrefix(got, "Download input 0 failed: server returned 404") {
		t.Fatalf("user message = %q", got)
	}
}

func TestCancelDuringDownloadClearsPartialOutput(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		_, _ = w.Write(make([]byte, 2048))
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	m := newMaterializer(&fakeContent{}, &fakeStates{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := m.Materialize(ctx, newJob(srv.URL+"/big.mov", "content://dir/next"), tempDir)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if got := services.UserMessage(err); got != services.CancelledMessage {
		t.Fatalf("user message = %q", got)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "input_0")); !os.IsNotExist(err) {
		t.Fatalf("partial download should be removed, stat err=%v", err)
	}
}

func TestProgressDetail(t *testing.T) {
	got := progressDetail("Downloading input 1", fetch.Progress{Downloaded: 50, Total: 100, BytesPerSecond: 2048})
	if got != "Downloading input 1\n2.0 KiB/s 50%" {
		t.Fatalf("detail = %q", got)
	}
	got = progressDetail("Downloading input 1", fetch.Progress{Downloaded: 50, Total: -1, BytesPerSecond: 2048})
	if got != "Downloading input 1\n2.0 KiB/s" {
		t.Fatalf("detail without total = %q", got)
	}
	got = progressDetail("Downloading input 1", fetch.Progress{Downloaded: 0, Total: 100, BytesPerSecond: 0})
	if got != "Downloading input 1\n0 B/s" {
		t.Fatalf("detail at start = %q", got)
	}
}
