// Package fetch runs HTTP downloads in the background and exposes their
// progress and terminal status for polling.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mediaconv/internal/fileutil"
)

const (
	defaultUserAgent      = "mediaconv/dev"
	defaultConnectTimeout = 30 * time.Second
	speedWindow           = time.Second
)

// State is the lifecycle of a download task.
type State int

const (
	StateRunning State = iota
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Config describes downloader settings.
type Config struct {
	UserAgent      string
	ConnectTimeout time.Duration
	HTTPClient     *http.Client
}

// Downloader starts HTTP downloads.
type Downloader struct {
	userAgent string
	http      *http.Client
}

// New constructs a Downloader. Only connection setup is bounded by a
// timeout; transfers run until they finish or are cleared.
func New(cfg Config) *Downloader {
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.ConnectTimeout
		if timeout <= 0 {
			timeout = defaultConnectTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
		transport.TLSHandshakeTimeout = timeout
		transport.ResponseHeaderTimeout = timeout
		client = &http.Client{Transport: transport}
	}
	return &Downloader{userAgent: userAgent, http: client}
}

// Progress is a point-in-time view of a transfer. Total is -1 when the
// server did not announce a length.
type Progress struct {
	Downloaded     int64
	Total          int64
	BytesPerSecond float64
}

// Percent returns completion in [0,100], or -1 when the total is unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}
	pct := float64(p.Downloaded) / float64(p.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Task is one running download.
type Task struct {
	URL  string
	Path string

	cancel context.CancelFunc
	done   chan struct{}

	downloaded atomic.Int64
	total      atomic.Int64

	mu          sync.Mutex
	state       State
	err         error
	speed       float64
	windowStart time.Time
	windowBytes int64
}

// Start begins downloading rawURL into path. The returned task runs until it
// completes, fails, or is cleared.
func (d *Downloader) Start(ctx context.Context, rawURL, path string) (*Task, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("fetch: destination path is required")
	}
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	task := &Task{
		URL:         rawURL,
		Path:        path,
		cancel:      cancel,
		done:        make(chan struct{}),
		state:       StateRunning,
		windowStart: time.Now(),
	}
	task.total.Store(-1)
	go task.run(ctx, d.http, req)
	return task, nil
}

func (t *Task) run(ctx context.Context, client *http.Client, req *http.Request) {
	defer close(t.done)
	defer t.cancel()
	err := t.transfer(ctx, client, req)

	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case err == nil:
		t.state = StateCompleted
	case ctx.Err() != nil:
		t.state = StateCancelled
		t.err = ctx.Err()
	default:
		t.state = StateFailed
		t.err = err
	}
}

func (t *Task) transfer(ctx context.Context, client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			return fmt.Errorf("server returned %s", resp.Status)
		}
		return fmt.Errorf("server returned %s: %s", resp.Status, detail)
	}
	if resp.ContentLength >= 0 {
		t.total.Store(resp.ContentLength)
	}

	_, err = fileutil.CopyStream(ctx, t.Path, &countingReader{r: resp.Body, task: t})
	return err
}

func (t *Task) record(n int) {
	t.downloaded.Add(int64(n))
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windowBytes += int64(n)
	if elapsed := time.Since(t.windowStart); elapsed >= speedWindow {
		t.speed = float64(t.windowBytes) / elapsed.Seconds()
		t.windowStart = time.Now()
		t.windowBytes = 0
	}
}

type countingReader struct {
	r    io.Reader
	task *Task
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.task.record(n)
	}
	return n, err
}

// Done is closed once the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the failure cause once the task failed or was cancelled.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Progress returns the current transfer counters.
func (t *Task) Progress() Progress {
	t.mu.Lock()
	speed := t.speed
	if speed == 0 {
		if elapsed := time.Since(t.windowStart); elapsed > 0 {
			speed = float64(t.windowBytes) / elapsed.Seconds()
		}
	}
	t.mu.Unlock()
	return Progress{
		Downloaded:     t.downloaded.Load(),
		Total:          t.total.Load(),
		BytesPerSecond: speed,
	}
}

// Clear aborts the task, waits for it to stop, and removes any partial
// output. Completed downloads are left in place.
func (d *Downloader) Clear(t *Task) {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
	if t.State() != StateCompleted {
		_ = os.Remove(t.Path)
	}
}
