package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"mediaconv/internal/content"
	"mediaconv/internal/fetch"
	"mediaconv/internal/fileutil"
	"mediaconv/internal/logging"
	"mediaconv/internal/queue"
	"mediaconv/internal/services"
)

// DefaultPollInterval is how often a running download is checked.
const DefaultPollInterval = 500 * time.Millisecond

// Transitioner persists a job status change.
type Transitioner interface {
	Transition(ctx context.Context, job *queue.Job, status queue.Status, detail string, blocking bool) (*queue.Job, error)
}

// Options tunes a Materializer.
type Options struct {
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Materializer resolves job inputs into local files.
type Materializer struct {
	content      content.Resolver
	downloads    DownloadEngine
	states       Transitioner
	pollInterval time.Duration
	logger       *slog.Logger
}

// New constructs a Materializer.
func New(resolver content.Resolver, downloads DownloadEngine, states Transitioner, opts Options) *Materializer {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Materializer{
		content:      resolver,
		downloads:    downloads,
		states:       states,
		pollInterval: interval,
		logger:       logging.NewComponentLogger(opts.Logger, "materializer"),
	}
}

// InputFileName is the staging file name for the input at index.
func InputFileName(index int) string {
	return fmt.Sprintf("input_%d", index)
}

// LocalPath returns the filesystem path of a file-scheme input.
func LocalPath(input string) string {
	if strings.HasPrefix(input, "/") {
		return input
	}
	parsed, err := url.Parse(input)
	if err != nil || parsed.Scheme == "" {
		return input
	}
	return parsed.Path
}

// Materialize resolves every input of job into tempDir. The returned
// snapshot carries the latest persisted status and, on success, the local
// path for each input in PreparedInputs. On failure the returned snapshot is
// the last one written so the caller can record the failure on top of it.
func (m *Materializer) Materialize(ctx context.Context, job *queue.Job, tempDir string) (*queue.Job, error) {
	logger := logging.WithContext(ctx, m.logger)
	prepared := make([]string, 0, len(job.Command.Inputs))

	for index, input := range job.Command.Inputs {
		if err := ctx.Err(); err != nil {
			return job, cancelled("materialize input", err)
		}
		scheme := queue.InputScheme(input)
		var (
			path string
			err  error
		)
		switch scheme {
		case "file":
			path = LocalPath(input)
		case content.Scheme:
			job, path, err = m.copyContent(ctx, job, index, input, tempDir)
		case "http", "https":
			job, path, err = m.download(ctx, job, index, input, tempDir)
		default:
			message := fmt.Sprintf("Unsupported input scheme %s", scheme)
			return job, services.Wrap(services.ErrUnsupportedScheme, "materialize input", message, nil)
		}
		if err != nil {
			return job, err
		}
		logger.Debug("input prepared",
			logging.Int("index", index),
			logging.String("scheme", scheme),
			logging.String("path", path),
		)
		prepared = append(prepared, path)
	}

	next := job.Clone()
	next.PreparedInputs = prepared
	return next, nil
}

func (m *Materializer) copyContent(ctx context.Context, job *queue.Job, index int, input, tempDir string) (*queue.Job, string, error) {
	job, err := m.states.Transition(ctx, job, queue.StatusPreparing, fmt.Sprintf("Copying input %d", index), true)
	if err != nil {
		return job, "", err
	}
	message := fmt.Sprintf("Prepare input %d failed", index)
	if m.content == nil {
		return job, "", services.Wrap(services.ErrInputCopy, "open content", message, errors.New("no content resolver configured"))
	}

	reader, err := m.content.OpenReadStream(ctx, input)
	if err != nil {
		return job, "", classify(ctx, services.ErrInputCopy, "open content", message, err)
	}
	defer reader.Close()

	dest := filepath.Join(tempDir, InputFileName(index))
	written, err := fileutil.CopyStream(ctx, dest, reader)
	if err != nil {
		return job, "", classify(ctx, services.ErrInputCopy, "copy content", message, err)
	}
	logging.WithContext(ctx, m.logger).Info("input copied",
		logging.Int("index", index),
		logging.Int64("size_bytes", written),
		logging.String(logging.FieldEventType, "input_copied"),
	)
	return job, dest, nil
}

func (m *Materializer) download(ctx context.Context, job *queue.Job, index int, input, tempDir string) (*queue.Job, string, error) {
	title := fmt.Sprintf("Downloading input %d", index)
	job, err := m.states.Transition(ctx, job, queue.StatusPreparing, title, true)
	if err != nil {
		return job, "", err
	}
	message := fmt.Sprintf("Download input %d failed", index)
	if m.downloads == nil {
		return job, "", services.Wrap(services.ErrDownload, "start download", message, errors.New("no download engine configured"))
	}

	dest := filepath.Join(tempDir, InputFileName(index))
	task, err := m.downloads.Start(ctx, input, dest)
	if err != nil {
		return job, "", classify(ctx, services.ErrDownload, "start download", message, err)
	}

	logger := logging.WithContext(ctx, m.logger)
	sampler := logging.NewProgressSampler(5)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.downloads.Clear(task)
			return job, "", cancelled("download input", ctx.Err())
		case <-ticker.C:
		}

		select {
		case <-task.Done():
		default:
			progress := task.Progress()
			// Progress writes are best effort; the job keeps its last
			// acknowledged snapshot.
			_, _ = m.states.Transition(ctx, job, queue.StatusPreparing, progressDetail(title, progress), false)
			if sampler.ShouldLog(progress.Percent(), input) {
				logger.Info("download progress",
					logging.Int("index", index),
					logging.Int64("downloaded_bytes", progress.Downloaded),
					logging.Float64("progress_percent", progress.Percent()),
					logging.String(logging.FieldEventType, "download_progress"),
				)
			}
			continue
		}

		switch task.State() {
		case fetch.StateCompleted:
			logger.Info("input downloaded",
				logging.Int("index", index),
				logging.Int64("size_bytes", task.Progress().Downloaded),
				logging.String(logging.FieldEventType, "input_downloaded"),
			)
			return job, dest, nil
		case fetch.StateCancelled:
			m.downloads.Clear(task)
			return job, "", cancelled("download input", task.Err())
		default:
			m.downloads.Clear(task)
			cause := task.Err()
			if cause == nil {
				cause = errors.New(message)
			}
			return job, "", classify(ctx, services.ErrDownload, "download input", message, cause)
		}
	}
}

// progressDetail renders "<title>\n<speed>/s <percent>%". The percent is
// omitted until at least one whole percent is known.
func progressDetail(title string, p fetch.Progress) string {
	speed := p.BytesPerSecond
	if speed < 0 {
		speed = 0
	}
	line := humanize.IBytes(uint64(speed)) + "/s"
	if pct := int(p.Percent()); pct > 0 {
		line += fmt.Sprintf(" %d%%", pct)
	}
	return title + "\n" + line
}

func cancelled(operation string, cause error) error {
	return services.Wrap(services.ErrCancelled, operation, services.CancelledMessage, cause)
}

// classify reports interrupted work as a cancellation and anything else
// under marker.
func classify(ctx context.Context, marker error, operation, message string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return cancelled(operation, err)
	}
	return services.Wrap(marker, operation, message, err)
}
