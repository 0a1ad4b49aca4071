package materialize

import (
	"context"

	"mediaconv/internal/fetch"
)

// Download is a running transfer as seen by the poll loop.
type Download interface {
	Done() <-chan struct{}
	State() fetch.State
	Err() error
	Progress() fetch.Progress
}

// DownloadEngine starts and clears downloads.
type DownloadEngine interface {
	Start(ctx context.Context, url, path string) (Download, error)
	Clear(Download)
}

// FetchEngine adapts a fetch.Downloader to DownloadEngine.
type FetchEngine struct {
	Downloader *fetch.Downloader
}

// Start implements DownloadEngine.
func (e FetchEngine) Start(ctx context.Context, url, path string) (Download, error) {
	task, err := e.Downloader.Start(ctx, url, path)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Clear implements DownloadEngine.
func (e FetchEngine) Clear(d Download) {
	if task, ok := d.(*fetch.Task); ok {
		e.Downloader.Clear(task)
	}
}
