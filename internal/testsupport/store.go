package testsupport

import (
	"context"
	"testing"

	"mediaconv/internal/config"
	"mediaconv/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob enqueues a job with the given inputs and a single mp4 output.
func NewJob(t testing.TB, store *queue.Store, title string, inputs ...string) *queue.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), title, queue.Command{
		Inputs:  inputs,
		Args:    []string{"-c:v", "libx264"},
		Outputs: []queue.OutputSpec{{BaseName: title, Ext: "mp4"}},
	})
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
