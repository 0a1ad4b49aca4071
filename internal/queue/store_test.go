package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"mediaconv/internal/queue"
	"mediaconv/internal/testsupport"
)

func TestOpenCreatesSchemaAndRoundTripsJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "holiday", "file:///sdcard/a.mov", "https://example.com/b.mp4")
	if job.ID == 0 {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusQueued {
		t.Fatalf("expected queued status, got %s", job.Status)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Title != "holiday" {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
	if len(fetched.Command.Inputs) != 2 || fetched.Command.Inputs[1] != "https://example.com/b.mp4" {
		t.Fatalf("command inputs not persisted: %#v", fetched.Command)
	}
	if fetched.Command.Outputs[0].Ext != "mp4" {
		t.Fatalf("command outputs not persisted: %#v", fetched.Command.Outputs)
	}

	missing, err := store.GetByID(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil job for missing id, got %#v err=%v", missing, err)
	}

	health, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.TableExists || !health.IntegrityCheck || health.TotalJobs != 1 || health.SchemaVersion != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}
}

func TestNewJobValidatesCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  queue.Command
	}{
		{"no inputs", queue.Command{}},
		{"blank input", queue.Command{Inputs: []string{""}}},
		{"output without ext", queue.Command{Inputs: []string{"/a.mp4"}, Outputs: []queue.OutputSpec{{BaseName: "a"}}}},
		{"output with slash", queue.Command{Inputs: []string{"/a.mp4"}, Outputs: []queue.OutputSpec{{BaseName: "../a", Ext: "mp4"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.NewJob(ctx, "x", tc.cmd); !errors.Is(err, queue.ErrInvalidCommand) {
				t.Fatalf("expected ErrInvalidCommand, got %v", err)
			}
		})
	}
}

func TestNewJobInfersTitle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job, err := store.NewJob(context.Background(), "  ", queue.Command{Inputs: []string{"https://example.com/media/clip.webm?token=1"}})
	if err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}
	if job.Title != "clip.webm" {
		t.Fatalf("expected inferred title, got %q", job.Title)
	}
}

func TestUpdatePersistsSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "clip", "content://media/1")
	job.Status = queue.StatusReady
	job.StatusDetail = ""
	job.PreparedInputs = []string{filepath.Join(cfg.Paths.StagingDir, "job-1", "input_0")}
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusReady || len(fetched.PreparedInputs) != 1 {
		t.Fatalf("unexpected persisted job: %#v", fetched)
	}
	if fetched.UpdatedAt.Before(fetched.CreatedAt) {
		t.Fatalf("expected updated_at >= created_at")
	}

	ghost := job.Clone()
	ghost.ID = 4242
	if err := store.Update(ctx, ghost); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestNextQueuedReturnsOldest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if next, err := store.NextQueued(ctx); err != nil || next != nil {
		t.Fatalf("expected empty queue, got %#v err=%v", next, err)
	}

	first := testsupport.NewJob(t, store, "first", "/a.mp4")
	second := testsupport.NewJob(t, store, "second", "/b.mp4")

	next, err := store.NextQueued(ctx)
	if err != nil {
		t.Fatalf("NextQueued failed: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected first job, got %#v", next)
	}

	first.Status = queue.StatusPreparing
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	next, err = store.NextQueued(ctx)
	if err != nil {
		t.Fatalf("NextQueued failed: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Fatalf("expected second job, got %#v", next)
	}
}

func TestResetStuckPreparing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "stuck", "https://example.com/a.mp4")
	job.Status = queue.StatusPreparing
	job.StatusDetail = "Downloading input 0"
	job.PreparedInputs = []string{"/tmp/x"}
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	done := testsupport.NewJob(t, store, "done", "/b.mp4")
	done.Status = queue.StatusCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	n, err := store.ResetStuckPreparing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckPreparing failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reset, got %d", n)
	}
	fetched, _ := store.GetByID(ctx, job.ID)
	if fetched.Status != queue.StatusQueued || fetched.StatusDetail != queue.ResetStuckDetail || len(fetched.PreparedInputs) != 0 {
		t.Fatalf("unexpected reset job: %#v", fetched)
	}
	fetched, _ = store.GetByID(ctx, done.ID)
	if fetched.Status != queue.StatusCompleted {
		t.Fatalf("completed job should be untouched, got %s", fetched.Status)
	}
}

func TestRequeueAndCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	failed := testsupport.NewJob(t, store, "failed", "/a.mp4")
	failed.Status = queue.StatusFailed
	failed.StatusDetail = "Download input 0 failed: timeout"
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	queued := testsupport.NewJob(t, store, "queued", "/b.mp4")

	ok, err := store.CancelQueued(ctx, queued.ID)
	if err != nil || !ok {
		t.Fatalf("expected cancel to apply, ok=%v err=%v", ok, err)
	}
	ok, err = store.CancelQueued(ctx, failed.ID)
	if err != nil || ok {
		t.Fatalf("expected cancel of failed job to be a no-op, ok=%v err=%v", ok, err)
	}

	n, err := store.Requeue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 failed job requeued, n=%d err=%v", n, err)
	}
	n, err = store.Requeue(ctx, queued.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected cancelled job requeued, n=%d err=%v", n, err)
	}

	for _, id := range []int64{failed.ID, queued.ID} {
		job, _ := store.GetByID(ctx, id)
		if job.Status != queue.StatusQueued || job.StatusDetail != queue.RetryRequestedDetail {
			t.Fatalf("unexpected requeued job: %#v", job)
		}
	}
}

func TestStatsHealthAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	statuses := []queue.Status{queue.StatusQueued, queue.StatusPreparing, queue.StatusFailed, queue.StatusCompleted, queue.StatusCancelled}
	for i, status := range statuses {
		job := testsupport.NewJob(t, store, string(status), "/in.mp4")
		if i == 0 {
			continue
		}
		job.Status = status
		if err := store.Update(ctx, job); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 5 || health.Queued != 1 || health.Active != 1 || health.Failed != 1 || health.Completed != 1 || health.Cancelled != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}

	if n, err := store.ClearFailed(ctx); err != nil || n != 2 {
		t.Fatalf("ClearFailed: n=%d err=%v", n, err)
	}
	if n, err := store.ClearCompleted(ctx); err != nil || n != 1 {
		t.Fatalf("ClearCompleted: n=%d err=%v", n, err)
	}
	if n, err := store.Clear(ctx); err != nil || n != 1 {
		t.Fatalf("Clear: n=%d err=%v", n, err)
	}
	ids, err := store.JobIDs(ctx)
	if err != nil || len(ids) != 1 {
		t.Fatalf("expected only the preparing job to remain, ids=%v err=%v", ids, err)
	}
}

func TestRemove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "gone", "/a.mp4")
	ok, err := store.Remove(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("expected removal, ok=%v err=%v", ok, err)
	}
	ok, err = store.Remove(ctx, job.ID)
	if err != nil || ok {
		t.Fatalf("expected second removal to be a no-op, ok=%v err=%v", ok, err)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "persisted", "/a.mp4")
	store.Close()

	reopened, err := queue.OpenPath(cfg.QueueDBPath())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	fetched, err := reopened.GetByID(context.Background(), job.ID)
	if err != nil || fetched == nil {
		t.Fatalf("expected job after reopen, got %#v err=%v", fetched, err)
	}
}

func TestClaimLosesToCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cancelled := testsupport.NewJob(t, store, "cancelled", "/a.mp4")
	if ok, err := store.CancelQueued(ctx, cancelled.ID); err != nil || !ok {
		t.Fatalf("CancelQueued ok=%v err=%v", ok, err)
	}
	claimed, err := store.Claim(ctx, cancelled.ID)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed != nil {
		t.Fatalf("cancelled job must not be claimed, got %#v", claimed)
	}

	queued := testsupport.NewJob(t, store, "queued", "/b.mp4")
	claimed, err = store.Claim(ctx, queued.ID)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed == nil || claimed.Status != queue.StatusPreparing {
		t.Fatalf("expected preparing job, got %#v", claimed)
	}
	if again, err := store.Claim(ctx, queued.ID); err != nil || again != nil {
		t.Fatalf("second claim should be a no-op, got %#v err=%v", again, err)
	}
	if ok, err := store.CancelQueued(ctx, queued.ID); err != nil || ok {
		t.Fatalf("cancel after claim should not apply, ok=%v err=%v", ok, err)
	}
	if missing, err := store.Claim(ctx, 4242); err != nil || missing != nil {
		t.Fatalf("claim of missing job = %#v err=%v", missing, err)
	}
}

func TestUpdateLeavesTerminalJobsAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "clip", "/a.mp4")
	stale := job.Clone()
	if ok, err := store.CancelQueued(ctx, job.ID); err != nil || !ok {
		t.Fatalf("CancelQueued ok=%v err=%v", ok, err)
	}

	stale.Status = queue.StatusPreparing
	if err := store.Update(ctx, stale); !errors.Is(err, queue.ErrJobFinished) {
		t.Fatalf("expected ErrJobFinished, got %v", err)
	}
	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusCancelled || fetched.StatusDetail != queue.CancelledDetail {
		t.Fatalf("cancelled job was overwritten: %#v", fetched)
	}

	if n, err := store.Requeue(ctx, job.ID); err != nil || n != 1 {
		t.Fatalf("Requeue n=%d err=%v", n, err)
	}
	stale.Status = queue.StatusPreparing
	if err := store.Update(ctx, stale); err != nil {
		t.Fatalf("Update after requeue failed: %v", err)
	}
}
