package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediaconv/internal/api"
	"mediaconv/internal/config"
	"mediaconv/internal/jobstate"
	"mediaconv/internal/materialize"
	"mediaconv/internal/queue"
	"mediaconv/internal/staging"
	"mediaconv/internal/testsupport"
	"mediaconv/internal/workflow"
)

func newTestDaemon(t *testing.T, cfg *config.Config, store *queue.Store) *Daemon {
	t.Helper()
	bridge := jobstate.New(store, nil)
	t.Cleanup(bridge.Close)
	paths := staging.NewResolver(cfg.Paths.StagingDir)
	mgr := workflow.NewManager(cfg, workflow.Dependencies{
		Store:        store,
		Paths:        paths,
		States:       bridge,
		Materializer: materialize.New(nil, nil, bridge, materialize.Options{}),
	}, nil)
	d, err := New(cfg, store, nil, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func newTestServer(t *testing.T) (*Daemon, *httptest.Server) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	d := newTestDaemon(t, cfg, store)
	srv, err := newAPIServer(cfg, d, nil)
	if err != nil || srv == nil {
		t.Fatalf("newAPIServer: %v", err)
	}
	ts := httptest.NewServer(srv.handler)
	t.Cleanup(ts.Close)
	return d, ts
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	d := newTestDaemon(t, cfg, store)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.APIAddress == "" {
		t.Fatal("expected api server to be listening")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("lock path = %q", status.LockFilePath)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}
	other := newTestDaemon(t, cfg, store)
	if err := other.Start(ctx); err == nil {
		t.Fatal("expected a second instance to be refused by the lock")
	}

	var payload api.DaemonStatus
	if code := doJSON(t, http.MethodGet, "http://"+status.APIAddress+"/api/status", "", &payload); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if !payload.Running || !payload.Workflow.Running {
		t.Fatalf("unexpected status payload: %+v", payload)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestAPIJobLifecycle(t *testing.T) {
	d, ts := newTestServer(t)

	var created api.JobResponse
	body := `{"title":"clip","command":{"inputs":["/videos/a.mov"],"outputs":[{"baseName":"clip","ext":"mp4"}]}}`
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/jobs", body, &created); code != http.StatusCreated {
		t.Fatalf("enqueue code = %d", code)
	}
	if created.Job.Status != "queued" || created.Job.Title != "clip" {
		t.Fatalf("created job = %+v", created.Job)
	}
	jobURL := ts.URL + "/api/jobs/" + jsonID(created.Job.ID)

	var list api.JobListResponse
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/jobs?status=queued", "", &list); code != http.StatusOK {
		t.Fatalf("list code = %d", code)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].ID != created.Job.ID {
		t.Fatalf("listed jobs = %+v", list.Jobs)
	}

	var planned map[string][]string
	if code := doJSON(t, http.MethodGet, jobURL+"/outputs", "", &planned); code != http.StatusOK {
		t.Fatalf("outputs code = %d", code)
	}
	if want := filepath.Join(d.cfg.Paths.OutputDir, "clip.mp4"); len(planned["outputs"]) != 1 || planned["outputs"][0] != want {
		t.Fatalf("outputs = %v, want %s", planned["outputs"], want)
	}

	var cancelled api.CancelResponse
	if code := doJSON(t, http.MethodPost, jobURL+"/cancel", "", &cancelled); code != http.StatusOK {
		t.Fatalf("cancel code = %d", code)
	}
	if cancelled.Outcome != string(workflow.CancelDequeued) {
		t.Fatalf("cancel outcome = %q", cancelled.Outcome)
	}

	var retried api.RetryJobsResult
	if code := doJSON(t, http.MethodPost, jobURL+"/retry", "", &retried); code != http.StatusOK {
		t.Fatalf("retry code = %d", code)
	}
	if retried.Jobs[0].Outcome != api.RetryJobUpdated {
		t.Fatalf("retry outcome = %s", retried.Jobs[0].Outcome)
	}
	if code := doJSON(t, http.MethodPost, jobURL+"/retry", "", nil); code != http.StatusConflict {
		t.Fatalf("retrying a queued job should conflict, got %d", code)
	}

	if code := doJSON(t, http.MethodDelete, jobURL, "", nil); code != http.StatusOK {
		t.Fatalf("delete code = %d", code)
	}
	var missing api.ErrorResponse
	if code := doJSON(t, http.MethodGet, jobURL, "", &missing); code != http.StatusNotFound {
		t.Fatalf("get after delete code = %d", code)
	}
	if missing.Error == "" {
		t.Fatal("expected error body")
	}
}

func jsonID(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}

func TestAPIRejectsBadRequests(t *testing.T) {
	_, ts := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"no inputs", http.MethodPost, "/api/jobs", `{"command":{"inputs":[]}}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/jobs", `{"command":{"inputs":["/a"]},"priority":1}`, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/api/jobs?status=bogus", "", http.StatusBadRequest},
		{"missing job", http.MethodGet, "/api/jobs/42", "", http.StatusNotFound},
		{"cancel missing job", http.MethodPost, "/api/jobs/42/cancel", "", http.StatusNotFound},
		{"wrong method", http.MethodPut, "/api/jobs", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code := doJSON(t, tc.method, ts.URL+tc.path, tc.body, nil); code != tc.want {
				t.Fatalf("code = %d, want %d", code, tc.want)
			}
		})
	}
}

func TestAPIRemoveReleasesStagingDir(t *testing.T) {
	d, ts := newTestServer(t)
	ctx := context.Background()

	job := testsupport.NewJob(t, d.store, "clip", "/videos/a.mov")
	dir, err := d.paths.TempDirForJob(job.ID)
	if err != nil {
		t.Fatalf("TempDirForJob: %v", err)
	}
	if code := doJSON(t, http.MethodDelete, ts.URL+"/api/jobs/"+jsonID(job.ID), "", nil); code != http.StatusOK {
		t.Fatalf("delete code = %d", code)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("staging dir should be removed, stat err=%v", err)
	}

	busy := testsupport.NewJob(t, d.store, "busy", "/videos/b.mov")
	busy.Status = queue.StatusPreparing
	if err := d.store.Update(ctx, busy); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if code := doJSON(t, http.MethodDelete, ts.URL+"/api/jobs/"+jsonID(busy.ID), "", nil); code != http.StatusConflict {
		t.Fatalf("deleting a preparing job should conflict, got %d", code)
	}
}

func TestAPICORSPreflight(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/jobs", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestHandleStatusMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	d := newTestDaemon(t, cfg, store)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "clip", "/videos/a.mov")
	job.Status = queue.StatusReady
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}
	dir, err := d.paths.TempDirForJob(job.ID)
	if err != nil {
		t.Fatalf("TempDirForJob: %v", err)
	}

	d.handleStatusMessage(ctx, []byte(`{"job_id":`+jsonID(job.ID)+`,"status":"running","detail":"Encoding 10%"}`))
	stored, _ := store.GetByID(ctx, job.ID)
	if stored.Status != queue.StatusRunning || stored.StatusDetail != "Encoding 10%" {
		t.Fatalf("after running: %s %q", stored.Status, stored.StatusDetail)
	}

	d.handleStatusMessage(ctx, []byte(`not json`))
	d.handleStatusMessage(ctx, []byte(`{"job_id":`+jsonID(job.ID)+`,"status":"completed"}`))
	stored, _ = store.GetByID(ctx, job.ID)
	if stored.Status != queue.StatusCompleted {
		t.Fatalf("after completed: %s", stored.Status)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("staging dir should be released, stat err=%v", err)
	}

	// A late report for a finished job is ignored.
	d.handleStatusMessage(ctx, []byte(`{"job_id":`+jsonID(job.ID)+`,"status":"failed"}`))
	stored, _ = store.GetByID(ctx, job.ID)
	if stored.Status != queue.StatusCompleted {
		t.Fatalf("stale status applied: %s", stored.Status)
	}
}
