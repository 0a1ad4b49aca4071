package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mediaconv/internal/notifications"
	"mediaconv/internal/testsupport"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	requests := make(chan capturedRequest, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := notifications.NewService(cfg)
	if err := svc.NotifyJobReady(context.Background(), "clip", 1); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).ReportNonFatal(context.Background(), errors.New("x"), "", ""); err != nil {
		t.Fatalf("nil config should yield noop, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, requests := newCaptureServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(srv.URL))
	svc := notifications.NewService(cfg)
	ctx := context.Background()

	tests := []struct {
		name           string
		send           func() error
		expectTitle    string
		expectBody     string
		expectTags     string
		expectPriority string
	}{
		{
			name:        "job ready",
			send:        func() error { return svc.NotifyJobReady(ctx, "Holiday clip", 2) },
			expectTitle: "mediaconv - Ready",
			expectBody:  "Ready to convert: Holiday clip (2 inputs)",
			expectTags:  "mediaconv,job,ready",
		},
		{
			name:           "job failed",
			send:           func() error { return svc.NotifyJobFailed(ctx, "Holiday clip", "Job was cancelled") },
			expectTitle:    "mediaconv - Failed",
			expectBody:     "Preparation failed: Holiday clip\nJob was cancelled",
			expectTags:     "mediaconv,job,failed",
			expectPriority: "high",
		},
		{
			name: "non-fatal report",
			send: func() error {
				return svc.ReportNonFatal(ctx, errors.New("disk full"), "preparer", "Prepare input 0 failed")
			},
			expectTitle: "mediaconv - Error",
			expectBody:  "Error in preparer: Prepare input 0 failed\ndisk full",
			expectTags:  "mediaconv,error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.send(); err != nil {
				t.Fatalf("send: %v", err)
			}
			got := <-requests
			if got.title != tt.expectTitle || got.body != tt.expectBody || got.tags != tt.expectTags || got.priority != tt.expectPriority {
				t.Fatalf("unexpected request %+v", got)
			}
		})
	}
}

func TestDisabledEventsAreSkipped(t *testing.T) {
	srv, requests := newCaptureServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(srv.URL))
	cfg.Notifications.JobReady = false
	svc := notifications.NewService(cfg)

	if err := svc.NotifyJobReady(context.Background(), "clip", 1); err != nil {
		t.Fatalf("NotifyJobReady: %v", err)
	}
	select {
	case got := <-requests:
		t.Fatalf("disabled event was sent: %+v", got)
	default:
	}
}

func TestNtfyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic not allowed", http.StatusForbidden)
	}))
	defer srv.Close()
	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(srv.URL))

	err := notifications.NewService(cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
