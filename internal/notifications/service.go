package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediaconv/internal/config"
)

const userAgent = "mediaconv/0.1.0"

// Service defines the notification surface used by the pipeline.
type Service interface {
	NotifyJobReady(ctx context.Context, title string, inputs int) error
	NotifyJobFailed(ctx context.Context, title, reason string) error
	// ReportNonFatal records a failure that was handled but is worth a look.
	ReportNonFatal(ctx context.Context, err error, where, message string) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op one when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		jobReady:  cfg.Notifications.JobReady,
		jobFailed: cfg.Notifications.JobFailed,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	jobReady  bool
	jobFailed bool
	errors    bool
}

func (n *ntfyService) NotifyJobReady(ctx context.Context, title string, inputs int) error {
	if !n.jobReady {
		return nil
	}
	title = strings.TrimSpace(title)
	noun := "inputs"
	if inputs == 1 {
		noun = "input"
	}
	return n.send(ctx, payload{
		title:   "mediaconv - Ready",
		message: fmt.Sprintf("Ready to convert: %s (%d %s)", title, inputs, noun),
		tags:    []string{"mediaconv", "job", "ready"},
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, title, reason string) error {
	if !n.jobFailed {
		return nil
	}
	message := fmt.Sprintf("Preparation failed: %s", strings.TrimSpace(title))
	if reason = strings.TrimSpace(reason); reason != "" {
		message += "\n" + reason
	}
	return n.send(ctx, payload{
		title:    "mediaconv - Failed",
		message:  message,
		tags:     []string{"mediaconv", "job", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) ReportNonFatal(ctx context.Context, err error, where, message string) error {
	if !n.errors || err == nil {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if where = strings.TrimSpace(where); where != "" {
		builder.WriteString(" in ")
		builder.WriteString(where)
	}
	if message = strings.TrimSpace(message); message != "" {
		builder.WriteString(": ")
		builder.WriteString(message)
	}
	builder.WriteString("\n")
	builder.WriteString(err.Error())
	return n.send(ctx, payload{
		title:   "mediaconv - Error",
		message: builder.String(),
		tags:    []string{"mediaconv", "error"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "mediaconv - Test",
		message:  "Notification system test",
		tags:     []string{"mediaconv", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobReady(context.Context, string, int) error           { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string) error       { return nil }
func (noopService) ReportNonFatal(context.Context, error, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
