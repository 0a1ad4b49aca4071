// Package engine hands prepared jobs to the external conversion engine and
// decodes the status reports it sends back.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediaconv/internal/logging"
	"mediaconv/internal/queue"
)

// ReadyEvent announces a job whose inputs are all local files.
type ReadyEvent struct {
	JobID     int64     `json:"job_id"`
	RequestID string    `json:"request_id,omitempty"`
	Title     string    `json:"title"`
	Inputs    []string  `json:"inputs"`
	Args      []string  `json:"args,omitempty"`
	Outputs   []string  `json:"outputs,omitempty"`
	ReadyAt   time.Time `json:"ready_at"`
}

// FailedEvent announces a job that could not be prepared.
type FailedEvent struct {
	JobID     int64     `json:"job_id"`
	RequestID string    `json:"request_id,omitempty"`
	Title     string    `json:"title"`
	Reason    string    `json:"reason"`
	Kind      string    `json:"kind,omitempty"`
	FailedAt  time.Time `json:"failed_at"`
}

// StatusEvent is reported by the engine while it converts a job.
type StatusEvent struct {
	JobID  int64        `json:"job_id"`
	Status queue.Status `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// ErrInvalidStatus reports an engine status the queue does not accept.
var ErrInvalidStatus = errors.New("invalid engine status")

// Engine receives prepared and failed jobs.
type Engine interface {
	Submit(ctx context.Context, event ReadyEvent) error
	ReportFailure(ctx context.Context, event FailedEvent) error
}

// Publisher is the bus surface BusEngine needs.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// BusEngine publishes hand-off events to a message bus.
type BusEngine struct {
	pub           Publisher
	readySubject  string
	failedSubject string
}

// NewBusEngine publishes ready events on readySubject and failures on
// failedSubject.
func NewBusEngine(pub Publisher, readySubject, failedSubject string) *BusEngine {
	return &BusEngine{pub: pub, readySubject: readySubject, failedSubject: failedSubject}
}

func (b *BusEngine) Submit(_ context.Context, event ReadyEvent) error {
	if err := b.pub.PublishJSON(b.readySubject, event); err != nil {
		return fmt.Errorf("publish ready event for job %d: %w", event.JobID, err)
	}
	return nil
}

func (b *BusEngine) ReportFailure(_ context.Context, event FailedEvent) error {
	if err := b.pub.PublishJSON(b.failedSubject, event); err != nil {
		return fmt.Errorf("publish failed event for job %d: %w", event.JobID, err)
	}
	return nil
}

// LogEngine records hand-offs in the log when no bus is configured.
type LogEngine struct {
	logger *slog.Logger
}

// NewLogEngine constructs a LogEngine.
func NewLogEngine(logger *slog.Logger) *LogEngine {
	return &LogEngine{logger: logging.NewComponentLogger(logger, "engine")}
}

func (l *LogEngine) Submit(_ context.Context, event ReadyEvent) error {
	l.logger.Info("job ready for conversion",
		logging.Int64(logging.FieldJobID, event.JobID),
		logging.String(logging.FieldCorrelationID, event.RequestID),
		logging.Int("inputs", len(event.Inputs)),
		logging.Int("outputs", len(event.Outputs)),
		logging.String(logging.FieldEventType, "engine_handoff"),
	)
	return nil
}

func (l *LogEngine) ReportFailure(_ context.Context, event FailedEvent) error {
	l.logger.Info("job preparation failed",
		logging.Int64(logging.FieldJobID, event.JobID),
		logging.String(logging.FieldCorrelationID, event.RequestID),
		logging.String("reason", event.Reason),
		logging.String(logging.FieldEventType, "engine_failure_report"),
	)
	return nil
}

// DecodeStatus parses a status report. Only statuses the engine owns are
// accepted.
func DecodeStatus(data []byte) (StatusEvent, error) {
	var event StatusEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return StatusEvent{}, fmt.Errorf("decode status event: %w", err)
	}
	if event.JobID <= 0 {
		return StatusEvent{}, fmt.Errorf("%w: missing job id", ErrInvalidStatus)
	}
	status, ok := queue.ParseStatus(string(event.Status))
	if !ok {
		return StatusEvent{}, fmt.Errorf("%w: %q", ErrInvalidStatus, event.Status)
	}
	switch status {
	case queue.StatusRunning, queue.StatusCompleted, queue.StatusFailed, queue.StatusCancelled:
	default:
		return StatusEvent{}, fmt.Errorf("%w: %s is not reported by the engine", ErrInvalidStatus, status)
	}
	event.Status = status
	return event, nil
}
