package queue

import (
	"net/url"
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Status details written by the store itself.
const (
	RetryRequestedDetail = "Retry requested"
	ResetStuckDetail     = "Reset after interrupted preparation"
	CancelledDetail      = "Cancelled by user"
	InterruptedDetail    = "Requeued after daemon shutdown"
)

var allStatuses = []Status{
	StatusQueued,
	StatusPreparing,
	StatusReady,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further status writes are expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// OutputSpec is one desired output as produced by the command builder.
type OutputSpec struct {
	BaseName string `json:"base_name" validate:"required,excludesall=/\\"`
	Ext      string `json:"ext" validate:"required,excludesall=/\\. "`
}

// Command is the conversion recipe attached to a job. Args are passed to the
// conversion engine untouched.
type Command struct {
	Inputs       []string     `json:"inputs" validate:"required,min=1,dive,required"`
	Args         []string     `json:"args,omitempty"`
	Outputs      []OutputSpec `json:"outputs,omitempty" validate:"dive"`
	OutputFolder string       `json:"output_folder,omitempty"`
}

// Job represents a conversion job persisted in SQLite.
type Job struct {
	ID             int64
	Title          string
	Command        Command
	Status         Status
	StatusDetail   string
	PreparedInputs []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy so callers can treat snapshots as immutable.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Command.Inputs = append([]string(nil), j.Command.Inputs...)
	cp.Command.Args = append([]string(nil), j.Command.Args...)
	cp.Command.Outputs = append([]OutputSpec(nil), j.Command.Outputs...)
	cp.PreparedInputs = append([]string(nil), j.PreparedInputs...)
	return &cp
}

// InputScheme returns the lowercased scheme of the input at index. Bare paths
// are reported as "file".
func (j *Job) InputScheme(index int) string {
	if j == nil || index < 0 || index >= len(j.Command.Inputs) {
		return ""
	}
	return InputScheme(j.Command.Inputs[index])
}

// InputScheme returns the lowercased scheme of an input reference.
func InputScheme(input string) string {
	if strings.HasPrefix(input, "/") {
		return "file"
	}
	parsed, err := url.Parse(input)
	if err != nil || parsed.Scheme == "" {
		return "file"
	}
	return strings.ToLower(parsed.Scheme)
}

// HealthSummary describes aggregated queue counts per lifecycle group.
type HealthSummary struct {
	Total     int
	Queued    int
	Active    int
	Ready     int
	Failed    int
	Completed int
	Cancelled int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}
