package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Output is one desired output of a job command.
type Output struct {
	BaseName string `json:"baseName"`
	Ext      string `json:"ext"`
}

// Command is the transport form of a job command.
type Command struct {
	Inputs       []string `json:"inputs"`
	Args         []string `json:"args,omitempty"`
	Outputs      []Output `json:"outputs,omitempty"`
	OutputFolder string   `json:"outputFolder,omitempty"`
}

// Job describes a queued conversion job in a transport-friendly format.
type Job struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	Status         string   `json:"status"`
	StatusDetail   string   `json:"statusDetail,omitempty"`
	Command        Command  `json:"command"`
	PreparedInputs []string `json:"preparedInputs,omitempty"`
	CreatedAt      string   `json:"createdAt,omitempty"`
	UpdatedAt      string   `json:"updatedAt,omitempty"`
}

// WorkflowStatus summarizes the preparation worker.
type WorkflowStatus struct {
	Running           bool           `json:"running"`
	CurrentJobID      int64          `json:"currentJobId,omitempty"`
	CurrentForSeconds float64        `json:"currentForSeconds,omitempty"`
	QueueStats        map[string]int `json:"queueStats"`
	LastError         string         `json:"lastError,omitempty"`
	LastJob           *Job           `json:"lastJob,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	QueueDBPath  string         `json:"queueDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	BusConnected bool           `json:"busConnected"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// EnqueueRequest is the body of POST /api/jobs.
type EnqueueRequest struct {
	Title   string  `json:"title"`
	Command Command `json:"command"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// CancelResponse reports what a cancel request did.
type CancelResponse struct {
	ID      int64  `json:"id"`
	Outcome string `json:"outcome"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
