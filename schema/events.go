package schema

import "time"

// JobStatus describes whether a project has a generation job in flight.
type JobStatus string

const (
	// JobStatusIdle indicates no job is running.
	JobStatusIdle JobStatus = "idle"
	// JobStatusRunning indicates a job is streaming.
	JobStatusRunning JobStatus = "running"
)

// OutcomeStatus is the terminal classification of one generation job.
type OutcomeStatus string

const (
	// OutcomeCompleted means a final document was published.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeRefused means the backend declined and its text was surfaced as a message.
	OutcomeRefused OutcomeStatus = "refused"
	// OutcomeEmpty means the stream produced neither a document nor a refusal.
	OutcomeEmpty OutcomeStatus = "empty"
	// OutcomeFailed means the transport failed before any document was produced.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeCanceled means the job was canceled and no further side effects were published.
	OutcomeCanceled OutcomeStatus = "canceled"
)

// Outcome reports how a generation job ended.
type Outcome struct {
	JobID       JobID         `json:"job_id"`
	Route       Route         `json:"route"`
	Status      OutcomeStatus `json:"status"`
	Document    string        `json:"document,omitempty"`
	Fallback    bool          `json:"fallback,omitempty"`
	Suggestions []string      `json:"suggestions,omitempty"`
	Elapsed     time.Duration `json:"elapsed,omitempty"`
	Err         error         `json:"-"`
}

// PhaseUpdateEvent carries a phase transition for a project.
type PhaseUpdateEvent struct {
	ProjectID ProjectID  `json:"project_id"`
	JobID     JobID      `json:"job_id"`
	Event     PhaseEvent `json:"event"`
}

// DocumentEvent carries a document snapshot for live preview or the final result.
type DocumentEvent struct {
	ProjectID ProjectID `json:"project_id"`
	JobID     JobID     `json:"job_id"`
	Document  string    `json:"document"`
	Filename  string    `json:"filename"`
	Final     bool      `json:"final"`
	Fallback  bool      `json:"fallback,omitempty"`
}

// MessageEvent carries a conversational message for a project.
type MessageEvent struct {
	ProjectID ProjectID `json:"project_id"`
	JobID     JobID     `json:"job_id,omitempty"`
	Message   Message   `json:"message"`
}

// ProgressEvent carries the full progress list after an upsert.
type ProgressEvent struct {
	ProjectID ProjectID      `json:"project_id"`
	JobID     JobID          `json:"job_id"`
	Steps     []ProgressStep `json:"steps"`
}

// JobEvent reports job start and end for a project.
type JobEvent struct {
	ProjectID ProjectID     `json:"project_id"`
	JobID     JobID         `json:"job_id"`
	Route     Route         `json:"route"`
	Status    JobStatus     `json:"status"`
	Outcome   OutcomeStatus `json:"outcome,omitempty"`
}
