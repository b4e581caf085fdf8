package schema

// StreamEventType identifies the payload kind of a project stream event.
type StreamEventType string

const (
	// StreamEventSnapshot carries the full project snapshot sent on connect.
	StreamEventSnapshot StreamEventType = "snapshot"
	// StreamEventPhase carries a PhaseUpdateEvent.
	StreamEventPhase StreamEventType = "phase"
	// StreamEventDocument carries a DocumentEvent.
	StreamEventDocument StreamEventType = "document"
	// StreamEventMessage carries a MessageEvent.
	StreamEventMessage StreamEventType = "message"
	// StreamEventProgress carries a ProgressEvent.
	StreamEventProgress StreamEventType = "progress"
	// StreamEventJob carries a JobEvent.
	StreamEventJob StreamEventType = "job"
)

// StreamEvent is the envelope pushed to project stream subscribers.
type StreamEvent struct {
	Seq       uint64            `json:"seq"`
	Type      StreamEventType   `json:"type"`
	ProjectID ProjectID         `json:"project_id"`
	Phase     *PhaseUpdateEvent `json:"phase,omitempty"`
	Document  *DocumentEvent    `json:"document,omitempty"`
	Message   *MessageEvent     `json:"message,omitempty"`
	Progress  *ProgressEvent    `json:"progress,omitempty"`
	Job       *JobEvent         `json:"job,omitempty"`
	Snapshot  *ProjectSnapshot  `json:"snapshot,omitempty"`
}
