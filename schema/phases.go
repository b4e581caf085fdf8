package schema

import "time"

// Phase is one stage of the generation lifecycle.
type Phase string

const (
	// PhaseIdle is the state before a job is submitted.
	PhaseIdle Phase = "idle"
	// PhaseThinking is the request-understanding stage.
	PhaseThinking Phase = "thinking"
	// PhasePlanning is the planning stage.
	PhasePlanning Phase = "planning"
	// PhaseBuilding is the document-writing stage.
	PhaseBuilding Phase = "building"
	// PhaseSummary is the post-document stage.
	PhaseSummary Phase = "summary"
	// PhaseError is the terminal failure state.
	PhaseError Phase = "error"
)

// PhaseEventKind identifies a phase transition event.
type PhaseEventKind string

const (
	// PhaseBegin opens a phase.
	PhaseBegin PhaseEventKind = "begin"
	// PhaseUpdate reports progress within the open phase.
	PhaseUpdate PhaseEventKind = "update"
	// PhaseComplete closes the open phase.
	PhaseComplete PhaseEventKind = "complete"
)

// PhaseEvent is emitted to the UI boundary on phase transitions.
type PhaseEvent struct {
	Kind        PhaseEventKind `json:"kind"`
	Phase       Phase          `json:"phase"`
	Content     string         `json:"content,omitempty"`
	Document    string         `json:"document,omitempty"`
	Filename    string         `json:"filename,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Elapsed     time.Duration  `json:"elapsed,omitempty"`
}

// ProgressStatus is the state of a progress step.
type ProgressStatus string

const (
	// ProgressPending marks a step in flight.
	ProgressPending ProgressStatus = "pending"
	// ProgressDone marks a finished step.
	ProgressDone ProgressStatus = "done"
	// ProgressError marks a failed step.
	ProgressError ProgressStatus = "error"
)

// ProgressStep is one entry of the progress list, keyed by ID.
type ProgressStep struct {
	ID     string         `json:"id"`
	Label  string         `json:"label"`
	Status ProgressStatus `json:"status"`
}

// Progress step identifiers.
const (
	StepRequest  = "request"
	StepPlan     = "plan"
	StepBuild    = "build"
	StepFinalize = "finalize"
)

// UpsertProgress returns a copy of steps with step inserted or replaced in place.
func UpsertProgress(steps []ProgressStep, step ProgressStep) []ProgressStep {
	out := make([]ProgressStep, 0, len(steps)+1)
	replaced := false
	for _, existing := range steps {
		if existing.ID == step.ID {
			out = append(out, step)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, step)
	}
	return out
}

// MessageRole identifies who a chat message is attributed to.
type MessageRole string

const (
	// RoleUser marks prompts.
	RoleUser MessageRole = "user"
	// RoleAssistant marks generation output.
	RoleAssistant MessageRole = "assistant"
	// RoleSystem marks service notices.
	RoleSystem MessageRole = "system"
)

// MessageKind refines the purpose of a chat message.
type MessageKind string

const (
	// MessagePrompt is a submitted prompt.
	MessagePrompt MessageKind = "prompt"
	// MessageStatus is a STATUS: line.
	MessageStatus MessageKind = "status"
	// MessageNarration is opaque narration text.
	MessageNarration MessageKind = "narration"
	// MessageSummary is a DONE: line.
	MessageSummary MessageKind = "summary"
	// MessageRefusal is a verbatim refusal.
	MessageRefusal MessageKind = "refusal"
	// MessageError is a user-visible failure.
	MessageError MessageKind = "error"
	// MessageInfo is a service notice.
	MessageInfo MessageKind = "info"
)

// Message is a conversational entry shown to the user.
type Message struct {
	Role MessageRole `json:"role"`
	Kind MessageKind `json:"kind"`
	Text string      `json:"text"`
	At   time.Time   `json:"at"`
}
