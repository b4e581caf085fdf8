package core

import (
	"context"
	"time"

	"pkt.systems/surveyforge/schema"
)

// project tracks the state of a single survey project.
type project struct {
	ID             schema.ProjectID
	Document       string
	PreviousPrompt string
	Status         schema.JobStatus
	JobID          schema.JobID
	Route          schema.Route
	Phase          schema.Phase
	Progress       []schema.ProgressStep
	UpdatedAt      time.Time
	history        *promptHistory
	messages       *messageLog
	cancel         context.CancelFunc
	done           chan struct{}
}

// Snapshot returns a transport-friendly view of the project.
func (p *project) Snapshot() schema.ProjectSnapshot {
	return schema.ProjectSnapshot{
		ID:             p.ID,
		Document:       p.Document,
		PreviousPrompt: p.PreviousPrompt,
		Status:         p.Status,
		JobID:          p.JobID,
		Route:          p.Route,
		Phase:          p.Phase,
		Progress:       append([]schema.ProgressStep(nil), p.Progress...),
		Messages:       p.messages.Snapshot(0),
		UpdatedAt:      p.UpdatedAt,
	}
}

// Summary returns the listing view of the project.
func (p *project) Summary() schema.ProjectSummary {
	return schema.ProjectSummary{
		ID:        p.ID,
		Status:    p.Status,
		HasDoc:    p.Document != "",
		UpdatedAt: p.UpdatedAt,
	}
}

func (p *project) running() bool {
	return p.Status == schema.JobStatusRunning
}
