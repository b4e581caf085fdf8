package schema

import "time"

// ProjectSnapshot is a read-only view of project state for transports.
type ProjectSnapshot struct {
	ID             ProjectID      `json:"id"`
	Document       string         `json:"document"`
	PreviousPrompt string         `json:"previous_prompt,omitempty"`
	Status         JobStatus      `json:"status"`
	JobID          JobID          `json:"job_id,omitempty"`
	Route          Route          `json:"route,omitempty"`
	Phase          Phase          `json:"phase"`
	Progress       []ProgressStep `json:"progress,omitempty"`
	Messages       []Message      `json:"messages,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ProjectSummary is the compact listing form of a project.
type ProjectSummary struct {
	ID        ProjectID `json:"id"`
	Status    JobStatus `json:"status"`
	HasDoc    bool      `json:"has_document"`
	UpdatedAt time.Time `json:"updated_at"`
}
