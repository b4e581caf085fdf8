package persist

import (
	"context"
	"time"

	"pkt.systems/surveyforge/schema"
)

// ProjectSnapshot captures a project's durable state.
type ProjectSnapshot struct {
	ID             schema.ProjectID `json:"id"`
	Document       string           `json:"document"`
	PreviousPrompt string           `json:"previous_prompt,omitempty"`
	History        []string         `json:"history,omitempty"`
	Messages       []schema.Message `json:"messages,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Store persists project snapshots.
type Store interface {
	Load(ctx context.Context, projectID schema.ProjectID) (ProjectSnapshot, bool, error)
	Save(ctx context.Context, projectID schema.ProjectID, snapshot ProjectSnapshot) error
	List(ctx context.Context) ([]schema.ProjectID, error)
	Close() error
}

// Driver names accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)
