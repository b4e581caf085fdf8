package schema

// Generation.

// StartGenerationRequest describes a generation submission for a project.
type StartGenerationRequest struct {
	ProjectID           ProjectID
	Prompt              string
	SelectedElementHTML string
	Auxiliary           Auxiliary
	// Route forces a route; empty selects automatically.
	Route Route
}

// StartGenerationResponse reports job acceptance.
type StartGenerationResponse struct {
	JobID    JobID
	Route    Route
	Accepted bool
}

// RunGenerationResponse reports the outcome of a synchronous job.
type RunGenerationResponse struct {
	Outcome Outcome
}

// CancelGenerationRequest describes a request to cancel a running job.
type CancelGenerationRequest struct {
	ProjectID ProjectID
}

// CancelGenerationResponse reports the canceled job.
type CancelGenerationResponse struct {
	JobID JobID
}

// Project state.

// GetProjectRequest describes a project snapshot request.
type GetProjectRequest struct {
	ProjectID ProjectID
}

// GetProjectResponse returns the project snapshot.
type GetProjectResponse struct {
	Project ProjectSnapshot
}

// ListProjectsRequest describes a project listing request.
type ListProjectsRequest struct{}

// ListProjectsResponse returns known projects.
type ListProjectsResponse struct {
	Projects []ProjectSummary
}

// SetDocumentRequest replaces the current document of a project.
type SetDocumentRequest struct {
	ProjectID ProjectID
	Document  string
	// PreviousPrompt optionally seeds the follow-up prompt.
	PreviousPrompt string
}

// SetDocumentResponse returns the updated project snapshot.
type SetDocumentResponse struct {
	Project ProjectSnapshot
}

// GetHistoryRequest describes a prompt history request.
type GetHistoryRequest struct {
	ProjectID ProjectID
}

// GetHistoryResponse returns prompt history entries, oldest first.
type GetHistoryResponse struct {
	Entries []string
}
