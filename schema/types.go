package schema

// ProjectID identifies a survey project (the visible document target).
type ProjectID string

// JobID identifies a single generation job.
type JobID string

// Route selects how a generation job is sent to the backend.
type Route string

const (
	// RouteCreate generates a fresh document.
	RouteCreate Route = "create"
	// RouteUpdate modifies the current document.
	RouteUpdate Route = "update"
	// RouteRedesign generates a fresh document from a redesign source or reference images.
	RouteRedesign Route = "redesign"
)

// IsFollowUp reports whether the route modifies an existing document.
func (r Route) IsFollowUp() bool {
	return r == RouteUpdate
}

// DocumentFilename is the logical label of the produced artifact.
const DocumentFilename = "index.html"

// Auxiliary carries pre-processed context that accompanies a prompt.
type Auxiliary struct {
	RedesignMarkdown string
	Images           []string
	ChatSummary      string
	UseLongContext   bool
}

// GenerationRequest is the immutable input of one generation job.
type GenerationRequest struct {
	ProjectID           ProjectID
	Prompt              string
	CurrentDocument     string
	PreviousPrompt      string
	SelectedElementHTML string
	Auxiliary           Auxiliary
}

// HasRedesignSource reports whether the request carries a redesign source or reference images.
func (r GenerationRequest) HasRedesignSource() bool {
	return r.Auxiliary.RedesignMarkdown != "" || len(r.Auxiliary.Images) > 0
}

// WireRequest is the JSON body sent to the generation service.
type WireRequest struct {
	Prompt              string   `json:"prompt"`
	HTML                string   `json:"html"`
	PreviousPrompt      string   `json:"previousPrompt,omitempty"`
	SelectedElementHTML string   `json:"selectedElementHtml,omitempty"`
	RedesignMarkdown    string   `json:"redesignMarkdown,omitempty"`
	ProjectID           string   `json:"projectId,omitempty"`
	UseLongContext      bool     `json:"useLongContext,omitempty"`
	ChatSummary         string   `json:"chatSummary,omitempty"`
	Images              []string `json:"images,omitempty"`
}

// ToWire maps the request onto the wire body for the given route.
func (r GenerationRequest) ToWire(route Route) WireRequest {
	wire := WireRequest{
		Prompt:              r.Prompt,
		SelectedElementHTML: r.SelectedElementHTML,
		RedesignMarkdown:    r.Auxiliary.RedesignMarkdown,
		ProjectID:           string(r.ProjectID),
		UseLongContext:      r.Auxiliary.UseLongContext,
		ChatSummary:         r.Auxiliary.ChatSummary,
		Images:              append([]string(nil), r.Auxiliary.Images...),
	}
	if route.IsFollowUp() {
		wire.HTML = r.CurrentDocument
		wire.PreviousPrompt = r.PreviousPrompt
	}
	return wire
}
