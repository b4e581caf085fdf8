package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidProject indicates an invalid project identifier.
	ErrInvalidProject = errors.New("invalid project")
	// ErrProjectNotFound indicates a project has no stored state.
	ErrProjectNotFound = errors.New("project not found")
	// ErrProjectBusy indicates a generation job is already running for the project.
	ErrProjectBusy = errors.New("project is busy")
	// ErrNoJob indicates no generation job is running for the project.
	ErrNoJob = errors.New("no running job")
	// ErrEmptyPrompt indicates the prompt was empty.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrGeneratorUnavailable indicates no generation backend is configured.
	ErrGeneratorUnavailable = errors.New("generator not configured")
	// ErrEmptyBody indicates the generation backend answered without a readable stream.
	ErrEmptyBody = errors.New("empty response body")
	// ErrInvalidRoute indicates an unknown route name.
	ErrInvalidRoute = errors.New("invalid route")
)
