package core

import (
	"context"

	"pkt.systems/surveyforge/schema"
)

// Generator issues generation requests and exposes the streamed response.
type Generator interface {
	Generate(ctx context.Context, call Call) (FragmentStream, error)
}

// Call describes one generation request.
type Call struct {
	ProjectID schema.ProjectID
	JobID     schema.JobID
	Route     schema.Route
	Body      schema.WireRequest
}

// FragmentStream yields raw response fragments. Next returns io.EOF once the
// stream is exhausted; fragment boundaries carry no meaning.
type FragmentStream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, call Call) (FragmentStream, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, call Call) (FragmentStream, error) {
	return f(ctx, call)
}
