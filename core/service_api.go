package core

import (
	"context"

	"pkt.systems/surveyforge/schema"
)

// Service is the transport-agnostic API for survey projects and their generation jobs.
type Service interface {
	StartGeneration(ctx context.Context, req schema.StartGenerationRequest) (schema.StartGenerationResponse, error)
	RunGeneration(ctx context.Context, req schema.StartGenerationRequest) (schema.RunGenerationResponse, error)
	CancelGeneration(ctx context.Context, req schema.CancelGenerationRequest) (schema.CancelGenerationResponse, error)
	GetProject(ctx context.Context, req schema.GetProjectRequest) (schema.GetProjectResponse, error)
	ListProjects(ctx context.Context, req schema.ListProjectsRequest) (schema.ListProjectsResponse, error)
	SetDocument(ctx context.Context, req schema.SetDocumentRequest) (schema.SetDocumentResponse, error)
	GetHistory(ctx context.Context, req schema.GetHistoryRequest) (schema.GetHistoryResponse, error)
}
