package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge/schema"
)

type contextKey int

const (
	projectKey contextKey = iota
	jobKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithProject annotates the logger with the project id if present.
func WithProject(ctx context.Context, projectID schema.ProjectID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if projectID != "" {
		if current, ok := ctx.Value(projectKey).(schema.ProjectID); ok && current == projectID {
			return log
		}
		log = log.With("project", projectID)
	}
	return log
}

// WithProjectJob annotates the logger with project and job identifiers.
func WithProjectJob(ctx context.Context, projectID schema.ProjectID, jobID schema.JobID) pslog.Logger {
	log := WithProject(ctx, projectID)
	if jobID != "" {
		if current, ok := ctx.Value(jobKey).(schema.JobID); ok && current == jobID {
			return log
		}
		log = log.With("job", jobID)
	}
	return log
}

// WithRoute annotates the logger with the generation route when set.
func WithRoute(log pslog.Logger, route schema.Route) pslog.Logger {
	if route != "" {
		log = log.With("route", route)
	}
	return log
}

// ContextWithProject stores the project marker on the context for log de-duplication.
func ContextWithProject(ctx context.Context, projectID schema.ProjectID) context.Context {
	if ctx == nil || projectID == "" {
		return ctx
	}
	return context.WithValue(ctx, projectKey, projectID)
}

// ContextWithJob stores the job marker on the context for log de-duplication.
func ContextWithJob(ctx context.Context, jobID schema.JobID) context.Context {
	if ctx == nil || jobID == "" {
		return ctx
	}
	return context.WithValue(ctx, jobKey, jobID)
}

// ContextWithProjectJobLogger attaches the logger and project/job markers to the context.
func ContextWithProjectJobLogger(ctx context.Context, log pslog.Logger, projectID schema.ProjectID, jobID schema.JobID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithJob(ContextWithProject(ctx, projectID), jobID)
}

// CopyContextFields copies project/job markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if project, ok := src.Value(projectKey).(schema.ProjectID); ok && project != "" {
		dst = ContextWithProject(dst, project)
	}
	if job, ok := src.Value(jobKey).(schema.JobID); ok && job != "" {
		dst = ContextWithJob(dst, job)
	}
	return dst
}

// Preview trims value to at most max bytes for log fields.
func Preview(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[:max]
}
