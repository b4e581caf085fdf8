package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"pkt.systems/surveyforge/schema"
)

type recordingEvents struct {
	mu        sync.Mutex
	phases    []schema.PhaseUpdateEvent
	documents []schema.DocumentEvent
	messages  []schema.MessageEvent
	progress  []schema.ProgressEvent
	jobs      []schema.JobEvent
}

func (r *recordingEvents) OnPhase(event schema.PhaseUpdateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, event)
}

func (r *recordingEvents) OnDocument(event schema.DocumentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = append(r.documents, event)
}

func (r *recordingEvents) OnMessage(event schema.MessageEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, event)
}

func (r *recordingEvents) OnProgress(event schema.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, event)
}

func (r *recordingEvents) OnJob(event schema.JobEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, event)
}

func (r *recordingEvents) jobEvents() []schema.JobEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.JobEvent(nil), r.jobs...)
}

func waitForProjectIdle(t *testing.T, svc Service, projectID schema.ProjectID) schema.ProjectSnapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := svc.GetProject(context.Background(), schema.GetProjectRequest{ProjectID: projectID})
		if err == nil && resp.Project.Status == schema.JobStatusIdle {
			return resp.Project
		}
		time.Sleep(10 * time.Millisecond)
	}
	resp, _ := svc.GetProject(context.Background(), schema.GetProjectRequest{ProjectID: projectID})
	t.Fatalf("timed out waiting for project idle: %+v", resp.Project)
	return schema.ProjectSnapshot{}
}

func blockingGenerator(fragments chan string, calls chan Call, contexts chan context.Context) Generator {
	return GeneratorFunc(func(ctx context.Context, call Call) (FragmentStream, error) {
		if calls != nil {
			calls <- call
		}
		if contexts != nil {
			contexts <- ctx
		}
		return chanStream{ch: fragments}, nil
	})
}

func TestStartGenerationPublishesDocument(t *testing.T) {
	events := &recordingEvents{}
	svc, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, ServiceDeps{
		Generator: streamOf(chunked(scenarioStream, 11)...),
		EventSink: events,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	resp, err := svc.StartGeneration(context.Background(), schema.StartGenerationRequest{ProjectID: "nps", Prompt: "make a survey"})
	if err != nil {
		t.Fatalf("start generation: %v", err)
	}
	if !resp.Accepted || resp.JobID == "" || resp.Route != schema.RouteCreate {
		t.Fatalf("unexpected start response %+v", resp)
	}
	project := waitForProjectIdle(t, svc, "nps")
	if project.Document != "<!DOCTYPE html><html><body>Hi</body></html>" {
		t.Fatalf("unexpected document %q", project.Document)
	}
	if project.PreviousPrompt != "make a survey" || project.Phase != schema.PhaseSummary {
		t.Fatalf("unexpected project state %+v", project)
	}
	if len(project.Messages) == 0 || project.Messages[0].Kind != schema.MessagePrompt {
		t.Fatalf("expected prompt message first, got %+v", project.Messages)
	}
	last := project.Messages[len(project.Messages)-1]
	if !strings.HasPrefix(last.Text, "Worked for ") {
		t.Fatalf("expected worked-for message last, got %+v", last)
	}
	jobs := events.jobEvents()
	want := []schema.JobEvent{
		{ProjectID: "nps", JobID: resp.JobID, Route: schema.RouteCreate, Status: schema.JobStatusRunning},
		{ProjectID: "nps", JobID: resp.JobID, Route: schema.RouteCreate, Status: schema.JobStatusIdle, Outcome: schema.OutcomeCompleted},
	}
	if diff := cmp.Diff(want, jobs); diff != "" {
		t.Fatalf("job events mismatch (-want +got):\n%s", diff)
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	final := events.documents[len(events.documents)-1]
	if !final.Final || final.Filename != schema.DocumentFilename || final.JobID != resp.JobID {
		t.Fatalf("unexpected final document event %+v", final)
	}
}

func TestStartGenerationDetachesRunContext(t *testing.T) {
	fragments := make(chan string)
	contexts := make(chan context.Context, 1)
	svc, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, ServiceDeps{
		Generator: blockingGenerator(fragments, nil, contexts),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := svc.StartGeneration(ctx, schema.StartGenerationRequest{ProjectID: "nps", Prompt: "hello"}); err != nil {
		t.Fatalf("start generation: %v", err)
	}
	var runCtx context.Context
	select {
	case runCtx = <-contexts:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for generator")
	}
	cancel()
	if runCtx.Err() != nil {
		t.Fatalf("expected detached run context, got err=%v", runCtx.Err())
	}
	close(fragments)
	waitForProjectIdle(t, svc, "nps")
}

func TestStartGenerationRejectsBusyProject(t *testing.T) {
	fragments := make(chan string)
	calls := make(chan Call, 1)
	svc, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, ServiceDeps{
		Generator: blockingGenerator(fragments, calls, nil),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.StartGeneration(context.Background(), schema.StartGenerationRequest{ProjectID: "nps", Prompt: "first"}); err != nil {
		t.Fatalf("start generation: %v", err)
	}
	<-calls
	_, err = svc.StartGeneration(context.Background(), schema.StartGenerationRequest{ProjectID: "nps", Prompt: "second"})
	if !errors.Is(err, schema.ErrProjectBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if _, err := svc.SetDocument(context.Background(), schema.SetDocumentRequest{ProjectID: "nps", Document: "x"}); !errors.Is(err, schema.ErrProjectBusy) {
		t.Fatalf("expected busy error for set document, got %v", err)
	}
	close(fragments)
	waitForProjectIdle(t, svc, "nps")
}

func TestCancelGenerationStopsJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	fragments := make(chan string)
	calls := make(chan Call, 1)
	events := &recordingEvents{}
	svc, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, ServiceDeps{
		Generator: blockingGenerator(fragments, calls, nil),
		EventSink: events,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	start, err := svc.StartGeneration(context.Background(), schema.StartGenerationRequest{ProjectID: "nps", Prompt: "make a survey"})
	if err != nil {
		t.Fatalf("start generation: %v", err)
	}
	<-calls
	fragments <- "<<<PHASE:HTML>>>\n<html><body><p>partial"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := svc.CancelGeneration(ctx, schema.CancelGenerationRequest{ProjectID: "nps"})
	if err != nil {
		t.Fatalf("cancel generation: %v", err)
	}
	if resp.JobID != start.JobID {
		t.Fatalf("expected job %q, got %q", start.JobID, resp.JobID)
	}
	project, err := svc.GetProject(context.Background(), schema.GetProjectRequest{ProjectID: "nps"})
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if project.Project.Status != schema.JobStatusIdle || project.Project.Document != "" {
		t.Fatalf("canceled job left state behind: %+v", project.Project)
	}
	for _, msg := range project.Project.Messages {
		if msg.Kind == schema.MessageError {
			t.Fatalf("cancellation surfaced an error: %+v", msg)
		}
	}
	jobs := events.jobEvents()
	if last := jobs[len(jobs)-1]; last.Outcome != schema.OutcomeCanceled {
		t.Fatalf("expected canceled outcome, got %+v", last)
	}
	if _, err := svc.CancelGeneration(ctx, schema.CancelGenerationRequest{ProjectID: "nps"}); !errors.Is(err, schema.ErrNoJob) {
		t.Fatalf("expected no job error, got %v", err)
	}
}

func TestRunGenerationFollowUpUsesStoredDocument(t *testing.T) {
	current := "<html><body><form><input name=\"score\"></form></body></html>"
	var got Call
	gen := GeneratorFunc(func(_ context.Context, call Call) (FragmentStream, error) {
		got = call
		return &sliceStream{fragments: []string{"<html><body><form><textarea></textarea></form></body></html>"}}, nil
	})
	svc, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, ServiceDeps{Generator: gen})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.SetDocument(context.Background(), schema.SetDocumentRequest{
		ProjectID:      "nps",
		Document:       current,
		PreviousPrompt: "make a survey",
	}); err != nil {
		t.Fatalf("set document: %v", err)
	}
	resp, err := svc.RunGeneration(context.Background(), schema.StartGenerationRequest{ProjectID: "nps", Prompt: "add a comment box"})
	if err != nil {
		t.Fatalf("run generation: %v", err)
	}
	if resp.Outcome.Status != schema.OutcomeCompleted || resp.Outcome.Route != schema.RouteUpdate {
		t.Fatalf("unexpected outcome %+v", resp.Outcome)
	}
	if got.Body.HTML != current || got.Body.PreviousPrompt != "make a survey" || got.Body.ProjectID != "nps" {
		t.Fatalf("follow-up request missing context: %+v", got.Body)
	}
	history, err := svc.GetHistory(context.Background(), schema.GetHistoryRequest{ProjectID: "nps"})
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if diff := cmp.Diff([]string{"add a comment box"}, history.Entries); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestRunGenerationForcedRoute(t *testing.T) {
	var got Call
	gen := GeneratorFunc(func(_ context.Context, call Call) (FragmentStream, error) {
		got = call
		return &sliceStream{}, nil
	})
	svc, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, ServiceDeps{Generator: gen})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	resp, err := svc.RunGeneration(context.Background(), schema.StartGenerationRequest{ProjectID: "nps", Prompt: "hi", Route: "fresh"})
	if err != nil {
		t.Fatalf("run generation: %v", err)
	}
	if got.Route != schema.RouteCreate || resp.Outcome.Status != schema.OutcomeEmpty {
		t.Fatalf("unexpected call %+v outcome %+v", got, resp.Outcome)
	}
}

func TestRunGenerationValidation(t *testing.T) {
	svc, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, ServiceDeps{Generator: streamOf("x")})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	noGen, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, ServiceDeps{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cases := []struct {
		name string
		svc  Service
		req  schema.StartGenerationRequest
		want error
	}{
		{"empty prompt", svc, schema.StartGenerationRequest{ProjectID: "nps", Prompt: "  "}, schema.ErrEmptyPrompt},
		{"invalid project", svc, schema.StartGenerationRequest{ProjectID: "Bad Id", Prompt: "hi"}, schema.ErrInvalidProject},
		{"invalid route", svc, schema.StartGenerationRequest{ProjectID: "nps", Prompt: "hi", Route: "sideways"}, schema.ErrInvalidRoute},
		{"no generator", noGen, schema.StartGenerationRequest{ProjectID: "nps", Prompt: "hi"}, schema.ErrGeneratorUnavailable},
	}
	for _, tc := range cases {
		_, err := tc.svc.RunGeneration(context.Background(), tc.req)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestGetProjectNotFound(t *testing.T) {
	svc, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, ServiceDeps{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.GetProject(context.Background(), schema.GetProjectRequest{ProjectID: "ghost"}); !errors.Is(err, schema.ErrProjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetHistory(context.Background(), schema.GetHistoryRequest{ProjectID: "ghost"}); !errors.Is(err, schema.ErrProjectNotFound) {
		t.Fatalf("expected not found for history, got %v", err)
	}
}

func TestFormatWorkedDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{-time.Second, "0ms"},
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "2s"},
		{59 * time.Second, "59s"},
		{90 * time.Second, "1m"},
		{2*time.Hour + 5*time.Minute, "2h"},
	}
	for _, tc := range cases {
		if got := formatWorkedDuration(tc.in); got != tc.want {
			t.Fatalf("formatWorkedDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
