package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge/internal/logx"
	"pkt.systems/surveyforge/internal/persist"
	"pkt.systems/surveyforge/schema"
)

// service implements the core service behavior.
type service struct {
	cfg      schema.ServiceConfig
	gen      Generator
	sink     EventSink
	store    persist.Store
	logger   pslog.Logger
	now      func() time.Time
	mu       sync.Mutex
	projects map[schema.ProjectID]*project
}

// job is one accepted generation request.
type job struct {
	projectID schema.ProjectID
	jobID     schema.JobID
	route     schema.Route
	request   schema.GenerationRequest
	ctx       context.Context
	cancel    context.CancelFunc
	log       pslog.Logger
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	store := deps.Store
	if store == nil && cfg.StateDir != "" {
		fileStore, err := persist.NewFileStoreWithLogger(cfg.StateDir, logger)
		if err != nil {
			return nil, err
		}
		store = fileStore
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		cfg:      cfg,
		gen:      deps.Generator,
		sink:     deps.EventSink,
		store:    store,
		logger:   logger,
		now:      now,
		projects: make(map[schema.ProjectID]*project),
	}, nil
}

func (s *service) StartGeneration(ctx context.Context, req schema.StartGenerationRequest) (schema.StartGenerationResponse, error) {
	j, err := s.prepareJob(ctx, req, true)
	if err != nil {
		return schema.StartGenerationResponse{}, err
	}
	go s.runJob(j)
	return schema.StartGenerationResponse{JobID: j.jobID, Route: j.route, Accepted: true}, nil
}

func (s *service) RunGeneration(ctx context.Context, req schema.StartGenerationRequest) (schema.RunGenerationResponse, error) {
	j, err := s.prepareJob(ctx, req, false)
	if err != nil {
		return schema.RunGenerationResponse{}, err
	}
	return schema.RunGenerationResponse{Outcome: s.runJob(j)}, nil
}

func (s *service) prepareJob(ctx context.Context, req schema.StartGenerationRequest, detached bool) (*job, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	if s.gen == nil {
		return nil, schema.ErrGeneratorUnavailable
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, schema.ErrEmptyPrompt
	}
	projectID, err := normalizeProjectID(req.ProjectID)
	if err != nil {
		return nil, err
	}
	forced, err := schema.NormalizeRoute(string(req.Route))
	if err != nil {
		return nil, err
	}
	log := logx.WithProject(ctx, projectID)

	s.mu.Lock()
	p := s.getOrCreateProjectLocked(ctx, projectID)
	if p.running() {
		s.mu.Unlock()
		log.Warn("service generation rejected", "err", schema.ErrProjectBusy, "running_job", p.JobID)
		return nil, schema.ErrProjectBusy
	}
	request := schema.GenerationRequest{
		ProjectID:           projectID,
		Prompt:              req.Prompt,
		CurrentDocument:     p.Document,
		PreviousPrompt:      p.PreviousPrompt,
		SelectedElementHTML: req.SelectedElementHTML,
		Auxiliary:           req.Auxiliary,
	}
	route := forced
	if route == "" {
		route = SelectRoute(request)
	}
	jobID := newJobID()
	log = logx.WithRoute(log.With("job", jobID), route)
	var (
		runCtx    context.Context
		runCancel context.CancelFunc
	)
	if detached {
		runCtx, runCancel = detachRunContext(ctx)
	} else {
		runCtx, runCancel = context.WithCancel(ctx)
	}
	runCtx = logx.ContextWithProjectJobLogger(runCtx, log, projectID, jobID)

	now := s.now()
	prompt := schema.Message{Role: schema.RoleUser, Kind: schema.MessagePrompt, Text: req.Prompt, At: now}
	p.Status = schema.JobStatusRunning
	p.JobID = jobID
	p.Route = route
	p.Phase = schema.PhaseIdle
	p.Progress = nil
	p.cancel = runCancel
	p.done = make(chan struct{})
	p.messages.Append(prompt)
	p.UpdatedAt = now
	s.mu.Unlock()

	s.emitMessage(projectID, jobID, prompt)
	s.emitJob(schema.JobEvent{ProjectID: projectID, JobID: jobID, Route: route, Status: schema.JobStatusRunning})
	if !s.cfg.DisableAuditLogging {
		log.Debug("audit request",
			"endpoint", askEndpointForRoute(route),
			"prompt_len", len(request.Prompt),
			"document_len", len(request.CurrentDocument),
			"previous_prompt_len", len(request.PreviousPrompt),
			"has_selection", request.SelectedElementHTML != "",
			"images", len(request.Auxiliary.Images),
		)
	}
	log.Info("service generation accepted", "detached", detached)
	return &job{
		projectID: projectID,
		jobID:     jobID,
		route:     route,
		request:   request,
		ctx:       runCtx,
		cancel:    runCancel,
		log:       log,
	}, nil
}

func (s *service) runJob(j *job) schema.Outcome {
	defer j.cancel()
	session := NewSession(SessionConfig{
		JobID:            j.jobID,
		Request:          j.request,
		Route:            j.route,
		MinPublishGrowth: s.cfg.MinPublishGrowth,
		Generator:        s.gen,
		Sink:             &jobSink{svc: s, projectID: j.projectID, jobID: j.jobID, log: j.log},
		Now:              s.now,
	})
	out := session.Run(j.ctx)
	s.finishJob(j, out)
	return out
}

func (s *service) finishJob(j *job, out schema.Outcome) {
	var worked *schema.Message
	s.mu.Lock()
	p := s.projects[j.projectID]
	if p == nil || p.JobID != j.jobID || !p.running() {
		s.mu.Unlock()
		return
	}
	p.Status = schema.JobStatusIdle
	p.cancel = nil
	done := p.done
	p.done = nil
	if out.Status == schema.OutcomeCompleted {
		msg := schema.Message{Role: schema.RoleSystem, Kind: schema.MessageInfo, Text: formatWorkedForLine(out.Elapsed), At: s.now()}
		p.messages.Append(msg)
		worked = &msg
	}
	p.UpdatedAt = s.now()
	s.mu.Unlock()

	if worked != nil {
		s.emitMessage(j.projectID, j.jobID, *worked)
	}
	s.emitJob(schema.JobEvent{ProjectID: j.projectID, JobID: j.jobID, Route: j.route, Status: schema.JobStatusIdle, Outcome: out.Status})
	s.persistProject(j.log, j.projectID)
	if done != nil {
		close(done)
	}
	j.log.Info("service generation finished", "outcome", out.Status, "duration_ms", out.Elapsed.Milliseconds())
}

func (s *service) CancelGeneration(ctx context.Context, req schema.CancelGenerationRequest) (schema.CancelGenerationResponse, error) {
	if ctx == nil {
		return schema.CancelGenerationResponse{}, errors.New("missing context")
	}
	projectID, err := normalizeProjectID(req.ProjectID)
	if err != nil {
		return schema.CancelGenerationResponse{}, err
	}
	log := logx.WithProject(ctx, projectID)

	s.mu.Lock()
	p := s.projects[projectID]
	if p == nil || !p.running() {
		s.mu.Unlock()
		log.Info("service cancel ignored", "reason", "no running job")
		return schema.CancelGenerationResponse{}, schema.ErrNoJob
	}
	cancel := p.cancel
	done := p.done
	jobID := p.JobID
	s.mu.Unlock()

	log.Info("service cancel requested", "job", jobID)
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return schema.CancelGenerationResponse{JobID: jobID}, ctx.Err()
		}
	}
	return schema.CancelGenerationResponse{JobID: jobID}, nil
}

func (s *service) GetProject(ctx context.Context, req schema.GetProjectRequest) (schema.GetProjectResponse, error) {
	projectID, err := normalizeProjectID(req.ProjectID)
	if err != nil {
		return schema.GetProjectResponse{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.lookupProjectLocked(ctx, projectID)
	if p == nil {
		return schema.GetProjectResponse{}, schema.ErrProjectNotFound
	}
	return schema.GetProjectResponse{Project: p.Snapshot()}, nil
}

func (s *service) ListProjects(ctx context.Context, req schema.ListProjectsRequest) (schema.ListProjectsResponse, error) {
	_ = req
	log := logx.Ctx(ctx)
	var stored []schema.ProjectID
	if s.store != nil {
		ids, err := s.store.List(ctx)
		if err != nil {
			log.Warn("service projects list failed", "err", err)
			return schema.ListProjectsResponse{}, err
		}
		stored = ids
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[schema.ProjectID]bool, len(stored)+len(s.projects))
	ids := make([]schema.ProjectID, 0, len(stored)+len(s.projects))
	for _, id := range stored {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range s.projects {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	projects := make([]schema.ProjectSummary, 0, len(ids))
	for _, id := range ids {
		if p := s.lookupProjectLocked(ctx, id); p != nil {
			projects = append(projects, p.Summary())
		}
	}
	log.Trace("service projects listed", "count", len(projects))
	return schema.ListProjectsResponse{Projects: projects}, nil
}

func (s *service) SetDocument(ctx context.Context, req schema.SetDocumentRequest) (schema.SetDocumentResponse, error) {
	projectID, err := normalizeProjectID(req.ProjectID)
	if err != nil {
		return schema.SetDocumentResponse{}, err
	}
	log := logx.WithProject(ctx, projectID)

	s.mu.Lock()
	p := s.getOrCreateProjectLocked(ctx, projectID)
	if p.running() {
		s.mu.Unlock()
		log.Warn("service document update rejected", "err", schema.ErrProjectBusy)
		return schema.SetDocumentResponse{}, schema.ErrProjectBusy
	}
	p.Document = req.Document
	if strings.TrimSpace(req.PreviousPrompt) != "" {
		p.PreviousPrompt = req.PreviousPrompt
	}
	p.UpdatedAt = s.now()
	snapshot := p.Snapshot()
	s.mu.Unlock()

	s.emitDocument(schema.DocumentEvent{
		ProjectID: projectID,
		Document:  req.Document,
		Filename:  schema.DocumentFilename,
		Final:     true,
	})
	s.persistProject(log, projectID)
	log.Info("service document replaced", "document_len", len(req.Document))
	return schema.SetDocumentResponse{Project: snapshot}, nil
}

func (s *service) GetHistory(ctx context.Context, req schema.GetHistoryRequest) (schema.GetHistoryResponse, error) {
	projectID, err := normalizeProjectID(req.ProjectID)
	if err != nil {
		return schema.GetHistoryResponse{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.lookupProjectLocked(ctx, projectID)
	if p == nil {
		return schema.GetHistoryResponse{}, schema.ErrProjectNotFound
	}
	return schema.GetHistoryResponse{Entries: p.history.Entries()}, nil
}

// jobSink applies session side effects to project state. Effects from a job
// that no longer owns the project are dropped.
type jobSink struct {
	svc       *service
	projectID schema.ProjectID
	jobID     schema.JobID
	log       pslog.Logger
}

func (j *jobSink) withProject(fn func(p *project)) bool {
	s := j.svc
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projects[j.projectID]
	if p == nil || p.JobID != j.jobID || !p.running() {
		return false
	}
	fn(p)
	p.UpdatedAt = s.now()
	return true
}

func (j *jobSink) Phase(event schema.PhaseEvent) {
	ok := j.withProject(func(p *project) {
		if event.Kind == schema.PhaseBegin || event.Phase == schema.PhaseError {
			p.Phase = event.Phase
		}
	})
	if ok {
		j.svc.emitPhase(schema.PhaseUpdateEvent{ProjectID: j.projectID, JobID: j.jobID, Event: event})
	}
}

func (j *jobSink) Document(document string, final, fallback bool) {
	ok := j.withProject(func(p *project) {
		if final {
			p.Document = document
		}
	})
	if !ok {
		return
	}
	j.svc.emitDocument(schema.DocumentEvent{
		ProjectID: j.projectID,
		JobID:     j.jobID,
		Document:  document,
		Filename:  schema.DocumentFilename,
		Final:     final,
		Fallback:  fallback,
	})
}

func (j *jobSink) Message(message schema.Message) {
	if j.withProject(func(p *project) { p.messages.Append(message) }) {
		j.svc.emitMessage(j.projectID, j.jobID, message)
	}
}

func (j *jobSink) Progress(steps []schema.ProgressStep) {
	if j.withProject(func(p *project) { p.Progress = steps }) {
		j.svc.emitProgress(schema.ProgressEvent{ProjectID: j.projectID, JobID: j.jobID, Steps: append([]schema.ProgressStep(nil), steps...)})
	}
}

func (j *jobSink) Commit(prompt, document string) {
	ok := j.withProject(func(p *project) {
		p.Document = document
		p.PreviousPrompt = prompt
		p.history.Append(prompt)
	})
	if ok {
		j.svc.persistProject(j.log, j.projectID)
		j.log.Debug("service document committed", "document_len", len(document))
	}
}

func formatWorkedForLine(duration time.Duration) string {
	return "Worked for " + formatWorkedDuration(duration)
}

func formatWorkedDuration(duration time.Duration) string {
	if duration < time.Second {
		if duration < 0 {
			duration = 0
		}
		return fmt.Sprintf("%dms", duration.Milliseconds())
	}
	if duration < time.Minute {
		seconds := int(duration.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		return fmt.Sprintf("%ds", seconds)
	}
	if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes < 1 {
			minutes = 1
		}
		return fmt.Sprintf("%dm", minutes)
	}
	hours := int(duration.Hours())
	if hours < 1 {
		hours = 1
	}
	return fmt.Sprintf("%dh", hours)
}

func (s *service) emitPhase(event schema.PhaseUpdateEvent) {
	if s.sink == nil {
		return
	}
	event.Event.Suggestions = append([]string(nil), event.Event.Suggestions...)
	s.sink.OnPhase(event)
}

func (s *service) emitDocument(event schema.DocumentEvent) {
	if s.sink == nil {
		return
	}
	s.sink.OnDocument(event)
}

func (s *service) emitMessage(projectID schema.ProjectID, jobID schema.JobID, message schema.Message) {
	if s.sink == nil {
		return
	}
	s.sink.OnMessage(schema.MessageEvent{ProjectID: projectID, JobID: jobID, Message: message})
}

func (s *service) emitProgress(event schema.ProgressEvent) {
	if s.sink == nil {
		return
	}
	s.sink.OnProgress(event)
}

func (s *service) emitJob(event schema.JobEvent) {
	if s.sink == nil {
		return
	}
	s.sink.OnJob(event)
}

func (s *service) getOrCreateProjectLocked(ctx context.Context, projectID schema.ProjectID) *project {
	if p := s.lookupProjectLocked(ctx, projectID); p != nil {
		return p
	}
	p := s.newProject(projectID)
	s.projects[projectID] = p
	return p
}

// lookupProjectLocked returns the in-memory project, loading it from the
// store on first access. It returns nil for unknown projects.
func (s *service) lookupProjectLocked(ctx context.Context, projectID schema.ProjectID) *project {
	if p := s.projects[projectID]; p != nil {
		return p
	}
	if s.store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log := s.logger.With("project", projectID)
	snapshot, ok, err := s.store.Load(ctx, projectID)
	if err != nil {
		log.Warn("service state load failed", "err", err)
		return nil
	}
	if !ok {
		log.Debug("service state missing")
		return nil
	}
	p := s.newProject(projectID)
	p.Document = snapshot.Document
	p.PreviousPrompt = snapshot.PreviousPrompt
	p.history = newHistoryFromPersisted(snapshot.History, s.cfg.HistoryMax)
	p.messages = newMessageLogFromPersisted(snapshot.Messages, s.cfg.MessageMax)
	p.UpdatedAt = snapshot.UpdatedAt
	s.projects[projectID] = p
	log.Debug("service state loaded", "document_len", len(p.Document), "history", len(snapshot.History))
	return p
}

func (s *service) newProject(projectID schema.ProjectID) *project {
	return &project{
		ID:       projectID,
		Status:   schema.JobStatusIdle,
		Phase:    schema.PhaseIdle,
		history:  newHistory(s.cfg.HistoryMax),
		messages: newMessageLog(s.cfg.MessageMax),
	}
}

func (s *service) persistProject(log pslog.Logger, projectID schema.ProjectID) {
	if s.store == nil {
		return
	}
	snapshot, ok := s.snapshotProject(projectID)
	if !ok {
		if log != nil {
			log.Debug("service persist skipped", "reason", "missing state")
		}
		return
	}
	if err := s.store.Save(context.Background(), projectID, snapshot); err != nil {
		if log != nil {
			log.Warn("service persist failed", "err", err)
		}
		return
	}
	if log != nil {
		log.Trace("service state persisted", "document_len", len(snapshot.Document))
	}
}

func (s *service) snapshotProject(projectID schema.ProjectID) (persist.ProjectSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projects[projectID]
	if p == nil {
		return persist.ProjectSnapshot{}, false
	}
	return persist.ProjectSnapshot{
		ID:             p.ID,
		Document:       p.Document,
		PreviousPrompt: p.PreviousPrompt,
		History:        p.history.Entries(),
		Messages:       p.messages.Snapshot(0),
		UpdatedAt:      p.UpdatedAt,
	}, true
}

// detachRunContext returns a cancelable context that outlives ctx but keeps
// its logger and project markers.
func detachRunContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.Background()
	if ctx != nil {
		if logger := pslog.Ctx(ctx); logger != nil {
			base = logx.CopyContextFields(pslog.ContextWithLogger(base, logger), ctx)
		}
	}
	return context.WithCancel(base)
}

func normalizeProjectID(projectID schema.ProjectID) (schema.ProjectID, error) {
	if err := schema.ValidateProjectID(projectID); err != nil {
		return "", schema.ErrInvalidProject
	}
	return projectID, nil
}

func askEndpointForRoute(route schema.Route) string {
	if route == schema.RouteUpdate {
		return "PUT /api/ask"
	}
	return "POST /api/ask"
}
