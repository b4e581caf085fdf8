package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge/core"
	"pkt.systems/surveyforge/internal/logx"
	"pkt.systems/surveyforge/schema"
)

const maxBodyBytes = 16 << 20

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	service  core.Service
	hub      *Hub
	basePath string
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, service core.Service, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub(cfg.HubHistory)
	}
	return &Server{
		cfg:      cfg,
		service:  service,
		hub:      hub,
		basePath: normalizeBasePath(cfg.BasePath),
	}
}

// Hub returns the event hub feeding project streams.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("GET /api/projects/{project}", s.withProject(s.handleGetProject))
	mux.HandleFunc("PUT /api/projects/{project}/document", s.withProject(s.handleSetDocument))
	mux.HandleFunc("GET /api/projects/{project}/document", s.withProject(s.handleGetDocument))
	mux.HandleFunc("POST /api/projects/{project}/generate", s.withProject(s.handleGenerate))
	mux.HandleFunc("POST /api/projects/{project}/cancel", s.withProject(s.handleCancel))
	mux.HandleFunc("GET /api/projects/{project}/history", s.withProject(s.handleHistory))
	mux.HandleFunc("GET /api/projects/{project}/stream", s.withProject(s.handleStream))

	handler := withRequestLogging(mux)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

func (s *Server) withProject(next func(http.ResponseWriter, *http.Request, schema.ProjectID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := schema.ProjectID(r.PathValue("project"))
		if err := schema.ValidateProjectID(projectID); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		log := logx.WithProject(r.Context(), projectID)
		ctx := logx.ContextWithProject(pslog.ContextWithLogger(r.Context(), log), projectID)
		next(w, r.WithContext(ctx), projectID)
	}
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.ListProjects(r.Context(), schema.ListProjectsRequest{})
	if err != nil {
		logx.Ctx(r.Context()).Warn("http list projects failed", "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	projects := resp.Projects
	if projects == nil {
		projects = []schema.ProjectSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request, projectID schema.ProjectID) {
	resp, err := s.service.GetProject(r.Context(), schema.GetProjectRequest{ProjectID: projectID})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Project)
}

// handleGetDocument serves the current document as a page.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request, projectID schema.ProjectID) {
	resp, err := s.service.GetProject(r.Context(), schema.GetProjectRequest{ProjectID: projectID})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", schema.DocumentFilename))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, resp.Project.Document)
}

func (s *Server) handleSetDocument(w http.ResponseWriter, r *http.Request, projectID schema.ProjectID) {
	log := logx.Ctx(r.Context())
	var payload struct {
		Document       string `json:"document"`
		PreviousPrompt string `json:"previous_prompt"`
	}
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &payload); err != nil {
		log.Warn("http set document decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.SetDocument(r.Context(), schema.SetDocumentRequest{
		ProjectID:      projectID,
		Document:       payload.Document,
		PreviousPrompt: payload.PreviousPrompt,
	})
	if err != nil {
		log.Warn("http set document failed", "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Project)
	log.Info("http set document ok", "document_len", len(payload.Document))
}

type generatePayload struct {
	Prompt              string   `json:"prompt"`
	SelectedElementHTML string   `json:"selected_element_html"`
	Route               string   `json:"route"`
	RedesignMarkdown    string   `json:"redesign_markdown"`
	Images              []string `json:"images"`
	ChatSummary         string   `json:"chat_summary"`
	UseLongContext      bool     `json:"use_long_context"`
	// Wait runs the job synchronously and returns its outcome.
	Wait bool `json:"wait"`
}

type outcomePayload struct {
	JobID       schema.JobID         `json:"job_id"`
	Route       schema.Route         `json:"route"`
	Status      schema.OutcomeStatus `json:"status"`
	Document    string               `json:"document,omitempty"`
	Fallback    bool                 `json:"fallback,omitempty"`
	Suggestions []string             `json:"suggestions,omitempty"`
	ElapsedMS   int64                `json:"elapsed_ms"`
	Error       string               `json:"error,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, projectID schema.ProjectID) {
	log := logx.Ctx(r.Context())
	var payload generatePayload
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &payload); err != nil {
		log.Warn("http generate decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req := schema.StartGenerationRequest{
		ProjectID:           projectID,
		Prompt:              payload.Prompt,
		SelectedElementHTML: payload.SelectedElementHTML,
		Route:               schema.Route(payload.Route),
		Auxiliary: schema.Auxiliary{
			RedesignMarkdown: payload.RedesignMarkdown,
			Images:           payload.Images,
			ChatSummary:      payload.ChatSummary,
			UseLongContext:   payload.UseLongContext,
		},
	}
	log = log.With("prompt_len", len(payload.Prompt), "wait", payload.Wait)
	if payload.Wait {
		resp, err := s.service.RunGeneration(r.Context(), req)
		if err != nil {
			log.Warn("http generate failed", "err", err)
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, newOutcomePayload(resp.Outcome))
		log.Info("http generate finished", "job", resp.Outcome.JobID, "status", resp.Outcome.Status)
		return
	}
	resp, err := s.service.StartGeneration(r.Context(), req)
	if err != nil {
		log.Warn("http generate rejected", "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": resp.JobID, "route": resp.Route})
	log.Info("http generate accepted", "job", resp.JobID, "route", resp.Route)
}

func newOutcomePayload(out schema.Outcome) outcomePayload {
	payload := outcomePayload{
		JobID:       out.JobID,
		Route:       out.Route,
		Status:      out.Status,
		Document:    out.Document,
		Fallback:    out.Fallback,
		Suggestions: out.Suggestions,
		ElapsedMS:   out.Elapsed.Milliseconds(),
	}
	if out.Err != nil {
		payload.Error = core.ErrorMessageText(out.Err)
	}
	return payload
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, projectID schema.ProjectID) {
	resp, err := s.service.CancelGeneration(r.Context(), schema.CancelGenerationRequest{ProjectID: projectID})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": resp.JobID})
	logx.Ctx(r.Context()).Info("http cancel ok", "job", resp.JobID)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, projectID schema.ProjectID) {
	resp, err := s.service.GetHistory(r.Context(), schema.GetHistoryRequest{ProjectID: projectID})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	entries := resp.Entries
	if entries == nil {
		entries = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, projectID schema.ProjectID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context())

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	if lastID == 0 {
		lastID = parseUint(r.URL.Query().Get("last_event_id"))
	}

	ch, unsubscribe, seq, history := s.hub.Subscribe(projectID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshot := s.buildSnapshot(r.Context(), projectID)
	_ = writeSSEvent(w, schema.StreamEvent{
		Type:      schema.StreamEventSnapshot,
		ProjectID: projectID,
		Snapshot:  &snapshot,
	})

	replay := []schema.StreamEvent(nil)
	if lastID > 0 {
		replay = eventsAfter(history, lastID)
		for _, event := range replay {
			_ = writeSSEvent(w, event)
		}
	}
	flusher.Flush()

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "seq", seq, "replay", len(replay))
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Seq <= seq {
				continue
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) buildSnapshot(ctx context.Context, projectID schema.ProjectID) schema.ProjectSnapshot {
	resp, err := s.service.GetProject(ctx, schema.GetProjectRequest{ProjectID: projectID})
	if err != nil {
		return schema.ProjectSnapshot{ID: projectID, Status: schema.JobStatusIdle, Phase: schema.PhaseIdle}
	}
	return resp.Project
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, schema.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrProjectBusy), errors.Is(err, schema.ErrNoJob):
		return http.StatusConflict
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidProject),
		errors.Is(err, schema.ErrEmptyPrompt),
		errors.Is(err, schema.ErrInvalidRoute):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrGeneratorUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event schema.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
