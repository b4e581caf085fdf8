package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge/internal/decoder"
	"pkt.systems/surveyforge/internal/logx"
	"pkt.systems/surveyforge/internal/phase"
	"pkt.systems/surveyforge/schema"
)

// User-facing texts produced by a session.
const (
	noContentText = "No content was generated. Please try rephrasing your request."
	fallbackText  = "The final page could not be extracted; keeping the last preview."
	upstreamText  = "The generation service reported an error."
)

// SessionSink receives the side effects of one job in stream order. Document
// strings and progress slices handed to a sink are never mutated afterwards.
type SessionSink interface {
	Phase(event schema.PhaseEvent)
	Document(document string, final, fallback bool)
	Message(message schema.Message)
	Progress(steps []schema.ProgressStep)
	Commit(prompt, document string)
}

// SessionConfig describes one generation job.
type SessionConfig struct {
	JobID   schema.JobID
	Request schema.GenerationRequest
	// Route forces a route; empty selects one with SelectRoute.
	Route            schema.Route
	MinPublishGrowth int
	Generator        Generator
	Sink             SessionSink
	Now              func() time.Time
}

// Session runs one generation job end to end. It owns the decode cursor and
// the phase machine; nothing else mutates them.
type Session struct {
	cfg     SessionConfig
	route   schema.Route
	now     func() time.Time
	sink    SessionSink
	machine *phase.Machine
	cursor  *decoder.Cursor

	steps       []schema.ProgressStep
	published   string
	suggestions []string
	upstreamErr string
}

// NewSession prepares a session. The route is resolved immediately.
func NewSession(cfg SessionConfig) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	route := cfg.Route
	if route == "" {
		route = SelectRoute(cfg.Request)
	}
	if cfg.MinPublishGrowth <= 0 {
		cfg.MinPublishGrowth = schema.DefaultMinPublishGrowth
	}
	sink := cfg.Sink
	if sink == nil {
		sink = nopSink{}
	}
	return &Session{
		cfg:     cfg,
		route:   route,
		now:     now,
		sink:    sink,
		machine: phase.NewWithClock(now),
		cursor:  decoder.NewCursor(),
	}
}

// Route returns the resolved route.
func (s *Session) Route() schema.Route {
	return s.route
}

// Run streams the job and returns its outcome. Once ctx is canceled no further
// side effects reach the sink and the outcome is canceled.
func (s *Session) Run(ctx context.Context) schema.Outcome {
	started := s.now()
	out := schema.Outcome{JobID: s.cfg.JobID, Route: s.route}
	log := logx.WithRoute(pslog.Ctx(ctx), s.route)
	log.Info("session start", "prompt_len", len(s.cfg.Request.Prompt), "document_len", len(s.cfg.Request.CurrentDocument))

	s.emitPhases(ctx, s.machine.Submit())
	s.setStep(ctx, schema.StepRequest, "Sending request", schema.ProgressPending)

	if s.cfg.Generator == nil {
		return s.fail(ctx, log, out, started, schema.ErrGeneratorUnavailable)
	}
	stream, err := s.cfg.Generator.Generate(ctx, Call{
		ProjectID: s.cfg.Request.ProjectID,
		JobID:     s.cfg.JobID,
		Route:     s.route,
		Body:      s.cfg.Request.ToWire(s.route),
	})
	if err != nil {
		if ctx.Err() != nil {
			return s.canceled(log, out, started)
		}
		return s.fail(ctx, log, out, started, ClassifyTransportError("generate", err))
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Debug("session stream close failed", "err", err)
		}
	}()
	s.setStep(ctx, schema.StepRequest, "Request sent", schema.ProgressDone)
	s.setStep(ctx, schema.StepPlan, "Planning", schema.ProgressPending)

	var (
		received  int
		fragments int
		streamErr error
	)
	for {
		fragment, err := stream.Next(ctx)
		if ctx.Err() != nil {
			return s.canceled(log, out, started)
		}
		if fragment != "" {
			received += len(fragment)
			fragments++
			s.apply(ctx, log, s.cursor.Step(fragment))
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if received == 0 {
			return s.fail(ctx, log, out, started, ClassifyTransportError("stream", err))
		}
		streamErr = streamError(err)
		log.Warn("session stream failed", "err", err, "bytes", received)
		s.message(ctx, schema.RoleSystem, schema.MessageError, ErrorMessageText(streamErr))
		break
	}
	s.apply(ctx, log, s.cursor.Finish())
	log.Debug("session stream drained", "bytes", received, "fragments", fragments, "document_len", len(s.cursor.Document()))
	return s.finalize(ctx, log, out, started, streamErr)
}

func (s *Session) apply(ctx context.Context, log pslog.Logger, tokens []schema.Token) {
	for _, tok := range tokens {
		if ctx.Err() != nil {
			return
		}
		switch tok.Kind {
		case schema.TokenDirective:
			s.applyDirective(ctx, log, tok.Directive)
		case schema.TokenDocumentOpen:
			log.Debug("session document opened")
			s.emitPhases(ctx, s.machine.DocumentOpened())
			s.setStep(ctx, schema.StepPlan, "Planning", schema.ProgressDone)
			s.setStep(ctx, schema.StepBuild, "Building the page", schema.ProgressPending)
		case schema.TokenDocumentDelta:
			s.publishPreview(ctx, log, tok.Document, tok.Presentable, false)
		case schema.TokenDocumentClose:
			log.Debug("session document closed", "document_len", len(tok.Document), "presentable", tok.Presentable)
			s.publishPreview(ctx, log, tok.Document, tok.Presentable, true)
			snapshot := tok.Document
			if !tok.Presentable && s.published != "" {
				snapshot = s.published
			}
			s.emitPhases(ctx, s.machine.DocumentClosed(snapshot))
			s.setStep(ctx, schema.StepBuild, "Building the page", schema.ProgressDone)
			s.setStep(ctx, schema.StepFinalize, "Finalizing", schema.ProgressPending)
		}
	}
}

func (s *Session) applyDirective(ctx context.Context, log pslog.Logger, d schema.Directive) {
	s.emitPhases(ctx, s.machine.Apply(d))
	switch d.Kind {
	case schema.DirectivePhaseMarker:
		switch d.Phase {
		case schema.MarkerStatus:
			if d.Text != "" {
				s.message(ctx, schema.RoleAssistant, schema.MessageStatus, d.Text)
			}
		case schema.MarkerError:
			s.upstreamError(ctx, log, d.Text)
		}
	case schema.DirectiveStatus:
		s.message(ctx, schema.RoleAssistant, schema.MessageStatus, d.Text)
	case schema.DirectiveDone:
		s.message(ctx, schema.RoleAssistant, schema.MessageSummary, d.Text)
	case schema.DirectiveNext:
		s.suggestions = append([]string(nil), d.Suggestions...)
	case schema.DirectiveError:
		s.upstreamError(ctx, log, d.Text)
	case schema.DirectiveOpaque:
		log.Trace("session narration", "preview", logx.Preview(d.Text, 120))
	}
}

func (s *Session) upstreamError(ctx context.Context, log pslog.Logger, text string) {
	if strings.TrimSpace(text) == "" {
		text = upstreamText
	}
	s.upstreamErr = text
	log.Warn("session upstream error", "message", logx.Preview(text, 200))
	s.message(ctx, schema.RoleSystem, schema.MessageError, text)
}

// publishPreview publishes a live snapshot once the document is presentable
// and has grown by at least MinPublishGrowth bytes. Close always publishes.
func (s *Session) publishPreview(ctx context.Context, log pslog.Logger, document string, presentable, closing bool) {
	if ctx.Err() != nil || !presentable || document == "" || document == s.published {
		return
	}
	if !closing && len(document)-len(s.published) < s.cfg.MinPublishGrowth {
		return
	}
	s.published = document
	log.Trace("session preview published", "document_len", len(document))
	s.sink.Document(document, false, false)
	if !closing {
		s.emitPhases(ctx, s.machine.DocumentUpdated(document))
	}
}

func (s *Session) finalize(ctx context.Context, log pslog.Logger, out schema.Outcome, started time.Time, streamErr error) schema.Outcome {
	if ctx.Err() != nil {
		return s.canceled(log, out, started)
	}
	document := s.cursor.Document()
	usable := strings.TrimSpace(document) != "" && len(document) >= len(s.published)
	switch {
	case usable:
		s.publishFinal(ctx, document, false)
		s.emitPhases(ctx, s.machine.Finish())
		s.setStep(ctx, schema.StepFinalize, "Finalizing", schema.ProgressDone)
		out.Status = schema.OutcomeCompleted
		out.Document = document
	case s.published != "":
		log.Warn("session final extraction failed", "document_len", len(document), "preview_len", len(s.published))
		s.publishFinal(ctx, s.published, true)
		s.message(ctx, schema.RoleSystem, schema.MessageInfo, fallbackText)
		s.emitPhases(ctx, s.machine.Finish())
		s.setStep(ctx, schema.StepFinalize, "Finalizing", schema.ProgressDone)
		out.Status = schema.OutcomeCompleted
		out.Document = s.published
		out.Fallback = true
	case streamErr != nil || s.upstreamErr != "":
		err := streamErr
		if err == nil {
			err = errors.New(s.upstreamErr)
		}
		s.emitPhases(ctx, s.machine.Fail(err.Error()))
		s.setStep(ctx, s.pendingStep(), "Failed", schema.ProgressError)
		out.Status = schema.OutcomeFailed
		out.Err = err
	case !s.cursor.Opened() && IsRefusal(s.cursor.Raw()):
		s.message(ctx, schema.RoleAssistant, schema.MessageRefusal, strings.TrimSpace(s.cursor.Raw()))
		s.emitPhases(ctx, s.machine.Finish())
		s.setStep(ctx, s.pendingStep(), "Declined", schema.ProgressDone)
		out.Status = schema.OutcomeRefused
	default:
		s.message(ctx, schema.RoleSystem, schema.MessageInfo, noContentText)
		s.emitPhases(ctx, s.machine.Finish())
		s.setStep(ctx, schema.StepBuild, "No content generated", schema.ProgressError)
		out.Status = schema.OutcomeEmpty
	}
	out.Suggestions = append([]string(nil), s.suggestions...)
	out.Elapsed = s.now().Sub(started)
	log.Info("session finished", "status", out.Status, "document_len", len(out.Document), "fallback", out.Fallback, "duration_ms", out.Elapsed.Milliseconds())
	return out
}

func (s *Session) publishFinal(ctx context.Context, document string, fallback bool) {
	if ctx.Err() != nil {
		return
	}
	s.sink.Document(document, true, fallback)
	s.sink.Commit(s.cfg.Request.Prompt, document)
}

func (s *Session) fail(ctx context.Context, log pslog.Logger, out schema.Outcome, started time.Time, err error) schema.Outcome {
	log.Warn("session failed", "err", err)
	text := ErrorMessageText(err)
	s.emitPhases(ctx, s.machine.Fail(text))
	s.setStep(ctx, schema.StepRequest, "Request failed", schema.ProgressError)
	s.message(ctx, schema.RoleSystem, schema.MessageError, text)
	out.Status = schema.OutcomeFailed
	out.Err = err
	out.Elapsed = s.now().Sub(started)
	return out
}

func (s *Session) canceled(log pslog.Logger, out schema.Outcome, started time.Time) schema.Outcome {
	out.Status = schema.OutcomeCanceled
	out.Elapsed = s.now().Sub(started)
	log.Info("session canceled", "duration_ms", out.Elapsed.Milliseconds(), "document_len", len(s.cursor.Document()))
	return out
}

func (s *Session) emitPhases(ctx context.Context, events []schema.PhaseEvent) {
	for _, ev := range events {
		if ctx.Err() != nil {
			return
		}
		s.sink.Phase(ev)
	}
}

func (s *Session) setStep(ctx context.Context, id, label string, status schema.ProgressStatus) {
	if ctx.Err() != nil {
		return
	}
	s.steps = schema.UpsertProgress(s.steps, schema.ProgressStep{ID: id, Label: label, Status: status})
	s.sink.Progress(append([]schema.ProgressStep(nil), s.steps...))
}

func (s *Session) message(ctx context.Context, role schema.MessageRole, kind schema.MessageKind, text string) {
	if ctx.Err() != nil || strings.TrimSpace(text) == "" {
		return
	}
	s.sink.Message(schema.Message{Role: role, Kind: kind, Text: text, At: s.now()})
}

// pendingStep returns the last step still pending, or the build step.
func (s *Session) pendingStep() string {
	for i := len(s.steps) - 1; i >= 0; i-- {
		if s.steps[i].Status == schema.ProgressPending {
			return s.steps[i].ID
		}
	}
	return schema.StepBuild
}

func streamError(err error) error {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return err
	}
	return NewTransportError(TransportErrorStream, "stream", err)
}

type nopSink struct{}

func (nopSink) Phase(schema.PhaseEvent)        {}
func (nopSink) Document(string, bool, bool)    {}
func (nopSink) Message(schema.Message)         {}
func (nopSink) Progress([]schema.ProgressStep) {}
func (nopSink) Commit(string, string)          {}
