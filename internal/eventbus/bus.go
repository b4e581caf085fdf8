package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventPhase carries a phase transition.
	EventPhase EventType = "phase"
	// EventDocument carries a document snapshot.
	EventDocument EventType = "document"
	// EventMessage carries a conversational message.
	EventMessage EventType = "message"
	// EventProgress carries the progress list.
	EventProgress EventType = "progress"
	// EventJob carries job lifecycle updates.
	EventJob EventType = "job"
)

// Event represents a UI-facing event emitted by the core service.
type Event struct {
	Type     EventType
	Phase    schema.PhaseUpdateEvent
	Document schema.DocumentEvent
	Message  schema.MessageEvent
	Progress schema.ProgressEvent
	Job      schema.JobEvent
}

// ProjectID returns the project the event belongs to.
func (e Event) ProjectID() schema.ProjectID {
	switch e.Type {
	case EventPhase:
		return e.Phase.ProjectID
	case EventDocument:
		return e.Document.ProjectID
	case EventMessage:
		return e.Message.ProjectID
	case EventProgress:
		return e.Progress.ProjectID
	case EventJob:
		return e.Job.ProjectID
	}
	return ""
}

// Bus fanouts events to per-project subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.ProjectID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.ProjectID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the project and returns a channel + cancel.
func (b *Bus) Subscribe(projectID schema.ProjectID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	projectSubs := b.subs[projectID]
	if projectSubs == nil {
		projectSubs = make(map[chan Event]struct{})
		b.subs[projectID] = projectSubs
	}
	projectSubs[ch] = struct{}{}
	count := len(projectSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("project", projectID).Debug("eventbus subscribe", "subs", count)
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[projectID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, projectID)
				}
			}
			close(ch)
			b.mu.Unlock()
			if b.log != nil {
				b.log.With("project", projectID).Debug("eventbus unsubscribe")
			}
		})
	}
}

// OnPhase publishes a phase event.
func (b *Bus) OnPhase(event schema.PhaseUpdateEvent) {
	b.publish(event.ProjectID, Event{Type: EventPhase, Phase: event})
}

// OnDocument publishes a document event.
func (b *Bus) OnDocument(event schema.DocumentEvent) {
	b.publish(event.ProjectID, Event{Type: EventDocument, Document: event})
}

// OnMessage publishes a message event.
func (b *Bus) OnMessage(event schema.MessageEvent) {
	b.publish(event.ProjectID, Event{Type: EventMessage, Message: event})
}

// OnProgress publishes a progress event.
func (b *Bus) OnProgress(event schema.ProgressEvent) {
	b.publish(event.ProjectID, Event{Type: EventProgress, Progress: event})
}

// OnJob publishes a job lifecycle event.
func (b *Bus) OnJob(event schema.JobEvent) {
	b.publish(event.ProjectID, Event{Type: EventJob, Job: event})
}

// publish holds the lock while sending so a concurrent cancel never closes a
// channel mid-send. Sends never block.
func (b *Bus) publish(projectID schema.ProjectID, event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	projectSubs := b.subs[projectID]
	if len(projectSubs) == 0 {
		b.mu.Unlock()
		return
	}
	dropped := 0
	for sub := range projectSubs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.With("project", projectID).Trace("eventbus dropped", "count", dropped, "type", event.Type)
	}
}
