package httpapi

import (
	"context"
	"sync"

	"pkt.systems/surveyforge/internal/logx"
	"pkt.systems/surveyforge/schema"
)

const subscriberDepth = 256

// Hub broadcasts events per project and keeps a bounded replay history.
type Hub struct {
	mu          sync.Mutex
	projects    map[schema.ProjectID]*projectHub
	historySize int
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		projects:    make(map[schema.ProjectID]*projectHub),
		historySize: historySize,
	}
}

// OnPhase implements core.EventSink.
func (h *Hub) OnPhase(event schema.PhaseUpdateEvent) {
	h.publish(event.ProjectID, schema.StreamEvent{Type: schema.StreamEventPhase, Phase: &event})
}

// OnDocument implements core.EventSink.
func (h *Hub) OnDocument(event schema.DocumentEvent) {
	h.publish(event.ProjectID, schema.StreamEvent{Type: schema.StreamEventDocument, Document: &event})
}

// OnMessage implements core.EventSink.
func (h *Hub) OnMessage(event schema.MessageEvent) {
	h.publish(event.ProjectID, schema.StreamEvent{Type: schema.StreamEventMessage, Message: &event})
}

// OnProgress implements core.EventSink.
func (h *Hub) OnProgress(event schema.ProgressEvent) {
	h.publish(event.ProjectID, schema.StreamEvent{Type: schema.StreamEventProgress, Progress: &event})
}

// OnJob implements core.EventSink.
func (h *Hub) OnJob(event schema.JobEvent) {
	log := logx.WithProjectJob(context.Background(), event.ProjectID, event.JobID)
	log.Debug("hub job event", "status", event.Status, "outcome", event.Outcome)
	h.publish(event.ProjectID, schema.StreamEvent{Type: schema.StreamEventJob, Job: &event})
}

// Subscribe registers a subscriber for a project and returns the current seq
// and retained history, taken under the same lock as the registration.
func (h *Hub) Subscribe(projectID schema.ProjectID) (<-chan schema.StreamEvent, func(), uint64, []schema.StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ph := h.getOrCreateProjectHubLocked(projectID)
	ch := make(chan schema.StreamEvent, subscriberDepth)
	ph.subs[ch] = struct{}{}
	history := append([]schema.StreamEvent(nil), ph.history...)
	seq := ph.seq
	log := logx.WithProject(context.Background(), projectID)
	log.Info("hub subscribe", "subs", len(ph.subs), "history", len(history))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(ph.subs, ch)
			close(ch)
			remaining := len(ph.subs)
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq, history
}

// Replay returns retained events after the provided seq.
func (h *Hub) Replay(projectID schema.ProjectID, after uint64) []schema.StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	ph := h.projects[projectID]
	if ph == nil {
		return nil
	}
	events := eventsAfter(ph.history, after)
	logx.WithProject(context.Background(), projectID).Debug("hub replay", "after", after, "count", len(events))
	return events
}

// Seq returns the last sequence number issued for a project.
func (h *Hub) Seq(projectID schema.ProjectID) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ph := h.projects[projectID]; ph != nil {
		return ph.seq
	}
	return 0
}

func (h *Hub) publish(projectID schema.ProjectID, event schema.StreamEvent) {
	h.mu.Lock()
	ph := h.getOrCreateProjectHubLocked(projectID)
	ph.seq++
	event.Seq = ph.seq
	event.ProjectID = projectID
	ph.history = append(ph.history, event)
	if len(ph.history) > h.historySize {
		ph.history = append([]schema.StreamEvent(nil), ph.history[len(ph.history)-h.historySize:]...)
	}
	dropped := 0
	for sub := range ph.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		logx.WithProject(context.Background(), projectID).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}

func (h *Hub) getOrCreateProjectHubLocked(projectID schema.ProjectID) *projectHub {
	ph := h.projects[projectID]
	if ph == nil {
		ph = &projectHub{
			subs: make(map[chan schema.StreamEvent]struct{}),
		}
		h.projects[projectID] = ph
	}
	return ph
}

func eventsAfter(history []schema.StreamEvent, after uint64) []schema.StreamEvent {
	events := make([]schema.StreamEvent, 0, len(history))
	for _, event := range history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	return events
}

type projectHub struct {
	seq     uint64
	history []schema.StreamEvent
	subs    map[chan schema.StreamEvent]struct{}
}
