package core

import "pkt.systems/surveyforge/schema"

// EventSink receives project events from the core service.
type EventSink interface {
	OnPhase(event schema.PhaseUpdateEvent)
	OnDocument(event schema.DocumentEvent)
	OnMessage(event schema.MessageEvent)
	OnProgress(event schema.ProgressEvent)
	OnJob(event schema.JobEvent)
}
