package surveyforge

import (
	"pkt.systems/surveyforge/core"
	"pkt.systems/surveyforge/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnPhase(event schema.PhaseUpdateEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnPhase(event)
	}
}

func (f eventFanout) OnDocument(event schema.DocumentEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnDocument(event)
	}
}

func (f eventFanout) OnMessage(event schema.MessageEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnMessage(event)
	}
}

func (f eventFanout) OnProgress(event schema.ProgressEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnProgress(event)
	}
}

func (f eventFanout) OnJob(event schema.JobEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnJob(event)
	}
}

// combineSinks returns nil, the single sink, or a fanout over the non-nil sinks.
func combineSinks(sinks ...core.EventSink) core.EventSink {
	out := make([]core.EventSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return eventFanout{sinks: out}
	}
}
