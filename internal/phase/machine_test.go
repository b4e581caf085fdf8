package phase

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"pkt.systems/surveyforge/internal/decoder"
	"pkt.systems/surveyforge/schema"
)

type step struct {
	Kind  schema.PhaseEventKind
	Phase schema.Phase
}

func boundaries(events []schema.PhaseEvent) []step {
	var out []step
	for _, ev := range events {
		if ev.Kind == schema.PhaseUpdate {
			continue
		}
		out = append(out, step{ev.Kind, ev.Phase})
	}
	return out
}

func runStream(m *Machine, stream string) []schema.PhaseEvent {
	cursor := decoder.NewCursor()
	events := m.Submit()
	feed := func(tokens []schema.Token) {
		for _, tok := range tokens {
			switch tok.Kind {
			case schema.TokenDirective:
				events = append(events, m.Apply(tok.Directive)...)
			case schema.TokenDocumentOpen:
				events = append(events, m.DocumentOpened()...)
			case schema.TokenDocumentDelta:
				events = append(events, m.DocumentUpdated(tok.Document)...)
			case schema.TokenDocumentClose:
				events = append(events, m.DocumentClosed(tok.Document)...)
			}
		}
	}
	for i := 0; i < len(stream); i += 9 {
		feed(cursor.Step(stream[i:min(i+9, len(stream))]))
	}
	feed(cursor.Finish())
	return append(events, m.Finish()...)
}

var fullSequence = []step{
	{schema.PhaseBegin, schema.PhaseThinking},
	{schema.PhaseComplete, schema.PhaseThinking},
	{schema.PhaseBegin, schema.PhasePlanning},
	{schema.PhaseComplete, schema.PhasePlanning},
	{schema.PhaseBegin, schema.PhaseBuilding},
	{schema.PhaseComplete, schema.PhaseBuilding},
	{schema.PhaseBegin, schema.PhaseSummary},
	{schema.PhaseComplete, schema.PhaseSummary},
}

func TestMachineScenarioSequence(t *testing.T) {
	stream := "<<<PHASE:REASON_PLAN>>>\nTHINK: parsing request\n<<<PHASE:STATUS>>> building\n<<<PHASE:HTML>>>\n<!DOCTYPE html><html><body>Hi</body></html>\n<<<PHASE:SUMMARY>>>\nDONE: built it\nNEXT: add colors, add logo\n"
	events := runStream(New(), stream)
	if diff := cmp.Diff(fullSequence, boundaries(events)); diff != "" {
		t.Fatalf("phase sequence mismatch (-want +got):\n%s", diff)
	}
	last := events[len(events)-1]
	if diff := cmp.Diff([]string{"add colors", "add logo"}, last.Suggestions); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}
	var planningSeed, buildingFile string
	var finalDoc string
	for _, ev := range events {
		if ev.Kind == schema.PhaseBegin && ev.Phase == schema.PhasePlanning {
			planningSeed = ev.Content
		}
		if ev.Kind == schema.PhaseBegin && ev.Phase == schema.PhaseBuilding {
			buildingFile = ev.Filename
		}
		if ev.Kind == schema.PhaseUpdate && ev.Phase == schema.PhaseBuilding {
			finalDoc = ev.Document
		}
	}
	if planningSeed != "building" {
		t.Fatalf("expected planning seed from marker, got %q", planningSeed)
	}
	if buildingFile != schema.DocumentFilename {
		t.Fatalf("expected filename label, got %q", buildingFile)
	}
	if finalDoc != "<!DOCTYPE html><html><body>Hi</body></html>" {
		t.Fatalf("unexpected final building snapshot %q", finalDoc)
	}
}

func TestMachineFillsSkippedPhases(t *testing.T) {
	events := runStream(New(), "<html><body>plain</body></html>\nDONE: ok\n")
	if diff := cmp.Diff(fullSequence, boundaries(events)); diff != "" {
		t.Fatalf("phase sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestMachineNeverBeginsTwice(t *testing.T) {
	m := New()
	events := m.Submit()
	events = append(events, m.Apply(schema.Directive{Kind: schema.DirectivePhaseMarker, Phase: schema.MarkerStatus})...)
	events = append(events, m.Apply(schema.Directive{Kind: schema.DirectivePhaseMarker, Phase: schema.MarkerStatus, Text: "again"})...)
	events = append(events, m.Apply(schema.Directive{Kind: schema.DirectivePhaseMarker, Phase: schema.MarkerHTML})...)
	events = append(events, m.DocumentOpened()...)
	events = append(events, m.Apply(schema.Directive{Kind: schema.DirectivePhaseMarker, Phase: schema.MarkerStatus})...)
	open := map[schema.Phase]bool{}
	for _, ev := range events {
		switch ev.Kind {
		case schema.PhaseBegin:
			if open[ev.Phase] {
				t.Fatalf("phase %s begun twice", ev.Phase)
			}
			open[ev.Phase] = true
		case schema.PhaseComplete:
			if !open[ev.Phase] {
				t.Fatalf("phase %s completed without begin", ev.Phase)
			}
			delete(open, ev.Phase)
		}
	}
	if len(open) != 1 || !open[schema.PhaseBuilding] {
		t.Fatalf("expected only building open, got %v", open)
	}
}

func TestMachineNarrationAccumulates(t *testing.T) {
	m := New()
	m.Submit()
	m.Apply(schema.Directive{Kind: schema.DirectiveThink, Text: "one"})
	events := m.Apply(schema.Directive{Kind: schema.DirectiveThink, Text: "two"})
	if len(events) != 1 || events[0].Content != "one\ntwo" {
		t.Fatalf("expected accumulated narration, got %+v", events)
	}
	m.Apply(schema.Directive{Kind: schema.DirectivePhaseMarker, Phase: schema.MarkerStatus})
	events = m.Apply(schema.Directive{Kind: schema.DirectivePlan, Text: "three"})
	if len(events) != 1 || events[0].Phase != schema.PhasePlanning || events[0].Content != "three" {
		t.Fatalf("expected narration reset on begin, got %+v", events)
	}
}

func TestMachineErrorSkipsComplete(t *testing.T) {
	m := New()
	m.Submit()
	m.Apply(schema.Directive{Kind: schema.DirectivePhaseMarker, Phase: schema.MarkerStatus})
	events := m.Apply(schema.Directive{Kind: schema.DirectivePhaseMarker, Phase: schema.MarkerError, Text: "quota exceeded"})
	want := []schema.PhaseEvent{{Kind: schema.PhaseUpdate, Phase: schema.PhaseError, Content: "quota exceeded"}}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Fatalf("error events mismatch (-want +got):\n%s", diff)
	}
	if m.Phase() != schema.PhaseError || !m.Terminal() {
		t.Fatalf("expected terminal error phase, got %s", m.Phase())
	}
	if got := m.DocumentOpened(); got != nil {
		t.Fatalf("expected no transitions after error, got %+v", got)
	}
	if got := m.Finish(); got != nil {
		t.Fatalf("expected finish to emit nothing after error, got %+v", got)
	}
}

func TestMachineFinishClosesOpenPhase(t *testing.T) {
	m := New()
	m.Submit()
	events := m.Finish()
	if len(events) != 1 || events[0].Kind != schema.PhaseComplete || events[0].Phase != schema.PhaseThinking {
		t.Fatalf("expected thinking completed, got %+v", events)
	}
	if got := m.Finish(); got != nil {
		t.Fatalf("expected second finish to be empty, got %+v", got)
	}
}

func TestMachineThinkingElapsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewWithClock(func() time.Time { return now })
	m.Submit()
	now = now.Add(1500 * time.Millisecond)
	events := m.Apply(schema.Directive{Kind: schema.DirectivePhaseMarker, Phase: schema.MarkerStatus})
	if len(events) != 2 || events[0].Kind != schema.PhaseComplete {
		t.Fatalf("unexpected events %+v", events)
	}
	if events[0].Elapsed != 1500*time.Millisecond {
		t.Fatalf("elapsed = %s, want 1.5s", events[0].Elapsed)
	}
	if events[1].Content != SeedPlanning {
		t.Fatalf("expected default planning seed, got %q", events[1].Content)
	}
}
