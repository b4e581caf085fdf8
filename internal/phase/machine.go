// Package phase tracks the generation lifecycle and emits phase events.
package phase

import (
	"strings"
	"time"

	"pkt.systems/surveyforge/schema"
)

// Seed messages for phase begin events.
const (
	SeedThinking = "Understanding the request…"
	SeedPlanning = "Planning the survey…"
	SeedBuilding = "Writing the survey page…"
	SeedSummary  = "Generation completed successfully!"
)

var order = map[schema.Phase]int{
	schema.PhaseIdle:     0,
	schema.PhaseThinking: 1,
	schema.PhasePlanning: 2,
	schema.PhaseBuilding: 3,
	schema.PhaseSummary:  4,
}

var sequence = []schema.Phase{
	schema.PhaseThinking,
	schema.PhasePlanning,
	schema.PhaseBuilding,
	schema.PhaseSummary,
}

// Machine owns the phase of one job. At most one phase is open at a time and
// phases only move forward; skipped phases are begun and completed in order.
// A Machine is not safe for concurrent use.
type Machine struct {
	phase    schema.Phase
	open     bool
	terminal bool
	started  time.Time
	narr     []string
	now      func() time.Time
}

// New returns an idle machine.
func New() *Machine {
	return &Machine{phase: schema.PhaseIdle, now: time.Now}
}

// NewWithClock returns an idle machine using now for elapsed time.
func NewWithClock(now func() time.Time) *Machine {
	m := New()
	if now != nil {
		m.now = now
	}
	return m
}

// Phase returns the current phase.
func (m *Machine) Phase() schema.Phase { return m.phase }

// Terminal reports whether the machine accepts no further transitions.
func (m *Machine) Terminal() bool { return m.terminal }

// Submit starts the job in Thinking.
func (m *Machine) Submit() []schema.PhaseEvent {
	if m.terminal || m.phase != schema.PhaseIdle {
		return nil
	}
	m.started = m.now()
	return []schema.PhaseEvent{m.begin(schema.PhaseThinking, SeedThinking)}
}

// Apply feeds a classified directive.
func (m *Machine) Apply(d schema.Directive) []schema.PhaseEvent {
	if m.terminal {
		return nil
	}
	switch d.Kind {
	case schema.DirectivePhaseMarker:
		switch d.Phase {
		case schema.MarkerStatus:
			seed := d.Text
			if seed == "" {
				seed = SeedPlanning
			}
			return m.advance(schema.PhasePlanning, seed)
		case schema.MarkerHTML:
			return m.advance(schema.PhaseBuilding, SeedBuilding)
		case schema.MarkerSummary:
			return m.advance(schema.PhaseSummary, SeedSummary)
		case schema.MarkerError:
			return m.Fail(d.Text)
		}
	case schema.DirectiveThink, schema.DirectivePlan, schema.DirectiveStatus:
		if !m.open || (m.phase != schema.PhaseThinking && m.phase != schema.PhasePlanning) {
			return nil
		}
		if d.Text == "" {
			return nil
		}
		m.narr = append(m.narr, d.Text)
		return []schema.PhaseEvent{{Kind: schema.PhaseUpdate, Phase: m.phase, Content: strings.Join(m.narr, "\n")}}
	case schema.DirectiveDone:
		if order[m.phase] < order[schema.PhaseBuilding] {
			return nil
		}
		events := m.advance(schema.PhaseSummary, SeedSummary)
		return append(events, schema.PhaseEvent{Kind: schema.PhaseUpdate, Phase: schema.PhaseSummary, Content: d.Text})
	case schema.DirectiveNext:
		if order[m.phase] < order[schema.PhaseBuilding] {
			return nil
		}
		events := m.advance(schema.PhaseSummary, SeedSummary)
		complete := m.complete()
		complete.Suggestions = append([]string(nil), d.Suggestions...)
		m.terminal = true
		return append(events, complete)
	case schema.DirectiveError:
		return m.Fail(d.Text)
	}
	return nil
}

// DocumentOpened moves the job to Building.
func (m *Machine) DocumentOpened() []schema.PhaseEvent {
	if m.terminal {
		return nil
	}
	return m.advance(schema.PhaseBuilding, SeedBuilding)
}

// DocumentUpdated reports a document snapshot while Building.
func (m *Machine) DocumentUpdated(document string) []schema.PhaseEvent {
	if m.terminal || !m.open || m.phase != schema.PhaseBuilding {
		return nil
	}
	return []schema.PhaseEvent{{
		Kind:     schema.PhaseUpdate,
		Phase:    schema.PhaseBuilding,
		Document: document,
		Filename: schema.DocumentFilename,
	}}
}

// DocumentClosed reports the closed document and moves the job to Summary.
func (m *Machine) DocumentClosed(document string) []schema.PhaseEvent {
	if m.terminal || order[m.phase] >= order[schema.PhaseSummary] {
		return nil
	}
	events := m.advance(schema.PhaseBuilding, SeedBuilding)
	events = append(events, m.DocumentUpdated(document)...)
	return append(events, m.advance(schema.PhaseSummary, SeedSummary)...)
}

// Fail moves the job to Error. The open phase is not completed.
func (m *Machine) Fail(message string) []schema.PhaseEvent {
	if m.terminal {
		return nil
	}
	m.phase = schema.PhaseError
	m.open = false
	m.terminal = true
	return []schema.PhaseEvent{{Kind: schema.PhaseUpdate, Phase: schema.PhaseError, Content: message}}
}

// Finish completes a phase left open at job end.
func (m *Machine) Finish() []schema.PhaseEvent {
	if m.terminal {
		return nil
	}
	m.terminal = true
	if !m.open {
		return nil
	}
	return []schema.PhaseEvent{m.complete()}
}

func (m *Machine) advance(target schema.Phase, seed string) []schema.PhaseEvent {
	if order[m.phase] >= order[target] {
		return nil
	}
	var events []schema.PhaseEvent
	if m.open {
		events = append(events, m.complete())
	}
	for _, p := range sequence {
		if order[p] <= order[m.phase] || order[p] > order[target] {
			continue
		}
		if p == target {
			events = append(events, m.begin(p, seed))
			break
		}
		events = append(events, m.begin(p, defaultSeed(p)), m.complete())
	}
	return events
}

func (m *Machine) begin(p schema.Phase, seed string) schema.PhaseEvent {
	m.phase = p
	m.open = true
	m.narr = nil
	event := schema.PhaseEvent{Kind: schema.PhaseBegin, Phase: p, Content: seed}
	if p == schema.PhaseBuilding {
		event.Filename = schema.DocumentFilename
	}
	return event
}

func (m *Machine) complete() schema.PhaseEvent {
	m.open = false
	event := schema.PhaseEvent{Kind: schema.PhaseComplete, Phase: m.phase}
	if m.phase == schema.PhaseThinking && !m.started.IsZero() {
		event.Elapsed = m.now().Sub(m.started)
	}
	return event
}

func defaultSeed(p schema.Phase) string {
	switch p {
	case schema.PhaseThinking:
		return SeedThinking
	case schema.PhasePlanning:
		return SeedPlanning
	case schema.PhaseBuilding:
		return SeedBuilding
	default:
		return SeedSummary
	}
}
