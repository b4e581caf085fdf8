// Package format renders project events as terminal lines.
package format

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"pkt.systems/surveyforge/internal/eventbus"
	"pkt.systems/surveyforge/schema"
)

// Renderer formats bus events into user-facing lines. Colors follow the
// capabilities of the writer it was created for.
type Renderer struct {
	phase   lipgloss.Style
	done    lipgloss.Style
	failed  lipgloss.Style
	muted   lipgloss.Style
	prompt  lipgloss.Style
	summary lipgloss.Style
}

// NewRenderer returns a renderer for output written to w.
func NewRenderer(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)
	return &Renderer{
		phase:   r.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
		done:    r.NewStyle().Foreground(lipgloss.Color("42")),
		failed:  r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("241")),
		prompt:  r.NewStyle().Foreground(lipgloss.Color("45")),
		summary: r.NewStyle().Foreground(lipgloss.Color("226")),
	}
}

// FormatEvent converts an event into zero or more lines.
func (r *Renderer) FormatEvent(event eventbus.Event) []string {
	switch event.Type {
	case eventbus.EventPhase:
		return r.formatPhase(event.Phase.Event)
	case eventbus.EventDocument:
		return r.formatDocument(event.Document)
	case eventbus.EventMessage:
		return r.formatMessage(event.Message.Message)
	case eventbus.EventProgress:
		return r.formatProgress(event.Progress.Steps)
	case eventbus.EventJob:
		return r.formatJob(event.Job)
	default:
		return nil
	}
}

func (r *Renderer) formatPhase(event schema.PhaseEvent) []string {
	label := phaseLabel(event.Phase)
	switch event.Kind {
	case schema.PhaseBegin:
		if event.Phase == schema.PhaseError {
			return markLines(r.failed.Render("✗ "), splitLines(event.Content))
		}
		return []string{r.phase.Render("▸ " + label)}
	case schema.PhaseUpdate:
		return markLines(r.muted.Render("  · "), splitLines(event.Content))
	case schema.PhaseComplete:
		line := r.done.Render("✓ " + label)
		if event.Elapsed > 0 {
			line += r.muted.Render(" (" + formatElapsed(event.Elapsed) + ")")
		}
		lines := []string{line}
		if len(event.Suggestions) > 0 {
			lines = append(lines, r.muted.Render("  next: "+strings.Join(event.Suggestions, " | ")))
		}
		return lines
	default:
		return nil
	}
}

func (r *Renderer) formatDocument(event schema.DocumentEvent) []string {
	if !event.Final {
		return nil
	}
	name := event.Filename
	if name == "" {
		name = schema.DocumentFilename
	}
	line := fmt.Sprintf("%s ready (%d bytes)", name, len(event.Document))
	if event.Fallback {
		line += " from the last preview"
	}
	return []string{r.done.Render(line)}
}

func (r *Renderer) formatMessage(msg schema.Message) []string {
	lines := splitLines(msg.Text)
	switch msg.Kind {
	case schema.MessagePrompt:
		return markLines(r.prompt.Render("> "), lines)
	case schema.MessageSummary:
		return markLines(r.summary.Render("done: "), lines)
	case schema.MessageRefusal:
		return markLines(r.failed.Render("declined: "), lines)
	case schema.MessageError:
		return markLines(r.failed.Render("error: "), lines)
	case schema.MessageStatus:
		return markLines(r.muted.Render("status: "), lines)
	case schema.MessageInfo:
		return markLines(r.muted.Render("note: "), lines)
	default:
		return lines
	}
}

// formatProgress renders the list on one line.
func (r *Renderer) formatProgress(steps []schema.ProgressStep) []string {
	if len(steps) == 0 {
		return nil
	}
	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		switch step.Status {
		case schema.ProgressDone:
			parts = append(parts, r.done.Render("[x] "+step.Label))
		case schema.ProgressError:
			parts = append(parts, r.failed.Render("[!] "+step.Label))
		default:
			parts = append(parts, r.muted.Render("[ ] "+step.Label))
		}
	}
	return []string{strings.Join(parts, "  ")}
}

func (r *Renderer) formatJob(event schema.JobEvent) []string {
	switch event.Status {
	case schema.JobStatusRunning:
		return []string{r.muted.Render(fmt.Sprintf("job %s started (%s)", event.JobID, event.Route))}
	case schema.JobStatusIdle:
		style := r.done
		if event.Outcome != schema.OutcomeCompleted {
			style = r.failed
		}
		outcome := event.Outcome
		if outcome == "" {
			outcome = "unknown"
		}
		return []string{style.Render(fmt.Sprintf("job %s finished: %s", event.JobID, outcome))}
	default:
		return nil
	}
}

func phaseLabel(phase schema.Phase) string {
	if phase == "" {
		return "Working"
	}
	return strings.ToUpper(string(phase[:1])) + string(phase[1:])
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func splitLines(text string) []string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func markLines(marker string, lines []string) []string {
	if marker == "" || len(lines) == 0 {
		return lines
	}
	marked := make([]string, 0, len(lines))
	for _, line := range lines {
		marked = append(marked, marker+line)
	}
	return marked
}
