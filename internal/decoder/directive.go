package decoder

import (
	"strings"

	"pkt.systems/surveyforge/schema"
)

const markerPrefix = "<<<PHASE:"

var knownMarkers = map[schema.PhaseName]bool{
	schema.MarkerStatus:     true,
	schema.MarkerReasonPlan: true,
	schema.MarkerHTML:       true,
	schema.MarkerSummary:    true,
	schema.MarkerError:      true,
}

var directivePrefixes = []struct {
	prefix string
	kind   schema.DirectiveKind
}{
	{"THINK:", schema.DirectiveThink},
	{"REASON:", schema.DirectiveThink},
	{"PLAN:", schema.DirectivePlan},
	{"STATUS:", schema.DirectiveStatus},
	{"DONE:", schema.DirectiveDone},
	{"NEXT:", schema.DirectiveNext},
	{"ERROR:", schema.DirectiveError},
}

// Classify labels one reassembled line. Blank lines report false.
func Classify(line string) (schema.Directive, bool) {
	text := strings.TrimSpace(line)
	if text == "" {
		return schema.Directive{}, false
	}
	if name, message, ok := parseMarker(text); ok {
		return schema.Directive{Kind: schema.DirectivePhaseMarker, Phase: name, Text: message}, true
	}
	for _, p := range directivePrefixes {
		if len(text) < len(p.prefix) || !strings.EqualFold(text[:len(p.prefix)], p.prefix) {
			continue
		}
		payload := strings.TrimSpace(text[len(p.prefix):])
		directive := schema.Directive{Kind: p.kind, Text: payload}
		if p.kind == schema.DirectiveNext {
			directive.Suggestions = splitSuggestions(payload)
		}
		return directive, true
	}
	return schema.Directive{Kind: schema.DirectiveOpaque, Text: text}, true
}

func parseMarker(text string) (schema.PhaseName, string, bool) {
	if !strings.HasPrefix(text, markerPrefix) {
		return "", "", false
	}
	rest := text[len(markerPrefix):]
	end := strings.Index(rest, ">>>")
	if end < 0 {
		return "", "", false
	}
	name := schema.PhaseName(strings.ToUpper(strings.TrimSpace(rest[:end])))
	if !knownMarkers[name] {
		return "", "", false
	}
	return name, strings.TrimSpace(rest[end+3:]), true
}

func splitSuggestions(payload string) []string {
	var out []string
	for _, part := range strings.Split(payload, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
