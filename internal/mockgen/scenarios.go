package mockgen

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"pkt.systems/surveyforge/schema"
)

// Scenario names a scripted response shape.
type Scenario string

const (
	// ScenarioSuccess streams the full marker protocol around a complete document.
	ScenarioSuccess Scenario = "success"
	// ScenarioRefusal answers with plain refusal text and no document.
	ScenarioRefusal Scenario = "refusal"
	// ScenarioError plans, then reports an upstream failure.
	ScenarioError Scenario = "error"
	// ScenarioUnmarked streams a bare document without any markers.
	ScenarioUnmarked Scenario = "unmarked"
	// ScenarioPartial stops in the middle of the document.
	ScenarioPartial Scenario = "partial"
	// ScenarioFollowUp edits the document received with the request.
	ScenarioFollowUp Scenario = "followup"
)

// Scenarios lists every known scenario in a stable order.
func Scenarios() []Scenario {
	return []Scenario{ScenarioSuccess, ScenarioRefusal, ScenarioError, ScenarioUnmarked, ScenarioPartial, ScenarioFollowUp}
}

// ParseScenario resolves a scenario name. The empty name is valid and means
// the scenario is picked per request.
func ParseScenario(name string) (Scenario, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", nil
	}
	for _, s := range Scenarios() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown scenario: %s", name)
}

// HashSeed derives a deterministic seed from the request.
func HashSeed(prompt string, route schema.Route, scenario Scenario) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(prompt))
	_, _ = hasher.Write([]byte(route))
	_, _ = hasher.Write([]byte(scenario))
	return hasher.Sum64()
}

func pickScenario(fixed Scenario, route schema.Route, body schema.WireRequest) Scenario {
	if fixed != "" {
		return fixed
	}
	if route.IsFollowUp() && strings.TrimSpace(body.HTML) != "" {
		return ScenarioFollowUp
	}
	return ScenarioSuccess
}

var surveyTitles = []string{
	"Customer Satisfaction Survey",
	"Event Feedback Form",
	"Product Research Questionnaire",
	"Employee Pulse Check",
}

// Script renders the complete response body for one request.
func Script(scenario Scenario, seed uint64, body schema.WireRequest) string {
	title := surveyTitles[int(seed%uint64(len(surveyTitles)))]
	switch scenario {
	case ScenarioRefusal:
		return "Sorry, I cannot help with that request. I can only build survey forms.\n"
	case ScenarioError:
		return planPreamble(body.Prompt) +
			"<<<PHASE:ERROR>>>\nERROR: mock failure: simulated upstream error\n"
	case ScenarioUnmarked:
		return surveyDocument(title, body.Prompt)
	case ScenarioPartial:
		doc := surveyDocument(title, body.Prompt)
		cut := strings.Index(doc, "</form>")
		return planPreamble(body.Prompt) + "<<<PHASE:HTML>>>\n" + doc[:cut]
	case ScenarioFollowUp:
		if strings.TrimSpace(body.HTML) == "" {
			return Script(ScenarioSuccess, seed, body)
		}
		return planPreamble(body.Prompt) +
			"<<<PHASE:STATUS>>> Updating the current survey\n" +
			"<<<PHASE:HTML>>>\n" + applyFollowUp(body.HTML, body.Prompt) + "\n" +
			"<<<PHASE:SUMMARY>>>\nDONE: Applied \"" + oneLine(body.Prompt) + "\" to the survey.\n" +
			"NEXT: Add a progress bar, Shorten the intro\n"
	default:
		return planPreamble(body.Prompt) +
			"<<<PHASE:STATUS>>> Building " + title + "\n" +
			"<<<PHASE:HTML>>>\n" + surveyDocument(title, body.Prompt) + "\n" +
			"<<<PHASE:SUMMARY>>>\nDONE: Built the " + title + " with three questions.\n" +
			"NEXT: Add a rating scale, Add a logo, Translate to Swedish\n"
	}
}

func planPreamble(prompt string) string {
	return "<<<PHASE:REASON_PLAN>>>\n" +
		"THINK: Reading the request \"" + oneLine(prompt) + "\"\n" +
		"PLAN: Lay out the questions, then style the form\n"
}

func surveyDocument(title, prompt string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", title)
	b.WriteString("<style>body{font-family:sans-serif;max-width:40rem;margin:2rem auto}label{display:block;margin-top:1rem}</style>\n")
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", title)
	fmt.Fprintf(&b, "<p class=\"intro\">%s</p>\n", htmlEscape(oneLine(prompt)))
	b.WriteString("<form>\n")
	b.WriteString("<label>How satisfied are you? <select><option>Very</option><option>Somewhat</option><option>Not at all</option></select></label>\n")
	b.WriteString("<label>What did you like most? <input type=\"text\" name=\"liked\"></label>\n")
	b.WriteString("<label>Anything else? <textarea name=\"comments\"></textarea></label>\n")
	b.WriteString("<button type=\"submit\">Skicka svar</button>\n")
	b.WriteString("</form>\n</body>\n</html>")
	return b.String()
}

func applyFollowUp(doc, prompt string) string {
	note := "<p class=\"revision\">Revised: " + htmlEscape(oneLine(prompt)) + "</p>\n"
	idx := strings.LastIndex(strings.ToLower(doc), "</body>")
	if idx < 0 {
		return doc + "\n" + note
	}
	return doc[:idx] + note + doc[idx:]
}

// Fragment splits text into seeded random chunks of 1..maxChunk bytes. Chunks
// may split multi-byte runes.
func Fragment(text string, seed uint64, maxChunk int) []string {
	if text == "" {
		return nil
	}
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunk
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	var out []string
	for len(text) > 0 {
		n := 1 + rng.IntN(maxChunk)
		if n > len(text) {
			n = len(text)
		}
		out = append(out, text[:n])
		text = text[n:]
	}
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;")

func htmlEscape(s string) string {
	return htmlReplacer.Replace(s)
}
