package core

import (
	"regexp"
	"strings"

	"pkt.systems/surveyforge/internal/decoder"
	"pkt.systems/surveyforge/schema"
)

// minimalTemplateLength is the size under which a document without form
// controls counts as a starter template.
const minimalTemplateLength = 400

var emptyBodyPattern = regexp.MustCompile(`(?is)<body[^>]*>\s*</body>`)

var legacyPlaceholders = []string{
	"I'm ready to work",
	"Ask me anything",
	"Your survey will appear here",
}

var formControls = []string{"input", "form", "button"}

// SelectRoute decides how a request is sent. A follow-up requires a previous
// prompt and a current document that is not a starter template.
func SelectRoute(req schema.GenerationRequest) schema.Route {
	if strings.TrimSpace(req.PreviousPrompt) != "" &&
		strings.TrimSpace(req.CurrentDocument) != "" &&
		!IsDefaultTemplate(req.CurrentDocument) {
		return schema.RouteUpdate
	}
	if req.HasRedesignSource() {
		return schema.RouteRedesign
	}
	return schema.RouteCreate
}

// IsDefaultTemplate reports whether document is an empty or placeholder page.
func IsDefaultTemplate(document string) bool {
	trimmed := strings.TrimSpace(document)
	if trimmed == "" {
		return true
	}
	if emptyBodyPattern.MatchString(trimmed) {
		return true
	}
	for _, placeholder := range legacyPlaceholders {
		if decoder.ContainsFold(trimmed, placeholder) {
			return true
		}
	}
	if len(trimmed) < minimalTemplateLength {
		for _, control := range formControls {
			if decoder.ContainsFold(trimmed, control) {
				return false
			}
		}
		return true
	}
	return false
}
