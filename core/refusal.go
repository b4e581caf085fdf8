package core

import "pkt.systems/surveyforge/internal/decoder"

// refusalVocabulary is a product policy constant.
var refusalVocabulary = []string{"sorry", "cannot", "survey", "form"}

// IsRefusal reports whether raw stream text reads as a refusal.
func IsRefusal(raw string) bool {
	for _, word := range refusalVocabulary {
		if decoder.ContainsFold(raw, word) {
			return true
		}
	}
	return false
}
