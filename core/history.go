package core

import "strings"

// promptHistory records committed prompts of a project.
type promptHistory struct {
	log *boundedLog[string]
}

func newHistory(max int) *promptHistory {
	return newHistoryFromPersisted(nil, max)
}

func newHistoryFromPersisted(entries []string, max int) *promptHistory {
	return &promptHistory{log: newBoundedLog(max, defaultHistoryMax, entries)}
}

// Append records a prompt. Blank prompts and immediate repeats are dropped.
func (h *promptHistory) Append(prompt string) bool {
	if h == nil || strings.TrimSpace(prompt) == "" {
		return false
	}
	if n := len(h.log.entries); n > 0 && h.log.entries[n-1] == prompt {
		return false
	}
	h.log.push(prompt)
	return true
}

// Entries returns a copy of the history, oldest first.
func (h *promptHistory) Entries() []string {
	if h == nil {
		return nil
	}
	return h.log.tail(0)
}
