package core

import "pkt.systems/surveyforge/schema"

const (
	defaultHistoryMax = schema.DefaultHistoryMax
	defaultMessageMax = schema.DefaultMessageMax
)

// boundedLog keeps the newest max entries, oldest first.
type boundedLog[T any] struct {
	entries []T
	max     int
}

func newBoundedLog[T any](max, fallback int, seed []T) *boundedLog[T] {
	if max <= 0 {
		max = fallback
	}
	l := &boundedLog[T]{max: max}
	l.push(seed...)
	return l
}

func (l *boundedLog[T]) push(items ...T) {
	if len(items) == 0 {
		return
	}
	l.entries = append(l.entries, items...)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append([]T(nil), l.entries[over:]...)
	}
}

func (l *boundedLog[T]) tail(limit int) []T {
	if l == nil {
		return nil
	}
	start := 0
	if limit > 0 && len(l.entries) > limit {
		start = len(l.entries) - limit
	}
	return append([]T(nil), l.entries[start:]...)
}

// messageLog stores the conversation of a project.
type messageLog struct {
	log *boundedLog[schema.Message]
}

func newMessageLog(max int) *messageLog {
	return newMessageLogFromPersisted(nil, max)
}

func newMessageLogFromPersisted(entries []schema.Message, max int) *messageLog {
	return &messageLog{log: newBoundedLog(max, defaultMessageMax, entries)}
}

// Append adds messages and drops the oldest beyond max.
func (l *messageLog) Append(messages ...schema.Message) {
	l.log.push(messages...)
}

// Snapshot returns a copy of the most recent limit messages; limit <= 0 returns all.
func (l *messageLog) Snapshot(limit int) []schema.Message {
	if l == nil {
		return nil
	}
	return l.log.tail(limit)
}

// Len returns the number of stored messages.
func (l *messageLog) Len() int {
	if l == nil {
		return 0
	}
	return len(l.log.entries)
}
