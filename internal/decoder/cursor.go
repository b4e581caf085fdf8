package decoder

import (
	"strings"

	"pkt.systems/surveyforge/schema"
)

// Cursor is the per-job decode state. Step is the only mutator; tokens come
// out in stream order. A Cursor is not safe for concurrent use.
type Cursor struct {
	pre  LineReassembler
	post LineReassembler
	span SpanDetector

	seen     map[string]struct{}
	raw      strings.Builder
	finished bool
}

// NewCursor returns an empty cursor.
func NewCursor() *Cursor {
	return &Cursor{seen: make(map[string]struct{})}
}

// Step decodes one raw fragment.
func (c *Cursor) Step(fragment string) []schema.Token {
	if c.finished || fragment == "" {
		return nil
	}
	c.raw.WriteString(fragment)
	return c.apply(c.span.Observe(fragment), false)
}

// Finish flushes held text and closes an open document. Later calls to Step
// and Finish return nothing.
func (c *Cursor) Finish() []schema.Token {
	if c.finished {
		return nil
	}
	tokens := c.apply(c.span.Finish(), true)
	c.finished = true
	return tokens
}

// Document returns the current document snapshot.
func (c *Cursor) Document() string { return c.span.Document() }

// Presentable reports whether the document contains a <body tag.
func (c *Cursor) Presentable() bool { return c.span.Presentable() }

// Opened reports whether the document start was seen.
func (c *Cursor) Opened() bool { return c.span.Opened() }

// Raw returns every byte fed so far.
func (c *Cursor) Raw() string { return c.raw.String() }

func (c *Cursor) apply(obs Observation, final bool) []schema.Token {
	var tokens []schema.Token
	tokens = c.lines(tokens, c.pre.Feed(obs.Preceding))
	if obs.Opened || (final && !c.span.Opened()) {
		if line, ok := c.pre.Flush(); ok {
			tokens = c.lines(tokens, []string{line})
		}
	}
	if obs.Opened {
		tokens = append(tokens, schema.Token{Kind: schema.TokenDocumentOpen})
	}
	if obs.Delta != "" {
		tokens = append(tokens, schema.Token{
			Kind:        schema.TokenDocumentDelta,
			Delta:       obs.Delta,
			Document:    c.span.Document(),
			Presentable: c.span.Presentable(),
		})
	}
	if obs.Closed {
		tokens = append(tokens, schema.Token{
			Kind:        schema.TokenDocumentClose,
			Document:    c.span.Document(),
			Presentable: c.span.Presentable(),
		})
	}
	tokens = c.lines(tokens, c.post.Feed(obs.Trailing))
	if final {
		if line, ok := c.post.Flush(); ok {
			tokens = c.lines(tokens, []string{line})
		}
	}
	return tokens
}

func (c *Cursor) lines(tokens []schema.Token, lines []string) []schema.Token {
	for _, line := range lines {
		directive, ok := Classify(line)
		if !ok || c.duplicate(directive) {
			continue
		}
		tokens = append(tokens, schema.Token{Kind: schema.TokenDirective, Directive: directive})
	}
	return tokens
}

func (c *Cursor) duplicate(d schema.Directive) bool {
	switch d.Kind {
	case schema.DirectiveStatus, schema.DirectiveDone, schema.DirectiveNext:
	default:
		return false
	}
	key := string(d.Kind) + "\x00" + d.Text
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	if _, ok := c.seen[key]; ok {
		return true
	}
	c.seen[key] = struct{}{}
	return false
}
