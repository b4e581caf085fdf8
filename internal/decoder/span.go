package decoder

import (
	"bytes"
	"strings"
)

const (
	doctypeToken = "<!doctype html>"
	htmlToken    = "<html"
	bodyToken    = "<body"
	htmlClose    = "</html>"
	bodyClose    = "</body>"
	markerToken  = "<<<phase:"
)

// Observation is the result of feeding one raw fragment to a SpanDetector.
type Observation struct {
	// Preceding is narration text released for line reassembly.
	Preceding string
	// Delta is raw text appended to the document buffer.
	Delta string
	// Trailing is raw text found after the document closed.
	Trailing string
	Opened   bool
	Closed   bool
}

// SpanDetector locates the embedded document inside the raw stream. Matching
// runs on raw text, so line breaks inside tags do not matter.
//
// Before the document opens, text is released as soon as it cannot be the
// start of a document token. Once open, every fragment is appended verbatim.
// The document closes at the last close tag preceding a phase marker that
// follows a close tag, or at Finish. Until then snapshots end at the last
// close tag seen so far. Each scan covers only the new bytes plus an overlap
// of one token length.
type SpanDetector struct {
	held []byte

	opened      bool
	closed      bool
	presentable bool

	doc   strings.Builder
	lower []byte
	final string

	bodyFrom   int
	bodyAt     int
	closeFrom  int
	lastFrom   int
	htmlEnd    int
	bodyEnd    int
	closeSeen  bool
	markerFrom int
}

// Observe feeds a raw fragment.
func (d *SpanDetector) Observe(fragment string) Observation {
	var obs Observation
	if fragment == "" {
		return obs
	}
	switch {
	case d.closed:
		obs.Trailing = fragment
	case d.opened:
		obs.Delta = fragment
		d.appendDocument(fragment, &obs)
	default:
		d.observePreamble(fragment, &obs)
	}
	return obs
}

// Finish ends the stream. An open document is closed at its last close tag,
// or kept whole when none exists; held preamble text is released.
func (d *SpanDetector) Finish() Observation {
	var obs Observation
	switch {
	case d.closed:
	case d.opened:
		d.closeAt(d.viewEnd(), &obs)
	default:
		obs.Preceding = string(d.held)
		d.held = nil
	}
	return obs
}

// Document returns the current document, cut after the last close tag seen
// so far. The returned string is never mutated by later observations.
func (d *SpanDetector) Document() string {
	if d.closed {
		return d.final
	}
	return d.doc.String()[:d.viewEnd()]
}

// Opened reports whether the document start has been seen.
func (d *SpanDetector) Opened() bool { return d.opened }

// Closed reports whether the document has been closed.
func (d *SpanDetector) Closed() bool { return d.closed }

// Presentable reports whether the current document contains a <body tag.
func (d *SpanDetector) Presentable() bool {
	if d.closed || !d.presentable {
		return d.presentable
	}
	return d.bodyAt+len(bodyToken) <= d.viewEnd()
}

// viewEnd is the end of the last close tag, or the buffer length without one.
func (d *SpanDetector) viewEnd() int {
	switch {
	case d.htmlEnd > 0:
		return d.htmlEnd
	case d.bodyEnd > 0:
		return d.bodyEnd
	default:
		return len(d.lower)
	}
}

func (d *SpanDetector) observePreamble(fragment string, obs *Observation) {
	buf := string(d.held) + fragment
	lowered := lowerASCII(buf)
	if start := earliestStart(lowered); start >= 0 {
		d.held = nil
		d.opened = true
		obs.Opened = true
		obs.Preceding = buf[:start]
		obs.Delta = buf[start:]
		d.appendDocument(buf[start:], obs)
		return
	}
	keep := heldSuffix(lowered)
	obs.Preceding = buf[:len(buf)-keep]
	d.held = append(d.held[:0], buf[len(buf)-keep:]...)
}

func (d *SpanDetector) appendDocument(text string, obs *Observation) {
	d.doc.WriteString(text)
	d.lower = append(d.lower, lowerASCII(text)...)
	n := len(d.lower)

	if !d.presentable {
		if idx := bytes.Index(d.lower[d.bodyFrom:], []byte(bodyToken)); idx >= 0 {
			d.presentable = true
			d.bodyAt = d.bodyFrom + idx
		} else {
			d.bodyFrom = rescanFrom(n, bodyToken)
		}
	}
	if idx := bytes.LastIndex(d.lower[d.lastFrom:], []byte(htmlClose)); idx >= 0 {
		d.htmlEnd = d.lastFrom + idx + len(htmlClose)
	}
	if idx := bytes.LastIndex(d.lower[d.lastFrom:], []byte(bodyClose)); idx >= 0 {
		d.bodyEnd = d.lastFrom + idx + len(bodyClose)
	}
	d.lastFrom = rescanFrom(n, htmlClose)
	if !d.closeSeen {
		if end := earliestCloseEnd(d.lower[d.closeFrom:]); end >= 0 {
			d.closeSeen = true
			d.markerFrom = d.closeFrom + end
		} else {
			d.closeFrom = rescanFrom(n, htmlClose)
		}
	}
	if !d.closeSeen {
		return
	}
	idx := bytes.Index(d.lower[d.markerFrom:], []byte(markerToken))
	if idx < 0 {
		d.markerFrom = max(d.markerFrom, rescanFrom(n, markerToken))
		return
	}
	marker := d.markerFrom + idx
	d.closeAt(lastCloseEnd(d.lower[:marker]), obs)
}

func (d *SpanDetector) closeAt(cut int, obs *Observation) {
	full := d.doc.String()
	d.final = full[:cut]
	d.presentable = bytes.Contains(d.lower[:cut], []byte(bodyToken))
	d.closed = true
	d.lower = nil
	obs.Closed = true
	obs.Trailing = full[cut:]
}

func earliestStart(lowered string) int {
	doctype := strings.Index(lowered, doctypeToken)
	html := strings.Index(lowered, htmlToken)
	switch {
	case doctype < 0:
		return html
	case html < 0:
		return doctype
	default:
		return min(doctype, html)
	}
}

// heldSuffix returns the length of the longest suffix that is a proper prefix
// of a start token.
func heldSuffix(lowered string) int {
	for n := min(len(lowered), len(doctypeToken)-1); n > 0; n-- {
		suffix := lowered[len(lowered)-n:]
		if strings.HasPrefix(doctypeToken, suffix) || strings.HasPrefix(htmlToken, suffix) {
			return n
		}
	}
	return 0
}

func earliestCloseEnd(lower []byte) int {
	best := -1
	for _, token := range []string{htmlClose, bodyClose} {
		if idx := bytes.Index(lower, []byte(token)); idx >= 0 {
			end := idx + len(token)
			if best < 0 || end < best {
				best = end
			}
		}
	}
	return best
}

func lastCloseEnd(lower []byte) int {
	if idx := bytes.LastIndex(lower, []byte(htmlClose)); idx >= 0 {
		return idx + len(htmlClose)
	}
	if idx := bytes.LastIndex(lower, []byte(bodyClose)); idx >= 0 {
		return idx + len(bodyClose)
	}
	return -1
}

func rescanFrom(n int, token string) int {
	return max(0, n-len(token)+1)
}

// lowerASCII folds ASCII letters only so byte offsets stay aligned with the input.
func lowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'A' && c <= 'Z' {
			buf := []byte(s)
			for j := i; j < len(buf); j++ {
				if c := buf[j]; c >= 'A' && c <= 'Z' {
					buf[j] = c + ('a' - 'A')
				}
			}
			return string(buf)
		}
	}
	return s
}

// ContainsFold reports whether token occurs in s, ignoring ASCII case.
func ContainsFold(s, token string) bool {
	return strings.Contains(lowerASCII(s), lowerASCII(token))
}
