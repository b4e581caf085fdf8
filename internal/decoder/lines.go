package decoder

import "strings"

// LineReassembler turns arbitrary fragments into complete lines. The
// unterminated remainder is carried to the next Feed; only the new fragment
// is scanned for line breaks.
type LineReassembler struct {
	tail []byte
}

// Feed returns the lines completed by fragment. A trailing carriage return is
// stripped from each line.
func (r *LineReassembler) Feed(fragment string) []string {
	if fragment == "" {
		return nil
	}
	var lines []string
	start := 0
	for {
		idx := strings.IndexByte(fragment[start:], '\n')
		if idx < 0 {
			break
		}
		end := start + idx
		line := fragment[start:end]
		if len(r.tail) > 0 {
			r.tail = append(r.tail, line...)
			line = string(r.tail)
			r.tail = r.tail[:0]
		}
		lines = append(lines, strings.TrimSuffix(line, "\r"))
		start = end + 1
	}
	r.tail = append(r.tail, fragment[start:]...)
	return lines
}

// Flush returns the held remainder at stream end.
func (r *LineReassembler) Flush() (string, bool) {
	if len(r.tail) == 0 {
		return "", false
	}
	line := strings.TrimSuffix(string(r.tail), "\r")
	r.tail = nil
	if line == "" {
		return "", false
	}
	return line, true
}

// Pending reports the number of buffered bytes not yet terminated by a line break.
func (r *LineReassembler) Pending() int {
	return len(r.tail)
}
