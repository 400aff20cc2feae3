package extractor

import (
	"bytes"
	"strings"
)

// bodyRange is the absolute byte range of one body line of a span.
type bodyRange struct {
	start, end int
}

// frame describes a span by its outer range and the ranges of its body
// lines. Everything outside the body ranges becomes prefix, separator or
// suffix, so the resulting span always renders back to the original bytes.
type frame struct {
	start, end   int
	kind         Kind
	bodies       []bodyRange
	continuation string
	closer       string
	singleLine   bool
	forbidden    []string
	noLeading    string
	noTrailing   string
}

func (f frame) span(content []byte) Span {
	s := Span{
		Start:      f.start,
		End:        f.end,
		Kind:       f.kind,
		Closer:     f.closer,
		SingleLine: f.singleLine,
		Forbidden:  f.forbidden,
		NoLeading:  f.noLeading,
		NoTrailing: f.noTrailing,
	}
	if len(f.bodies) == 0 {
		s.Prefix = string(content[f.start:f.end])
		return s
	}

	first, last := f.bodies[0], f.bodies[len(f.bodies)-1]
	s.Prefix = string(content[f.start:first.start])
	s.Suffix = string(content[last.end:f.end])

	lines := make([]string, len(f.bodies))
	for i, b := range f.bodies {
		lines[i] = string(content[b.start:b.end])
		if i > 0 {
			s.Separators = append(s.Separators, string(content[f.bodies[i-1].end:b.start]))
		}
	}
	s.Text = strings.Join(lines, "\n")
	s.Continuation = f.continuation
	if cont := continuationFrom(s.Separators, lines); cont != "" {
		s.Continuation = cont
	}
	return s
}

// continuationFrom derives the separator for extra lines from the last
// original separator that leads into a non-empty line, dropping the trailing
// whitespace of the preceding line.
func continuationFrom(separators, lines []string) string {
	for i := len(separators) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i+1]) == "" {
			continue
		}
		sep := separators[i]
		if idx := strings.IndexAny(sep, "\r\n"); idx >= 0 {
			return sep[idx:]
		}
	}
	return ""
}

// trimBody narrows [start,end) to exclude leading and trailing blanks.
func trimBody(content []byte, start, end int) (int, int) {
	for start < end && isBlank(content[start]) {
		start++
	}
	for end > start && isSpace(content[end-1]) {
		end--
	}
	return start, end
}

// dropBlankEdges removes leading and trailing empty body lines. When every
// line is empty a single zero-length body at fallback is returned.
func dropBlankEdges(bodies []bodyRange, fallback int) []bodyRange {
	lo, hi := 0, len(bodies)
	for lo < hi && bodies[lo].start == bodies[lo].end {
		lo++
	}
	for hi > lo && bodies[hi-1].start == bodies[hi-1].end {
		hi--
	}
	if lo == hi {
		return []bodyRange{{fallback, fallback}}
	}
	return bodies[lo:hi]
}

// lineStart returns the offset of the first byte on the line holding pos.
func lineStart(content []byte, pos int) int {
	if i := bytes.LastIndexByte(content[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

// lineEnd returns the offset of the line terminator after pos, or len(content).
func lineEnd(content []byte, pos int) int {
	if i := bytes.IndexByte(content[pos:], '\n'); i >= 0 {
		end := pos + i
		if end > pos && content[end-1] == '\r' {
			end--
		}
		return end
	}
	return len(content)
}

// standalone reports whether only blanks precede pos on its line.
func standalone(content []byte, pos int) bool {
	for i := lineStart(content, pos); i < pos; i++ {
		if !isBlank(content[i]) {
			return false
		}
	}
	return true
}

// indentOf returns the leading blanks of the line holding pos.
func indentOf(content []byte, pos int) string {
	start := lineStart(content, pos)
	end := start
	for end < len(content) && isBlank(content[end]) {
		end++
	}
	return string(content[start:end])
}

// lineBreak returns the line terminator used by the line holding pos, or
// the dominant one in the file when that line is the last.
func lineBreak(content []byte, pos int) string {
	end := lineEnd(content, pos)
	if end < len(content) {
		if content[end] == '\r' {
			return "\r\n"
		}
		return "\n"
	}
	if bytes.Contains(content, []byte("\r\n")) {
		return "\r\n"
	}
	return "\n"
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v' }
