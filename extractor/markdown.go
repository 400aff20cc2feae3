package extractor

import (
	"context"
	"regexp"
	"strings"
)

const markdownGrammarName = "markdown"

var (
	atxHeading     = regexp.MustCompile(`^ {0,3}#{1,6}(?:[ \t]+|$)`)
	atxClosing     = regexp.MustCompile(`[ \t]+#+[ \t]*$`)
	listItem       = regexp.MustCompile(`^[ \t]*(?:[-*+]|\d{1,9}[.)])(?:[ \t]+|$)`)
	taskBox        = regexp.MustCompile(`^\[[ xX]\][ \t]+`)
	thematicBreak  = regexp.MustCompile(`^ {0,3}(?:(?:-[ \t]*){3,}|(?:\*[ \t]*){3,}|(?:_[ \t]*){3,})$`)
	setextLine     = regexp.MustCompile(`^ {0,3}(?:=+|-+)[ \t]*$`)
	referenceDef   = regexp.MustCompile(`^ {0,3}\[[^\]]+\]:`)
	htmlBlockStart = regexp.MustCompile(`^ {0,3}</?[A-Za-z][A-Za-z0-9-]*(?:[\s/>]|$)`)
	blockquoteMark = regexp.MustCompile(`^ {0,3}>[ \t]?`)
	tableDelimiter = regexp.MustCompile(`^[ \t]*\|?[ \t]*:?-+:?[ \t]*(?:\|[ \t]*:?-+:?[ \t]*)*\|?[ \t]*$`)
)

// commentDirectives are HTML comments that drive tooling and must keep their
// exact wording.
var commentDirectives = []string{
	"markdownlint", "prettier", "toc", "/toc", "vale ", "textlint", "cspell",
	"all-contributors", "start", "end", "begin", "omit in toc", "include", "snippet",
}

type markdownGrammar struct{}

// NewMarkdownGrammar returns the document-structure grammar used for
// markdown and plain-text prose.
func NewMarkdownGrammar() Grammar { return markdownGrammar{} }

func (markdownGrammar) Name() string { return markdownGrammarName }

func (markdownGrammar) Locate(ctx context.Context, content []byte, _ Options) ([]Span, []Region, error) {
	s := &mdScanner{content: content, lines: splitLines(content)}
	if err := s.scan(ctx); err != nil {
		return nil, nil, err
	}
	return s.spans, s.regions, nil
}

type mdLine struct {
	start, end int // end excludes the line terminator
}

func splitLines(content []byte) []mdLine {
	var lines []mdLine
	start := 0
	for i, c := range content {
		if c != '\n' {
			continue
		}
		end := i
		if end > start && content[end-1] == '\r' {
			end--
		}
		lines = append(lines, mdLine{start, end})
		start = i + 1
	}
	if start < len(content) {
		lines = append(lines, mdLine{start, len(content)})
	}
	return lines
}

type mdScanner struct {
	content []byte
	lines   []mdLine
	spans   []Span
	regions []Region
}

func (s *mdScanner) text(i int) string {
	return string(s.content[s.lines[i].start:s.lines[i].end])
}

func (s *mdScanner) blank(i int) bool {
	return strings.TrimSpace(s.text(i)) == ""
}

func (s *mdScanner) scan(ctx context.Context) error {
	i := s.frontMatter()
	inList := false
	for i < len(s.lines) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.blank(i) {
			i++
			continue
		}
		text := s.text(i)
		listBlock := false
		next := i + 1

		switch {
		case isFenceOpen(text):
			next = s.fence(i)
		case strings.HasPrefix(strings.TrimLeft(text, " \t"), "<!--"):
			next = s.htmlComment(i)
		case htmlBlockStart.MatchString(text):
			next = s.opaqueUntilBlank(i, RegionHTML)
		case referenceDef.MatchString(text), thematicBreak.MatchString(text):
		case indentWidth(text) >= 4 && !inList:
			next = s.indentedCode(i)
		case atxHeading.MatchString(text):
			s.heading(i)
		case i+1 < len(s.lines) && strings.Contains(text, "|") && tableDelimiter.MatchString(s.text(i+1)) && strings.Contains(s.text(i+1), "-"):
			next = s.table(i)
		case blockquoteMark.MatchString(text):
			next = s.blockquote(i)
		case listItem.MatchString(text):
			next = s.listItem(i)
			listBlock = true
		default:
			next = s.paragraph(i)
		}

		inList = listBlock || (inList && indentWidth(text) >= 2)
		i = next
	}
	return nil
}

// interrupts reports whether line i starts a block that ends a paragraph.
func (s *mdScanner) interrupts(i int) bool {
	text := s.text(i)
	return isFenceOpen(text) ||
		atxHeading.MatchString(text) ||
		blockquoteMark.MatchString(text) ||
		thematicBreak.MatchString(text) ||
		listItem.MatchString(text) ||
		htmlBlockStart.MatchString(text) ||
		strings.HasPrefix(strings.TrimLeft(text, " \t"), "<!--")
}

func (s *mdScanner) addSpan(f frame, prose bool) {
	span := f.span(s.content)
	if prose {
		span.Protected = protectProse(span.Text)
	} else {
		span.Protected = protectComment(span.Text)
	}
	s.spans = append(s.spans, span)
}

func (s *mdScanner) region(from, to int, kind RegionKind, info string) {
	if to <= from {
		return
	}
	s.regions = append(s.regions, Region{Start: from, End: to, Kind: kind, Info: info})
}

func (s *mdScanner) lineBreakAt(i int) string {
	return lineBreak(s.content, s.lines[i].start)
}

func fenceMarker(text string) (byte, int, string, bool) {
	trimmed := strings.TrimLeft(text, " ")
	if len(text)-len(trimmed) > 3 || len(trimmed) < 3 {
		return 0, 0, "", false
	}
	c := trimmed[0]
	if c != '`' && c != '~' {
		return 0, 0, "", false
	}
	n := runLength(trimmed, 0, c)
	if n < 3 {
		return 0, 0, "", false
	}
	info := strings.TrimSpace(trimmed[n:])
	if c == '`' && strings.Contains(info, "`") {
		return 0, 0, "", false
	}
	return c, n, info, true
}

func isFenceOpen(text string) bool {
	_, _, _, ok := fenceMarker(text)
	return ok
}

// fence records a fenced code block, markers included, as opaque. An
// unterminated fence runs to the end of the document.
func (s *mdScanner) fence(i int) int {
	c, n, info, _ := fenceMarker(s.text(i))
	if fields := strings.Fields(info); len(fields) > 0 {
		info = fields[0]
	}
	for j := i + 1; j < len(s.lines); j++ {
		t := s.text(j)
		trimmed := strings.TrimLeft(t, " ")
		if len(t)-len(trimmed) > 3 {
			continue
		}
		if m := runLength(trimmed, 0, c); m >= n && strings.TrimSpace(trimmed[m:]) == "" {
			s.region(s.lines[i].start, s.lines[j].end, RegionCodeFence, info)
			return j + 1
		}
	}
	s.region(s.lines[i].start, len(s.content), RegionCodeFence, info)
	return len(s.lines)
}

func (s *mdScanner) indentedCode(i int) int {
	last := i
	j := i + 1
	for ; j < len(s.lines); j++ {
		if s.blank(j) {
			continue
		}
		if indentWidth(s.text(j)) < 4 {
			break
		}
		last = j
	}
	s.region(s.lines[i].start, s.lines[last].end, RegionIndented, "")
	return last + 1
}

func (s *mdScanner) opaqueUntilBlank(i int, kind RegionKind) int {
	j := i
	for j+1 < len(s.lines) && !s.blank(j+1) {
		j++
	}
	s.region(s.lines[i].start, s.lines[j].end, kind, "")
	return j + 1
}

// htmlComment turns <!-- ... --> into a block-comment span.
func (s *mdScanner) htmlComment(i int) int {
	open := s.lines[i].start + strings.Index(s.text(i), "<!--")
	rest := string(s.content[open+4:])
	idx := strings.Index(rest, "-->")
	if idx < 0 {
		s.region(s.lines[i].start, len(s.content), RegionHTML, "")
		return len(s.lines)
	}
	innerStart, innerEnd := open+4, open+4+idx
	end := innerEnd + 3

	next := i
	for next < len(s.lines) && s.lines[next].end < end {
		next++
	}

	body := strings.ToLower(strings.TrimSpace(string(s.content[innerStart:innerEnd])))
	for _, d := range commentDirectives {
		if strings.HasPrefix(body, d) {
			return next + 1
		}
	}
	s.addSpan(frame{
		start:        s.lines[i].start,
		end:          end,
		kind:         KindBlockComment,
		bodies:       blockBodies(s.content, innerStart, innerEnd, false),
		continuation: s.lineBreakAt(i) + indentOf(s.content, open),
		closer:       "-->",
	}, false)
	return next + 1
}

func (s *mdScanner) heading(i int) {
	ln := s.lines[i]
	text := s.text(i)
	loc := atxHeading.FindStringIndex(text)
	bodyEnd := len(text)
	if m := atxClosing.FindStringIndex(text[loc[1]:]); m != nil {
		bodyEnd = loc[1] + m[0]
	} else if strings.TrimRight(text[loc[1]:], "#") == "" {
		bodyEnd = loc[1]
	}
	bs, be := trimBody(s.content, ln.start+loc[1], ln.start+bodyEnd)
	s.addSpan(frame{
		start:      ln.start,
		end:        ln.end,
		kind:       KindProse,
		bodies:     []bodyRange{{bs, be}},
		singleLine: true,
	}, true)
}

// paragraph collects lines up to a blank line, a block start or a setext
// underline.
func (s *mdScanner) paragraph(i int) int {
	j := i + 1
	for j < len(s.lines) && !s.blank(j) && !s.interrupts(j) && !setextLine.MatchString(s.text(j)) {
		j++
	}
	f := frame{
		start:        s.lines[i].start,
		end:          s.lines[j-1].end,
		kind:         KindProse,
		continuation: s.lineBreakAt(i) + indentOf(s.content, s.lines[i].start),
	}
	for k := i; k < j; k++ {
		bs, be := trimBody(s.content, s.lines[k].start, s.lines[k].end)
		f.bodies = append(f.bodies, bodyRange{bs, be})
	}
	s.addSpan(f, true)
	if j < len(s.lines) && setextLine.MatchString(s.text(j)) {
		return j + 1
	}
	return j
}

func (s *mdScanner) listItem(i int) int {
	ln := s.lines[i]
	text := s.text(i)
	markerEnd := listItem.FindStringIndex(text)[1]
	if m := taskBox.FindStringIndex(text[markerEnd:]); m != nil {
		markerEnd += m[1]
	}

	j := i + 1
	for j < len(s.lines) && !s.blank(j) && !s.interrupts(j) && !setextLine.MatchString(s.text(j)) {
		j++
	}
	if strings.TrimSpace(text[markerEnd:]) == "" {
		return j
	}

	f := frame{
		start:        ln.start,
		end:          s.lines[j-1].end,
		kind:         KindProse,
		continuation: s.lineBreakAt(i) + blankOut(text[:markerEnd]),
	}
	bs, be := trimBody(s.content, ln.start+markerEnd, ln.end)
	f.bodies = append(f.bodies, bodyRange{bs, be})
	for k := i + 1; k < j; k++ {
		bs, be := trimBody(s.content, s.lines[k].start, s.lines[k].end)
		f.bodies = append(f.bodies, bodyRange{bs, be})
	}
	s.addSpan(f, true)
	return j
}

// blockquote turns each paragraph inside a run of quoted lines into a span.
// Quotes holding fenced code stay opaque.
func (s *mdScanner) blockquote(i int) int {
	j := i
	for j < len(s.lines) && blockquoteMark.MatchString(s.text(j)) {
		j++
	}

	inner := make([]int, j-i)
	for k := i; k < j; k++ {
		t := s.text(k)
		off := 0
		for {
			m := blockquoteMark.FindStringIndex(t[off:])
			if m == nil {
				break
			}
			off += m[1]
		}
		inner[k-i] = off
		if isFenceOpen(t[off:]) || strings.HasPrefix(strings.TrimSpace(t[off:]), "<") {
			s.region(s.lines[i].start, s.lines[j-1].end, RegionCodeFence, "blockquote")
			return j
		}
	}

	for k := i; k < j; {
		if strings.TrimSpace(s.text(k)[inner[k-i]:]) == "" {
			k++
			continue
		}
		end := k + 1
		for end < j && strings.TrimSpace(s.text(end)[inner[end-i]:]) != "" {
			end++
		}
		f := frame{
			start:        s.lines[k].start,
			end:          s.lines[end-1].end,
			kind:         KindProse,
			continuation: s.lineBreakAt(k) + s.text(k)[:inner[k-i]],
		}
		for m := k; m < end; m++ {
			bs, be := trimBody(s.content, s.lines[m].start+inner[m-i], s.lines[m].end)
			f.bodies = append(f.bodies, bodyRange{bs, be})
		}
		if atxHeading.MatchString(s.text(k)[inner[k-i]:]) || thematicBreak.MatchString(s.text(k)[inner[k-i]:]) {
			f.singleLine = true
		}
		s.addSpan(f, true)
		k = end
	}
	return j
}

// table turns every non-empty cell into its own single-line span. The
// delimiter row stays verbatim.
func (s *mdScanner) table(i int) int {
	j := i
	for j < len(s.lines) && !s.blank(j) && strings.Contains(s.text(j), "|") {
		j++
	}
	for k := i; k < j; k++ {
		if k == i+1 {
			continue
		}
		s.cells(k)
	}
	return j
}

func (s *mdScanner) cells(i int) {
	ln := s.lines[i]
	text := s.text(i)
	pipes := []int{-1}
	inCode := false
	for k := 0; k < len(text); k++ {
		switch text[k] {
		case '\\':
			k++
		case '`':
			inCode = !inCode
		case '|':
			if !inCode {
				pipes = append(pipes, k)
			}
		}
	}
	pipes = append(pipes, len(text))
	for p := 0; p+1 < len(pipes); p++ {
		bs, be := trimBody(s.content, ln.start+pipes[p]+1, ln.start+pipes[p+1])
		if bs >= be {
			continue
		}
		s.addSpan(frame{
			start:      bs,
			end:        be,
			kind:       KindProse,
			bodies:     []bodyRange{{bs, be}},
			singleLine: true,
			forbidden:  []string{"|"},
		}, true)
	}
}

func indentWidth(text string) int {
	w := 0
	for _, c := range text {
		switch c {
		case ' ':
			w++
		case '\t':
			w += 4 - w%4
		default:
			return w
		}
	}
	return w
}

// blankOut replaces every non-blank byte with a space, keeping tabs.
func blankOut(prefix string) string {
	b := []byte(prefix)
	for i, c := range b {
		if c != '\t' {
			b[i] = ' '
		}
	}
	return string(b)
}
