package extractor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// commentGrammar locates comments by parsing the source with tree-sitter, so
// comment markers inside string literals are never mistaken for comments.
type commentGrammar struct {
	name     string
	language func() *sitter.Language
	style    commentStyle
	// docstrings is a tree-sitter query whose captures are string literals
	// acting as documentation.
	docstrings string
	directives []string
	// cookie reports directive comments that need more than a prefix test.
	cookie func(text string, line int) bool
	// nestedBlocks grammars let "/*" open a nested block comment.
	nestedBlocks bool
	// lineSplice grammars join a line ending in a backslash with the next
	// one, even inside a line comment.
	lineSplice bool
	// lineForbidden lists substrings that end a line comment early.
	lineForbidden []string
}

func (g *commentGrammar) Name() string { return g.name }

// comment is one located comment or docstring before it becomes a span.
type comment struct {
	start, end int
	marker     marker
	standalone bool
	bodies     []bodyRange
}

func (g *commentGrammar) Locate(ctx context.Context, content []byte, opts Options) ([]Span, []Region, error) {
	lang := g.language()

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedSource, g.name, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, nil, fmt.Errorf("%w: %s syntax error near line %d", ErrMalformedSource, g.name, firstErrorLine(root))
	}

	var comments []comment
	walkComments(root, func(n *sitter.Node) {
		if c, ok := g.lineOrBlock(content, int(n.StartByte()), int(n.EndByte())); ok {
			comments = append(comments, c)
		}
	})

	if g.docstrings != "" {
		docs, err := g.findDocstrings(content, root, lang)
		if err != nil {
			return nil, nil, err
		}
		comments = append(comments, docs...)
	}

	sort.Slice(comments, func(i, j int) bool { return comments[i].start < comments[j].start })

	spans := make([]Span, 0, len(comments))
	for _, group := range g.group(content, comments, opts.CoalesceComments) {
		s := g.frame(content, group).span(content)
		s.Protected = protectComment(s.Text)
		spans = append(spans, s)
	}
	return spans, nil, nil
}

// walkComments visits every named node whose type names a comment without
// descending into it.
func walkComments(root *sitter.Node, visit func(*sitter.Node)) {
	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()
	for {
		node := cursor.CurrentNode()
		if node.IsNamed() && strings.Contains(node.Type(), "comment") {
			visit(node)
		} else if cursor.GoToFirstChild() {
			continue
		}
		for !cursor.GoToNextSibling() {
			if !cursor.GoToParent() {
				return
			}
		}
	}
}

func firstErrorLine(root *sitter.Node) int {
	line := int(root.EndPoint().Row) + 1
	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()
	for {
		node := cursor.CurrentNode()
		if node.Type() == "ERROR" || node.IsMissing() {
			return int(node.StartPoint().Row) + 1
		}
		if node.HasError() && cursor.GoToFirstChild() {
			continue
		}
		for !cursor.GoToNextSibling() {
			if !cursor.GoToParent() {
				return line
			}
		}
	}
}

func (g *commentGrammar) findDocstrings(content []byte, root *sitter.Node, lang *sitter.Language) ([]comment, error) {
	query, err := sitter.NewQuery([]byte(g.docstrings), lang)
	if err != nil {
		return nil, fmt.Errorf("compile %s docstring query: %w", g.name, err)
	}
	defer query.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, root)

	seen := make(map[uint32]bool)
	var out []comment
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		for _, capture := range match.Captures {
			start := capture.Node.StartByte()
			if seen[start] {
				continue
			}
			seen[start] = true
			if c, ok := docstring(content, int(start), int(capture.Node.EndByte())); ok {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// lineOrBlock classifies a comment node and computes its body ranges.
func (g *commentGrammar) lineOrBlock(content []byte, start, end int) (comment, bool) {
	for end > start && (content[end-1] == '\n' || content[end-1] == '\r') {
		end--
	}
	text := string(content[start:end])
	if g.isDirective(text, lineIndex(content, start)) {
		return comment{}, false
	}

	m, ok := g.style.classify(text)
	if !ok {
		return comment{}, false
	}
	c := comment{start: start, end: end, marker: m, standalone: standalone(content, start)}

	if !m.block {
		bs, be := trimBody(content, start+len(m.open), end)
		c.bodies = []bodyRange{{bs, be}}
		return c, true
	}
	c.bodies = blockBodies(content, start+len(m.open), end-len(m.close), m.decorated)
	return c, true
}

// blockBodies splits the inside of a block comment into trimmed lines,
// dropping a leading '*' decoration on continuation lines.
func blockBodies(content []byte, innerStart, innerEnd int, decorated bool) []bodyRange {
	var bodies []bodyRange
	ls := innerStart
	for first := true; ; first = false {
		le := innerEnd
		if i := indexByteIn(content, '\n', ls, innerEnd); i >= 0 {
			le = i
		}
		bs := ls
		if !first {
			for bs < le && isBlank(content[bs]) {
				bs++
			}
			if decorated && bs < le && content[bs] == '*' && (bs+1 == le || isSpace(content[bs+1])) {
				bs++
			}
		}
		bs, be := trimBody(content, bs, le)
		bodies = append(bodies, bodyRange{bs, be})
		if le >= innerEnd {
			break
		}
		ls = le + 1
	}
	return dropBlankEdges(bodies, innerStart)
}

// docstring turns a string literal into a comment when it is a plain
// (non-bytes, non-formatted) literal.
func docstring(content []byte, start, end int) (comment, bool) {
	text := content[start:end]
	i := 0
	for i < len(text) && strings.IndexByte("rRuUbBfF", text[i]) >= 0 {
		if strings.IndexByte("bBfF", text[i]) >= 0 {
			return comment{}, false
		}
		i++
	}
	if i >= len(text) || !isQuote(text[i]) {
		return comment{}, false
	}
	quote := string(text[i : i+1])
	if len(text) >= i+6 && string(text[i:i+3]) == strings.Repeat(quote, 3) {
		quote = strings.Repeat(quote, 3)
	}
	if len(text) < i+2*len(quote) || !strings.HasSuffix(string(text), quote) {
		return comment{}, false
	}
	m := marker{open: string(text[:i]) + quote, close: quote, block: true, doc: true, quoted: true}
	return comment{
		start:      start,
		end:        end,
		marker:     m,
		standalone: standalone(content, start),
		bodies:     blockBodies(content, start+len(m.open), end-len(m.close), false),
	}, true
}

func (g *commentGrammar) isDirective(text string, line int) bool {
	for _, d := range g.directives {
		if strings.HasPrefix(text, d) {
			return true
		}
	}
	return g.cookie != nil && g.cookie(text, line)
}

// group splits comments into spans, merging runs of standalone line
// comments that share a marker and indentation on consecutive lines.
func (g *commentGrammar) group(content []byte, comments []comment, coalesce bool) [][]comment {
	var groups [][]comment
	for _, c := range comments {
		if n := len(groups); coalesce && n > 0 && adjacentLines(content, groups[n-1][len(groups[n-1])-1], c) {
			groups[n-1] = append(groups[n-1], c)
			continue
		}
		groups = append(groups, []comment{c})
	}
	return groups
}

func adjacentLines(content []byte, a, b comment) bool {
	if a.marker.block || b.marker.block || a.marker.open != b.marker.open {
		return false
	}
	if !a.standalone || !b.standalone {
		return false
	}
	if indentOf(content, a.start) != indentOf(content, b.start) {
		return false
	}
	between := content[a.end:b.start]
	if len(between) > 0 && between[0] == '\r' {
		between = between[1:]
	}
	if len(between) == 0 || between[0] != '\n' {
		return false
	}
	for _, c := range between[1:] {
		if !isBlank(c) {
			return false
		}
	}
	return true
}

func (g *commentGrammar) frame(content []byte, group []comment) frame {
	first, last := group[0], group[len(group)-1]
	f := frame{start: first.start, end: last.end, kind: first.marker.kind()}
	if first.standalone && !first.marker.quoted {
		f.start = lineStart(content, first.start)
	}
	for _, c := range group {
		f.bodies = append(f.bodies, c.bodies...)
	}

	indent := indentOf(content, first.start)
	br := lineBreak(content, first.start)
	m := first.marker
	switch {
	case !m.block:
		f.continuation = br + indent + m.open + " "
		f.forbidden = g.lineForbidden
		if g.lineSplice {
			f.noTrailing = `\`
		}
	case m.quoted:
		f.continuation = br + indent
		f.closer = m.close
	case m.decorated:
		f.continuation = br + indent + " * "
		f.closer = m.close
	default:
		f.continuation = br + indent
		f.closer = m.close
	}
	if m.block && !m.quoted && g.nestedBlocks {
		f.forbidden = []string{"/*"}
	}
	if m.quoted && !strings.HasPrefix(m.close, strings.Repeat(m.close[:1], 3)) {
		f.singleLine = true
	}
	return f
}

func lineIndex(content []byte, pos int) int {
	n := 0
	for _, c := range content[:pos] {
		if c == '\n' {
			n++
		}
	}
	return n
}

func indexByteIn(content []byte, c byte, from, to int) int {
	for i := from; i < to; i++ {
		if content[i] == c {
			return i
		}
	}
	return -1
}
