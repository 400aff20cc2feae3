package extractor

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

var (
	placeholderPattern = regexp.MustCompile(`\{(\d+)\}`)

	urlPattern         = regexp.MustCompile(`(?:https?|ftp)://[^\s<>()\[\]{}"'` + "`" + `]+|mailto:[^\s<>()\[\]"']+|www\.[A-Za-z0-9-]+\.[^\s<>()\[\]{}"'` + "`" + `]+`)
	bracePattern       = regexp.MustCompile(`\{\{[^{}\n]*\}\}|\{[A-Za-z0-9_.:\-]*\}|\$\{[^{}\n]*\}`)
	printfPattern      = regexp.MustCompile(`%(?:\d+\$)?[-+#0]?\d*(?:\.\d+)?[sdvqxXfeEgGcbotTp]`)
	autolinkPattern    = regexp.MustCompile(`<(?:[A-Za-z][A-Za-z0-9+.\-]{1,31}:[^\s<>]*|[A-Za-z0-9.!#$%&'*+/=?^_` + "`" + `{|}~\-]+@[A-Za-z0-9](?:[A-Za-z0-9\-.]*[A-Za-z0-9])?)>`)
	inlineHTMLPattern  = regexp.MustCompile(`</?[A-Za-z][A-Za-z0-9\-]*(?:\s+[^<>]*)?/?>`)
	entityPattern      = regexp.MustCompile(`&(?:[A-Za-z][A-Za-z0-9]{1,31}|#[0-9]{1,7}|#[xX][0-9A-Fa-f]{1,6});`)
	trailingURLPunct   = ".,;:!?*_~'\""
)

// Masked returns Text with every protected run replaced by a numbered
// placeholder.
func (s Span) Masked() string {
	if len(s.Protected) == 0 {
		return s.Text
	}
	var b strings.Builder
	prev := 0
	for i, p := range s.Protected {
		b.WriteString(s.Text[prev:p.Start])
		b.WriteString("{" + strconv.Itoa(i) + "}")
		prev = p.End
	}
	b.WriteString(s.Text[prev:])
	return b.String()
}

// Unmask normalizes a translated body and restores protected runs. Every
// placeholder must appear exactly once.
func (s Span) Unmask(translated string) (string, error) {
	translated = normalizeTranslation(translated)
	if len(s.Protected) == 0 {
		return translated, nil
	}

	seen := make([]int, len(s.Protected))
	var bad []string
	out := placeholderPattern.ReplaceAllStringFunc(translated, func(m string) string {
		n, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || n >= len(s.Protected) {
			bad = append(bad, m)
			return m
		}
		seen[n]++
		p := s.Protected[n]
		return s.Text[p.Start:p.End]
	})
	if len(bad) > 0 {
		return "", fmt.Errorf("%w: unknown %s", ErrPlaceholderMismatch, strings.Join(bad, ", "))
	}
	for i, n := range seen {
		if n != 1 {
			return "", fmt.Errorf("%w: {%d} appears %d times", ErrPlaceholderMismatch, i, n)
		}
	}
	return out, nil
}

func normalizeTranslation(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// protectComment finds runs inside comment text that must survive
// translation untouched: inline code, markup tags, URLs and format
// placeholders.
func protectComment(text string) []Protection {
	var cands []Protection
	code := codeSpans(text)
	cands = append(cands, code...)
	cands = append(cands, matches(inlineHTMLPattern, text)...)
	cands = append(cands, urls(text)...)
	cands = append(cands, matches(bracePattern, text)...)
	cands = append(cands, printfVerbs(text)...)
	return resolve(cands)
}

// protectProse finds the runs of a markdown prose span that must survive
// translation: everything protectComment does, plus link destinations,
// reference labels, autolinks, inline HTML and entities. Link labels stay
// translatable.
func protectProse(text string) []Protection {
	code := codeSpans(text)
	cands := append([]Protection{}, code...)
	cands = append(cands, links(text, code)...)
	cands = append(cands, matches(autolinkPattern, text)...)
	cands = append(cands, matches(inlineHTMLPattern, text)...)
	cands = append(cands, matches(entityPattern, text)...)
	cands = append(cands, urls(text)...)
	cands = append(cands, matches(bracePattern, text)...)
	cands = append(cands, printfVerbs(text)...)
	return resolve(cands)
}

// resolve orders candidates and keeps the earliest, longest run wherever
// two overlap.
func resolve(cands []Protection) []Protection {
	if len(cands) == 0 {
		return nil
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Start != cands[j].Start {
			return cands[i].Start < cands[j].Start
		}
		return cands[i].End > cands[j].End
	})
	out := make([]Protection, 0, len(cands))
	last := -1
	for _, c := range cands {
		if c.End <= c.Start || c.Start < last {
			continue
		}
		out = append(out, c)
		last = c.End
	}
	return out
}

func matches(re *regexp.Regexp, text string) []Protection {
	var out []Protection
	for _, m := range re.FindAllStringIndex(text, -1) {
		out = append(out, Protection{Start: m[0], End: m[1]})
	}
	return out
}

func urls(text string) []Protection {
	var out []Protection
	for _, m := range urlPattern.FindAllStringIndex(text, -1) {
		end := m[1]
		for end > m[0] && strings.IndexByte(trailingURLPunct, text[end-1]) >= 0 {
			end--
		}
		out = append(out, Protection{Start: m[0], End: end})
	}
	return out
}

func printfVerbs(text string) []Protection {
	var out []Protection
	for _, m := range printfPattern.FindAllStringIndex(text, -1) {
		if m[1] < len(text) && isWordByte(text[m[1]]) {
			continue
		}
		if m[0] > 0 && isWordByte(text[m[0]-1]) {
			continue
		}
		out = append(out, Protection{Start: m[0], End: m[1]})
	}
	return out
}

// codeSpans locates backtick-delimited code: a run of n backticks closed
// by the next run of exactly n backticks.
func codeSpans(text string) []Protection {
	var out []Protection
	i := 0
	for i < len(text) {
		if text[i] != '`' || (i > 0 && text[i-1] == '\\') {
			i++
			continue
		}
		n := runLength(text, i, '`')
		closeAt := -1
		for j := i + n; j < len(text); {
			if text[j] != '`' {
				j++
				continue
			}
			m := runLength(text, j, '`')
			if m == n {
				closeAt = j
				break
			}
			j += m
		}
		if closeAt < 0 {
			i += n
			continue
		}
		out = append(out, Protection{Start: i, End: closeAt + n})
		i = closeAt + n
	}
	return out
}

// links protects the syntax around inline links, images, reference links
// and footnote references, leaving the label itself translatable.
func links(text string, code []Protection) []Protection {
	var out []Protection
	for i := 0; i < len(text); i++ {
		if text[i] != '[' || (i > 0 && text[i-1] == '\\') || inside(code, i) {
			continue
		}
		open := i
		if i > 0 && text[i-1] == '!' {
			open = i - 1
		}
		if i+1 < len(text) && text[i+1] == '^' {
			if end := strings.IndexByte(text[i:], ']'); end > 0 {
				out = append(out, Protection{Start: i, End: i + end + 1})
				i += end
			}
			continue
		}
		closeLabel := matchBracket(text, i, '[', ']')
		if closeLabel < 0 || closeLabel+1 >= len(text) {
			continue
		}
		switch text[closeLabel+1] {
		case '(':
			closeDest := matchBracket(text, closeLabel+1, '(', ')')
			if closeDest < 0 {
				continue
			}
			out = append(out,
				Protection{Start: open, End: i + 1},
				Protection{Start: closeLabel, End: closeDest + 1})
		case '[':
			closeRef := strings.IndexByte(text[closeLabel+1:], ']')
			if closeRef < 0 {
				continue
			}
			out = append(out,
				Protection{Start: open, End: i + 1},
				Protection{Start: closeLabel, End: closeLabel + 1 + closeRef + 1})
		}
	}
	return out
}

func matchBracket(text string, at int, opening, closing byte) int {
	depth := 0
	for j := at; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case opening:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func inside(ranges []Protection, pos int) bool {
	for _, r := range ranges {
		if pos >= r.Start && pos < r.End {
			return true
		}
	}
	return false
}

func runLength(text string, at int, c byte) int {
	n := 0
	for at+n < len(text) && text[at+n] == c {
		n++
	}
	return n
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isLetter(r rune) bool { return unicode.IsLetter(r) }
