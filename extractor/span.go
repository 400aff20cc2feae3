package extractor

import (
	"fmt"
	"strings"
)

// Kind classifies a translatable span.
type Kind string

const (
	KindProse        Kind = "prose"
	KindLineComment  Kind = "line-comment"
	KindBlockComment Kind = "block-comment"
	KindDocComment   Kind = "doc-comment"
)

// Span is a translatable region of a file. The bytes content[Start:End] are
// always equal to Render(Text): Prefix, then the body lines of Text joined by
// Separators, then Suffix.
type Span struct {
	Start int  `json:"start"`
	End   int  `json:"end"`
	Kind  Kind `json:"kind"`

	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
	// Text is the original text with delimiters stripped. Body lines are
	// joined with "\n" regardless of the file's line endings.
	Text string `json:"text"`

	// Separators holds the bytes found between consecutive body lines:
	// trailing whitespace, the line break and the next line's indentation
	// and marker.
	Separators []string `json:"separators,omitempty"`
	// Continuation is emitted before every body line beyond the original
	// line count.
	Continuation string `json:"continuation,omitempty"`

	// Closer is the delimiter that ends the span in the host syntax. A
	// translation that contains it is refused.
	Closer string `json:"closer,omitempty"`
	// SingleLine spans refuse translations containing line breaks.
	SingleLine bool `json:"single_line,omitempty"`
	// Forbidden lists additional substrings a translation must not contain.
	Forbidden []string `json:"forbidden,omitempty"`
	// NoLeading lists bytes a translation must not start with.
	NoLeading string `json:"no_leading,omitempty"`
	// NoTrailing lists bytes no translated line may end with, trailing
	// blanks ignored.
	NoTrailing string `json:"no_trailing,omitempty"`

	// Protected runs inside Text are replaced with placeholders before
	// translation and restored verbatim afterwards.
	Protected []Protection `json:"protected,omitempty"`
}

// Protection is a half-open byte range of Text that is never translated.
type Protection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of original bytes the span covers.
func (s Span) Len() int { return s.End - s.Start }

// IsEmpty reports whether the span carries no text worth translating.
func (s Span) IsEmpty() bool {
	if strings.TrimSpace(s.Text) == "" {
		return true
	}
	masked := s.Masked()
	for _, r := range placeholderPattern.ReplaceAllString(masked, "") {
		if isLetter(r) {
			return false
		}
	}
	return true
}

// Render rebuilds the span bytes around body.
func (s Span) Render(body string) string {
	lines := strings.Split(body, "\n")

	var b strings.Builder
	b.Grow(len(s.Prefix) + len(body) + len(s.Suffix) + 8*len(lines))
	b.WriteString(s.Prefix)
	for i, line := range lines {
		if i > 0 {
			b.WriteString(s.separator(i - 1))
		}
		b.WriteString(line)
	}
	b.WriteString(s.Suffix)
	return b.String()
}

func (s Span) separator(i int) string {
	if i < len(s.Separators) {
		return s.Separators[i]
	}
	if s.Continuation != "" {
		return s.Continuation
	}
	return "\n"
}

// Admits reports whether body can be placed between the span delimiters
// without changing the meaning of the surrounding source. Delimiters are
// also checked where body meets the prefix and suffix, since a translation
// ending in `"` fuses with a `"""` closer.
func (s Span) Admits(body string) error {
	if s.SingleLine && strings.ContainsAny(body, "\r\n") {
		return fmt.Errorf("%w: line break in single-line span", ErrUnsafeTranslation)
	}
	if s.Closer != "" {
		if strings.Contains(body, s.Closer) {
			return fmt.Errorf("%w: contains closing delimiter %q", ErrUnsafeTranslation, s.Closer)
		}
		if strings.Contains(body+s.beforeCloser(), s.Closer) {
			return fmt.Errorf("%w: ending merges with closing delimiter %q", ErrUnsafeTranslation, s.Closer)
		}
		if isQuote(s.Closer[0]) && strings.HasSuffix(body, `\`) {
			return fmt.Errorf("%w: trailing backslash escapes %q", ErrUnsafeTranslation, s.Closer)
		}
	}
	for _, f := range s.Forbidden {
		if strings.Contains(body, f) ||
			strings.Contains(tail(s.Prefix, len(f)-1)+body, f) ||
			strings.Contains(body+head(s.Suffix, len(f)-1), f) {
			return fmt.Errorf("%w: contains %q", ErrUnsafeTranslation, f)
		}
	}
	if s.NoTrailing != "" {
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimRight(line, " \t\r")
			if line != "" && strings.IndexByte(s.NoTrailing, line[len(line)-1]) >= 0 {
				return fmt.Errorf("%w: line ends with %q", ErrUnsafeTranslation, line[len(line)-1:])
			}
		}
	}
	if s.NoLeading != "" && body != "" && strings.IndexByte(s.NoLeading, body[0]) >= 0 {
		return fmt.Errorf("%w: starts with %q", ErrUnsafeTranslation, body[:1])
	}
	return nil
}

// beforeCloser returns the suffix bytes up to, but excluding, the last byte
// of the closing delimiter.
func (s Span) beforeCloser() string {
	at := strings.Index(s.Suffix, s.Closer)
	if at < 0 {
		return head(s.Suffix, len(s.Closer)-1)
	}
	return s.Suffix[:at+len(s.Closer)-1]
}

func head(s string, n int) string {
	if n < len(s) {
		return s[:n]
	}
	return s
}

func tail(s string, n int) string {
	if n < len(s) {
		return s[len(s)-n:]
	}
	return s
}

// Category is the file classification produced by the category resolver.
type Category struct {
	Kind    CategoryKind `json:"kind"`
	Grammar string       `json:"grammar,omitempty"`
}

type CategoryKind string

const (
	CategoryOpaque   CategoryKind = "opaque"
	CategoryMarkdown CategoryKind = "markdown"
	CategoryGrammar  CategoryKind = "grammar"
)

var (
	Opaque   = Category{Kind: CategoryOpaque}
	Markdown = Category{Kind: CategoryMarkdown}
)

// GrammarCategory returns the category for a registered source grammar.
func GrammarCategory(name string) Category {
	return Category{Kind: CategoryGrammar, Grammar: name}
}

func (c Category) String() string {
	if c.Kind == CategoryGrammar {
		return "grammar:" + c.Grammar
	}
	return string(c.Kind)
}

// ParseCategory is the inverse of Category.String.
func ParseCategory(s string) (Category, error) {
	switch {
	case s == string(CategoryOpaque):
		return Opaque, nil
	case s == string(CategoryMarkdown):
		return Markdown, nil
	case strings.HasPrefix(s, "grammar:") && len(s) > len("grammar:"):
		return GrammarCategory(strings.TrimPrefix(s, "grammar:")), nil
	}
	return Category{}, fmt.Errorf("unknown file category %q", s)
}

// RegionKind names an opaque region recorded during extraction.
type RegionKind string

const (
	RegionCodeFence   RegionKind = "code-fence"
	RegionIndented    RegionKind = "indented-code"
	RegionHTML        RegionKind = "html"
)

// Region is a byte range that is copied verbatim and never translated.
type Region struct {
	Start int        `json:"start"`
	End   int        `json:"end"`
	Kind  RegionKind `json:"kind"`
	Info  string     `json:"info,omitempty"`
}

// TranslationUnit is the extraction result for one file. Content is owned by
// the unit and must not be modified after extraction.
type TranslationUnit struct {
	Path     string   `json:"path"`
	Category Category `json:"category"`
	Content  []byte   `json:"-"`
	Spans    []Span   `json:"spans"`
	Regions  []Region `json:"regions,omitempty"`
}

// Translatable counts spans that need a translation.
func (u *TranslationUnit) Translatable() int {
	n := 0
	for _, s := range u.Spans {
		if !s.IsEmpty() {
			n++
		}
	}
	return n
}

// LineOf returns the 1-based line number of a byte offset.
func (u *TranslationUnit) LineOf(offset int) int {
	if offset > len(u.Content) {
		offset = len(u.Content)
	}
	line := 1
	for _, c := range u.Content[:offset] {
		if c == '\n' {
			line++
		}
	}
	return line
}

func isQuote(c byte) bool { return c == '"' || c == '\'' }
