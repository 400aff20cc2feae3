package extractor

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extract(t *testing.T, opts Options, category Category, src string) *TranslationUnit {
	t.Helper()
	unit, err := NewRegistry(opts).Extract(context.Background(), "file", category, []byte(src))
	require.NoError(t, err)
	require.NotNil(t, unit)
	for _, s := range unit.Spans {
		assert.Equal(t, src[s.Start:s.End], s.Render(s.Text), "span %q must render back to its source", s.Text)
	}
	return unit
}

func texts(unit *TranslationUnit) []string {
	out := make([]string, 0, len(unit.Spans))
	for _, s := range unit.Spans {
		out = append(out, s.Text)
	}
	return out
}

func TestExtract_GoCommentIgnoresStringLiteral(t *testing.T) {
	src := "package main\n\n// Greet says hello.\nfunc Greet() string {\n\treturn \"// not a comment\"\n}\n"

	unit := extract(t, Options{}, GrammarCategory("go"), src)

	require.Len(t, unit.Spans, 1)
	span := unit.Spans[0]
	assert.Equal(t, "Greet says hello.", span.Text)
	assert.Equal(t, KindLineComment, span.Kind)
	assert.Equal(t, "// ", span.Prefix)
	assert.Equal(t, strings.Index(src, "// Greet"), span.Start)
}

func TestExtract_CoalescesConsecutiveLineComments(t *testing.T) {
	src := "package main\n\n// first\n// second\nvar x = 1\n"

	merged := extract(t, Options{CoalesceComments: true}, GrammarCategory("go"), src)
	require.Len(t, merged.Spans, 1)
	assert.Equal(t, "first\nsecond", merged.Spans[0].Text)
	assert.Equal(t, []string{"\n// "}, merged.Spans[0].Separators)
	assert.Equal(t, "// a\n// b\n// c", merged.Spans[0].Render("a\nb\nc"))
	assert.Equal(t, "// one", merged.Spans[0].Render("one"))

	separate := extract(t, Options{}, GrammarCategory("go"), src)
	assert.Equal(t, []string{"first", "second"}, texts(separate))
}

func TestExtract_SkipsDirectives(t *testing.T) {
	src := "package main\n\n//go:generate stringer -type=Kind\n//nolint:errcheck\nfunc run() {} // Run does nothing.\n"

	unit := extract(t, Options{CoalesceComments: true}, GrammarCategory("go"), src)

	assert.Equal(t, []string{"Run does nothing."}, texts(unit))
}

func TestExtract_DecoratedBlockComment(t *testing.T) {
	src := "/*\n * Package doc line one.\n * Line two.\n */\npackage main\n"

	unit := extract(t, Options{}, GrammarCategory("go"), src)

	require.Len(t, unit.Spans, 1)
	span := unit.Spans[0]
	assert.Equal(t, "Package doc line one.\nLine two.", span.Text)
	assert.Equal(t, KindBlockComment, span.Kind)
	assert.Equal(t, "*/", span.Closer)
	assert.ErrorIs(t, span.Admits("closes */ early"), ErrUnsafeTranslation)
}

func TestExtract_PythonDocstringAndComment(t *testing.T) {
	src := "# -*- coding: utf-8 -*-\ndef add(a, b):\n    \"\"\"Adds two numbers.\"\"\"\n    return a + b  # sum\n"

	unit := extract(t, Options{}, GrammarCategory("python"), src)

	require.Len(t, unit.Spans, 2)
	doc := unit.Spans[0]
	assert.Equal(t, "Adds two numbers.", doc.Text)
	assert.Equal(t, KindDocComment, doc.Kind)
	assert.Equal(t, `"""`, doc.Prefix)
	assert.Equal(t, `"""`, doc.Suffix)
	assert.Equal(t, "sum", unit.Spans[1].Text)
}

func TestExtract_MalformedSourcePassesThrough(t *testing.T) {
	unit, err := NewRegistry(Options{}).Extract(context.Background(), "bad.go", GrammarCategory("go"), []byte("package main\n\nfunc ( {\n"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedSource)
	assert.True(t, IsPassThrough(err))
	require.NotNil(t, unit)
	assert.Empty(t, unit.Spans)
}

func TestExtract_UnsupportedGrammar(t *testing.T) {
	unit, err := NewRegistry(Options{}).Extract(context.Background(), "a.cob", GrammarCategory("cobol"), []byte("IDENTIFICATION DIVISION."))

	assert.ErrorIs(t, err, ErrUnsupportedGrammar)
	assert.True(t, IsPassThrough(err))
	require.NotNil(t, unit)
	assert.Empty(t, unit.Spans)
}

func TestExtract_OpaqueHasNoSpans(t *testing.T) {
	unit := extract(t, Options{}, Opaque, "anything # at all")
	assert.Empty(t, unit.Spans)
	assert.Equal(t, 0, unit.Translatable())
}

func TestExtract_Deterministic(t *testing.T) {
	src := "# Title\n\nSome *text* with a [link](https://example.com).\n\n- item one\n- item two\n"
	first := extract(t, Options{}, Markdown, src)
	second := extract(t, Options{}, Markdown, src)
	assert.Equal(t, first.Spans, second.Spans)
}

func TestExtract_DeterministicAcrossGoroutines(t *testing.T) {
	src := "# Module header.\n\n\ndef area(w, h):\n    \"\"\"Computes the area.\n\n    Width times height.\n    \"\"\"\n    # multiply\n    return w * h  # done\n"
	want := extract(t, Options{CoalesceComments: true}, GrammarCategory("python"), src)
	require.Len(t, want.Spans, 4)

	reg := NewRegistry(Options{CoalesceComments: true})
	const workers = 8
	results := make([][]Span, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unit, err := reg.Extract(context.Background(), "file", GrammarCategory("python"), []byte(src))
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = unit.Spans
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, want.Spans, results[i], "worker %d", i)
	}
}

func TestSpan_AdmitsRejectsDelimiterFusion(t *testing.T) {
	doc := extract(t, Options{}, GrammarCategory("python"), "def ok():\n    \"\"\"Returns ok.\"\"\"\n    return 1\n")
	require.Len(t, doc.Spans, 1)
	assert.ErrorIs(t, doc.Spans[0].Admits(`Renvoie "ok"`), ErrUnsafeTranslation)
	assert.NoError(t, doc.Spans[0].Admits(`Renvoie "ok".`))

	nested := extract(t, Options{}, GrammarCategory("rust"), "/* glob pattern */\nfn main() {}\n")
	require.Len(t, nested.Spans, 1)
	assert.ErrorIs(t, nested.Spans[0].Admits("motif src/*"), ErrUnsafeTranslation)
	assert.NoError(t, nested.Spans[0].Admits("motif src/"))

	goBlock := extract(t, Options{}, GrammarCategory("go"), "package main\n\n/* glob pattern */\nvar x = 1\n")
	require.Len(t, goBlock.Spans, 1)
	assert.NoError(t, goBlock.Spans[0].Admits("motif src/*"))

	spliced := extract(t, Options{}, GrammarCategory("c"), "int a; // path\nint b;\n")
	require.Len(t, spliced.Spans, 1)
	assert.ErrorIs(t, spliced.Spans[0].Admits(`chemin C:\`), ErrUnsafeTranslation)
	assert.ErrorIs(t, spliced.Spans[0].Admits("chemin C:\\  "), ErrUnsafeTranslation)
	assert.NoError(t, spliced.Spans[0].Admits(`chemin C:\ racine`))

	goLine := extract(t, Options{}, GrammarCategory("go"), "package main\n\nvar a = 1 // path\n")
	require.Len(t, goLine.Spans, 1)
	assert.NoError(t, goLine.Spans[0].Admits(`chemin C:\`))

	php := extract(t, Options{}, GrammarCategory("php"), "<?php\n// note\necho 1;\n")
	require.Len(t, php.Spans, 1)
	assert.ErrorIs(t, php.Spans[0].Admits("fin ?> ici"), ErrUnsafeTranslation)
	assert.NoError(t, php.Spans[0].Admits("fin ici"))
}

func TestMarkdown_FenceIsOpaque(t *testing.T) {
	src := "# Title\n\nSome text.\n\n```go\n// code comment\nx := 1\n```\n"

	unit := extract(t, Options{}, Markdown, src)

	assert.Equal(t, []string{"Title", "Some text."}, texts(unit))
	require.Len(t, unit.Regions, 1)
	assert.Equal(t, RegionCodeFence, unit.Regions[0].Kind)
	assert.Equal(t, "go", unit.Regions[0].Info)
	assert.True(t, strings.HasPrefix(src[unit.Regions[0].Start:], "```go"))
}

func TestMarkdown_HeadingAndClosingHashes(t *testing.T) {
	unit := extract(t, Options{}, Markdown, "## Install ##\n")

	require.Len(t, unit.Spans, 1)
	span := unit.Spans[0]
	assert.Equal(t, "Install", span.Text)
	assert.Equal(t, "## ", span.Prefix)
	assert.Equal(t, " ##", span.Suffix)
	assert.True(t, span.SingleLine)
	assert.ErrorIs(t, span.Admits("two\nlines"), ErrUnsafeTranslation)
}

func TestMarkdown_LinkDestinationIsProtected(t *testing.T) {
	unit := extract(t, Options{}, Markdown, "See [the docs](https://example.com/docs) now.\n")

	require.Len(t, unit.Spans, 1)
	span := unit.Spans[0]
	assert.Equal(t, "See {0}the docs{1} now.", span.Masked())

	out, err := span.Unmask("Voir {0}la doc{1} maintenant.")
	require.NoError(t, err)
	assert.Equal(t, "Voir [la doc](https://example.com/docs) maintenant.", out)
}

func TestMarkdown_TableCells(t *testing.T) {
	src := "| Name | Description |\n| ---- | ----------- |\n| foo  | Does things |\n"

	unit := extract(t, Options{}, Markdown, src)

	assert.Equal(t, []string{"Name", "Description", "foo", "Does things"}, texts(unit))
	for _, s := range unit.Spans {
		assert.True(t, s.SingleLine)
		assert.ErrorIs(t, s.Admits("a | b"), ErrUnsafeTranslation)
	}
}

func TestMarkdown_ListItemWithTaskBox(t *testing.T) {
	unit := extract(t, Options{}, Markdown, "- [ ] Write docs\n  continued here\n")

	require.Len(t, unit.Spans, 1)
	span := unit.Spans[0]
	assert.Equal(t, "Write docs\ncontinued here", span.Text)
	assert.Equal(t, "- [ ] ", span.Prefix)
	assert.Equal(t, "- [ ] a\n  b\n  c", span.Render("a\nb\nc"))
}

func TestMarkdown_HTMLComments(t *testing.T) {
	unit := extract(t, Options{}, Markdown, "<!-- translate me -->\n<!-- markdownlint-disable MD013 -->\n")

	require.Len(t, unit.Spans, 1)
	span := unit.Spans[0]
	assert.Equal(t, "translate me", span.Text)
	assert.Equal(t, KindBlockComment, span.Kind)
	assert.Equal(t, "-->", span.Closer)
}

func TestMarkdown_FrontMatter(t *testing.T) {
	src := "---\ntitle: Getting started\ntags: [a, b]\ndescription: \"Install the tool\"\n---\n\nBody text.\n"

	unit := extract(t, Options{}, Markdown, src)

	require.Equal(t, []string{"Getting started", "Install the tool", "Body text."}, texts(unit))
	plain, quoted := unit.Spans[0], unit.Spans[1]
	assert.ErrorIs(t, plain.Admits("Start: here"), ErrUnsafeTranslation)
	assert.ErrorIs(t, plain.Admits("- list"), ErrUnsafeTranslation)
	assert.NoError(t, plain.Admits("Erste Schritte"))
	assert.Equal(t, `"`, quoted.Closer)
	assert.ErrorIs(t, quoted.Admits(`say "hi"`), ErrUnsafeTranslation)
}

func TestMarkdown_CRLFSeparatorsSurvive(t *testing.T) {
	unit := extract(t, Options{}, Markdown, "Hello\r\nworld\r\n")

	require.Len(t, unit.Spans, 1)
	assert.Equal(t, "Hello\nworld", unit.Spans[0].Text)
	assert.Equal(t, "Bonjour\r\nle monde", unit.Spans[0].Render("Bonjour\nle monde"))
}

func TestSpan_UnmaskRejectsLostPlaceholder(t *testing.T) {
	text := "Call `foo()` now"
	span := Span{Text: text, Protected: protectComment(text)}
	require.Equal(t, "Call {0} now", span.Masked())

	out, err := span.Unmask("  Appelle {0} maintenant\r\n")
	require.NoError(t, err)
	assert.Equal(t, "Appelle `foo()` maintenant", out)

	_, err = span.Unmask("Appelle maintenant")
	assert.ErrorIs(t, err, ErrPlaceholderMismatch)
	_, err = span.Unmask("{0} {0}")
	assert.ErrorIs(t, err, ErrPlaceholderMismatch)
	_, err = span.Unmask("{0} {7}")
	assert.ErrorIs(t, err, ErrPlaceholderMismatch)
}

func TestSpan_IsEmpty(t *testing.T) {
	assert.True(t, Span{Text: "   "}.IsEmpty())
	assert.True(t, Span{Text: "-----"}.IsEmpty())
	assert.False(t, Span{Text: "TODO"}.IsEmpty())
}

func TestCategory_RoundTrip(t *testing.T) {
	for _, c := range []Category{Opaque, Markdown, GrammarCategory("rust")} {
		parsed, err := ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := ParseCategory("grammar:")
	assert.Error(t, err)
}

func TestValidate_RejectsOverlap(t *testing.T) {
	content := []byte("abcdef")
	spans := []Span{
		{Start: 0, End: 3, Text: "abc"},
		{Start: 2, End: 4, Text: "cd"},
	}
	assert.ErrorIs(t, validate(content, spans, nil), ErrInvalidLayout)
}
