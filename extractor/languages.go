package extractor

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/lua"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/scala"
	"github.com/smacker/go-tree-sitter/swift"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// marker describes the delimiters of one comment syntax.
type marker struct {
	open, close string
	block       bool
	doc         bool
	// decorated block comments may start continuation lines with '*'.
	decorated bool
	// quoted markers delimit string literals used as documentation.
	quoted bool
}

func (m marker) kind() Kind {
	switch {
	case m.doc:
		return KindDocComment
	case m.block:
		return KindBlockComment
	default:
		return KindLineComment
	}
}

// commentStyle lists the comment syntaxes of a language, longest first.
type commentStyle struct {
	lines  []marker
	blocks []marker
	// longBrackets enables Lua's --[==[ ... ]==] block comments.
	longBrackets bool
}

func (st commentStyle) classify(text string) (marker, bool) {
	if st.longBrackets {
		if m, ok := luaLongBracket(text); ok {
			return m, true
		}
	}
	for _, m := range st.blocks {
		if len(text) >= len(m.open)+len(m.close) && strings.HasPrefix(text, m.open) && strings.HasSuffix(text, m.close) {
			return m, true
		}
	}
	for _, m := range st.lines {
		if strings.HasPrefix(text, m.open) {
			// a line marker never spans lines; anything else is a syntax
			// this style does not know.
			if strings.ContainsAny(text, "\n") {
				return marker{}, false
			}
			return m, true
		}
	}
	return marker{}, false
}

func luaLongBracket(text string) (marker, bool) {
	if !strings.HasPrefix(text, "--[") {
		return marker{}, false
	}
	level := 0
	for 3+level < len(text) && text[3+level] == '=' {
		level++
	}
	if 3+level >= len(text) || text[3+level] != '[' {
		return marker{}, false
	}
	eq := strings.Repeat("=", level)
	open, close := "--["+eq+"[", "]"+eq+"]"
	if len(text) < len(open)+len(close) || !strings.HasSuffix(text, close) {
		return marker{}, false
	}
	return marker{open: open, close: close, block: true}, true
}

var (
	cStyle = commentStyle{
		lines: []marker{
			{open: "///", doc: true},
			{open: "//!", doc: true},
			{open: "//"},
		},
		blocks: []marker{
			{open: "/**", close: "*/", block: true, doc: true, decorated: true},
			{open: "/*!", close: "*/", block: true, doc: true, decorated: true},
			{open: "/*", close: "*/", block: true, decorated: true},
		},
	}
	goStyle = commentStyle{
		lines:  []marker{{open: "//"}},
		blocks: []marker{{open: "/*", close: "*/", block: true, decorated: true}},
	}
	hashStyle = commentStyle{
		lines: []marker{{open: "#"}},
	}
	rubyStyle = commentStyle{
		lines:  []marker{{open: "#"}},
		blocks: []marker{{open: "=begin", close: "=end", block: true}},
	}
	phpStyle = commentStyle{
		lines:  append(append([]marker{}, cStyle.lines...), marker{open: "#"}),
		blocks: cStyle.blocks,
	}
	luaStyle = commentStyle{
		lines:        []marker{{open: "---", doc: true}, {open: "--"}},
		longBrackets: true,
	}
)

var (
	cFamilyDirectives = []string{
		"// eslint-", "/* eslint", "/*eslint", "//eslint-",
		"// @ts-", "//@ts-", "/// <reference", "/// <amd-",
		"// prettier-ignore", "/* istanbul", "/* c8 ", "// istanbul",
		"// NOLINT", "//NOLINT", "// clang-format", "/* clang-format",
		"// swiftlint:", "// swift-format-", "// #region", "// #endregion",
		"//#region", "//#endregion", "// @formatter:", "// language=",
		"// ReSharper ", "// noinspection", "//noinspection", "// @flow", "/* @flow",
		"// @jsx", "/** @jsx", "/* @jsx", "// jshint", "/* jshint", "/* global ", "/*global ",
	}
	goDirectives = []string{
		"//go:", "// +build", "//+build", "//line ", "/*line ", "//export ", "//extern ",
		"//nolint", "// nolint", "//lint:", "//sys ", "//sysnb ", "//gen:", "//easyjson:",
	}
	hashDirectives = []string{
		"#!", "# -*-", "# vim:", "# vi:", "# type:", "# noqa", "#noqa", "# pylint:", "# fmt:",
		"# pragma:", "# isort:", "# mypy:", "# pyright:", "# ruff:", "# nosec",
		"# shellcheck ", "# frozen_string_literal:", "# rubocop:", "# typed:", "# encoding:",
		"#region", "#endregion", "# region", "# endregion",
	}
	luaDirectives = []string{"---@", "--!strict", "--!nonstrict", "--!nocheck"}
)

var codingCookie = regexp.MustCompile(`^#.*coding[:=]\s*[-\w.]+`)

// pythonCookie matches PEP 263 encoding declarations on the first two lines.
func pythonCookie(text string, line int) bool {
	return line < 2 && codingCookie.MatchString(text)
}

const pythonDocstrings = `
(module . (expression_statement (string) @docstring))
(class_definition body: (block . (expression_statement (string) @docstring)))
(function_definition body: (block . (expression_statement (string) @docstring)))
`

func builtinGrammars() []Grammar {
	cLike := func(name string, lang func() *sitter.Language, extra ...string) *commentGrammar {
		return &commentGrammar{
			name:       name,
			language:   lang,
			style:      cStyle,
			directives: append(append([]string{}, cFamilyDirectives...), extra...),
		}
	}
	splicing := func(g *commentGrammar) *commentGrammar {
		g.lineSplice = true
		return g
	}
	nesting := func(g *commentGrammar) *commentGrammar {
		g.nestedBlocks = true
		return g
	}

	return []Grammar{
		&commentGrammar{
			name:       "python",
			language:   python.GetLanguage,
			style:      hashStyle,
			docstrings: pythonDocstrings,
			directives: hashDirectives,
			cookie:     pythonCookie,
		},
		&commentGrammar{
			name:       "go",
			language:   golang.GetLanguage,
			style:      goStyle,
			directives: goDirectives,
		},
		cLike("javascript", javascript.GetLanguage),
		cLike("typescript", typescript.GetLanguage),
		cLike("tsx", tsx.GetLanguage),
		cLike("java", java.GetLanguage),
		cLike("csharp", csharp.GetLanguage, "// <auto-generated", "//<auto-generated"),
		splicing(cLike("c", c.GetLanguage)),
		splicing(cLike("cpp", cpp.GetLanguage)),
		nesting(cLike("rust", rust.GetLanguage, "// rustfmt::", "//rustfmt::")),
		nesting(cLike("swift", swift.GetLanguage)),
		nesting(cLike("kotlin", kotlin.GetLanguage, "//noinspection", "// ktlint-")),
		nesting(cLike("scala", scala.GetLanguage, "// scalafmt:", "// scalastyle:")),
		&commentGrammar{
			name:       "php",
			language:   php.GetLanguage,
			style:      phpStyle,
			directives: append(append([]string{}, cFamilyDirectives...), "// phpcs:", "# phpcs:", "// @phpstan-", "/** @var", "/* @var"),
			// "?>" leaves PHP mode even inside a line comment.
			lineForbidden: []string{"?>"},
		},
		&commentGrammar{
			name:       "bash",
			language:   bash.GetLanguage,
			style:      hashStyle,
			directives: hashDirectives,
		},
		&commentGrammar{
			name:       "ruby",
			language:   ruby.GetLanguage,
			style:      rubyStyle,
			directives: hashDirectives,
		},
		&commentGrammar{
			name:       "lua",
			language:   lua.GetLanguage,
			style:      luaStyle,
			directives: luaDirectives,
		},
	}
}
