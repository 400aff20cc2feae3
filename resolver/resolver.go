// Package resolver decides which extraction strategy applies to a file.
package resolver

import (
	"bytes"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/morler/repo-translate/extractor"
	"github.com/morler/repo-translate/utils"
)

// SniffLen is how many leading bytes Resolve needs to tell text from binary.
const SniffLen = 8000

var extensions = map[string]string{
	".md": "markdown", ".markdown": "markdown", ".mdown": "markdown", ".mkd": "markdown", ".mkdn": "markdown",

	".py": "python", ".pyi": "python", ".pyw": "python",
	".go":  "go",
	".js": "javascript", ".mjs": "javascript", ".cjs": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".mts": "typescript", ".cts": "typescript",
	".tsx":  "tsx",
	".java": "java",
	".cs":   "csharp",
	".c": "c", ".h": "c",
	".cc": "cpp", ".cpp": "cpp", ".cxx": "cpp", ".hpp": "cpp", ".hh": "cpp", ".hxx": "cpp",
	".rs":    "rust",
	".swift": "swift",
	".kt": "kotlin", ".kts": "kotlin",
	".scala": "scala", ".sc": "scala",
	".php": "php",
	".sh": "bash", ".bash": "bash", ".zsh": "bash",
	".rb": "ruby", ".rake": "ruby", ".gemspec": "ruby",
	".lua": "lua",
}

var specialNames = map[string]string{
	"rakefile": "ruby", "gemfile": "ruby", "podfile": "ruby", "vagrantfile": "ruby",
	".bashrc": "bash", ".bash_profile": "bash", ".zshrc": "bash", ".profile": "bash",
}

// chromaNames maps chroma lexer names to grammar names.
var chromaNames = map[string]string{
	"markdown": "markdown", "python": "python", "python 2": "python", "go": "go",
	"javascript": "javascript", "typescript": "typescript", "tsx": "tsx", "java": "java",
	"c#": "csharp", "c": "c", "c++": "cpp", "rust": "rust", "swift": "swift",
	"kotlin": "kotlin", "scala": "scala", "php": "php", "bash": "bash",
	"ruby": "ruby", "lua": "lua",
}

var interpreters = map[string]string{
	"python": "python", "python3": "python", "python2": "python",
	"sh": "bash", "bash": "bash", "zsh": "bash", "dash": "bash",
	"node": "javascript", "deno": "typescript", "ruby": "ruby", "lua": "lua", "php": "php",
}

// Options configures a Resolver.
type Options struct {
	// Grammars lists the grammar names the extractor can handle. Nil allows
	// every built-in name.
	Grammars []string
	// MaxFileSize, when positive, resolves larger files to opaque.
	MaxFileSize int64
	// IgnorePatterns come from the project ignore file.
	IgnorePatterns []string
}

// Resolver maps files to extractor categories. It is safe for concurrent use.
type Resolver struct {
	grammars    map[string]bool
	maxFileSize int64
	patterns    []string
}

func New(opts Options) *Resolver {
	r := &Resolver{maxFileSize: opts.MaxFileSize, patterns: opts.IgnorePatterns}
	if opts.Grammars != nil {
		r.grammars = make(map[string]bool, len(opts.Grammars))
		for _, g := range opts.Grammars {
			r.grammars[g] = true
		}
	}
	return r
}

// Resolve classifies the file at the slash-separated relative path rel. head
// holds up to SniffLen leading bytes of the content.
func (r *Resolver) Resolve(rel string, size int64, head []byte) extractor.Category {
	rel = filepath.ToSlash(rel)
	if utils.IsDefaultIgnored(rel) || utils.IsIgnored(rel, r.patterns) {
		return extractor.Opaque
	}
	if r.maxFileSize > 0 && size > r.maxFileSize {
		return extractor.Opaque
	}
	if size == 0 || IsBinary(head) {
		return extractor.Opaque
	}
	if name := r.byName(rel); name != "" {
		return r.category(name)
	}
	if name := shebang(head); name != "" {
		return r.category(name)
	}
	return extractor.Opaque
}

func (r *Resolver) byName(rel string) string {
	base := path.Base(rel)
	if name, ok := specialNames[strings.ToLower(base)]; ok {
		return name
	}
	if name, ok := extensions[strings.ToLower(path.Ext(base))]; ok {
		return name
	}
	if lexer := lexers.Match(base); lexer != nil {
		return chromaNames[strings.ToLower(lexer.Config().Name)]
	}
	return ""
}

func (r *Resolver) category(name string) extractor.Category {
	if name == "markdown" {
		return extractor.Markdown
	}
	if r.grammars != nil && !r.grammars[name] {
		return extractor.Opaque
	}
	return extractor.GrammarCategory(name)
}

// shebang maps an interpreter line such as "#!/usr/bin/env python3" to a
// grammar name.
func shebang(head []byte) string {
	if !bytes.HasPrefix(head, []byte("#!")) {
		return ""
	}
	line := head[2:]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return ""
	}
	prog := path.Base(fields[0])
	if prog == "env" {
		for _, f := range fields[1:] {
			if !strings.HasPrefix(f, "-") {
				prog = f
				break
			}
		}
	}
	return interpreters[prog]
}

// IsBinary reports whether head looks like binary content: it holds a NUL
// byte or is not valid UTF-8.
func IsBinary(head []byte) bool {
	if len(head) > SniffLen {
		head = head[:SniffLen]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	if utf8.Valid(head) {
		return false
	}
	// a multi-byte rune may be cut at the end of head
	for i := len(head) - 1; i >= 0 && i >= len(head)-utf8.UTFMax; i-- {
		if utf8.RuneStart(head[i]) {
			if !utf8.FullRune(head[i:]) {
				head = head[:i]
			}
			break
		}
	}
	return !utf8.Valid(head)
}
