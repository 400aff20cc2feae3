package extractor

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// frontMatterKeys are the front-matter fields whose values are prose.
var frontMatterKeys = map[string]bool{
	"title":         true,
	"subtitle":      true,
	"description":   true,
	"summary":       true,
	"excerpt":       true,
	"sidebar_label": true,
}

// yamlPlainUnsafe lists bytes that change the meaning of a plain YAML
// scalar when they lead it.
const yamlPlainUnsafe = "-?:,[]{}#&*!|>'\"%@`"

// frontMatter skips a leading YAML front-matter block, turning the values of
// prose fields into spans. It returns the index of the first body line.
func (s *mdScanner) frontMatter() int {
	if len(s.lines) == 0 || strings.TrimRight(s.text(0), " \t") != "---" {
		return 0
	}
	for j := 1; j < len(s.lines); j++ {
		if t := strings.TrimRight(s.text(j), " \t"); t == "---" || t == "..." {
			s.frontMatterValues(1, j)
			return j + 1
		}
	}
	return 0
}

func (s *mdScanner) frontMatterValues(from, to int) {
	if from >= to {
		return
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(s.content[s.lines[from].start:s.lines[to].start], &doc); err != nil {
		return
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return
	}
	pairs := doc.Content[0].Content
	for k := 0; k+1 < len(pairs); k += 2 {
		key, val := pairs[k], pairs[k+1]
		if !frontMatterKeys[strings.ToLower(key.Value)] || val.Kind != yaml.ScalarNode || val.ShortTag() != "!!str" {
			continue
		}
		line := from + key.Line - 1
		if line < from || line >= to || val.Line != key.Line {
			continue
		}
		s.frontMatterScalar(line, key.Value, val)
	}
}

func (s *mdScanner) frontMatterScalar(i int, key string, val *yaml.Node) {
	ln := s.lines[i]
	text := s.text(i)
	if !strings.HasPrefix(text, key) || !strings.HasPrefix(text[len(key):], ":") {
		return
	}
	valStart := len(key) + 1
	for valStart < len(text) && isBlank(text[valStart]) {
		valStart++
	}
	raw := strings.TrimRight(text[valStart:], " \t")
	if raw == "" {
		return
	}

	f := frame{
		start:      ln.start + valStart,
		end:        ln.start + valStart + len(raw),
		kind:       KindProse,
		singleLine: true,
	}
	inner := bodyRange{f.start + 1, f.end - 1}
	switch val.Style {
	case yaml.DoubleQuotedStyle:
		if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' || strings.Contains(raw[1:len(raw)-1], `\`) {
			return
		}
		f.closer, f.forbidden = `"`, []string{`\`}
	case yaml.SingleQuotedStyle:
		if len(raw) < 2 || raw[0] != '\'' || raw[len(raw)-1] != '\'' || strings.Contains(raw[1:len(raw)-1], "''") {
			return
		}
		f.closer = "'"
	case 0:
		if raw != val.Value {
			return
		}
		inner = bodyRange{f.start, f.end}
		f.forbidden = []string{": ", " #", "\t"}
		f.noLeading = yamlPlainUnsafe
	default:
		return
	}
	if string(s.content[inner.start:inner.end]) != val.Value {
		return
	}
	f.bodies = []bodyRange{inner}
	s.addSpan(f, true)
}
