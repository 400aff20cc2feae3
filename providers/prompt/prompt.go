package prompt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/morler/repo-translate/embed_data"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrUnparsable is returned when a model answer holds no list of
// translations.
var ErrUnparsable = errors.New("failed to parse translations")

var (
	systemTemplate = template.Must(template.New("system").Parse(embed_data.TranslateSystemPrompt))
	userTemplate   = template.Must(template.New("user").Parse(embed_data.TranslateUserPrompt))

	codeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

type data struct {
	SourceName string
	TargetName string
	Count      int
	Texts      string
}

// LanguageName returns the English display name of a BCP 47 code, or the
// code itself when it is not recognised.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// System renders the system prompt for a batch of count texts.
func System(sourceLang, targetLang string, count int) (string, error) {
	if sourceLang == "" {
		sourceLang = "en"
	}
	var buf bytes.Buffer
	err := systemTemplate.Execute(&buf, data{
		SourceName: LanguageName(sourceLang),
		TargetName: LanguageName(targetLang),
		Count:      count,
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// User renders the user message carrying texts as a JSON array.
func User(texts []string) (string, error) {
	var arr bytes.Buffer
	enc := json.NewEncoder(&arr)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(texts); err != nil {
		return "", fmt.Errorf("encode texts: %w", err)
	}

	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data{Count: len(texts), Texts: strings.TrimSpace(arr.String())}); err != nil {
		return "", fmt.Errorf("render user prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

type envelope struct {
	Translations []string `json:"translations"`
}

// ParseTranslations extracts the translated strings from a model answer. It
// accepts {"translations": [...]} or a bare JSON array, optionally wrapped in
// a markdown code block or surrounded by chatter. The number of entries is
// not checked.
func ParseTranslations(content string) ([]string, error) {
	s := strings.TrimSpace(content)
	if m := codeBlock.FindStringSubmatch(s); len(m) > 1 {
		s = m[1]
	}

	if out, ok := decode(s); ok {
		return out, nil
	}
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		if out, ok := decode(s[i : j+1]); ok {
			return out, nil
		}
	}
	if i, j := strings.Index(s, "["), strings.LastIndex(s, "]"); i >= 0 && j > i {
		if out, ok := decode(s[i : j+1]); ok {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w; content: %s", ErrUnparsable, abbreviate(s, 300))
}

func decode(s string) ([]string, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(s), &env); err == nil && env.Translations != nil {
		return env.Translations, true
	}
	var arr []string
	if err := json.Unmarshal([]byte(s), &arr); err == nil {
		return arr, true
	}
	return nil, false
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
