package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/morler/repo-translate/batcher"
	"github.com/morler/repo-translate/extractor"
	"github.com/morler/repo-translate/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTranslator answers every batch with fn.
type stubTranslator struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, texts []string) ([]string, error)
}

func (s *stubTranslator) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.fn(call, texts)
}

func mapTexts(f func(string) string) *stubTranslator {
	return &stubTranslator{fn: func(_ int, texts []string) ([]string, error) {
		out := make([]string, len(texts))
		for i, t := range texts {
			out[i] = f(t)
		}
		return out, nil
	}}
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func readOut(t *testing.T, out, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func testSettings() Settings {
	return Settings{
		TargetLang:       "fr",
		Limits:           batcher.Limits{MaxItems: 10},
		Concurrency:      2,
		DrainOnCancel:    true,
		CoalesceComments: true,
	}
}

func newTestOrchestrator(t *testing.T, settings Settings, tr *stubTranslator) *Orchestrator {
	t.Helper()
	opts := Options{Settings: settings}
	if tr != nil {
		opts.Translator = tr
	}
	o, err := New(opts)
	require.NoError(t, err)
	return o
}

func TestRun_DocstringEndToEnd(t *testing.T) {
	source := "def add(a, b):\n    \"\"\"Adds two numbers.\"\"\"\n    return a + b\n"
	binary := "\x00\x01\x02binary"
	in := writeTree(t, map[string]string{
		"calc.py":  source,
		"data.bin": binary,
	})
	out := filepath.Join(t.TempDir(), "out")

	tr := mapTexts(func(s string) string {
		if s == "Adds two numbers." {
			return "Additionne deux nombres."
		}
		return s
	})
	report, err := newTestOrchestrator(t, testSettings(), tr).Run(context.Background(), in, out)
	require.NoError(t, err)

	assert.Equal(t, strings.Replace(source, "Adds two numbers.", "Additionne deux nombres.", 1), readOut(t, out, "calc.py"))
	assert.Equal(t, binary, readOut(t, out, "data.bin"))

	calc, ok := report.File("calc.py")
	require.True(t, ok)
	assert.Equal(t, StatusTranslated, calc.Status)
	assert.Equal(t, "grammar:python", calc.Category)
	assert.Equal(t, 1, calc.Translated)

	data, ok := report.File("data.bin")
	require.True(t, ok)
	assert.Equal(t, StatusPassthrough, data.Status)
	assert.NoError(t, report.Err())
}

func TestRun_FailingGatewayWritesOriginalBytes(t *testing.T) {
	source := "package a\n\n// One.\nfunc A() {}\n\n// Two.\nfunc B() {}\n\n// Three.\nfunc C() {}\n"
	in := writeTree(t, map[string]string{"a.go": source})
	out := filepath.Join(t.TempDir(), "out")

	tr := &stubTranslator{fn: func(_ int, texts []string) ([]string, error) {
		return nil, &gateway.ExhaustedError{Attempts: 3, Last: errors.New("503")}
	}}
	settings := testSettings()
	settings.Limits = batcher.Limits{MaxItems: 1}
	report, err := newTestOrchestrator(t, settings, tr).Run(context.Background(), in, out)
	require.NoError(t, err)

	assert.Equal(t, source, readOut(t, out, "a.go"))
	res, ok := report.File("a.go")
	require.True(t, ok)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, 3, res.Spans)
	assert.Len(t, res.Fallbacks, 3)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 3, report.FailedBatches)
	assert.Equal(t, 3, tr.calls)
}

func TestRun_MarkdownFenceIsolation(t *testing.T) {
	doc := "prose before\n\n```go\ncode_keyword // not a comment in this context\n```\n\nprose after\n"
	in := writeTree(t, map[string]string{"doc.md": doc})
	out := filepath.Join(t.TempDir(), "out")

	report, err := newTestOrchestrator(t, testSettings(), mapTexts(strings.ToUpper)).Run(context.Background(), in, out)
	require.NoError(t, err)

	assert.Equal(t,
		"PROSE BEFORE\n\n```go\ncode_keyword // not a comment in this context\n```\n\nPROSE AFTER\n",
		readOut(t, out, "doc.md"))
	assert.Equal(t, 1, report.Count(StatusTranslated))
}

func TestRun_ProtocolViolationIsolatedToBatch(t *testing.T) {
	in := writeTree(t, map[string]string{
		"a.py": "# bad comment\nx = 1\n",
		"b.py": "# good comment\ny = 2\n",
	})
	out := filepath.Join(t.TempDir(), "out")

	tr := &stubTranslator{fn: func(_ int, texts []string) ([]string, error) {
		if texts[0] == "bad comment" {
			return []string{}, nil
		}
		return []string{"bon commentaire"}, nil
	}}
	settings := testSettings()
	settings.Limits = batcher.Limits{MaxItems: 1}
	report, err := newTestOrchestrator(t, settings, tr).Run(context.Background(), in, out)
	require.NoError(t, err)

	a, _ := report.File("a.py")
	b, _ := report.File("b.py")
	assert.Equal(t, StatusPartial, a.Status)
	require.Len(t, a.Fallbacks, 1)
	assert.Contains(t, a.Fallbacks[0].Reason, "response size does not match")
	assert.Equal(t, "# bad comment\nx = 1\n", readOut(t, out, "a.py"))

	assert.Equal(t, StatusTranslated, b.Status)
	assert.Equal(t, "# bon commentaire\ny = 2\n", readOut(t, out, "b.py"))
}

func TestRun_SpansOfOneFileAcrossBatches(t *testing.T) {
	source := "package a\n\n// one\nvar A = 1\n\n// two\nvar B = 2\n\n// three\nvar C = 3\n"
	in := writeTree(t, map[string]string{"a.go": source})
	out := filepath.Join(t.TempDir(), "out")

	settings := testSettings()
	settings.Limits = batcher.Limits{MaxItems: 1}
	settings.Concurrency = 3
	report, err := newTestOrchestrator(t, settings, mapTexts(strings.ToUpper)).Run(context.Background(), in, out)
	require.NoError(t, err)

	assert.Equal(t, strings.NewReplacer("// one", "// ONE", "// two", "// TWO", "// three", "// THREE").Replace(source),
		readOut(t, out, "a.go"))
	res, _ := report.File("a.go")
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, StatusTranslated, res.Status)
}

func TestRun_Preview(t *testing.T) {
	in := writeTree(t, map[string]string{
		"README.md": "# Title\n\nSome prose.\n",
		"main.go":   "package main\n\n// Entry point.\nfunc main() {}\n",
		"logo.png":  "\x89PNG",
	})
	out := filepath.Join(t.TempDir(), "out")

	settings := testSettings()
	settings.Preview = true
	settings.Provider = "openai"
	settings.Model = "gpt-4o-mini"
	var seen []string
	o, err := New(Options{Settings: settings, OnUnit: func(u *extractor.TranslationUnit) { seen = append(seen, u.Path) }})
	require.NoError(t, err)
	report, err := o.Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "main.go"}, seen)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "preview must not write output")

	assert.Equal(t, 2, report.Count(StatusPreviewed))
	assert.Equal(t, 1, report.Count(StatusPassthrough))
	require.NotNil(t, report.Estimate)
	assert.Equal(t, 2, report.Estimate.Files)
	assert.Equal(t, 3, report.Estimate.Spans)
	assert.Equal(t, 1, report.Estimate.Batches)
	assert.Positive(t, report.Estimate.InputTokens)
	assert.Positive(t, report.Estimate.Cost)
}

func TestRun_CancelWithoutDrainWritesNothingPartial(t *testing.T) {
	in := writeTree(t, map[string]string{
		"a.py":     "# first\nx = 1\n",
		"b.py":     "# second\ny = 2\n",
		"notes.md": "```\nonly code\n```\n",
	})
	out := filepath.Join(t.TempDir(), "out")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &stubTranslator{fn: func(_ int, texts []string) ([]string, error) {
		cancel()
		return nil, context.Canceled
	}}
	settings := testSettings()
	settings.Limits = batcher.Limits{MaxItems: 1}
	settings.Concurrency = 1
	settings.DrainOnCancel = false
	report, err := newTestOrchestrator(t, settings, tr).Run(ctx, in, out)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	assert.True(t, report.Canceled)
	assert.Equal(t, 2, report.Count(StatusAbandoned))
	assert.NoFileExists(t, filepath.Join(out, "a.py"))
	assert.NoFileExists(t, filepath.Join(out, "b.py"))
	// files finished before the cancellation stay on disk
	assert.Equal(t, "```\nonly code\n```\n", readOut(t, out, "notes.md"))
}

func TestRun_CancelWithDrainFinishesInFlightBatch(t *testing.T) {
	in := writeTree(t, map[string]string{
		"a.py": "# first\nx = 1\n",
		"b.py": "# second\ny = 2\n",
	})
	out := filepath.Join(t.TempDir(), "out")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &stubTranslator{fn: func(_ int, texts []string) ([]string, error) {
		cancel()
		return []string{"premier"}, nil
	}}
	settings := testSettings()
	settings.Limits = batcher.Limits{MaxItems: 1}
	settings.Concurrency = 1
	report, err := newTestOrchestrator(t, settings, tr).Run(ctx, in, out)
	require.ErrorIs(t, err, context.Canceled)

	a, _ := report.File("a.py")
	b, _ := report.File("b.py")
	assert.Equal(t, StatusTranslated, a.Status)
	assert.Equal(t, "# premier\nx = 1\n", readOut(t, out, "a.py"))
	assert.Equal(t, StatusAbandoned, b.Status)
	assert.NoFileExists(t, filepath.Join(out, "b.py"))
	assert.Equal(t, 1, tr.calls)
}

func TestRun_SkipsOutputAndVCS(t *testing.T) {
	in := writeTree(t, map[string]string{
		"a.md":      "Hello.\n",
		".git/HEAD": "ref: refs/heads/main\n",
		"sub/b.md":  "World.\n",
	})
	out := filepath.Join(in, "translated")

	o := newTestOrchestrator(t, testSettings(), mapTexts(strings.ToUpper))
	_, err := o.Run(context.Background(), in, out)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), in, out)
	require.NoError(t, err)
	for _, f := range report.Files {
		assert.False(t, strings.HasPrefix(f.Path, "translated/"), f.Path)
		assert.False(t, strings.HasPrefix(f.Path, ".git/"), f.Path)
	}
	assert.Len(t, report.Files, 2)
	assert.Equal(t, "WORLD.\n", readOut(t, out, "sub/b.md"))
	assert.NoFileExists(t, filepath.Join(out, ".git", "HEAD"))
}

func TestRun_RejectsOutputContainingInput(t *testing.T) {
	parent := t.TempDir()
	in := filepath.Join(parent, "repo")
	require.NoError(t, os.MkdirAll(in, 0o755))

	o := newTestOrchestrator(t, testSettings(), mapTexts(strings.ToUpper))
	_, err := o.Run(context.Background(), in, parent)
	assert.Error(t, err)
	_, err = o.Run(context.Background(), in, in)
	assert.Error(t, err)
}

func TestNew_RequiresTranslatorOutsidePreview(t *testing.T) {
	_, err := New(Options{Settings: testSettings()})
	assert.Error(t, err)

	settings := testSettings()
	settings.TargetLang = ""
	_, err = New(Options{Settings: settings, Translator: mapTexts(strings.ToUpper)})
	assert.Error(t, err)
}

func TestReport_JSONAndErr(t *testing.T) {
	report := &Report{TargetLang: "fr", Files: []FileResult{
		{Path: "a.go", Status: StatusTranslated},
		{Path: "b.go", Status: StatusErrored, Error: "permission denied", err: os.ErrPermission},
	}}
	assert.ErrorIs(t, report.Err(), os.ErrPermission)
	assert.Equal(t, "1 translated, 0 partial, 0 passthrough, 0 previewed, 0 abandoned, 1 errored", report.String())

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, report.WriteJSON(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "fr", decoded["target_lang"])
	files := decoded["files"].([]any)
	assert.Equal(t, "errored", files[1].(map[string]any)["status"])
}
