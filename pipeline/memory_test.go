package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/morler/repo-translate/gateway"
	provider_contracts "github.com/morler/repo-translate/providers/contracts"
	"github.com/morler/repo-translate/translation_memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider answers the n-th call with answers[n-1].
type scriptedProvider struct {
	mu      sync.Mutex
	calls   int
	answers [][]string
}

func (p *scriptedProvider) Name() string  { return "stub" }
func (p *scriptedProvider) Model() string { return "stub-model" }

func (p *scriptedProvider) TranslateBatch(ctx context.Context, req provider_contracts.Request) (*provider_contracts.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	answer := p.answers[len(p.answers)-1]
	if p.calls < len(p.answers) {
		answer = p.answers[p.calls]
	}
	p.calls++
	return &provider_contracts.Response{Texts: answer}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestRun_RejectedTranslationIsNotRemembered(t *testing.T) {
	source := "Run `make build` now.\n"
	in := writeTree(t, map[string]string{"README.md": source})

	store, err := translation_memory.NewFileStore(t.TempDir(), "stub/stub-model")
	require.NoError(t, err)
	defer store.Close()

	p := &scriptedProvider{answers: [][]string{
		{"Lancez maintenant."},
		{"Lancez {0} maintenant."},
	}}
	translator, err := gateway.New(gateway.Options{Provider: p, Policy: gateway.RetryPolicy{MaxAttempts: 1}, Memory: store})
	require.NoError(t, err)

	run := func() (string, *Report) {
		out := filepath.Join(t.TempDir(), "out")
		o, err := New(Options{Settings: testSettings(), Translator: translator, Memory: store})
		require.NoError(t, err)
		report, err := o.Run(context.Background(), in, out)
		require.NoError(t, err)
		return readOut(t, out, "README.md"), report
	}

	// the first answer loses the code span and falls back
	got, report := run()
	assert.Equal(t, source, got)
	res, ok := report.File("README.md")
	require.True(t, ok)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, 1, p.callCount())

	_, found, err := store.Get(context.Background(), "fr", "Run {0} now.")
	require.NoError(t, err)
	assert.False(t, found)

	got, report = run()
	assert.Equal(t, "Lancez `make build` maintenant.\n", got)
	res, ok = report.File("README.md")
	require.True(t, ok)
	assert.Equal(t, StatusTranslated, res.Status)
	assert.Equal(t, 2, p.callCount())

	// the accepted answer is served from memory
	got, _ = run()
	assert.Equal(t, "Lancez `make build` maintenant.\n", got)
	assert.Equal(t, 2, p.callCount())
}
