package cmd

import (
	"testing"

	"github.com/morler/repo-translate/extractor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageRows(t *testing.T) {
	rows := languageRows()
	require.Len(t, rows, len(commonLanguages)+1)
	assert.Equal(t, []string{"fr", "French", "français"}, rows[5])
}

func TestProviderRows(t *testing.T) {
	rows := providerRows()
	require.Greater(t, len(rows), 1)

	byName := make(map[string][]string)
	for _, row := range rows[1:] {
		byName[row[0]] = row
	}
	assert.Equal(t, "ollama", byName["ollama"][3])
	assert.Equal(t, "openai", byName["deepseek"][3])
	assert.Equal(t, "(required)", byName["custom"][1])
}

func TestHighlightLanguage(t *testing.T) {
	assert.Equal(t, "python", highlightLanguage(&extractor.TranslationUnit{Category: extractor.GrammarCategory("python")}))
	assert.Equal(t, "markdown", highlightLanguage(&extractor.TranslationUnit{Category: extractor.Markdown}))
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"translate", "languages", "providers", "reset-cache", "version"} {
		assert.True(t, names[want], want)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("target"))
}
