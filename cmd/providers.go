package cmd

import (
	"github.com/morler/repo-translate/providers"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the built-in provider presets",
	Long: `List the provider presets with their default base URL and model. Select one with
--provider; --base_url and --model override the preset values.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pterm.DefaultTable.WithHasHeader().WithData(providerRows()).Render()
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func providerRows() [][]string {
	rows := [][]string{{"Provider", "Base URL", "Default model", "API"}}
	for _, p := range providers.Presets() {
		api := "openai"
		if p.Native {
			api = "ollama"
		}
		baseURL := p.BaseURL
		if baseURL == "" {
			baseURL = "(required)"
		}
		rows = append(rows, []string{p.Name, baseURL, p.Model, api})
	}
	return rows
}
