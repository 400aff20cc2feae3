package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// commonLanguages are the targets listed by the languages command. Any
// other BCP 47 tag is accepted as well.
var commonLanguages = []string{"zh", "en", "ja", "ko", "fr", "de", "es", "pt", "ru", "it", "ar", "hi"}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List common target languages",
	Long: `List common target language codes with their English and native names. Any valid
BCP 47 tag (for example 'pt-BR' or 'zh-Hant') can be passed to --target.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pterm.DefaultTable.WithHasHeader().WithData(languageRows()).Render()
	},
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}

func languageRows() [][]string {
	rows := [][]string{{"Code", "Language", "Native name"}}
	english := display.English.Languages()
	for _, code := range commonLanguages {
		tag := language.MustParse(code)
		rows = append(rows, []string{code, english.Name(tag), display.Self.Name(tag)})
	}
	return rows
}
