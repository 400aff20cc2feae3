package cmd

import (
	"fmt"
	"os"

	"github.com/morler/repo-translate/config"
	"github.com/morler/repo-translate/constants/lipgloss"
	"github.com/morler/repo-translate/token_management"
	contracts_token "github.com/morler/repo-translate/token_management/contracts"
	"github.com/morler/repo-translate/utils"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// RootDependencies holds what every subcommand needs: the resolved
// configuration, the logger and the token counters.
type RootDependencies struct {
	Cwd             string
	Config          *config.Config
	Logger          *pterm.Logger
	TokenManagement contracts_token.ITokenManagement
}

var rootCmd = &cobra.Command{
	Use:   "repo-translate",
	Short: "Translate the comments and documentation of a repository",
	Long: `repo-translate mirrors a repository into a new directory, translating code comments,
docstrings and markdown prose through an AI provider. Everything outside those spans is
copied byte for byte, so the translated tree builds and runs exactly like the original.`,
	Version:       config.DefaultConfig.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, lipgloss.Red.Render(err.Error()))
		os.Exit(1)
	}
}

func init() {
	config.InitFlags(rootCmd)
	rootCmd.AddCommand(versionCmd)
}

// handleRootCommand loads the configuration and builds the shared
// dependencies.
func handleRootCommand(cmd *cobra.Command) (*RootDependencies, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("error getting current working directory: %w", err)
	}

	cfg, err := config.LoadConfigs(cmd, cwd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := utils.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	for _, file := range cfg.ConfigFiles {
		logger.Debug("loaded configuration file", logger.Args("file", file))
	}

	return &RootDependencies{
		Cwd:             cwd,
		Config:          cfg,
		Logger:          logger,
		TokenManagement: token_management.NewTokenManager(),
	}, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of repo-translate",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(lipgloss.BlueSky.Render("repo-translate " + config.DefaultConfig.Version))
	},
}
