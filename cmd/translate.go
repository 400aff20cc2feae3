package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/morler/repo-translate/constants/lipgloss"
	"github.com/morler/repo-translate/extractor"
	"github.com/morler/repo-translate/gateway"
	"github.com/morler/repo-translate/pipeline"
	"github.com/morler/repo-translate/providers"
	"github.com/morler/repo-translate/resolver"
	"github.com/morler/repo-translate/translation_memory"
	memory_contracts "github.com/morler/repo-translate/translation_memory/contracts"
	"github.com/morler/repo-translate/utils"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// translateCmd: repo-translate translate <input>
var translateCmd = &cobra.Command{
	Use:   "translate <input>",
	Short: "Translate a repository into a parallel output directory",
	Long: `The 'translate' command walks <input>, extracts the comments, docstrings and markdown prose
of every supported file, translates them in batches and writes the result under the output
directory ('<input>-<target>' unless --output is given). Unsupported and binary files are copied
unchanged. With --preview nothing is sent or written; the command reports what would be translated
and an estimated cost instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rootDependencies, err := handleRootCommand(cmd)
		if err != nil {
			return err
		}
		showConfig, _ := cmd.Flags().GetBool("show-config")
		showSpans, _ := cmd.Flags().GetBool("show-spans")
		reportPath, _ := cmd.Flags().GetString("report")

		if showConfig {
			return printConfig(rootDependencies)
		}
		return handleTranslateCommand(rootDependencies, args[0], showSpans, reportPath)
	},
}

func init() {
	translateCmd.Flags().Bool("show-config", false, "Print the resolved configuration and exit")
	translateCmd.Flags().Bool("show-spans", false, "Print every extracted span with highlighting before batching")
	translateCmd.Flags().String("report", "", "Write the run report as JSON to this file")

	rootCmd.AddCommand(translateCmd)
}

func printConfig(rootDependencies *RootDependencies) error {
	data, err := json.MarshalIndent(rootDependencies.Config.Redacted(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func handleTranslateCommand(rootDependencies *RootDependencies, input string, showSpans bool, reportPath string) error {
	cfg := rootDependencies.Config
	logger := rootDependencies.Logger
	settings := cfg.Settings()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	input, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	output := cfg.OutputDir(input)

	patterns, err := utils.GetIgnorePatterns(input)
	if err != nil {
		logger.Warn("could not read ignore file", logger.Args("error", err))
	}
	registry := extractor.NewRegistry(extractor.Options{CoalesceComments: settings.CoalesceComments})
	fileResolver := resolver.New(resolver.Options{
		Grammars:       registry.Names(),
		MaxFileSize:    settings.MaxFileSize,
		IgnorePatterns: patterns,
	})

	opts := pipeline.Options{
		Settings:  settings,
		Extractor: registry,
		Resolver:  fileResolver,
		Tokens:    rootDependencies.TokenManagement,
		Logger:    logger,
	}

	if !settings.Preview {
		memory, err := openMemory(settings)
		if err != nil {
			logger.Warn("translation memory unavailable, continuing without it", logger.Args("error", err))
		}
		if memory != nil {
			defer memory.Close()
		}

		provider, err := providers.NewTranslationProvider(cfg.AIProviderConfig, settings.CallTimeout)
		if err != nil {
			return err
		}
		translator, err := gateway.New(gateway.Options{
			Provider:    provider,
			Policy:      settings.Retry,
			Limiter:     gateway.NewLimiter(settings.Concurrency, settings.RequestsPerMinute),
			CallTimeout: settings.CallTimeout,
			SourceLang:  settings.SourceLang,
			Memory:      memory,
			Tokens:      rootDependencies.TokenManagement,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		opts.Translator = translator
		opts.Memory = memory
	}

	if showSpans {
		opts.OnUnit = func(unit *extractor.TranslationUnit) {
			if err := utils.RenderSpans(ctx, os.Stdout, unit, highlightLanguage(unit), cfg.Theme); err != nil {
				logger.Debug("span preview stopped", logger.Args("error", err))
			}
		}
	} else if cfg.LogFormat == "text" {
		progress := &progressBar{}
		opts.OnStart = progress.start
		opts.OnFile = progress.file
		defer progress.stop()
	}

	orchestrator, err := pipeline.New(opts)
	if err != nil {
		return err
	}

	report, runErr := orchestrator.Run(ctx, input, output)
	if report == nil {
		return runErr
	}

	printSummary(report)
	if settings.Preview && report.Estimate != nil {
		rootDependencies.TokenManagement.DisplayEstimate(settings.Provider, settings.Model, report.Estimate.InputTokens, report.Estimate.OutputTokens)
	} else {
		rootDependencies.TokenManagement.DisplayTokens(settings.Provider, settings.Model)
	}

	if reportPath != "" {
		if err := report.WriteJSON(reportPath); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Println(lipgloss.Muted.Render("Report written to " + reportPath))
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			fmt.Println(lipgloss.Yellow.Render("Interrupted: abandoned files were not written."))
		}
		return runErr
	}
	if !settings.Preview {
		fmt.Println(lipgloss.Green.Render("✓ Output written to " + report.Output))
	}
	return report.Err()
}

func openMemory(settings pipeline.Settings) (memory_contracts.IStore, error) {
	if !settings.EnableCache {
		return nil, nil
	}
	return translation_memory.NewStore(settings.CacheBackend, settings.CacheDir,
		translation_memory.Scope(settings.Provider, settings.Model))
}

// highlightLanguage picks the chroma lexer name for a unit.
func highlightLanguage(unit *extractor.TranslationUnit) string {
	if unit.Category.Kind == extractor.CategoryGrammar {
		return unit.Category.Grammar
	}
	return string(unit.Category.Kind)
}

// progressBar adapts the pipeline callbacks to a pterm progress bar. The
// callbacks arrive from several goroutines.
type progressBar struct {
	mutex sync.Mutex
	bar   *pterm.ProgressbarPrinter
}

func (p *progressBar) start(files int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if files == 0 {
		return
	}
	bar, err := pterm.DefaultProgressbar.WithTotal(files).WithTitle("Translating").WithRemoveWhenDone(true).Start()
	if err == nil {
		p.bar = bar
	}
}

func (p *progressBar) file(res pipeline.FileResult) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.bar == nil {
		return
	}
	p.bar.UpdateTitle(res.Path)
	p.bar.Increment()
}

func (p *progressBar) stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.bar != nil {
		_, _ = p.bar.Stop()
		p.bar = nil
	}
}

// printSummary renders the status counts and every file that did not
// translate cleanly.
func printSummary(report *pipeline.Report) {
	counts := [][]string{{"Status", "Files"}}
	for _, status := range pipeline.Statuses {
		if n := report.Count(status); n > 0 {
			counts = append(counts, []string{string(status), strconv.Itoa(n)})
		}
	}
	_ = pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(counts).Render()

	problems := [][]string{{"File", "Status", "Detail"}}
	for _, f := range report.Files {
		switch f.Status {
		case pipeline.StatusPartial:
			problems = append(problems, []string{f.Path, string(f.Status), fmt.Sprintf("%d of %d spans kept original text", len(f.Fallbacks), f.Spans)})
		case pipeline.StatusErrored, pipeline.StatusAbandoned:
			detail := f.Reason
			if f.Error != "" {
				detail = f.Error
			}
			problems = append(problems, []string{f.Path, string(f.Status), detail})
		}
	}
	if len(problems) > 1 {
		_ = pterm.DefaultTable.WithHasHeader().WithData(problems).Render()
	}

	if report.Preview && report.Estimate != nil {
		est := report.Estimate
		fmt.Println(lipgloss.Info.Render(fmt.Sprintf("Preview: %d spans in %d files, %d batches, %d characters",
			est.Spans, est.Files, est.Batches, est.Chars)))
	} else if report.Batches > 0 {
		fmt.Println(lipgloss.Info.Render(fmt.Sprintf("%d batches sent, %d failed", report.Batches, report.FailedBatches)))
	}
}
