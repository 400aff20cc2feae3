package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/morler/repo-translate/constants/lipgloss"
	"github.com/morler/repo-translate/translation_memory"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// resetCacheCmd represents the reset-cache command
var resetCacheCmd = &cobra.Command{
	Use:   "reset-cache",
	Short: "Reset the translation memory",
	Long: `The 'reset-cache' command removes every remembered translation from the configured
translation memory, for all providers, models and target languages. The next run sends every
span to the provider again. Use --stats to inspect the memory without clearing it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		stats, _ := cmd.Flags().GetBool("stats")

		rootDependencies, err := handleRootCommand(cmd)
		if err != nil {
			return err
		}
		return handleResetCacheCommand(cmd.Context(), rootDependencies, force, stats)
	},
}

func init() {
	resetCacheCmd.Flags().BoolP("force", "f", false, "Force cache reset without confirmation")
	resetCacheCmd.Flags().BoolP("stats", "s", false, "Show cache statistics instead of resetting")

	rootCmd.AddCommand(resetCacheCmd)
}

func handleResetCacheCommand(ctx context.Context, rootDependencies *RootDependencies, force bool, showStats bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	settings := rootDependencies.Config.Settings()

	store, err := translation_memory.NewStore(settings.CacheBackend, settings.CacheDir,
		translation_memory.Scope(settings.Provider, settings.Model))
	if err != nil {
		return fmt.Errorf("open translation memory: %w", err)
	}
	if store == nil {
		fmt.Println(lipgloss.Yellow.Render("Cache is disabled. No cache to reset."))
		return nil
	}
	defer store.Close()

	if showStats {
		fmt.Println(lipgloss.Info.Render("Cache Statistics:"))
		cacheStats, err := store.Stats(ctx)
		if err != nil {
			fmt.Println(lipgloss.Yellow.Render(fmt.Sprintf("Warning: Could not show statistics: %v", err)))
			return nil
		}
		fmt.Printf("  Backend: %v\n", cacheStats["backend"])
		if dir, ok := cacheStats["cache_dir"].(string); ok {
			fmt.Printf("  Cache Directory: %s\n", dir)
		}
		if path, ok := cacheStats["cache_path"].(string); ok {
			fmt.Printf("  Database: %s\n", path)
		}
		if files, ok := cacheStats["cache_files"].(int); ok {
			fmt.Printf("  Cached Entries: %d\n", files)
		}
		if entries, ok := cacheStats["cache_entries"].(int64); ok {
			fmt.Printf("  Cached Entries: %d\n", entries)
		}
		if entries, ok := cacheStats["scope_entries"].(int64); ok {
			fmt.Printf("  Entries for %s: %d\n", translation_memory.Scope(settings.Provider, settings.Model), entries)
		}
		if size, ok := cacheStats["total_size"].(int64); ok {
			fmt.Printf("  Total Size: %.2f MB\n", float64(size)/(1024*1024))
		}
		return nil
	}

	if !force {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Are you sure you want to reset the entire translation memory? (y/N): ")
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println(lipgloss.Yellow.Render("Cache reset cancelled."))
			return nil
		}
	}

	spinner := pterm.DefaultSpinner.WithStyle(pterm.NewStyle(pterm.FgCyan)).
		WithSequence("⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏").
		WithDelay(100).WithRemoveWhenDone(true)

	spinnerInstance, _ := spinner.Start("Resetting translation memory...")
	err = store.Clear(ctx)
	if spinnerInstance != nil {
		_ = spinnerInstance.Stop()
	}
	fmt.Print("\r")
	if err != nil {
		return fmt.Errorf("error resetting cache: %w", err)
	}

	fmt.Println(lipgloss.Green.Render("✓ Translation memory has been successfully reset!"))
	return nil
}
