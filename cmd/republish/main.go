// Command republish drives the AI-content-republishing pipeline from the
// CLI: extract/translate/optimise (URL import) or create (topic), both
// bounded by the detect-optimise loop against an external AI detector.
// Grounded on the teacher's cmd/webstalk/main.go cobra structure
// (root command + subcommands, package-level flag vars, setupLogger,
// config.Load -> config.ApplyPresetName -> config.Validate). There is no
// HTTP server here: every subcommand drives the orchestrator in-process.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kaiven11/artical-generate/internal/config"
)

var (
	cfgFile string
	verbose bool

	presetFlag string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "republish",
		Short: "republish — AI-content republishing pipeline",
		Long: `republish takes a source URL or a topic prompt through
extract/translate/optimise/create, rewriting content via an LLM and
checking it against an AI detector until it passes, while an identity
and proxy rotation controller works around the detector's per-identity
quotas and verification challenges.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&presetFlag, "performance-preset", "", "performance preset: ultra_fast, balanced, stable")

	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(retryCmd())
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("republish %s\n", config.Version)
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("AI Detection:\n")
			fmt.Printf("  Threshold:          %.0f\n", cfg.AIDetection.Threshold)
			fmt.Printf("\nAI Optimization:\n")
			fmt.Printf("  Max Attempts:       %d\n", cfg.AIOptimization.MaxAttempts)
			fmt.Printf("  Retry Delay:        %ds\n", cfg.AIOptimization.RetryDelaySeconds)
			fmt.Printf("\nPerformance:\n")
			fmt.Printf("  Detection Timeout:  %ds\n", cfg.Performance.AIDetectionTimeout)
			fmt.Printf("  Browser Startup:    %.1fs\n", cfg.Performance.BrowserStartupWait)
			fmt.Printf("  Page Load Wait:     %.1fs\n", cfg.Performance.PageLoadWait)
			fmt.Printf("  Element Find:       %ds\n", cfg.Performance.ElementFindTimeout)
			fmt.Printf("\nLLM:\n")
			fmt.Printf("  Endpoint:           %s\n", cfg.LLM.EndpointURL)
			fmt.Printf("  Default Model:      %s\n", cfg.LLM.DefaultModel)
			fmt.Printf("\nProxy:\n")
			fmt.Printf("  Controller URL:     %s\n", cfg.Proxy.ControllerURL)
			fmt.Printf("  Pool Size:          %d\n", len(cfg.Proxy.URLs))
			fmt.Printf("\nStore:\n")
			fmt.Printf("  Backend:            %s\n", cfg.Store.Backend)
			return nil
		},
	}
}

// loadConfig applies the teacher's config.Load -> CLI overrides ->
// config.Validate pipeline (cmd/webstalk/main.go:runCrawl).
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.ApplyPresetName(cfg, presetFlag); err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogger creates a structured logger (cmd/webstalk/main.go:setupLogger).
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
