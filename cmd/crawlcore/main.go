package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ishaannene/crawlcore/internal/config"
	"github.com/ishaannene/crawlcore/internal/engine"
)

var (
	cfgFile    string
	verbose    bool
	mode       string
	outputPath string
	stateDir   string
	seedsPath  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "crawlcore",
		Short: "crawlcore — a high-throughput, politeness-aware web crawler core",
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// crawlCmd creates the "crawl" subcommand, which runs the Engine until
// a signal or max_runtime_minutes stops it.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run the crawl engine until stopped",
		Long:  "Loads seeds.json/domain_configs.json/blacklist.txt per the config file and runs until SIGINT/SIGTERM or max_runtime_minutes elapses.",
		RunE:  runCrawl,
	}

	cmd.Flags().StringVar(&mode, "mode", "", "crawler mode: regular or fresh (overrides config)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output directory for batch files (overrides config)")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "durable state directory (overrides config)")
	cmd.Flags().StringVar(&seedsPath, "seeds", "", "seeds.json path (overrides config)")

	return cmd
}

func runCrawl(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)

	logger.Info("starting crawl engine",
		"mode", cfg.Engine.Mode,
		"num_fetchers", cfg.Engine.NumFetchers,
		"num_parsers", cfg.Engine.NumParsers,
		"max_depth", cfg.Engine.MaxDepth,
		"state_dir", cfg.Engine.StateDir,
		"output", cfg.Storage.OutputPath,
	)

	eng, err := engine.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	start := time.Now()
	runErr := eng.Run(ctx)
	elapsed := time.Since(start)

	logger.Info("crawl engine stopped", "elapsed", elapsed)
	if runErr != nil {
		return fmt.Errorf("engine run: %w", runErr)
	}
	return nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("crawlcore %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Engine:\n")
			fmt.Printf("  Mode:               %s\n", cfg.Engine.Mode)
			fmt.Printf("  Fetchers/Parsers:   %d / %d\n", cfg.Engine.NumFetchers, cfg.Engine.NumParsers)
			fmt.Printf("  Max Depth:          %d\n", cfg.Engine.MaxDepth)
			fmt.Printf("  Max Queue Size:     %d\n", cfg.Engine.MaxQueueSize)
			fmt.Printf("  State Dir:          %s\n", cfg.Engine.StateDir)
			fmt.Printf("  Max Runtime (min):  %d\n", cfg.Engine.MaxRuntimeMinutes)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Follow Redirects:   %v\n", cfg.Fetcher.FollowRedirects)
			fmt.Printf("  Max Body Size:      %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Printf("  User Agents:        %d configured\n", len(cfg.Fetcher.UserAgents))
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Output Path:        %s\n", cfg.Storage.OutputPath)
			fmt.Printf("  Batch Size:         %d\n", cfg.Storage.BatchSize)
			fmt.Printf("  Mongo Enabled:      %v\n", cfg.Storage.Mongo.Enabled)
			fmt.Printf("\nRobots:\n")
			fmt.Printf("  Respect:            %v\n", cfg.Robots.Respect)
			fmt.Printf("  TTL:                %s\n", cfg.Robots.TTL)
			return nil
		},
	}
}

// setupLogger creates a structured logger.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	switch mode {
	case "regular":
		cfg.Engine.Mode = config.ModeRegular
	case "fresh":
		cfg.Engine.Mode = config.ModeFresh
	}
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if stateDir != "" {
		cfg.Engine.StateDir = stateDir
	}
	if seedsPath != "" {
		cfg.Engine.SeedsPath = seedsPath
	}
}
