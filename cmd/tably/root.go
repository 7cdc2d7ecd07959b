package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wgomg/tably/internal/api"
	"github.com/wgomg/tably/internal/config"
	"github.com/wgomg/tably/internal/processor"
	"github.com/wgomg/tably/internal/semantic"
	"github.com/wgomg/tably/internal/utils"
)

var (
	backendFlag  string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "tably",
	Short: "Categorize, score, summarize and group open browser tabs",
	Long: `tably analyzes a batch of open browser tabs. Each tab gets a category, an
importance level, a short summary and a topic label; topics come from
clustering sentence embeddings of the tab contents.

Run it as an HTTP service (serve), on a file of tabs (analyze) or as an MCP
server over stdio (mcp).`,
	Version:       api.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Embedding backend (python, ollama, openai, llamago, lexical); overrides SEMANTIC_BACKEND")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, error); overrides APP_LOG_LEVEL")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if backendFlag != "" {
		cfg.Semantic.Backend = strings.ToLower(backendFlag)
	}
	if logLevelFlag != "" {
		cfg.App.LogLevel = logLevelFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newAnalyzer builds the embedder and the pipeline on top of it. The caller
// owns the returned embedder and must close it.
func newAnalyzer(ctx context.Context, logger *utils.Logger, cfg *config.Config) (*processor.Analyzer, semantic.Embedder, error) {
	embedder, err := semantic.NewEmbedder(ctx, logger, &cfg.Semantic)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s embedder: %w", cfg.Semantic.Backend, err)
	}
	return processor.NewAnalyzer(logger, embedder, cfg), embedder, nil
}
