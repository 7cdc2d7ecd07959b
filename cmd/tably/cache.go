package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/wgomg/tably/internal/store"
)

var cacheClearModel string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the persistent embedding cache",
	Long:  "Work with the sqlite embedding cache at SEMANTIC_CACHE_PATH. It holds only hashed text keys and vectors.",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached vector counts per model",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached vectors, optionally for one model only",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheClearCmd.Flags().StringVar(&cacheClearModel, "model", "", "Only clear vectors of this model")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCache() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Semantic.CachePath == "" {
		return nil, fmt.Errorf("no persistent cache configured (set SEMANTIC_CACHE_PATH)")
	}
	return store.Open(cfg.Semantic.CachePath)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	s, err := openCache()
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read cache stats: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render("Embedding cache"))
	fmt.Fprintf(out, "Path:     %s\n", st.Path)
	fmt.Fprintf(out, "Entries:  %d\n", st.Entries)
	for _, model := range slices.Sorted(maps.Keys(st.ByModel)) {
		fmt.Fprintf(out, "  %s  %d\n", model, st.ByModel[model])
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	s, err := openCache()
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.Clear(cmd.Context(), cacheClearModel)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached vectors\n", n)
	return nil
}
