package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wgomg/tably/internal/api"
	"github.com/wgomg/tably/internal/utils"
)

var (
	analyzeFormat  string
	analyzeTimeout time.Duration
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyze a batch of tabs from a file or stdin",
	Long: `Analyze reads tabs as JSON or YAML, either a bare list or an object with a
"tabs" key, and prints the analysis. With no file, or with "-", it reads stdin.

  tably analyze tabs.json
  tably analyze --format text --backend lexical < tabs.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", formatJSON, "Output format: json, yaml or text")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 0, "Abort the analysis after this long (0 disables)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if !validFormat(analyzeFormat) {
		return fmt.Errorf("unknown output format %q (want json, yaml or text)", analyzeFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := utils.NewWriterLogger(cfg.App.LogLevel, os.Stderr)

	data, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	inputs, err := parseTabs(data)
	if err != nil {
		return err
	}

	reqID := uuid.New().String()
	tabs, err := api.ResolveTabs(logger, reqID, inputs)
	if err != nil {
		return err
	}

	ctx := utils.ContextWithRequestID(cmd.Context(), reqID)
	if analyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, analyzeTimeout)
		defer cancel()
	}

	analyzer, embedder, err := newAnalyzer(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer embedder.Close()

	logger.Info(&reqID, "Analyzing %d tabs", len(tabs))
	result, err := analyzer.Analyze(ctx, tabs)
	if err != nil {
		return err
	}

	return writeResult(cmd.OutOrStdout(), result, analyzeFormat)
}

func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return data, nil
}

// parseTabs accepts a list of tabs or an object holding one under "tabs".
// Input that starts like JSON is decoded as JSON, anything else as YAML.
func parseTabs(data []byte) ([]api.TabInput, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("no tabs in input")
	}

	switch trimmed[0] {
	case '[':
		var tabs []api.TabInput
		if err := json.Unmarshal(trimmed, &tabs); err != nil {
			return nil, fmt.Errorf("invalid JSON tab list: %w", err)
		}
		return nonNil(tabs), nil
	case '{':
		var req api.AnalyzeRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return nil, fmt.Errorf("invalid JSON request: %w", err)
		}
		if req.Tabs == nil {
			return nil, fmt.Errorf("tabs: field required")
		}
		return req.Tabs, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("no tabs in input")
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var tabs []api.TabInput
		if err := root.Decode(&tabs); err != nil {
			return nil, fmt.Errorf("invalid YAML tab list: %w", err)
		}
		return nonNil(tabs), nil
	case yaml.MappingNode:
		var req api.AnalyzeRequest
		if err := root.Decode(&req); err != nil {
			return nil, fmt.Errorf("invalid YAML request: %w", err)
		}
		if req.Tabs == nil {
			return nil, fmt.Errorf("tabs: field required")
		}
		return req.Tabs, nil
	default:
		return nil, fmt.Errorf("expected a list of tabs or an object with a tabs key")
	}
}

func nonNil(tabs []api.TabInput) []api.TabInput {
	if tabs == nil {
		return []api.TabInput{}
	}
	return tabs
}
