package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/wgomg/tably/internal/api"
	"github.com/wgomg/tably/internal/processor"
	"github.com/wgomg/tably/internal/semantic"
	"github.com/wgomg/tably/internal/utils"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server (stdio)",
	Long:  "Start a Model Context Protocol server over stdio exposing the analyze_tabs tool. Logs go to stderr.",
	Args:  cobra.NoArgs,
	RunE:  runMCPServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := utils.NewWriterLogger(cfg.App.LogLevel, os.Stderr)

	ctx := cmd.Context()
	analyzer, embedder, err := newAnalyzer(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer embedder.Close()

	server := newMCPServer(logger, analyzer)
	logger.Info(nil, "MCP server ready (backend=%s, model=%s)", embedder.Name(), embedder.Model())
	return server.Run(ctx, &mcp.StdioTransport{})
}

func newMCPServer(logger *utils.Logger, analyzer *processor.Analyzer) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "tably", Version: api.Version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: "analyze_tabs",
		Description: "Analyze a batch of open browser tabs. Returns each tab's category, importance " +
			"(read_now, save_for_later, close_candidate), word count, summary and topic label, " +
			"plus per-category counts.",
	}, analyzeTabsTool(logger, analyzer))

	return server
}

type mcpTab struct {
	Title string `json:"title" jsonschema:"Tab title"`
	URL   string `json:"url" jsonschema:"Tab URL"`
	Text  string `json:"text,omitempty" jsonschema:"Visible page text"`
	HTML  string `json:"html,omitempty" jsonschema:"Raw page HTML, used when text is empty"`
}

type analyzeTabsArgs struct {
	Tabs []mcpTab `json:"tabs" jsonschema:"Open tabs to analyze"`
}

func analyzeTabsTool(logger *utils.Logger, analyzer *processor.Analyzer) func(context.Context, *mcp.CallToolRequest, analyzeTabsArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args analyzeTabsArgs) (*mcp.CallToolResult, any, error) {
		reqID := uuid.New().String()
		ctx = utils.ContextWithRequestID(ctx, reqID)

		inputs := make([]api.TabInput, len(args.Tabs))
		for i := range args.Tabs {
			tab := &args.Tabs[i]
			inputs[i] = api.TabInput{Title: &tab.Title, URL: &tab.URL, Text: &tab.Text, HTML: &tab.HTML}
		}

		tabs, err := api.ResolveTabs(logger, reqID, inputs)
		if err != nil {
			return toolError("Invalid tabs: " + err.Error()), nil, nil
		}

		logger.Info(&reqID, "MCP analyze_tabs called with %d tabs", len(tabs))
		result, err := analyzer.Analyze(ctx, tabs)
		if err != nil {
			logger.Error(&reqID, "Analysis failed: %v", err)
			if errors.Is(err, semantic.ErrEmbeddingUnavailable) {
				return toolError("Embedding unavailable: " + err.Error()), nil, nil
			}
			return toolError("Analysis failed: " + err.Error()), nil, nil
		}

		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: summarizeResult(result)}},
			StructuredContent: result,
		}, nil, nil
	}
}

// summarizeResult is the plain-text tool output: one line per tab.
func summarizeResult(result *processor.AnalysisResult) string {
	if result.TabCount == 0 {
		return "No tabs to analyze."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyzed %d tabs.\n", result.TabCount)
	for _, tab := range result.Tabs {
		fmt.Fprintf(&b, "\n[%s] %s (%s, %s)\n  %s", tab.Topic, tab.Title, tab.Category, tab.Importance, tab.URL)
		if tab.Summary != "" {
			fmt.Fprintf(&b, "\n  %s", tab.Summary)
		}
	}
	return b.String()
}

func toolError(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}
