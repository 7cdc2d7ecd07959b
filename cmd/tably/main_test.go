package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wgomg/tably/internal/config"
	"github.com/wgomg/tably/internal/processor"
	"github.com/wgomg/tably/internal/semantic"
	"github.com/wgomg/tably/internal/store"
	"github.com/wgomg/tably/internal/utils"
)

func TestParseTabs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"json list", `[{"title":"a","url":"x.com"},{"title":"b","url":"y.com"}]`, 2},
		{"json object", `{"tabs":[{"title":"a","url":"x.com","text":"hi"}]}`, 1},
		{"json empty list", `[]`, 0},
		{"yaml list", "- title: a\n  url: gmail.com\n", 1},
		{"yaml object", "tabs:\n  - title: a\n    url: docs.google.com\n  - title: b\n    url: youtube.com\n", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tabs, err := parseTabs([]byte(tt.input))
			require.NoError(t, err)
			assert.NotNil(t, tabs)
			assert.Len(t, tabs, tt.want)
		})
	}
}

func TestParseTabsKeepsMissingFields(t *testing.T) {
	tabs, err := parseTabs([]byte("- title: only a title\n"))
	require.NoError(t, err)
	require.Len(t, tabs, 1)
	assert.NotNil(t, tabs[0].Title)
	assert.Nil(t, tabs[0].URL)
}

func TestParseTabsErrors(t *testing.T) {
	for _, input := range []string{"", "   ", `{"other":1}`, "tabs_missing: true\n", "just a string", `[{"title":`} {
		_, err := parseTabs([]byte(input))
		assert.Error(t, err, "input %q", input)
	}
}

func sampleResult() *processor.AnalysisResult {
	return &processor.AnalysisResult{
		TabCount: 2,
		ByCategory: []processor.CategoryCount{
			{Category: processor.CategoryDev, Count: 1},
			{Category: processor.CategoryVideo, Count: 1},
		},
		Tabs: []processor.AnalyzedTab{
			{
				Title:      "PR review",
				URL:        "github.com/org/repo/pull/1",
				Category:   processor.CategoryDev,
				Importance: processor.ImportanceReadNow,
				WordCount:  3,
				Topic:      "PR review",
				Summary:    "Please review this change",
			},
			{
				Title:      "Funny cats",
				URL:        "youtube.com/watch?v=1",
				Category:   processor.CategoryVideo,
				Importance: processor.ImportanceCloseCandidate,
				Topic:      "Funny cats",
			},
		},
	}
}

func TestWriteResultFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, sampleResult(), formatJSON))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(2), decoded["tab_count"])

	buf.Reset()
	require.NoError(t, writeResult(&buf, sampleResult(), formatYAML))
	assert.Contains(t, buf.String(), "tab_count: 2")
	assert.Contains(t, buf.String(), "importance: read_now")

	buf.Reset()
	require.NoError(t, writeResult(&buf, sampleResult(), formatText))
	text := buf.String()
	assert.Contains(t, text, "2 tabs")
	assert.Contains(t, text, "PR review")
	assert.Contains(t, text, "Please review this change")
	assert.Contains(t, text, "close_candidate")

	assert.Error(t, writeResult(&buf, sampleResult(), "xml"))
}

func TestSummarizeResult(t *testing.T) {
	assert.Equal(t, "No tabs to analyze.", summarizeResult(&processor.AnalysisResult{}))

	out := summarizeResult(sampleResult())
	assert.True(t, strings.HasPrefix(out, "Analyzed 2 tabs."))
	assert.Contains(t, out, "[PR review] PR review (dev, read_now)")
	assert.Contains(t, out, "youtube.com/watch?v=1")
}

type brokenEmbedder struct {
	*semantic.LexicalEmbedder
}

func (b brokenEmbedder) Embed(ctx context.Context, texts []string) ([]semantic.Embedding, error) {
	return nil, &semantic.BackendError{Backend: "test", Err: errors.New("model not loaded")}
}

func testAnalyzer(e semantic.Embedder) *processor.Analyzer {
	cfg := &config.Config{
		Cluster:  config.ClusterConfig{Seed: config.DefaultClusterSeed, MaxIter: 300},
		Analysis: config.AnalysisConfig{SummaryWords: config.DefaultSummaryWords},
	}
	return processor.NewAnalyzer(utils.NewDiscardLogger(), e, cfg)
}

func TestAnalyzeTabsTool(t *testing.T) {
	tool := analyzeTabsTool(utils.NewDiscardLogger(), testAnalyzer(semantic.NewLexicalEmbedder(0)))

	res, _, err := tool(context.Background(), nil, analyzeTabsArgs{Tabs: []mcpTab{
		{Title: "Inbox", URL: "mail.google.com/mail/u/0"},
		{Title: "Design doc", URL: "docs.google.com/document/d/1", Text: "quarterly planning"},
	}})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	result, ok := res.StructuredContent.(*processor.AnalysisResult)
	require.True(t, ok)
	assert.Equal(t, 2, result.TabCount)
	assert.Equal(t, processor.CategoryEmail, result.Tabs[0].Category)
	assert.Equal(t, processor.CategoryDocs, result.Tabs[1].Category)
}

func TestAnalyzeTabsToolEmbeddingFailure(t *testing.T) {
	tool := analyzeTabsTool(utils.NewDiscardLogger(), testAnalyzer(brokenEmbedder{semantic.NewLexicalEmbedder(0)}))

	res, _, err := tool(context.Background(), nil, analyzeTabsArgs{Tabs: []mcpTab{{Title: "a", URL: "b"}}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestAnalyzeCommand(t *testing.T) {
	t.Cleanup(func() {
		backendFlag, analyzeFormat = "", formatJSON
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(`{"tabs":[{"title":"Watch later","url":"youtube.com/watch?v=1"},{"title":"Repo","url":"github.com/org/repo"}]}`))
	rootCmd.SetArgs([]string{"analyze", "--backend", "lexical", "--format", "json"})

	require.NoError(t, rootCmd.Execute())

	var result processor.AnalysisResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 2, result.TabCount)
	require.Len(t, result.Tabs, 2)
	assert.Equal(t, processor.CategoryVideo, result.Tabs[0].Category)
	assert.Equal(t, processor.CategoryDev, result.Tabs[1].Category)
}

func runRoot(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestCacheCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	t.Setenv("SEMANTIC_CACHE_PATH", path)
	t.Setenv("SEMANTIC_BACKEND", config.BackendLexical)
	t.Cleanup(func() {
		cacheClearModel = ""
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	s, err := store.Open(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.PutMany(ctx, "m1", map[string][]float64{"a": {1}, "b": {1}}))
	require.NoError(t, s.PutMany(ctx, "m2", map[string][]float64{"c": {1}}))
	require.NoError(t, s.Close())

	out := runRoot(t, "cache", "stats")
	assert.Contains(t, out, "Entries:  3")
	assert.Contains(t, out, "m1  2")

	out = runRoot(t, "cache", "clear", "--model", "m1")
	assert.Contains(t, out, "Removed 2 cached vectors")

	out = runRoot(t, "cache", "stats")
	assert.Contains(t, out, "Entries:  1")
	assert.NotContains(t, out, "m1  ")
}

func TestCacheCommandNeedsPath(t *testing.T) {
	t.Setenv("SEMANTIC_CACHE_PATH", "")
	t.Setenv("SEMANTIC_BACKEND", config.BackendLexical)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	rootCmd.SetArgs([]string{"cache", "stats"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEMANTIC_CACHE_PATH")
}
