package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wgomg/tably/internal/config"
	"github.com/wgomg/tably/internal/semantic"
	"github.com/wgomg/tably/internal/utils"
)

type failingEmbedder struct {
	*semantic.LexicalEmbedder
}

func (f failingEmbedder) Embed(ctx context.Context, texts []string) ([]semantic.Embedding, error) {
	return nil, &semantic.BackendError{Backend: "test", Err: errors.New("model not loaded")}
}

func testConfig() *config.Config {
	return &config.Config{
		Cluster:  config.ClusterConfig{Seed: config.DefaultClusterSeed, MaxIter: 300},
		Analysis: config.AnalysisConfig{SummaryWords: DefaultSummaryWords},
	}
}

func newTestAnalyzer(e semantic.Embedder) *Analyzer {
	return NewAnalyzer(utils.NewDiscardLogger(), e, testConfig())
}

func TestAnalyzeEmptyBatch(t *testing.T) {
	a := newTestAnalyzer(semantic.NewLexicalEmbedder(0))

	result, err := a.Analyze(context.Background(), nil)
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tab_count":0,"by_category":[],"tabs":[]}`, string(data))
}

func TestAnalyzeSingleDevTab(t *testing.T) {
	a := newTestAnalyzer(semantic.NewLexicalEmbedder(0))

	result, err := a.Analyze(context.Background(), []TabRecord{{
		Title: "GitHub PR #42 review needed for auth module",
		URL:   "github.com/org/repo/pull/42",
	}})
	require.NoError(t, err)

	require.Len(t, result.Tabs, 1)
	tab := result.Tabs[0]
	assert.Equal(t, CategoryDev, tab.Category)
	assert.Equal(t, ImportanceReadNow, tab.Importance)
	assert.Equal(t, 0, tab.WordCount)
	assert.Equal(t, "GitHub PR #42 review needed for auth module", tab.Topic)
	assert.Empty(t, tab.Summary)
	assert.Equal(t, []CategoryCount{{CategoryDev, 1}}, result.ByCategory)

	data, err := json.Marshal(tab)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "summary")
}

func TestAnalyzePreservesOrderAndCounts(t *testing.T) {
	a := newTestAnalyzer(semantic.NewLexicalEmbedder(0))
	tabs := []TabRecord{
		{Title: "Inbox", URL: "https://mail.google.com/mail/u/0", Text: "three unread messages"},
		{Title: "golang/go", URL: "https://github.com/golang/go", Text: "The Go programming language"},
		{Title: "Home", URL: "https://twitter.com/home"},
		{Title: "Issues", URL: "https://github.com/golang/go/issues"},
	}

	result, err := a.Analyze(context.Background(), tabs)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TabCount)
	require.Len(t, result.Tabs, 4)
	for i, tab := range tabs {
		assert.Equal(t, tab.Title, result.Tabs[i].Title)
		assert.Equal(t, tab.URL, result.Tabs[i].URL)
		assert.NotEmpty(t, result.Tabs[i].Topic)
	}

	assert.Equal(t, []CategoryCount{
		{CategoryEmail, 1},
		{CategoryDev, 2},
		{CategorySocial, 1},
	}, result.ByCategory)

	assert.Equal(t, 3, result.Tabs[0].WordCount)
	assert.Equal(t, "three unread messages", result.Tabs[0].Summary)
	assert.Equal(t, ImportanceCloseCandidate, result.Tabs[2].Importance)

	total := 0
	for _, c := range result.ByCategory {
		total += c.Count
	}
	assert.Equal(t, result.TabCount, total)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	a := newTestAnalyzer(semantic.NewLexicalEmbedder(0))
	tabs := []TabRecord{
		{Title: "Go concurrency patterns", URL: "https://go.dev/blog/pipelines"},
		{Title: "Goroutines explained", URL: "https://go.dev/tour/concurrency/1"},
		{Title: "Chocolate cake", URL: "https://recipes.example/cake"},
		{Title: "Sourdough bread", URL: "https://recipes.example/bread"},
		{Title: "Kubernetes pods", URL: "https://kubernetes.io/docs/pods"},
		{Title: "", URL: "about:blank"},
		{Title: "Helm charts", URL: "https://helm.sh/docs"},
	}

	first, err := a.Analyze(context.Background(), tabs)
	require.NoError(t, err)

	topics := map[string]bool{}
	for _, tab := range first.Tabs {
		topics[tab.Topic] = true
	}
	assert.LessOrEqual(t, len(topics), config.MaxTopics)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			again, err := a.Analyze(context.Background(), tabs)
			assert.NoError(t, err)
			assert.Equal(t, first, again)
		}()
	}
	wg.Wait()
}

func TestAnalyzeEmbeddingFailure(t *testing.T) {
	a := newTestAnalyzer(failingEmbedder{semantic.NewLexicalEmbedder(0)})

	result, err := a.Analyze(context.Background(), []TabRecord{{Title: "x", URL: "y"}})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, semantic.ErrEmbeddingUnavailable)

	result, err = a.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TabCount)
}

func TestAnalyzeSummaryLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.SummaryWords = 3
	a := NewAnalyzer(utils.NewDiscardLogger(), semantic.NewLexicalEmbedder(0), cfg)

	result, err := a.Analyze(context.Background(), []TabRecord{{Title: "t", URL: "u", Text: "a b c d e"}})
	require.NoError(t, err)
	assert.Equal(t, "a b c ...", result.Tabs[0].Summary)
	assert.Equal(t, 5, result.Tabs[0].WordCount)
}
