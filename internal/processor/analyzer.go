package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/wgomg/tably/internal/cluster"
	"github.com/wgomg/tably/internal/config"
	"github.com/wgomg/tably/internal/semantic"
	"github.com/wgomg/tably/internal/utils"
)

// Analyzer runs the tab pipeline. It holds no per-request state and is safe
// for concurrent use as long as its embedder is.
type Analyzer struct {
	logger       *utils.Logger
	embedder     semantic.Embedder
	clusterOpts  cluster.Options
	summaryWords int
}

func NewAnalyzer(logger *utils.Logger, embedder semantic.Embedder, cfg *config.Config) *Analyzer {
	return &Analyzer{
		logger:   logger,
		embedder: embedder,
		clusterOpts: cluster.Options{
			Seed:        cfg.Cluster.Seed,
			NInit:       cfg.Cluster.NInit,
			MaxIter:     cfg.Cluster.MaxIter,
			MaxClusters: config.MaxTopics,
		},
		summaryWords: cfg.Analysis.SummaryWords,
	}
}

func (a *Analyzer) Embedder() semantic.Embedder {
	return a.embedder
}

// Analyze classifies every tab and groups the batch into topics. Output tabs
// keep input order. An embedding failure fails the whole batch.
func (a *Analyzer) Analyze(ctx context.Context, tabs []TabRecord) (*AnalysisResult, error) {
	reqID := utils.RequestID(ctx)
	start := time.Now()

	result := &AnalysisResult{
		TabCount:   len(tabs),
		ByCategory: []CategoryCount{},
		Tabs:       make([]AnalyzedTab, 0, len(tabs)),
	}
	if len(tabs) == 0 {
		return result, nil
	}

	topics, err := a.topics(ctx, tabs)
	if err != nil {
		return nil, err
	}

	counts := map[Category]int{}
	order := []Category{}
	for i, tab := range tabs {
		category := Categorize(tab.URL)
		if counts[category] == 0 {
			order = append(order, category)
		}
		counts[category]++

		result.Tabs = append(result.Tabs, AnalyzedTab{
			Title:      tab.Title,
			URL:        tab.URL,
			Category:   category,
			Importance: ScoreImportance(tab.Title, tab.URL, category),
			WordCount:  utils.CountWords(tab.Text),
			Topic:      topics[i],
			Summary:    Summarize(tab.Text, a.summaryWords),
		})
	}

	for _, category := range order {
		result.ByCategory = append(result.ByCategory, CategoryCount{Category: category, Count: counts[category]})
	}

	a.logger.Info(&reqID, "Analyzed %d tabs into %d categories in %s", len(tabs), len(order), time.Since(start))
	return result, nil
}

func (a *Analyzer) topics(ctx context.Context, tabs []TabRecord) ([]string, error) {
	reqID := utils.RequestID(ctx)

	texts := make([]string, len(tabs))
	titles := make([]string, len(tabs))
	for i, tab := range tabs {
		texts[i] = Normalize(tab)
		titles[i] = tab.Title
	}

	embeddings, err := a.embedder.Embed(ctx, texts)
	if err != nil {
		a.logger.Error(&reqID, "Embedding %d tabs failed: %v", len(tabs), err)
		return nil, fmt.Errorf("failed to embed tabs: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("failed to embed tabs: %w", &semantic.BackendError{
			Backend: a.embedder.Name(),
			Err:     fmt.Errorf("got %d embeddings for %d tabs", len(embeddings), len(texts)),
		})
	}

	vectors := make([][]float64, len(embeddings))
	for i, e := range embeddings {
		vectors[i] = e
	}

	a.logger.Debug(&reqID, "Clustering %d embeddings (k=%d)", len(vectors), cluster.ClusterCount(len(vectors), a.clusterOpts.MaxClusters))

	return cluster.Topics(vectors, titles, a.clusterOpts), nil
}
