package semantic

import (
	"context"
	"fmt"

	"github.com/wgomg/tably/internal/config"
	"github.com/wgomg/tably/internal/store"
	"github.com/wgomg/tably/internal/utils"
)

const DefaultLlamaGoModel = "second-state/All-MiniLM-L6-v2-Embedding-GGUF:all-MiniLM-L6-v2-Q8_0.gguf"

// NewEmbedder builds and initializes the configured backend, wrapped in the
// optional vector caches.
func NewEmbedder(ctx context.Context, logger *utils.Logger, cfg *config.SemanticConfig) (Embedder, error) {
	var embedder Embedder

	switch cfg.Backend {
	case config.BackendPython:
		pool := NewPythonEmbedder(logger, cfg)
		if err := pool.Initialize(); err != nil {
			return nil, fmt.Errorf("failed to initialize python embedder: %w", err)
		}
		embedder = pool
	case config.BackendOllama:
		ollama := NewOllamaEmbedder(logger, cfg)
		if err := ollama.Initialize(ctx); err != nil {
			return nil, err
		}
		embedder = ollama
	case config.BackendOpenAI:
		openai := NewOpenAIEmbedder(logger, cfg)
		if err := openai.Initialize(ctx); err != nil {
			return nil, err
		}
		embedder = openai
	case config.BackendLlamaGo:
		llama, err := newLlamaGoEmbedder(ctx, logger, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize llamago embedder: %w", err)
		}
		embedder = llama
	case config.BackendLexical:
		embedder = NewLexicalEmbedder(LexicalDimension)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}

	logger.Info(nil, "Embedding backend %s ready (model=%s, dim=%d)", embedder.Name(), embedder.Model(), embedder.Dimension())

	return withCache(logger, cfg, embedder)
}

func withCache(logger *utils.Logger, cfg *config.SemanticConfig, embedder Embedder) (Embedder, error) {
	if cfg.CacheSize <= 0 && cfg.CachePath == "" {
		return embedder, nil
	}

	var memory *utils.VectorCache
	if cfg.CacheSize > 0 {
		memory = utils.NewVectorCache(cfg.CacheSize)
	}

	var vectors VectorStore
	if cfg.CachePath != "" {
		s, err := store.Open(cfg.CachePath)
		if err != nil {
			embedder.Close()
			return nil, fmt.Errorf("failed to open embedding cache: %w", err)
		}
		vectors = s
		logger.Info(nil, "Persistent embedding cache at %s", cfg.CachePath)
	}

	return NewCachedEmbedder(embedder, logger, memory, vectors), nil
}

// modelFor maps the default sentence-transformers model name to the closest
// equivalent of backends that use their own model naming.
func modelFor(backend, model string) string {
	if model != "" && model != config.DefaultEmbeddingModel {
		return model
	}

	switch backend {
	case config.BackendOllama:
		return DefaultOllamaModel
	case config.BackendOpenAI:
		return DefaultOpenAIModel
	case config.BackendLlamaGo:
		return DefaultLlamaGoModel
	default:
		return config.DefaultEmbeddingModel
	}
}
