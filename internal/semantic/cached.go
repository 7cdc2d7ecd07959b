package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/wgomg/tably/internal/store"
	"github.com/wgomg/tably/internal/utils"
)

type VectorStore interface {
	GetMany(ctx context.Context, keys []string) (map[string][]float64, error)
	PutMany(ctx context.Context, model string, entries map[string][]float64) error
	Close() error
}

// CachedEmbedder memoizes another Embedder by (model, text). Either layer
// may be nil. Store failures degrade to cache misses.
type CachedEmbedder struct {
	Embedder
	logger *utils.Logger
	memory *utils.VectorCache
	store  VectorStore
}

func NewCachedEmbedder(inner Embedder, logger *utils.Logger, memory *utils.VectorCache, store VectorStore) *CachedEmbedder {
	return &CachedEmbedder{
		Embedder: inner,
		logger:   logger,
		memory:   memory,
		store:    store,
	}
}

func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return []Embedding{}, nil
	}

	reqID := utils.RequestID(ctx)
	model := c.Model()

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = CacheKey(model, text)
	}

	vectors := make(map[string][]float64, len(keys))
	missing := uniqueKeys(keys)

	if c.memory != nil {
		var found map[string][]float64
		found, missing = c.memory.GetMany(missing)
		for k, v := range found {
			vectors[k] = v
		}
	}

	if c.store != nil && len(missing) > 0 {
		found, err := c.store.GetMany(ctx, missing)
		if err != nil {
			c.logger.Error(&reqID, "Embedding store lookup failed: %v", err)
		} else {
			missing = nil
			for _, k := range uniqueKeys(keys) {
				if _, ok := vectors[k]; ok {
					continue
				}
				if v, ok := found[k]; ok {
					vectors[k] = v
					c.rememberInMemory(k, v)
					continue
				}
				missing = append(missing, k)
			}
		}
	}

	if len(missing) > 0 {
		if err := c.embedMissing(ctx, texts, keys, missing, vectors); err != nil {
			return nil, err
		}
	}

	c.logger.Debug(&reqID, "Embedding cache: %d texts, %d embedded", len(texts), len(missing))

	out := make([]Embedding, len(keys))
	for i, k := range keys {
		out[i] = vectors[k]
	}
	return out, nil
}

func (c *CachedEmbedder) embedMissing(ctx context.Context, texts, keys, missing []string, vectors map[string][]float64) error {
	reqID := utils.RequestID(ctx)

	textByKey := make(map[string]string, len(missing))
	for i, k := range keys {
		textByKey[k] = texts[i]
	}

	batch := make([]string, len(missing))
	for i, k := range missing {
		batch[i] = textByKey[k]
	}

	fresh, err := c.Embedder.Embed(ctx, batch)
	if err != nil {
		return err
	}

	entries := make(map[string][]float64, len(missing))
	for i, k := range missing {
		vectors[k] = fresh[i]
		entries[k] = fresh[i]
		c.rememberInMemory(k, fresh[i])
	}

	if c.store != nil {
		if err := c.store.PutMany(ctx, c.Model(), entries); err != nil {
			c.logger.Error(&reqID, "Embedding store write failed: %v", err)
		}
	}
	return nil
}

func (c *CachedEmbedder) rememberInMemory(key string, v []float64) {
	if c.memory != nil {
		c.memory.Add(key, v)
	}
}

func (c *CachedEmbedder) MemoryStats() *utils.CacheStats {
	if c.memory == nil {
		return nil
	}
	stats := c.memory.Stats()
	return &stats
}

// StoreStats reports the persistent cache, or nil when there is none.
func (c *CachedEmbedder) StoreStats(ctx context.Context) (*store.Stats, error) {
	s, ok := c.store.(*store.Store)
	if !ok || s == nil {
		return nil, nil
	}
	return s.Stats(ctx)
}

func (c *CachedEmbedder) Close() error {
	err := c.Embedder.Close()
	if c.store != nil {
		if storeErr := c.store.Close(); err == nil {
			err = storeErr
		}
	}
	return err
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
