package semantic

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wgomg/tably/internal/store"
	"github.com/wgomg/tably/internal/utils"
)

type countingEmbedder struct {
	*LexicalEmbedder
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	c.mu.Lock()
	c.calls = append(c.calls, append([]string(nil), texts...))
	c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	return c.LexicalEmbedder.Embed(ctx, texts)
}

func TestCacheKeySeparatesModels(t *testing.T) {
	assert.NotEqual(t, CacheKey("a", "text"), CacheKey("b", "text"))
	assert.Equal(t, CacheKey("a", "text"), CacheKey("a", "text"))
	assert.Len(t, CacheKey("a", "text"), 64)
}

func TestCachedEmbedderMemory(t *testing.T) {
	inner := &countingEmbedder{LexicalEmbedder: NewLexicalEmbedder(32)}
	c := NewCachedEmbedder(inner, utils.NewDiscardLogger(), utils.NewVectorCache(10), nil)
	ctx := context.Background()

	first, err := c.Embed(ctx, []string{"alpha", "beta", "alpha"})
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, first[0], first[2])
	assert.Equal(t, [][]string{{"alpha", "beta"}}, inner.calls)

	second, err := c.Embed(ctx, []string{"beta", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, []string{"gamma"}, inner.calls[1])

	direct, err := NewLexicalEmbedder(32).Embed(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, direct[0], first[0])
	assert.Equal(t, direct[2], second[1])

	stats := c.MemoryStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Size)
}

func TestCachedEmbedderPersistentStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.sqlite")
	ctx := context.Background()

	s, err := store.Open(path)
	require.NoError(t, err)
	inner := &countingEmbedder{LexicalEmbedder: NewLexicalEmbedder(32)}
	c := NewCachedEmbedder(inner, utils.NewDiscardLogger(), nil, s)

	first, err := c.Embed(ctx, []string{"persisted text"})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	s, err = store.Open(path)
	require.NoError(t, err)
	inner = &countingEmbedder{LexicalEmbedder: NewLexicalEmbedder(32)}
	c = NewCachedEmbedder(inner, utils.NewDiscardLogger(), nil, s)
	defer c.Close()

	second, err := c.Embed(ctx, []string{"persisted text"})
	require.NoError(t, err)
	assert.Empty(t, inner.calls)
	assert.Equal(t, first, second)
}

func TestCachedEmbedderPropagatesBackendErrors(t *testing.T) {
	cause := &BackendError{Backend: "test", Err: errors.New("down")}
	inner := &countingEmbedder{LexicalEmbedder: NewLexicalEmbedder(32), err: cause}
	c := NewCachedEmbedder(inner, utils.NewDiscardLogger(), utils.NewVectorCache(10), nil)

	_, err := c.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Equal(t, 0, c.MemoryStats().Size)
}
