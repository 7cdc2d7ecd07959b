package semantic

import (
	"context"
	"hash/fnv"
	"maps"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/wgomg/tably/internal/config"
)

const (
	LexicalModel     = "feature-hash"
	LexicalDimension = 384
)

// LexicalEmbedder hashes word and character-trigram features into a fixed
// number of buckets. It needs no model files or network access.
type LexicalEmbedder struct {
	dim int
}

func NewLexicalEmbedder(dim int) *LexicalEmbedder {
	if dim <= 0 {
		dim = LexicalDimension
	}
	return &LexicalEmbedder{dim: dim}
}

func (l *LexicalEmbedder) Name() string   { return config.BackendLexical }
func (l *LexicalEmbedder) Model() string  { return LexicalModel }
func (l *LexicalEmbedder) Dimension() int { return l.dim }

func (l *LexicalEmbedder) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	raw := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, &BackendError{Backend: config.BackendLexical, Err: err}
		}
		raw[i] = l.vector(text)
	}
	return finalize(config.BackendLexical, texts, raw)
}

func (l *LexicalEmbedder) vector(text string) []float64 {
	v := make([]float64, l.dim)
	counts := map[string]int{}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		counts["w:"+w]++
		for _, g := range trigrams(w) {
			counts["g:"+g]++
		}
	}

	// punctuation-only or blank text still gets one feature
	if len(counts) == 0 {
		counts["raw:"+strings.TrimSpace(text)] = 1
	}

	for _, feature := range slices.Sorted(maps.Keys(counts)) {
		n := counts[feature]
		idx, sign := l.bucket(feature)
		weight := 1 + math.Log(float64(n))
		if strings.HasPrefix(feature, "g:") {
			weight *= 0.5
		}
		v[idx] += sign * weight
	}

	// colliding features with opposite signs can cancel out
	if Norm(v) == 0 {
		v[0] = 1
	}
	return v
}

func (l *LexicalEmbedder) bucket(feature string) (int, float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(l.dim)), sign
}

func trigrams(word string) []string {
	runes := []rune("^" + word + "$")
	if len(runes) < 3 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

func (l *LexicalEmbedder) HealthCheck(ctx context.Context) error { return nil }

func (l *LexicalEmbedder) Close() error { return nil }
