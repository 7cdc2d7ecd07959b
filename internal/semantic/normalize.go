package semantic

import (
	"fmt"
	"math"
)

// Normalize scales v to unit Euclidean length. It reports false for vectors
// that cannot be normalized (zero, NaN or infinite norm).
func Normalize(v []float64) (Embedding, bool) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}

	out := make(Embedding, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, true
}

func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// finalize checks a backend response against its request and normalizes every
// vector, so all backends share the same output guarantees.
func finalize(backend string, texts []string, raw [][]float64) ([]Embedding, error) {
	if len(raw) != len(texts) {
		return nil, backendErr(backend, "got %d embeddings for %d texts", len(raw), len(texts))
	}

	out := make([]Embedding, len(raw))
	for i, v := range raw {
		if len(v) == 0 {
			return nil, backendErr(backend, "empty embedding at index %d", i)
		}
		if i > 0 && len(v) != len(raw[0]) {
			return nil, backendErr(backend, "embedding %d has dimension %d, want %d", i, len(v), len(raw[0]))
		}

		unit, ok := Normalize(v)
		if !ok {
			return nil, backendErr(backend, "%s", fmt.Sprintf("degenerate embedding at index %d", i))
		}
		out[i] = unit
	}
	return out, nil
}

func float32sToFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
