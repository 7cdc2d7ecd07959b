package semantic

import (
	"context"
	"errors"
	"fmt"
)

type Embedding []float64

// Embedder maps texts to unit-length vectors of a fixed dimension, one per
// input and in input order. Implementations are safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]Embedding, error)
	Name() string
	Model() string
	Dimension() int
	HealthCheck(ctx context.Context) error
	Close() error
}

// ErrEmbeddingUnavailable marks every failure of the embedding step.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s embedding backend: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrEmbeddingUnavailable, e.Err}
}

func backendErr(backend string, format string, v ...any) error {
	return &BackendError{Backend: backend, Err: fmt.Errorf(format, v...)}
}

type Status struct {
	Backend   string `json:"backend"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
}
