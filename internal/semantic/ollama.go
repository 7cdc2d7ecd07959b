package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wgomg/tably/internal/config"
	"github.com/wgomg/tably/internal/utils"
	"github.com/wgomg/tably/internal/utils/httputils"
)

const DefaultOllamaModel = "all-minilm"

type OllamaEmbedder struct {
	logger     *utils.Logger
	host       string
	model      string
	batchSize  int
	dimension  atomic.Int64
	httpClient *http.Client
}

// ollamaEmbedRequest is the request body for Ollama's /api/embed endpoint.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func NewOllamaEmbedder(logger *utils.Logger, cfg *config.SemanticConfig) *OllamaEmbedder {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OllamaEmbedder{
		logger:    logger,
		host:      strings.TrimRight(cfg.OllamaURL, "/"),
		model:     modelFor(config.BackendOllama, cfg.Model),
		batchSize: cfg.BatchSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Initialize embeds a sample text to learn the model's dimension.
func (o *OllamaEmbedder) Initialize(ctx context.Context) error {
	if _, err := o.Embed(ctx, []string{"dimension check"}); err != nil {
		return fmt.Errorf("failed to detect dimension of ollama model %s: %w", o.model, err)
	}
	o.logger.Info(nil, "Ollama embedder ready (model=%s, dim=%d)", o.model, o.Dimension())
	return nil
}

func (o *OllamaEmbedder) Name() string   { return config.BackendOllama }
func (o *OllamaEmbedder) Model() string  { return o.model }
func (o *OllamaEmbedder) Dimension() int { return int(o.dimension.Load()) }

func (o *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return []Embedding{}, nil
	}

	raw := make([][]float64, 0, len(texts))
	for _, batch := range batches(texts, o.batchSize) {
		vectors, err := o.embedBatch(ctx, batch)
		if err != nil {
			return nil, &BackendError{Backend: config.BackendOllama, Err: err}
		}
		if len(vectors) != len(batch) {
			return nil, backendErr(config.BackendOllama, "got %d embeddings for %d texts", len(vectors), len(batch))
		}
		raw = append(raw, vectors...)
	}

	out, err := finalize(config.BackendOllama, texts, raw)
	if err != nil {
		return nil, err
	}
	o.dimension.Store(int64(len(out[0])))
	return out, nil
}

func (o *OllamaEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	reqID := utils.RequestID(ctx)

	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	o.logger.Debug(&reqID, "Embedding %d texts with ollama model %s", len(texts), o.model)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()

	if _, err := httputils.LogResponseBody(resp, o.logger, reqID); err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if result.Error != "" {
			return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, result.Error)
		}
		return nil, fmt.Errorf("ollama embed: status %d", resp.StatusCode)
	}

	return result.Embeddings, nil
}

// HealthCheck checks that Ollama is reachable.
func (o *OllamaEmbedder) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check: status %d", resp.StatusCode)
	}
	return nil
}

func (o *OllamaEmbedder) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

func batches(texts []string, size int) [][]string {
	if size <= 0 || size >= len(texts) {
		return [][]string{texts}
	}

	out := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		out = append(out, texts[start:end])
	}
	return out
}
