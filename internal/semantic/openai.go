package semantic

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkoukk/tiktoken-go"

	"github.com/wgomg/tably/internal/config"
	"github.com/wgomg/tably/internal/utils"
)

const (
	DefaultOpenAIModel = "text-embedding-3-small"
	openAIEncoding     = "cl100k_base"
)

// OpenAIEmbedder talks to any OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	logger     *utils.Logger
	client     openai.Client
	httpClient *http.Client
	model      string
	batchSize  int
	maxTokens  int
	encoding   *tiktoken.Tiktoken
	dimension  atomic.Int64
}

func NewOpenAIEmbedder(logger *utils.Logger, cfg *config.SemanticConfig) *OpenAIEmbedder {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	client := openai.NewClient(
		option.WithAPIKey(cfg.OpenAIAPIKey),
		option.WithBaseURL(cfg.OpenAIBaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(2),
	)

	o := &OpenAIEmbedder{
		logger:     logger,
		client:     client,
		httpClient: httpClient,
		model:      modelFor(config.BackendOpenAI, cfg.Model),
		batchSize:  cfg.BatchSize,
		maxTokens:  cfg.MaxTokens,
	}

	encoding, err := tiktoken.GetEncoding(openAIEncoding)
	if err != nil {
		logger.Error(nil, "Failed to load %s tokenizer, long texts will not be truncated: %v", openAIEncoding, err)
	} else {
		o.encoding = encoding
	}

	return o
}

func (o *OpenAIEmbedder) Initialize(ctx context.Context) error {
	if _, err := o.Embed(ctx, []string{"dimension check"}); err != nil {
		return fmt.Errorf("failed to detect dimension of openai model %s: %w", o.model, err)
	}
	o.logger.Info(nil, "OpenAI embedder ready (model=%s, dim=%d)", o.model, o.Dimension())
	return nil
}

func (o *OpenAIEmbedder) Name() string   { return config.BackendOpenAI }
func (o *OpenAIEmbedder) Model() string  { return o.model }
func (o *OpenAIEmbedder) Dimension() int { return int(o.dimension.Load()) }

func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return []Embedding{}, nil
	}

	reqID := utils.RequestID(ctx)
	raw := make([][]float64, 0, len(texts))

	for _, batch := range batches(texts, o.batchSize) {
		input := make([]string, len(batch))
		for i, text := range batch {
			input[i] = o.truncate(text)
		}

		o.logger.Debug(&reqID, "Embedding %d texts with openai model %s", len(input), o.model)

		resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: input},
			Model: openai.EmbeddingModel(o.model),
		})
		if err != nil {
			return nil, &BackendError{Backend: config.BackendOpenAI, Err: err}
		}

		vectors := make([][]float64, len(batch))
		for _, item := range resp.Data {
			if item.Index < 0 || int(item.Index) >= len(batch) {
				return nil, backendErr(config.BackendOpenAI, "embedding index %d out of range", item.Index)
			}
			vectors[item.Index] = item.Embedding
		}
		raw = append(raw, vectors...)
	}

	out, err := finalize(config.BackendOpenAI, texts, raw)
	if err != nil {
		return nil, err
	}
	o.dimension.Store(int64(len(out[0])))
	return out, nil
}

// truncate cuts text to the model's token limit.
func (o *OpenAIEmbedder) truncate(text string) string {
	if o.encoding == nil || o.maxTokens <= 0 {
		return text
	}

	tokens := o.encoding.Encode(text, nil, nil)
	if len(tokens) <= o.maxTokens {
		return text
	}
	return o.encoding.Decode(tokens[:o.maxTokens])
}

func (o *OpenAIEmbedder) HealthCheck(ctx context.Context) error {
	if _, err := o.Embed(ctx, []string{"health check"}); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func (o *OpenAIEmbedder) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
