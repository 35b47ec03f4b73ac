package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// EmbeddingProviderError reports a failed embedding batch. The whole batch
// fails together; there are never partial results.
type EmbeddingProviderError struct {
	BatchSize int
	Err       error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider failed for batch of %d: %v", e.BatchSize, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error {
	return e.Err
}

type EmbedderConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	VectorDim int
	RateLimit float64 // provider requests per second
}

// Embedder produces fixed-dimensionality vectors for text. One deployment
// runs one model and one dimensionality; the store validates the schema
// against Dimension at startup.
type Embedder struct {
	config  EmbedderConfig
	client  *openai.LLM
	limiter *rate.Limiter
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("embedding provider requires an API key")
	}
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}

	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.Model),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	return &Embedder{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Embed sends all texts as one provider batch and returns vectors in the same
// order. A provider error fails the entire batch.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, &EmbeddingProviderError{BatchSize: len(texts), Err: err}
	}

	vectors, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, &EmbeddingProviderError{BatchSize: len(texts), Err: err}
	}

	if len(vectors) != len(texts) {
		return nil, &EmbeddingProviderError{
			BatchSize: len(texts),
			Err:       fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts)),
		}
	}

	for _, v := range vectors {
		if len(v) != e.config.VectorDim {
			return nil, &EmbeddingProviderError{
				BatchSize: len(texts),
				Err:       fmt.Errorf("provider returned %d dimensions, expected %d", len(v), e.config.VectorDim),
			}
		}
	}

	return vectors, nil
}

func (e *Embedder) Dimension() int {
	return e.config.VectorDim
}
