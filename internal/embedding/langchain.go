package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
)

// LangchainEmbedder delegates to a langchaingo embedder backed by an
// OpenAI-compatible endpoint (OpenAI, Ollama, LM Studio, vLLM ...).
type LangchainEmbedder struct {
	embedder  embeddings.Embedder
	dimension int
	logger    *observability.Logger
}

// NewLangchainEmbedder builds the embedder from cfg. Local endpoints that do
// not check credentials accept the placeholder token "none".
func NewLangchainEmbedder(cfg Config, logger *observability.Logger) (*LangchainEmbedder, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithEmbeddingModel(cfg.Model))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &LangchainEmbedder{
		embedder:  emb,
		dimension: cfg.Dimension,
		logger:    logger.WithComponent("embedding"),
	}, nil
}

// EmbedBatch embeds texts in one provider call.
func (e *LangchainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error().Err(err).Int("count", len(texts)).Msg("Failed to generate embeddings")
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmptyResponse, len(vectors), len(texts))
	}
	return vectors, nil
}

// Embed embeds a single query text.
func (e *LangchainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(v) == 0 {
		return nil, ErrEmptyResponse
	}
	return v, nil
}

// Dimensions returns the configured dimension, or 0 when unknown until the
// first call.
func (e *LangchainEmbedder) Dimensions() int {
	return e.dimension
}
