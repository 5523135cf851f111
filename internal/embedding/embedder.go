// Package embedding provides the text-to-vector capability used by the
// retrieval layer. The engine treats it as an injected collaborator: a real
// HTTP provider, a langchaingo-backed provider, or a deterministic mock.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
)

// Embedder converts text into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

var (
	ErrEmptyResponse   = errors.New("embedding provider returned no vectors")
	ErrUnknownProvider = errors.New("unknown embedding provider")
)

// Provider names accepted by New.
const (
	ProviderMock      = "mock"
	ProviderHTTP      = "http"
	ProviderLangchain = "langchain"
)

// Config holds embedding provider configuration.
type Config struct {
	Provider  string        `yaml:"provider"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
}

// New builds the embedder named by cfg.Provider.
func New(cfg Config, logger *observability.Logger) (Embedder, error) {
	switch cfg.Provider {
	case "", ProviderMock:
		return NewMockClient(cfg.Dimension), nil
	case ProviderHTTP:
		return NewClient(cfg, logger)
	case ProviderLangchain:
		return NewLangchainEmbedder(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Normalize scales v to unit length in place. Zero vectors are returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}

// Ensure implementations satisfy interface.
var (
	_ Embedder = (*Client)(nil)
	_ Embedder = (*MockClient)(nil)
	_ Embedder = (*LangchainEmbedder)(nil)
)
