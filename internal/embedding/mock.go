package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"
)

// MockClient produces deterministic vectors by hashing lowercased word tokens
// into buckets, so texts sharing vocabulary score a higher cosine similarity.
// Behaviour can be overridden per test through the func fields.
type MockClient struct {
	dimension int

	// EmbedBatchFunc replaces the default behaviour when set.
	EmbedBatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

	calls atomic.Int64
}

// NewMockClient creates a mock embedder. A non-positive dimension defaults to 64.
func NewMockClient(dimension int) *MockClient {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockClient{dimension: dimension}
}

// EmbedBatch returns one vector per text.
func (m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.EmbedBatchFunc != nil {
		return m.EmbedBatchFunc(ctx, texts)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vector(text)
	}
	return out, nil
}

// Embed returns the vector for a single text.
func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ErrEmptyResponse
	}
	return vectors[0], nil
}

// Dimensions returns the embedding dimension.
func (m *MockClient) Dimensions() int {
	return m.dimension
}

// Model returns the mock model name.
func (m *MockClient) Model() string {
	return "mock-embedding-model"
}

// CallCount returns how many batch calls were made (Embed counts as one).
func (m *MockClient) CallCount() int {
	return int(m.calls.Load())
}

func (m *MockClient) vector(text string) []float32 {
	v := make([]float32, m.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%uint32(m.dimension)] += 1
	}
	return Normalize(v)
}
