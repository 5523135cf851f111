package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestMockClient_Deterministic(t *testing.T) {
	m := NewMockClient(32)
	ctx := context.Background()

	a, err := m.Embed(ctx, "National parks near Los Angeles")
	require.NoError(t, err)
	b, err := m.Embed(ctx, "national PARKS near los angeles!")
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.Equal(t, a, b, "tokenization ignores case and punctuation")
	assert.InDelta(t, 1.0, dot(a, a), 1e-5)
	assert.Equal(t, 2, m.CallCount())
}

func TestMockClient_SharedVocabularyScoresHigher(t *testing.T) {
	m := NewMockClient(256)
	ctx := context.Background()

	vectors, err := m.EmbedBatch(ctx, []string{
		"mountain hiking trails",
		"hiking trails in the mountain range",
		"quarterly sales report",
	})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.Greater(t, dot(vectors[0], vectors[1]), dot(vectors[0], vectors[2]))
}

func TestMockClient_Override(t *testing.T) {
	boom := errors.New("provider down")
	m := NewMockClient(8)
	m.EmbedBatchFunc = func(context.Context, []string) ([][]float32, error) { return nil, boom }

	_, err := m.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestClient_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// reply out of order to check index mapping
		resp := embeddingResponse{Model: req.Model}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{Index: i, Embedding: []float32{float32(i), 1}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Dimension: 2}, nil)
	require.NoError(t, err)

	vectors, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, vectors)
	assert.Equal(t, 2, c.Dimensions())
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(embeddingResponse{Error: &apiError{Message: "slow down", Type: "rate_limit"}})
	}))
	defer server.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
}

func TestNew(t *testing.T) {
	e, err := New(Config{Provider: "mock", Dimension: 16}, nil)
	require.NoError(t, err)
	assert.Equal(t, 16, e.Dimensions())

	_, err = New(Config{Provider: "http"}, nil)
	assert.Error(t, err, "http provider needs an API key")

	_, err = New(Config{Provider: "word2vec"}, nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
	assert.False(t, math.IsNaN(float64(Normalize([]float32{0})[0])))
}
