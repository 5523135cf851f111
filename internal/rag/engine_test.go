package rag

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

var (
	sanFrancisco = geo.Coordinates{Latitude: 37.7749, Longitude: -122.4194}
	losAngeles   = geo.Coordinates{Latitude: 34.0522, Longitude: -118.2437}
)

func ptr[T any](v T) *T { return &v }

func testDocuments() []vectorstore.Document {
	return []vectorstore.Document{
		{
			ID:       "gg-park",
			Content:  "Golden Gate Park is a large urban park in San Francisco.",
			Metadata: vectorstore.Metadata{DocType: vectorstore.DocFeature, Location: ptr(sanFrancisco)},
			SpatialContext: &vectorstore.SpatialContext{
				Region: "Bay Area", Climate: "temperate", Elevation: ptr(60.0),
			},
		},
		{
			ID:       "griffith",
			Content:  "Griffith Park is a large park in Los Angeles with hiking trails.",
			Metadata: vectorstore.Metadata{DocType: vectorstore.DocFeature, Location: ptr(losAngeles)},
		},
		{
			ID:       "rainfall",
			Content:  "Annual rainfall report for California reservoirs.",
			Metadata: vectorstore.Metadata{DocType: vectorstore.DocReport},
		},
	}
}

func setupTestEngine(t *testing.T, embedder embedding.Embedder, cfg Config) *Engine {
	t.Helper()
	store := vectorstore.NewStore(nil, vectorstore.DefaultStoreConfig())
	e, err := NewEngine(embedder, store, nil, nil, cfg)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestAugmentEmbedding(t *testing.T) {
	doc := testDocuments()[0]
	out := AugmentEmbedding([]float32{0.5, 0.5}, doc)

	require.Len(t, out, 2+SpatialFeatureCount)
	assert.Equal(t, []float32{0.5, 0.5}, out[:2])
	assert.InDelta(t, sanFrancisco.Latitude/90, out[2], 1e-6)
	assert.InDelta(t, sanFrancisco.Longitude/180, out[3], 1e-6)
	assert.InDelta(t, math.Sin(geo.ToRadians(sanFrancisco.Latitude)), out[4], 1e-6)
	assert.InDelta(t, math.Cos(geo.ToRadians(sanFrancisco.Latitude)), out[5], 1e-6)
	assert.InDelta(t, math.Sin(geo.ToRadians(sanFrancisco.Longitude)), out[6], 1e-6)
	assert.InDelta(t, math.Cos(geo.ToRadians(sanFrancisco.Longitude)), out[7], 1e-6)
	assert.InDelta(t, 60.0/9000, out[8], 1e-6)
	assert.InDelta(t, 0.6, out[9], 1e-6)

	unlocated := AugmentEmbedding([]float32{1}, testDocuments()[2])
	assert.Equal(t, []float32{1, 0, 0, 0, 0, 0, 0, 0, 0}, unlocated)
}

func TestAugmentEmbedding_LocationChangesVector(t *testing.T) {
	a := testDocuments()[0]
	b := a
	b.Metadata.Location = ptr(losAngeles)
	assert.NotEqual(t, AugmentEmbedding([]float32{1, 0}, a), AugmentEmbedding([]float32{1, 0}, b))
}

func TestClimateCode(t *testing.T) {
	tests := map[string]float32{
		"tropical": 0.2, "Arid": 0.4, "temperate": 0.6,
		"continental": 0.8, "polar": 1.0, "martian": 0, "": 0,
	}
	for climate, want := range tests {
		assert.Equal(t, want, ClimateCode(climate), climate)
	}
}

func TestScopeFor(t *testing.T) {
	tests := []struct {
		hasLocation bool
		radius      float64
		want        string
	}{
		{false, 5, ScopeGlobal},
		{true, 5, ScopeLocal},
		{true, 10, ScopeLocal},
		{true, 50, ScopeRegional},
		{true, 100, ScopeRegional},
		{true, 250, ScopeNational},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScopeFor(tt.hasLocation, tt.radius))
	}
}

func TestConfidence(t *testing.T) {
	assert.Zero(t, Confidence(nil))

	two := []vectorstore.SearchResult{{CombinedScore: 0.6}, {CombinedScore: 0.4}}
	assert.InDelta(t, 0.5+0.04, Confidence(two), 1e-9)

	many := make([]vectorstore.SearchResult, 7)
	for i := range many {
		many[i].CombinedScore = 0.95
	}
	assert.Equal(t, 1.0, Confidence(many), "capped")
}

func TestEngine_Initialize(t *testing.T) {
	mock := embedding.NewMockClient(16)
	e := setupTestEngine(t, mock, Config{BatchSize: 2, Concurrency: 2})

	docs := testDocuments()
	docs = append(docs, vectorstore.Document{ID: "pre", Content: "pre-embedded", Embedding: []float32{1, 2, 3}})
	require.NoError(t, e.Initialize(context.Background(), docs))

	assert.Equal(t, 4, e.Store().Count())
	assert.Equal(t, 2, mock.CallCount(), "three texts in sub-batches of two")

	gg, ok := e.Store().Get("gg-park")
	require.True(t, ok)
	assert.Len(t, gg.Embedding, 16+SpatialFeatureCount)

	pre, ok := e.Store().Get("pre")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, pre.Embedding, "existing embeddings are stored untouched")
	assert.Nil(t, docs[0].Embedding, "caller's slice is not mutated")
}

func TestEngine_InitializePropagatesEmbeddingFailure(t *testing.T) {
	boom := errors.New("provider unavailable")
	var calls atomic.Int32
	mock := embedding.NewMockClient(8)
	mock.EmbedBatchFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 2 {
			return nil, boom
		}
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = make([]float32, 8)
		}
		return out, nil
	}
	e := setupTestEngine(t, mock, Config{BatchSize: 1, Concurrency: 1})

	err := e.Initialize(context.Background(), testDocuments())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, e.Store().Count(), "nothing stored on failure")
}

func TestEngine_Query(t *testing.T) {
	e := setupTestEngine(t, embedding.NewMockClient(64), DefaultConfig())
	require.NoError(t, e.Initialize(context.Background(), testDocuments()))

	resp, err := e.Query(context.Background(), Query{
		Text:     "large park with hiking trails",
		Location: ptr(losAngeles),
		RadiusKm: 50,
	})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "griffith", resp.Sources[0].Document.ID)
	assert.Equal(t, ScopeRegional, resp.SpatialContext.Scope)
	assert.Equal(t, 50.0, resp.SpatialContext.SearchRadiusKm)
	assert.Contains(t, resp.Answer, "Feature (")
	assert.Contains(t, resp.Answer, "Griffith Park is a large park in Los Angeles with hiking trails")
	assert.Contains(t, resp.Answer, "within 50 km")
	assert.InDelta(t, Confidence(resp.Sources), resp.Confidence, 1e-12)
}

func TestEngine_QueryWithoutLocationIsGlobal(t *testing.T) {
	e := setupTestEngine(t, embedding.NewMockClient(64), DefaultConfig())
	require.NoError(t, e.Initialize(context.Background(), testDocuments()))

	resp, err := e.Query(context.Background(), Query{Text: "rainfall report"})
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, resp.SpatialContext.Scope)
	assert.Nil(t, resp.SpatialContext.QueryLocation)
	assert.NotContains(t, resp.Answer, "Search covered")
}

func TestEngine_QueryNoSources(t *testing.T) {
	e := setupTestEngine(t, embedding.NewMockClient(8), DefaultConfig())

	resp, err := e.Query(context.Background(), Query{Text: "anything"})
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, resp.Confidence)
	assert.Equal(t, InsufficientInformationAnswer, resp.Answer)
}

func TestEngine_QueryLowConfidenceDisclaimer(t *testing.T) {
	e := setupTestEngine(t, embedding.NewMockClient(64), DefaultConfig())
	require.NoError(t, e.Initialize(context.Background(), testDocuments()))

	resp, err := e.Query(context.Background(), Query{Text: "zebra quantum xylophone"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(resp.Answer, "low relevance"))
}

func TestEngine_QueryErrors(t *testing.T) {
	boom := errors.New("embedder offline")
	mock := embedding.NewMockClient(8)
	mock.EmbedBatchFunc = func(context.Context, []string) ([][]float32, error) { return nil, boom }
	e := setupTestEngine(t, mock, DefaultConfig())

	_, err := e.Query(context.Background(), Query{})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = e.Query(context.Background(), Query{Text: "parks"})
	assert.ErrorIs(t, err, boom)
}
