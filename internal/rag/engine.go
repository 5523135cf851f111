// Package rag bridges text queries to the vector store: it embeds document
// text at ingestion, augments stored vectors with spatial features, and
// turns ranked search results into a templated answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

var ErrEmptyQuery = errors.New("query text is empty")

// Config holds orchestrator configuration.
type Config struct {
	BatchSize              int     `yaml:"batch_size"`
	Concurrency            int     `yaml:"concurrency"`
	TopPerGroup            int     `yaml:"top_per_group"`
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:              16,
		Concurrency:            4,
		TopPerGroup:            3,
		LowConfidenceThreshold: 0.7,
	}
}

// Query is a retrieval request.
type Query struct {
	Text          string
	Location      *geo.Coordinates
	RadiusKm      float64
	Filters       vectorstore.Filters
	MaxResults    int
	SpatialWeight *float64
}

// SpatialContext describes the geographic framing of a response.
type SpatialContext struct {
	QueryLocation  *geo.Coordinates `json:"query_location,omitempty"`
	SearchRadiusKm float64          `json:"search_radius_km"`
	Scope          string           `json:"scope"`
}

// Response is the synthesized retrieval answer.
type Response struct {
	Answer         string                     `json:"answer"`
	Sources        []vectorstore.SearchResult `json:"sources"`
	Confidence     float64                    `json:"confidence"`
	SpatialContext SpatialContext             `json:"spatial_context"`
}

// Engine owns the embedding worker pool. Call Close when done.
type Engine struct {
	cfg      Config
	embedder embedding.Embedder
	store    *vectorstore.Store
	pool     *ants.Pool
	writer   answerWriter
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewEngine creates an orchestrator over store using embedder.
func NewEngine(
	embedder embedding.Embedder,
	store *vectorstore.Store,
	logger *observability.Logger,
	metrics *observability.Metrics,
	cfg Config,
) (*Engine, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.TopPerGroup <= 0 {
		cfg.TopPerGroup = defaults.TopPerGroup
	}
	if cfg.LowConfidenceThreshold <= 0 {
		cfg.LowConfidenceThreshold = defaults.LowConfidenceThreshold
	}

	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		pool:     pool,
		writer: answerWriter{
			topPerGroup:            cfg.TopPerGroup,
			lowConfidenceThreshold: cfg.LowConfidenceThreshold,
		},
		logger:  logger.WithComponent("rag"),
		metrics: metrics,
	}, nil
}

// Close releases the worker pool.
func (e *Engine) Close() {
	e.pool.Release()
}

// Store returns the underlying vector store.
func (e *Engine) Store() *vectorstore.Store {
	return e.store
}

// Initialize embeds every document lacking an embedding, augments the new
// vectors with spatial features and adds all documents to the store. Text is
// embedded in sub-batches run on the bounded worker pool; the first failure
// aborts the whole call and nothing is stored.
func (e *Engine) Initialize(ctx context.Context, docs []vectorstore.Document) error {
	start := time.Now()

	var pending []int
	for i, d := range docs {
		if len(d.Embedding) == 0 {
			pending = append(pending, i)
		}
	}

	if len(pending) > 0 {
		vectors, err := e.embedPending(ctx, docs, pending)
		if err != nil {
			return err
		}
		prepared := make([]vectorstore.Document, len(docs))
		copy(prepared, docs)
		for j, idx := range pending {
			prepared[idx].Embedding = AugmentEmbedding(vectors[j], prepared[idx])
		}
		docs = prepared
	}

	if err := e.store.AddDocuments(docs); err != nil {
		return fmt.Errorf("store documents: %w", err)
	}

	e.logger.Info().
		Int("documents", len(docs)).
		Int("embedded", len(pending)).
		Dur("duration", time.Since(start)).
		Msg("Retrieval index initialized")
	return nil
}

func (e *Engine) embedPending(ctx context.Context, docs []vectorstore.Document, pending []int) ([][]float32, error) {
	vectors := make([][]float32, len(pending))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for lo := 0; lo < len(pending); lo += e.cfg.BatchSize {
		hi := min(lo+e.cfg.BatchSize, len(pending))
		texts := make([]string, 0, hi-lo)
		for _, idx := range pending[lo:hi] {
			texts = append(texts, docs[idx].Content)
		}

		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			e.metrics.ObserveEmbeddingBatch()

			out, err := e.embedder.EmbedBatch(ctx, texts)
			if err == nil && len(out) != len(texts) {
				err = fmt.Errorf("%w: got %d vectors for %d texts", embedding.ErrEmptyResponse, len(out), len(texts))
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("embed batch %d-%d: %w", lo, lo+len(texts), err)
				}
				return
			}
			copy(vectors[lo:], out)
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("submit embed batch: %w", err)
			}
			mu.Unlock()
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		e.logger.Error().Err(firstErr).Int("pending", len(pending)).Msg("Embedding failed")
		return nil, firstErr
	}
	return vectors, nil
}

// Query embeds the query text (no spatial augmentation), searches the store
// and synthesizes the answer.
func (e *Engine) Query(ctx context.Context, q Query) (*Response, error) {
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}

	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	radius := q.RadiusKm
	if radius <= 0 {
		radius = e.store.Config().DefaultRadiusKm
	}

	sources, err := e.store.Search(vec, vectorstore.SearchQuery{
		Location:      q.Location,
		RadiusKm:      radius,
		Filters:       q.Filters,
		SpatialWeight: q.SpatialWeight,
		MaxResults:    q.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	sc := SpatialContext{
		QueryLocation:  q.Location,
		SearchRadiusKm: radius,
		Scope:          ScopeFor(q.Location != nil, radius),
	}

	resp := &Response{
		Answer:         e.writer.write(q, sources, sc),
		Sources:        sources,
		Confidence:     Confidence(sources),
		SpatialContext: sc,
	}

	e.logger.WithContext(ctx).Debug().
		Int("sources", len(sources)).
		Float64("confidence", resp.Confidence).
		Str("scope", sc.Scope).
		Msg("Retrieval query answered")
	return resp, nil
}
