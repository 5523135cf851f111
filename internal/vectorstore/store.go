// Package vectorstore holds documents with their embeddings and a coarse
// spatial grid over document locations, and ranks them for a query vector by
// a blend of cosine similarity and distance decay.
package vectorstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
)

var (
	ErrMissingID      = errors.New("document id is required")
	ErrEmptyEmbedding = errors.New("query embedding is empty")
)

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	GridSize        float64 `yaml:"grid_size"`
	DefaultRadiusKm float64 `yaml:"default_radius_km"`
	SpatialWeight   float64 `yaml:"spatial_weight"`
	MaxResults      int     `yaml:"max_results"`
	// AlignQueryDimensions pads or truncates the query vector to each stored
	// vector's length. When false, a length mismatch fails the search.
	AlignQueryDimensions bool `yaml:"align_query_dimensions"`
}

// DefaultStoreConfig returns sensible defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		GridSize:             0.1,
		DefaultRadiusKm:      100,
		SpatialWeight:        0.3,
		MaxResults:           10,
		AlignQueryDimensions: true,
	}
}

// Store is safe for concurrent use. Searches share a read lock; writes are
// serialized.
type Store struct {
	mu         sync.RWMutex
	cfg        StoreConfig
	grid       geo.Grid
	documents  map[string]Document
	embeddings map[string][]float32
	buckets    map[geo.CellKey]map[string]struct{}
	docCells   map[string]geo.CellKey
	logger     *observability.Logger
}

// NewStore creates an empty store.
func NewStore(logger *observability.Logger, cfg StoreConfig) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	defaults := DefaultStoreConfig()
	if cfg.GridSize <= 0 {
		cfg.GridSize = defaults.GridSize
	}
	if cfg.DefaultRadiusKm <= 0 {
		cfg.DefaultRadiusKm = defaults.DefaultRadiusKm
	}
	if cfg.SpatialWeight < 0 || cfg.SpatialWeight > 1 {
		cfg.SpatialWeight = defaults.SpatialWeight
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaults.MaxResults
	}

	return &Store{
		cfg:        cfg,
		grid:       geo.NewGrid(cfg.GridSize),
		documents:  make(map[string]Document),
		embeddings: make(map[string][]float32),
		buckets:    make(map[geo.CellKey]map[string]struct{}),
		docCells:   make(map[string]geo.CellKey),
		logger:     logger.WithComponent("vectorstore"),
	}
}

// Config returns the effective configuration.
func (s *Store) Config() StoreConfig {
	return s.cfg
}

// AddDocument stores or replaces a document.
func (s *Store) AddDocument(doc Document) error {
	if doc.ID == "" {
		return ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(doc)
	return nil
}

// AddDocuments stores all documents under one write lock. Documents are
// validated first so a bad id leaves the store untouched.
func (s *Store) AddDocuments(docs []Document) error {
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document %d: %w", i, ErrMissingID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.addLocked(d)
	}
	s.logger.Debug().Int("count", len(docs)).Int("total", len(s.documents)).Msg("Documents added")
	return nil
}

func (s *Store) addLocked(doc Document) {
	s.removeLocked(doc.ID)

	doc.Metadata.Tags = dedupeTags(doc.Metadata.Tags)
	if len(doc.Embedding) > 0 {
		s.embeddings[doc.ID] = append([]float32(nil), doc.Embedding...)
	}
	doc.Embedding = nil
	s.documents[doc.ID] = doc

	if doc.Metadata.Location != nil {
		key := s.grid.Cell(*doc.Metadata.Location)
		bucket, ok := s.buckets[key]
		if !ok {
			bucket = make(map[string]struct{})
			s.buckets[key] = bucket
		}
		bucket[doc.ID] = struct{}{}
		s.docCells[doc.ID] = key
	}
}

// RemoveDocument deletes the document, its embedding and its grid entry.
func (s *Store) RemoveDocument(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Store) removeLocked(id string) bool {
	if _, ok := s.documents[id]; !ok {
		return false
	}
	delete(s.documents, id)
	delete(s.embeddings, id)
	if key, ok := s.docCells[id]; ok {
		if bucket := s.buckets[key]; bucket != nil {
			delete(bucket, id)
			if len(bucket) == 0 {
				delete(s.buckets, key)
			}
		}
		delete(s.docCells, id)
	}
	return true
}

// Get returns the document with its embedding.
func (s *Store) Get(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.documents[id]
	if !ok {
		return Document{}, false
	}
	d.Embedding = append([]float32(nil), s.embeddings[id]...)
	return d, true
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents = make(map[string]Document)
	s.embeddings = make(map[string][]float32)
	s.buckets = make(map[geo.CellKey]map[string]struct{})
	s.docCells = make(map[string]geo.CellKey)
}

// Search ranks stored documents against queryEmbedding.
//
// With a location, candidates come from the grid cells covering the search
// radius and fall back to every document when those cells are empty.
// Documents without an embedding are never returned.
func (s *Store) Search(queryEmbedding []float32, q SearchQuery) ([]SearchResult, error) {
	if len(queryEmbedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	radius := q.RadiusKm
	if radius <= 0 {
		radius = s.cfg.DefaultRadiusKm
	}
	weight := s.cfg.SpatialWeight
	if q.SpatialWeight != nil {
		weight = *q.SpatialWeight
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = s.cfg.MaxResults
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := s.candidatesLocked(q.Location, radius)

	results := make([]SearchResult, 0, len(candidates))
	for _, id := range candidates {
		doc := s.documents[id]
		if !matchesFilters(doc, q.Filters) {
			continue
		}
		vec, ok := s.embeddings[id]
		if !ok {
			continue
		}

		query := queryEmbedding
		if s.cfg.AlignQueryDimensions {
			query = fitVector(queryEmbedding, len(vec))
		}
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			return nil, fmt.Errorf("score document %s: %w", id, err)
		}

		res := SearchResult{
			Document:         doc,
			Similarity:       sim,
			SpatialRelevance: NeutralSpatialRelevance,
		}
		if q.Location != nil && doc.Metadata.Location != nil {
			d := geo.Haversine(*q.Location, *doc.Metadata.Location)
			res.DistanceKm = &d
			res.SpatialRelevance = SpatialRelevance(d, radius)
		}
		res.CombinedScore = CombinedScore(res.Similarity, res.SpatialRelevance, weight)
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].Document.ID < results[j].Document.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	s.logger.Debug().
		Int("candidates", len(candidates)).
		Int("results", len(results)).
		Bool("spatial", q.Location != nil).
		Msg("Vector search completed")
	return results, nil
}

// candidatesLocked must be called with at least a read lock held.
func (s *Store) candidatesLocked(loc *geo.Coordinates, radiusKm float64) []string {
	if loc != nil {
		seen := make(map[string]struct{})
		var ids []string
		collect := func(bucket map[string]struct{}) {
			for id := range bucket {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
		for _, box := range geo.RadiusBoxes(*loc, radiusKm) {
			r := s.grid.Range(box)
			if r.Len() <= len(s.buckets) {
				for _, key := range s.grid.Cells(box) {
					collect(s.buckets[key])
				}
				continue
			}
			for key, bucket := range s.buckets {
				if r.Contains(key) {
					collect(bucket)
				}
			}
		}
		if len(ids) > 0 {
			sort.Strings(ids)
			return ids
		}
		s.logger.Debug().
			Str("location", loc.String()).
			Float64("radius_km", radiusKm).
			Msg("No spatial candidates, falling back to full scan")
	}

	ids := make([]string, 0, len(s.documents))
	for id := range s.documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func matchesFilters(doc Document, f Filters) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if doc.Metadata.DocType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.TimeRange != nil && !f.TimeRange.Contains(doc.Metadata.Timestamp) {
		return false
	}

	if len(f.Tags) > 0 {
		found := false
		for _, t := range f.Tags {
			if doc.HasTag(t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	// documents without a confidence value are not excluded
	if f.MinConfidence != nil && doc.Metadata.Confidence != nil &&
		*doc.Metadata.Confidence < *f.MinConfidence {
		return false
	}

	return true
}

func dedupeTags(tags []string) []string {
	if len(tags) < 2 {
		return tags
	}
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0:0]
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
