// Package spatial implements a uniform-grid index over geographic features.
//
// The grid is only a coarse prefilter. Every query is refined with an exact
// test: point-in-bounds for points and bounding-box overlap for lines and
// polygons. Polygons are never clipped.
package spatial

import (
	"sort"
	"sync"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
)

// DefaultCellSize is the grid resolution in degrees (about 1 km).
const DefaultCellSize = 0.01

// IndexConfig holds index configuration.
type IndexConfig struct {
	CellSize float64 `yaml:"cell_size"`
}

// DefaultIndexConfig returns sensible defaults.
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{CellSize: DefaultCellSize}
}

type entry struct {
	feature  Feature
	bounds   geo.BoundingBox
	centroid geo.Coordinates
	cells    []geo.CellKey
}

// Index stores features and a grid of cell -> feature ids. Reads may run
// concurrently; writes are serialized against reads.
type Index struct {
	mu       sync.RWMutex
	grid     geo.Grid
	features map[string]*entry
	buckets  map[geo.CellKey]map[string]struct{}
	logger   *observability.Logger
}

// NewIndex creates an empty index.
func NewIndex(logger *observability.Logger, cfg IndexConfig) *Index {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = DefaultCellSize
	}
	return &Index{
		grid:     geo.NewGrid(cfg.CellSize),
		features: make(map[string]*entry),
		buckets:  make(map[geo.CellKey]map[string]struct{}),
		logger:   logger.WithComponent("spatial"),
	}
}

// Insert adds or replaces a feature. A replaced feature is first removed
// from every bucket it occupied so no stale cells survive a geometry change.
func (idx *Index) Insert(f Feature) error {
	if err := f.Validate(); err != nil {
		return err
	}

	e := &entry{
		feature:  f,
		bounds:   f.Bounds(),
		centroid: f.Centroid(),
	}
	if f.GeometryType == GeometryPoint {
		e.cells = []geo.CellKey{idx.grid.Cell(*f.Geometry.Point)}
	} else {
		e.cells = idx.grid.Cells(e.bounds)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.features[f.ID]; ok {
		idx.unregister(f.ID, old.cells)
	}
	idx.features[f.ID] = e
	for _, key := range e.cells {
		bucket, ok := idx.buckets[key]
		if !ok {
			bucket = make(map[string]struct{})
			idx.buckets[key] = bucket
		}
		bucket[f.ID] = struct{}{}
	}

	idx.logger.Debug().
		Str("feature_id", f.ID).
		Str("geometry_type", string(f.GeometryType)).
		Int("cells", len(e.cells)).
		Msg("Feature indexed")
	return nil
}

// Query returns the features intersecting bounds, ordered by id. The caller
// must pass a valid box; no normalization is applied.
func (idx *Index) Query(bounds geo.BoundingBox) []Feature {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entries := idx.queryLocked(bounds)
	out := make([]Feature, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.feature)
	}
	return out
}

// QueryRadius returns the features whose point (or centroid, for lines and
// polygons) lies within radiusKm of center by great-circle distance,
// nearest first.
func (idx *Index) QueryRadius(center geo.Coordinates, radiusKm float64) []Feature {
	if radiusKm < 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type hit struct {
		feature  Feature
		distance float64
	}
	var hits []hit
	seen := make(map[string]struct{})
	for _, box := range geo.RadiusBoxes(center, radiusKm) {
		for _, e := range idx.queryLocked(box) {
			if _, dup := seen[e.feature.ID]; dup {
				continue
			}
			seen[e.feature.ID] = struct{}{}
			d := geo.Haversine(center, e.centroid)
			if d <= radiusKm {
				hits = append(hits, hit{feature: e.feature, distance: d})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })

	out := make([]Feature, len(hits))
	for i, h := range hits {
		out[i] = h.feature
	}
	return out
}

// Remove deletes a feature. It reports whether the id was present.
func (idx *Index) Remove(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	e, ok := idx.features[id]
	if !ok {
		return false
	}
	idx.unregister(id, e.cells)
	delete(idx.features, id)
	return true
}

// Clear empties the index.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.features = make(map[string]*entry)
	idx.buckets = make(map[geo.CellKey]map[string]struct{})
}

// Get returns the feature stored under id.
func (idx *Index) Get(id string) (Feature, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e, ok := idx.features[id]
	if !ok {
		return Feature{}, false
	}
	return e.feature, true
}

// Count returns the number of indexed features.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.features)
}

// BucketCount returns the number of non-empty grid cells.
func (idx *Index) BucketCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.buckets)
}

// queryLocked must be called with at least a read lock held.
func (idx *Index) queryLocked(bounds geo.BoundingBox) []*entry {
	seen := make(map[string]struct{})
	var out []*entry
	for _, key := range idx.candidateCells(bounds) {
		for id := range idx.buckets[key] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			e := idx.features[id]
			if e.feature.GeometryType == GeometryPoint {
				if !bounds.Contains(*e.feature.Geometry.Point) {
					continue
				}
			} else if !bounds.Intersects(e.bounds) {
				continue
			}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].feature.ID < out[j].feature.ID })
	return out
}

// candidateCells walks whichever is smaller: the cell range of bounds or the
// set of occupied buckets. Continental-scale boxes at 0.01 degrees would
// otherwise enumerate millions of empty cells.
func (idx *Index) candidateCells(bounds geo.BoundingBox) []geo.CellKey {
	r := idx.grid.Range(bounds)
	if r.Empty() {
		return nil
	}
	if r.Len() <= len(idx.buckets) {
		return idx.grid.Cells(bounds)
	}
	keys := make([]geo.CellKey, 0, len(idx.buckets))
	for key := range idx.buckets {
		if r.Contains(key) {
			keys = append(keys, key)
		}
	}
	return keys
}

// unregister must be called with the write lock held. Emptied buckets are pruned.
func (idx *Index) unregister(id string, cells []geo.CellKey) {
	for _, key := range cells {
		bucket, ok := idx.buckets[key]
		if !ok {
			continue
		}
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(idx.buckets, key)
		}
	}
}
