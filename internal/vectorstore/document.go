package vectorstore

import (
	"time"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
)

// DocType classifies a document for filtering and answer grouping.
type DocType string

const (
	DocFeature     DocType = "feature"
	DocDescription DocType = "description"
	DocReport      DocType = "report"
	DocAnalysis    DocType = "analysis"
	DocMetadata    DocType = "metadata"
)

// Metadata carries the geographic and provenance attributes of a document.
type Metadata struct {
	DocType    DocType          `json:"doc_type"`
	Location   *geo.Coordinates `json:"location,omitempty"`
	Bounds     *geo.BoundingBox `json:"bounds,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	Source     string           `json:"source"`
	Tags       []string         `json:"tags,omitempty"`
	Confidence *float64         `json:"confidence,omitempty"`
}

// SpatialContext holds enrichment gathered by collaborators before ingestion.
type SpatialContext struct {
	Region    string   `json:"region,omitempty"`
	Climate   string   `json:"climate,omitempty"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// Document is the unit of semantic retrieval.
type Document struct {
	ID             string          `json:"id"`
	Content        string          `json:"content"`
	Metadata       Metadata        `json:"metadata"`
	Embedding      []float32       `json:"embedding,omitempty"`
	SpatialContext *SpatialContext `json:"spatial_context,omitempty"`
}

// HasTag reports whether the document carries tag.
func (d Document) HasTag(tag string) bool {
	for _, t := range d.Metadata.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TimeRange is inclusive on both ends; a zero bound is open.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Filters are ANDed together; unset fields do not constrain.
type Filters struct {
	Types         []DocType  `json:"types,omitempty"`
	TimeRange     *TimeRange `json:"time_range,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	MinConfidence *float64   `json:"min_confidence,omitempty"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return len(f.Types) == 0 && f.TimeRange == nil && len(f.Tags) == 0 && f.MinConfidence == nil
}

// SearchQuery describes a hybrid search.
type SearchQuery struct {
	Location      *geo.Coordinates
	RadiusKm      float64
	Filters       Filters
	SpatialWeight *float64
	MaxResults    int
}

// SearchResult is one ranked document.
type SearchResult struct {
	Document         Document `json:"document"`
	Similarity       float64  `json:"similarity"`
	SpatialRelevance float64  `json:"spatial_relevance"`
	CombinedScore    float64  `json:"combined_score"`
	DistanceKm       *float64 `json:"distance_km,omitempty"`
}
