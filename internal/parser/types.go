package parser

import (
	"time"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
)

// Intent is the classified purpose of a query.
type Intent string

// Enumeration order is the tie-break order.
const (
	IntentSearch          Intent = "search"
	IntentCompare         Intent = "compare"
	IntentAnalyze         Intent = "analyze"
	IntentDescribe        Intent = "describe"
	IntentFindNearby      Intent = "find_nearby"
	IntentRoute           Intent = "route"
	IntentChangeDetection Intent = "change_detection"
)

// Intents lists every intent in tie-break order.
var Intents = []Intent{
	IntentSearch,
	IntentCompare,
	IntentAnalyze,
	IntentDescribe,
	IntentFindNearby,
	IntentRoute,
	IntentChangeDetection,
}

// EntityType classifies an extracted entity.
type EntityType string

const (
	EntityLocation    EntityType = "location"
	EntityCoordinates EntityType = "coordinates"
	EntityFeatureType EntityType = "feature_type"
	EntityMeasurement EntityType = "measurement"
)

// Per-pattern confidence constants.
const (
	locationConfidence    = 0.7
	coordinatesConfidence = 0.95
	featureTypeConfidence = 0.8
	measurementConfidence = 0.9
)

// Measurement is a distance expression. Value and Unit keep what the user
// wrote (unit in canonical spelling); Kilometers is the normalized value.
type Measurement struct {
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Kilometers float64 `json:"kilometers"`
}

// Entity is a typed span of the query text. Start and End are byte offsets,
// End exclusive.
type Entity struct {
	Type        EntityType       `json:"type"`
	Text        string           `json:"text"`
	Start       int              `json:"start"`
	End         int              `json:"end"`
	Confidence  float64          `json:"confidence"`
	Normalized  string           `json:"normalized,omitempty"`
	Coordinates *geo.Coordinates `json:"coordinates,omitempty"`
	Measurement *Measurement     `json:"measurement,omitempty"`
}

// ConstraintType names the shape of a spatial constraint.
type ConstraintType string

const (
	ConstraintRadius ConstraintType = "radius"
	ConstraintPoint  ConstraintType = "point"
	ConstraintWithin ConstraintType = "within"
	ConstraintBBox   ConstraintType = "bbox"
)

// SpatialConstraint restricts results geographically. Constraints built from
// a named location carry LocationName and stay unresolved until a geocoder
// supplies Center.
type SpatialConstraint struct {
	Type         ConstraintType   `json:"type"`
	Center       *geo.Coordinates `json:"center,omitempty"`
	Bounds       *geo.BoundingBox `json:"bounds,omitempty"`
	RadiusKm     float64          `json:"radius_km,omitempty"`
	LocationName string           `json:"location_name,omitempty"`
	Resolved     bool             `json:"resolved"`
}

// TemporalConstraint is an inclusive date range.
type TemporalConstraint struct {
	Expression string    `json:"expression"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Filter fields produced by the parser.
const (
	FilterType          = "type"
	FilterTag           = "tag"
	FilterMinConfidence = "min_confidence"
)

// Filter is a simple field predicate.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// ParsedQuery is the structured form of one query. It lives for one request.
type ParsedQuery struct {
	OriginalText        string               `json:"original_text"`
	Intent              Intent               `json:"intent"`
	Entities            []Entity             `json:"entities"`
	SpatialConstraints  []SpatialConstraint  `json:"spatial_constraints"`
	TemporalConstraints []TemporalConstraint `json:"temporal_constraints"`
	Filters             []Filter             `json:"filters"`
	Confidence          float64              `json:"confidence"`
}

// EntitiesOf returns the entities of type t in text order.
func (q *ParsedQuery) EntitiesOf(t EntityType) []Entity {
	var out []Entity
	for _, e := range q.Entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
