package spatial

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
)

// GeometryType discriminates the shape held by a Geometry.
type GeometryType string

const (
	GeometryPoint      GeometryType = "point"
	GeometryLineString GeometryType = "linestring"
	GeometryPolygon    GeometryType = "polygon"
)

var (
	ErrInvalidGeometry = errors.New("invalid geometry")
	ErrMissingID       = errors.New("feature id is required")
)

// Geometry holds exactly one of Point, Line or Polygon, matching the
// owning feature's GeometryType. Polygon rings are closed sequences.
type Geometry struct {
	Point   *geo.Coordinates    `json:"point,omitempty"`
	Line    []geo.Coordinates   `json:"line,omitempty"`
	Polygon [][]geo.Coordinates `json:"polygon,omitempty"`
}

// Feature is a named geometric entity. Identity is the ID.
type Feature struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	GeometryType GeometryType      `json:"geometry_type"`
	Geometry     Geometry          `json:"geometry"`
	Properties   map[string]any    `json:"properties,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewPointFeature is a convenience constructor for point features.
func NewPointFeature(id, name string, at geo.Coordinates, props map[string]any) Feature {
	p := at
	return Feature{
		ID:           id,
		Name:         name,
		GeometryType: GeometryPoint,
		Geometry:     Geometry{Point: &p},
		Properties:   props,
	}
}

// Validate checks that the geometry matches the declared type and is non-empty.
func (f Feature) Validate() error {
	if f.ID == "" {
		return ErrMissingID
	}
	switch f.GeometryType {
	case GeometryPoint:
		if f.Geometry.Point == nil {
			return fmt.Errorf("%w: point feature %q has no coordinate", ErrInvalidGeometry, f.ID)
		}
	case GeometryLineString:
		if len(f.Geometry.Line) == 0 {
			return fmt.Errorf("%w: linestring feature %q has no coordinates", ErrInvalidGeometry, f.ID)
		}
	case GeometryPolygon:
		if len(f.Geometry.Polygon) == 0 || len(f.Geometry.Polygon[0]) == 0 {
			return fmt.Errorf("%w: polygon feature %q has no rings", ErrInvalidGeometry, f.ID)
		}
	default:
		return fmt.Errorf("%w: unknown geometry type %q", ErrInvalidGeometry, f.GeometryType)
	}
	return nil
}

// Orb converts the geometry into its paulmach/orb equivalent. Longitude maps
// to X and latitude to Y.
func (f Feature) Orb() orb.Geometry {
	switch f.GeometryType {
	case GeometryPoint:
		return toPoint(*f.Geometry.Point)
	case GeometryLineString:
		return toLineString(f.Geometry.Line)
	case GeometryPolygon:
		poly := make(orb.Polygon, 0, len(f.Geometry.Polygon))
		for _, ring := range f.Geometry.Polygon {
			poly = append(poly, orb.Ring(toLineString(ring)))
		}
		return poly
	}
	return nil
}

// Bounds returns the feature's bounding extent.
func (f Feature) Bounds() geo.BoundingBox {
	b := f.Orb().Bound()
	return geo.BoundingBox{
		North: b.Max.Lat(),
		South: b.Min.Lat(),
		East:  b.Max.Lon(),
		West:  b.Min.Lon(),
	}
}

// Centroid returns the point itself for points and the planar centroid of
// the geometry otherwise.
func (f Feature) Centroid() geo.Coordinates {
	if f.GeometryType == GeometryPoint {
		return *f.Geometry.Point
	}
	c, _ := planar.CentroidArea(f.Orb())
	return geo.Coordinates{Latitude: c.Lat(), Longitude: c.Lon()}
}

func toPoint(c geo.Coordinates) orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

func toLineString(cs []geo.Coordinates) orb.LineString {
	ls := make(orb.LineString, 0, len(cs))
	for _, c := range cs {
		ls = append(ls, toPoint(c))
	}
	return ls
}
