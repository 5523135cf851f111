// Package geo holds the coordinate primitives shared by the spatial index and
// the vector store: coordinates, bounding boxes, great-circle distance and
// uniform grid-cell arithmetic.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the position lies inside the lat/lon domain.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

// BoundingBox is an axis-aligned lat/lon rectangle. North must be >= South.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Valid reports whether the box is ordered and within range.
func (b BoundingBox) Valid() bool {
	return b.North >= b.South &&
		b.North <= 90 && b.South >= -90 &&
		b.East <= 180 && b.West >= -180 &&
		b.East >= -180 && b.West <= 180
}

// Contains reports whether c lies inside the box, edges included.
func (b BoundingBox) Contains(c Coordinates) bool {
	return c.Latitude >= b.South && c.Latitude <= b.North &&
		c.Longitude >= b.West && c.Longitude <= b.East
}

// Intersects reports whether two boxes overlap, touching edges included.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.West <= o.East && b.East >= o.West &&
		b.South <= o.North && b.North >= o.South
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Coordinates {
	return Coordinates{
		Latitude:  (b.North + b.South) / 2,
		Longitude: (b.East + b.West) / 2,
	}
}

// radiusPadDeg widens radius boxes so float rounding at the edge never drops
// a point that Haversine places inside the circle.
const radiusPadDeg = 1e-6

// RadiusBoxes returns the boxes that together enclose every point within
// radiusKm of center by great-circle distance. The longitude half-width is
// asin(sin(r/R)/cos(lat)), the widest reach of the circle. A circle that
// covers a pole spans every longitude, and one that crosses the
// antimeridian is split into two boxes, one on each side of it.
func RadiusBoxes(center Coordinates, radiusKm float64) []BoundingBox {
	if radiusKm < 0 {
		return nil
	}
	angular := radiusKm / EarthRadiusKm
	latDelta := toDegrees(angular) + radiusPadDeg
	north := center.Latitude + latDelta
	south := center.Latitude - latDelta
	if angular >= math.Pi || north >= 90 || south <= -90 {
		return []BoundingBox{{
			North: math.Min(90, north),
			South: math.Max(-90, south),
			East:  180,
			West:  -180,
		}}
	}

	ratio := math.Sin(angular) / math.Cos(toRadians(center.Latitude))
	if ratio >= 1 {
		return []BoundingBox{{North: north, South: south, East: 180, West: -180}}
	}
	lonDelta := toDegrees(math.Asin(ratio)) + radiusPadDeg
	west := center.Longitude - lonDelta
	east := center.Longitude + lonDelta

	switch {
	case west < -180:
		return []BoundingBox{
			{North: north, South: south, East: east, West: -180},
			{North: north, South: south, East: 180, West: west + 360},
		}
	case east > 180:
		return []BoundingBox{
			{North: north, South: south, East: 180, West: west},
			{North: north, South: south, East: east - 360, West: -180},
		}
	default:
		return []BoundingBox{{North: north, South: south, East: east, West: west}}
	}
}

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b Coordinates) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// ToRadians converts decimal degrees to radians.
func ToRadians(deg float64) float64 { return toRadians(deg) }
