package catalog

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
)

// ParseGeoJSON converts a FeatureCollection into features. IDs come from the
// feature id, else the "id" property; names from the "name" property.
// Features with unsupported geometry (multi-geometries, collections) or no
// id are returned in skipped.
func ParseGeoJSON(data []byte) (features []spatial.Feature, skipped []string, err error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse geojson: %w", err)
	}

	for i, gf := range fc.Features {
		id := featureID(gf)
		if id == "" {
			skipped = append(skipped, fmt.Sprintf("#%d: missing id", i))
			continue
		}

		f := spatial.Feature{
			ID:         id,
			Name:       gf.Properties.MustString("name", ""),
			Properties: map[string]any{},
		}
		for k, v := range gf.Properties {
			if k == "id" || k == "name" {
				continue
			}
			f.Properties[k] = v
		}
		if len(f.Properties) == 0 {
			f.Properties = nil
		}

		switch g := gf.Geometry.(type) {
		case orb.Point:
			p := fromPoint(g)
			f.GeometryType = spatial.GeometryPoint
			f.Geometry.Point = &p
		case orb.LineString:
			f.GeometryType = spatial.GeometryLineString
			f.Geometry.Line = fromPoints(g)
		case orb.Polygon:
			f.GeometryType = spatial.GeometryPolygon
			for _, ring := range g {
				f.Geometry.Polygon = append(f.Geometry.Polygon, fromPoints(ring))
			}
		default:
			skipped = append(skipped, fmt.Sprintf("%s: unsupported geometry %T", id, gf.Geometry))
			continue
		}

		if err := f.Validate(); err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		features = append(features, f)
	}
	return features, skipped, nil
}

func featureID(gf *geojson.Feature) string {
	switch v := gf.ID.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprintf("%g", v)
	}
	return gf.Properties.MustString("id", "")
}

func fromPoint(p orb.Point) geo.Coordinates {
	return geo.Coordinates{Latitude: p.Lat(), Longitude: p.Lon()}
}

func fromPoints[T ~[]orb.Point](ps T) []geo.Coordinates {
	out := make([]geo.Coordinates, 0, len(ps))
	for _, p := range ps {
		out = append(out, fromPoint(p))
	}
	return out
}
