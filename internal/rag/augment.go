package rag

import (
	"math"
	"strings"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

// SpatialFeatureCount is the number of scalars appended to each document
// vector by AugmentEmbedding.
const SpatialFeatureCount = 8

// maxElevationM normalizes elevation to roughly [0,1].
const maxElevationM = 9000.0

var climateCodes = map[string]float32{
	"tropical":    0.2,
	"arid":        0.4,
	"temperate":   0.6,
	"continental": 0.8,
	"polar":       1.0,
}

// ClimateCode maps a climate name to its scalar encoding. Unknown is 0.
func ClimateCode(climate string) float32 {
	return climateCodes[strings.ToLower(strings.TrimSpace(climate))]
}

// AugmentEmbedding appends derived spatial features to a text embedding:
// lat/90, lon/180, sin and cos of lat and lon (radians), elevation/9000 and
// the climate code. Documents without a location get zeros for the six
// location features.
func AugmentEmbedding(vec []float32, doc vectorstore.Document) []float32 {
	out := make([]float32, len(vec), len(vec)+SpatialFeatureCount)
	copy(out, vec)

	var loc [6]float32
	if l := doc.Metadata.Location; l != nil {
		latR := geo.ToRadians(l.Latitude)
		lonR := geo.ToRadians(l.Longitude)
		loc = [6]float32{
			float32(l.Latitude / 90),
			float32(l.Longitude / 180),
			float32(math.Sin(latR)),
			float32(math.Cos(latR)),
			float32(math.Sin(lonR)),
			float32(math.Cos(lonR)),
		}
	}
	out = append(out, loc[:]...)

	var elevation, climate float32
	if sc := doc.SpatialContext; sc != nil {
		if sc.Elevation != nil {
			elevation = float32(*sc.Elevation / maxElevationM)
		}
		climate = ClimateCode(sc.Climate)
	}
	return append(out, elevation, climate)
}
