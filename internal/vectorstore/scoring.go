package vectorstore

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors differ in length.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// NeutralSpatialRelevance is used when either side lacks a location.
const NeutralSpatialRelevance = 0.5

// CosineSimilarity returns a·b / (|a||b|). Zero vectors score 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// clamp rounding drift
	return math.Max(-1, math.Min(1, sim)), nil
}

// SpatialRelevance decays exponentially with distance, reaching ~0.05 at
// the effective radius.
func SpatialRelevance(distanceKm, radiusKm float64) float64 {
	if radiusKm <= 0 {
		return NeutralSpatialRelevance
	}
	return math.Exp(-distanceKm / (radiusKm / 3))
}

// CombinedScore blends semantic similarity and spatial relevance.
func CombinedScore(similarity, spatialRelevance, spatialWeight float64) float64 {
	return (1-spatialWeight)*similarity + spatialWeight*spatialRelevance
}

// fitVector truncates or zero-pads v to n elements.
func fitVector(v []float32, n int) []float32 {
	if len(v) == n {
		return v
	}
	out := make([]float32, n)
	copy(out, v)
	return out
}
