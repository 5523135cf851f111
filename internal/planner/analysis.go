package planner

import (
	"fmt"
	"math"
	"sort"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

// sourceConfidence is the document's own confidence when set, otherwise
// its retrieval score.
func sourceConfidence(r vectorstore.SearchResult) float64 {
	if c := r.Document.Metadata.Confidence; c != nil {
		return *c
	}
	return r.CombinedScore
}

// computeStatistics builds a type histogram, mean confidence and the
// centroid and lat/lon spread of located sources.
func computeStatistics(sources []vectorstore.SearchResult) *AnalysisOutput {
	out := &AnalysisOutput{Mode: AnalysisStatistics}
	stats := &Statistics{
		SourceCount:   len(sources),
		TypeHistogram: make(map[string]int),
	}
	out.Statistics = stats

	if len(sources) == 0 {
		out.Note = "no sources to analyze"
		return out
	}

	var (
		confSum                        float64
		latSum, lonSum                 float64
		minLat, maxLat, minLon, maxLon = math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)
	)
	for _, s := range sources {
		stats.TypeHistogram[string(s.Document.Metadata.DocType)]++
		confSum += sourceConfidence(s)

		loc := s.Document.Metadata.Location
		if loc == nil {
			continue
		}
		stats.LocatedCount++
		latSum += loc.Latitude
		lonSum += loc.Longitude
		minLat = math.Min(minLat, loc.Latitude)
		maxLat = math.Max(maxLat, loc.Latitude)
		minLon = math.Min(minLon, loc.Longitude)
		maxLon = math.Max(maxLon, loc.Longitude)
	}
	stats.MeanConfidence = confSum / float64(len(sources))

	if stats.LocatedCount > 0 {
		n := float64(stats.LocatedCount)
		stats.Centroid = &geo.Coordinates{Latitude: latSum / n, Longitude: lonSum / n}
		stats.LatitudeSpread = maxLat - minLat
		stats.LongitudeSpread = maxLon - minLon
	} else {
		out.Note = "no located sources"
	}
	return out
}

// compareSources contrasts the first two sources. Fewer than two is
// reported in Note, not as an error.
func compareSources(sources []vectorstore.SearchResult) *AnalysisOutput {
	out := &AnalysisOutput{Mode: AnalysisComparison}
	if len(sources) < 2 {
		out.Note = fmt.Sprintf("comparison needs at least two sources, found %d", len(sources))
		return out
	}

	a, b := sources[0], sources[1]
	cmp := &Comparison{FirstID: a.Document.ID, SecondID: b.Document.ID}

	delta := sourceConfidence(a) - sourceConfidence(b)
	cmp.Differences = append(cmp.Differences, Difference{
		Aspect: AspectConfidence,
		Value:  &delta,
		Detail: fmt.Sprintf("%s confidence %.2f vs %s confidence %.2f",
			a.Document.ID, sourceConfidence(a), b.Document.ID, sourceConfidence(b)),
	})

	sameType := a.Document.Metadata.DocType == b.Document.Metadata.DocType
	typeDetail := fmt.Sprintf("both are %s", a.Document.Metadata.DocType)
	if !sameType {
		typeDetail = fmt.Sprintf("%s vs %s", a.Document.Metadata.DocType, b.Document.Metadata.DocType)
	}
	cmp.Differences = append(cmp.Differences, Difference{
		Aspect: AspectType,
		Equal:  &sameType,
		Detail: typeDetail,
	})

	if la, lb := a.Document.Metadata.Location, b.Document.Metadata.Location; la != nil && lb != nil {
		d := geo.Haversine(*la, *lb)
		cmp.Differences = append(cmp.Differences, Difference{
			Aspect: AspectDistance,
			Value:  &d,
			Detail: fmt.Sprintf("%.1f km apart", d),
		})
	}

	out.Comparison = cmp
	return out
}

// groupKey extracts the aggregation field from a source.
func groupKey(field string, r vectorstore.SearchResult) (string, error) {
	var key string
	switch field {
	case "type":
		key = string(r.Document.Metadata.DocType)
	case "source":
		key = r.Document.Metadata.Source
	case "region":
		if sc := r.Document.SpatialContext; sc != nil {
			key = sc.Region
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownGroupBy, field)
	}
	if key == "" {
		key = "unknown"
	}
	return key, nil
}

// aggregateSources groups sources by field. Groups are ordered by count,
// then key; each keeps its topN ids in rank order.
func aggregateSources(sources []vectorstore.SearchResult, field string, topN int) (*AggregationOutput, error) {
	if field == "" {
		field = "type"
	}
	if topN <= 0 {
		topN = 3
	}

	type acc struct {
		count int
		sum   float64
		top   []string
	}
	groups := make(map[string]*acc)
	for _, s := range sources {
		key, err := groupKey(field, s)
		if err != nil {
			return nil, err
		}
		g, ok := groups[key]
		if !ok {
			g = &acc{}
			groups[key] = g
		}
		g.count++
		g.sum += s.CombinedScore
		if len(g.top) < topN {
			g.top = append(g.top, s.Document.ID)
		}
	}

	out := &AggregationOutput{GroupBy: field, Groups: make([]Group, 0, len(groups))}
	for key, g := range groups {
		out.Groups = append(out.Groups, Group{
			Key:       key,
			Count:     g.count,
			MeanScore: g.sum / float64(g.count),
			TopIDs:    g.top,
		})
	}
	sort.Slice(out.Groups, func(i, j int) bool {
		if out.Groups[i].Count != out.Groups[j].Count {
			return out.Groups[i].Count > out.Groups[j].Count
		}
		return out.Groups[i].Key < out.Groups[j].Key
	})
	return out, nil
}
