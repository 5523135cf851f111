package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxDistanceGap is the largest span gap, in bytes, between an anchor entity
// and the distance that applies to it.
const maxDistanceGap = 50

// DefaultNearRadiusKm applies when "near", "nearby" or "around" appear
// without an explicit distance.
const DefaultNearRadiusKm = 10.0

var (
	proximityPattern = regexp.MustCompile(`(?i)\b(near|nearby|around)\b`)

	relativePeriodPattern = regexp.MustCompile(
		`(?i)\b(?:last|past)\s+(?:(\d+)\s+)?(days?|weeks?|months?|years?)\b`)

	typeFilterPattern = regexp.MustCompile(`(?i)\btype:([a-z_]+)`)
	tagFilterPattern  = regexp.MustCompile(`(?i)\btag:([\w-]+)`)

	minConfidencePattern = regexp.MustCompile(
		`(?i)\bconfidence\s+(?:above|over|at\s+least|>=?)\s*(0?\.\d+|1(?:\.0+)?)`)
)

// spanGap returns the number of bytes between two non-overlapping spans.
func spanGap(a, b Entity) int {
	if b.Start >= a.End {
		return b.Start - a.End
	}
	if a.Start >= b.End {
		return a.Start - b.End
	}
	return 0
}

// nearestMeasurement returns the closest distance entity within
// maxDistanceGap of anchor.
func nearestMeasurement(anchor Entity, measurements []Entity) (Entity, bool) {
	best, found := Entity{}, false
	bestGap := maxDistanceGap
	for _, m := range measurements {
		if g := spanGap(anchor, m); g < bestGap {
			best, bestGap, found = m, g, true
		}
	}
	return best, found
}

// deriveSpatialConstraints turns coordinate and location entities into
// constraints. Coordinates with a nearby distance become radius constraints,
// bare coordinates become points (or a default radius when a proximity word
// is present). Named locations stay unresolved placeholders: radius when a
// distance or proximity word applies, "within" otherwise.
func deriveSpatialConstraints(text string, entities []Entity) []SpatialConstraint {
	var measurements []Entity
	for _, e := range entities {
		if e.Type == EntityMeasurement {
			measurements = append(measurements, e)
		}
	}
	proximity := proximityPattern.MatchString(text)

	var out []SpatialConstraint
	for _, e := range entities {
		switch e.Type {
		case EntityCoordinates:
			c := *e.Coordinates
			if m, ok := nearestMeasurement(e, measurements); ok {
				out = append(out, SpatialConstraint{
					Type: ConstraintRadius, Center: &c, RadiusKm: m.Measurement.Kilometers, Resolved: true,
				})
			} else if proximity {
				out = append(out, SpatialConstraint{
					Type: ConstraintRadius, Center: &c, RadiusKm: DefaultNearRadiusKm, Resolved: true,
				})
			} else {
				out = append(out, SpatialConstraint{Type: ConstraintPoint, Center: &c, Resolved: true})
			}

		case EntityLocation:
			if m, ok := nearestMeasurement(e, measurements); ok {
				out = append(out, SpatialConstraint{
					Type: ConstraintRadius, RadiusKm: m.Measurement.Kilometers, LocationName: e.Text,
				})
			} else if proximity {
				out = append(out, SpatialConstraint{
					Type: ConstraintRadius, RadiusKm: DefaultNearRadiusKm, LocationName: e.Text,
				})
			} else {
				out = append(out, SpatialConstraint{Type: ConstraintWithin, LocationName: e.Text})
			}
		}
	}
	return out
}

// deriveTemporalConstraints converts "last/past N units" into a concrete
// [start, now] range. A missing N means one.
func deriveTemporalConstraints(text string, now time.Time) []TemporalConstraint {
	var out []TemporalConstraint
	for _, m := range relativePeriodPattern.FindAllStringSubmatch(text, -1) {
		n := 1
		if m[1] != "" {
			v, err := strconv.Atoi(m[1])
			if err != nil || v <= 0 {
				continue
			}
			n = v
		}

		var start time.Time
		switch strings.TrimSuffix(strings.ToLower(m[2]), "s") {
		case "day":
			start = now.AddDate(0, 0, -n)
		case "week":
			start = now.AddDate(0, 0, -7*n)
		case "month":
			start = now.AddDate(0, -n, 0)
		case "year":
			start = now.AddDate(-n, 0, 0)
		default:
			continue
		}
		out = append(out, TemporalConstraint{Expression: m[0], Start: start, End: now})
	}
	return out
}

// deriveFilters collects explicit "type:" and "tag:" tokens and a
// "confidence above X" clause.
func deriveFilters(text string) []Filter {
	var out []Filter
	for _, m := range typeFilterPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, Filter{Field: FilterType, Operator: "eq", Value: strings.ToLower(m[1])})
	}
	for _, m := range tagFilterPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, Filter{Field: FilterTag, Operator: "eq", Value: strings.ToLower(m[1])})
	}
	if m := minConfidencePattern.FindStringSubmatch(text); m != nil {
		out = append(out, Filter{Field: FilterMinConfidence, Operator: "gte", Value: m[1]})
	}
	return out
}
