package rag

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

// Scope labels derived from the requested search radius.
const (
	ScopeLocal    = "local"
	ScopeRegional = "regional"
	ScopeNational = "national"
	ScopeGlobal   = "global"
)

// InsufficientInformationAnswer is returned when no source matched.
const InsufficientInformationAnswer = "I don't have sufficient information to answer this question about the requested area."

// ScopeFor labels a search by radius. Queries without a location are global.
func ScopeFor(hasLocation bool, radiusKm float64) string {
	switch {
	case !hasLocation:
		return ScopeGlobal
	case radiusKm <= 10:
		return ScopeLocal
	case radiusKm <= 100:
		return ScopeRegional
	default:
		return ScopeNational
	}
}

// Confidence is the mean combined score plus a diversity bonus of up to 0.1
// reached at five sources, capped at 1. No sources means zero confidence.
func Confidence(sources []vectorstore.SearchResult) float64 {
	if len(sources) == 0 {
		return 0
	}
	bonus := math.Min(float64(len(sources))/5, 1) * 0.1
	return math.Min(1, meanScore(sources)+bonus)
}

func meanScore(sources []vectorstore.SearchResult) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sources {
		sum += s.CombinedScore
	}
	return sum / float64(len(sources))
}

// answerWriter renders the templated natural-language answer.
type answerWriter struct {
	topPerGroup            int
	lowConfidenceThreshold float64
}

func (w answerWriter) write(q Query, sources []vectorstore.SearchResult, sc SpatialContext) string {
	if len(sources) == 0 {
		return InsufficientInformationAnswer
	}

	groups := make(map[vectorstore.DocType][]vectorstore.SearchResult)
	for _, s := range sources {
		t := s.Document.Metadata.DocType
		groups[t] = append(groups[t], s)
	}
	types := make([]vectorstore.DocType, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var parts []string
	parts = append(parts, fmt.Sprintf("Found %d relevant sources for %q.", len(sources), q.Text))

	for _, t := range types {
		items := groups[t]
		label := string(t)
		if label == "" {
			label = "other"
		}
		lines := []string{fmt.Sprintf("%s (%d):", strings.ToUpper(label[:1])+label[1:], len(items))}
		for i, item := range items {
			if i >= w.topPerGroup {
				break
			}
			line := fmt.Sprintf("- %s", summarize(item.Document.Content))
			if item.DistanceKm != nil {
				line += fmt.Sprintf(" (%.1f km away)", *item.DistanceKm)
			}
			lines = append(lines, line)
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}

	if sc.QueryLocation != nil {
		parts = append(parts, fmt.Sprintf("Search covered a %s area within %.0f km of %s.",
			sc.Scope, sc.SearchRadiusKm, sc.QueryLocation.String()))
	}

	if meanScore(sources) < w.lowConfidenceThreshold {
		parts = append(parts, "Note: these results have low relevance scores and may not fully answer the question.")
	}

	return strings.Join(parts, "\n\n")
}

// summarize keeps the first sentence of content, bounded to 160 runes.
func summarize(content string) string {
	s := strings.TrimSpace(content)
	if i := strings.IndexAny(s, ".\n"); i > 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > 160 {
		s = string(r[:157]) + "..."
	}
	return s
}
