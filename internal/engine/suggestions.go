package engine

import "strings"

var queryPatterns = []string{
	"Find parks near San Francisco",
	"Find restaurants within 5 km of 37.7749, -122.4194",
	"Show hospitals near Los Angeles",
	"Find schools within 10 miles of Seattle",
	"What rivers are near Portland?",
	"Compare parks in Los Angeles and San Francisco",
	"Compare rainfall between Oakland and Sacramento",
	"Analyze land use around Denver",
	"Analyze flood reports from the last 30 days",
	"Describe the area around Yosemite Valley",
	"Describe the lakes of Minnesota",
	"Find buildings nearby 40.7128, -74.0060",
	"Route from Boston to New York",
	"Detect changes in forest cover over the past 2 years",
	"Show reports with type:report from the last 6 months",
	"Find airports within 50 km of Chicago",
	"Find mountains with confidence above 0.8",
}

// GetSuggestions returns the query patterns containing partial,
// ignoring case. An empty partial returns every pattern.
func (e *Engine) GetSuggestions(partial string) []string {
	needle := strings.ToLower(strings.TrimSpace(partial))
	out := []string{}
	for _, p := range queryPatterns {
		if strings.Contains(strings.ToLower(p), needle) {
			out = append(out, p)
		}
	}
	return out
}
