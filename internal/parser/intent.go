package parser

import (
	"strings"
	"unicode"
)

// IntentClassifier scores intents by keyword occurrences.
type IntentClassifier struct {
	keywords map[Intent][]string
}

// NewIntentClassifier creates a new intent classifier.
func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{
		keywords: map[Intent][]string{
			IntentSearch: {
				"find", "search", "show", "list", "locate", "where are",
				"where is", "get", "look for", "which",
			},
			IntentCompare: {
				"compare", "comparison", "versus", "vs", "difference between",
				"differences", "contrast", "better than", "similar to",
			},
			IntentAnalyze: {
				"analyze", "analyse", "analysis", "statistics", "stats",
				"distribution", "pattern", "patterns", "trend", "trends",
				"how many", "average", "density",
			},
			IntentDescribe: {
				"describe", "description", "what is", "what are", "tell me about",
				"explain", "information about", "details", "overview",
			},
			IntentFindNearby: {
				"near", "nearby", "nearest", "closest", "close to", "around",
				"in the vicinity", "surrounding",
			},
			IntentRoute: {
				"route", "routes", "directions", "path", "navigate",
				"how to get", "drive from", "travel from", "way to",
			},
			IntentChangeDetection: {
				"change", "changes", "changed", "changing", "deforestation",
				"urbanization", "growth", "shrinking", "over time", "evolution",
			},
		},
	}
}

// Classify returns the highest-scoring intent. Ties go to the earlier intent
// in enumeration order; a query with no keyword hits is a search. The
// second return value is the winning score.
func (c *IntentClassifier) Classify(text string) (Intent, int) {
	normalized := normalizeForKeywords(text)

	best, bestScore := IntentSearch, 0
	for _, intent := range Intents {
		score := 0
		for _, kw := range c.keywords[intent] {
			score += strings.Count(normalized, " "+kw+" ")
		}
		if score > bestScore {
			best, bestScore = intent, score
		}
	}
	return best, bestScore
}

// normalizeForKeywords lowercases text, replaces punctuation with spaces and
// pads with spaces so keywords can be matched on word boundaries.
func normalizeForKeywords(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(fields, " ") + " "
}
