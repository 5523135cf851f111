// Package parser turns free-text geographic questions into a ParsedQuery
// with rule-based extraction: keyword intent scoring, regex entity passes,
// and derived spatial, temporal and filter constraints.
package parser

import (
	"math"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
)

// Parser is stateless apart from its clock and is safe for concurrent use.
type Parser struct {
	classifier *IntentClassifier
	now        func() time.Time
	logger     *observability.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock overrides time.Now for temporal constraints.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

// WithLogger sets the parser's logger.
func WithLogger(logger *observability.Logger) Option {
	return func(p *Parser) { p.logger = logger }
}

// New creates a parser.
func New(opts ...Option) *Parser {
	p := &Parser{
		classifier: NewIntentClassifier(),
		now:        time.Now,
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("parser")
	return p
}

// Parse extracts intent, entities and constraints from text.
func (p *Parser) Parse(text string) *ParsedQuery {
	text = strings.TrimSpace(text)
	intent, score := p.classifier.Classify(text)
	entities := extractEntities(text)

	q := &ParsedQuery{
		OriginalText:        text,
		Intent:              intent,
		Entities:            entities,
		SpatialConstraints:  deriveSpatialConstraints(text, entities),
		TemporalConstraints: deriveTemporalConstraints(text, p.now()),
		Filters:             deriveFilters(text),
	}
	q.Confidence = Confidence(q)

	p.logger.Debug().
		Str("intent", string(intent)).
		Int("intent_score", score).
		Int("entities", len(q.Entities)).
		Int("spatial_constraints", len(q.SpatialConstraints)).
		Int("temporal_constraints", len(q.TemporalConstraints)).
		Float64("confidence", q.Confidence).
		Msg("Query parsed")
	return q
}

// Confidence scores how much of the query was understood: base 0.5, plus
// 0.2 for an intent other than the default search, plus up to 0.3 for
// entities (0.1 each), plus up to 0.3 for spatial constraints (0.15 each),
// plus 0.2 times the mean entity confidence. Capped at 1.
func Confidence(q *ParsedQuery) float64 {
	score := 0.5
	if q.Intent != IntentSearch {
		score += 0.2
	}
	score += math.Min(0.3, 0.1*float64(len(q.Entities)))
	score += math.Min(0.3, 0.15*float64(len(q.SpatialConstraints)))

	if len(q.Entities) > 0 {
		var sum float64
		for _, e := range q.Entities {
			sum += e.Confidence
		}
		score += 0.2 * sum / float64(len(q.Entities))
	}
	return math.Min(1, score)
}
