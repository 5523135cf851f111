package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/parser"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/rag"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

// Config holds executor configuration.
type Config struct {
	MaxResults int `yaml:"max_results"`
	// PointRadiusKm is the search radius for point constraints.
	PointRadiusKm float64 `yaml:"point_radius_km"`
	// WithinRadiusKm is the radius used for a geocoded "within" constraint.
	WithinRadiusKm float64     `yaml:"within_radius_km"`
	Cache          CacheConfig `yaml:"cache"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxResults:     10,
		PointRadiusKm:  1,
		WithinRadiusKm: 25,
		Cache:          DefaultCacheConfig(),
	}
}

// Retriever answers semantic queries. Satisfied by *rag.Engine.
type Retriever interface {
	Query(ctx context.Context, q rag.Query) (*rag.Response, error)
}

// Executor plans and runs parsed queries.
type Executor struct {
	cfg       Config
	index     *spatial.Index
	retriever Retriever
	geocoder  Geocoder
	cache     *ResultCache
	logger    *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithGeocoder resolves named-location constraints through g.
func WithGeocoder(g Geocoder) Option {
	return func(e *Executor) { e.geocoder = g }
}

// WithResultCache enables result caching.
func WithResultCache(c *ResultCache) Option {
	return func(e *Executor) { e.cache = c }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates an executor over the spatial index and retriever.
func NewExecutor(index *spatial.Index, retriever Retriever, logger *observability.Logger, cfg Config, opts ...Option) *Executor {
	if logger == nil {
		logger = observability.NopLogger()
	}
	defaults := DefaultConfig()
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaults.MaxResults
	}
	if cfg.PointRadiusKm <= 0 {
		cfg.PointRadiusKm = defaults.PointRadiusKm
	}
	if cfg.WithinRadiusKm <= 0 {
		cfg.WithinRadiusKm = defaults.WithinRadiusKm
	}

	e := &Executor{
		cfg:       cfg,
		index:     index,
		retriever: retriever,
		logger:    logger.WithComponent("executor"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache returns the result cache, or nil when caching is off.
func (e *Executor) Cache() *ResultCache {
	return e.cache
}

// Execute answers q, serving from cache when possible.
func (e *Executor) Execute(ctx context.Context, q *parser.ParsedQuery) *QueryResult {
	start := e.now()
	key := CacheKey(q)

	if e.cache != nil {
		cached, ok := e.cache.Get(ctx, key)
		e.metrics.ObserveCache(ok)
		if ok {
			return &QueryResult{
				Success: true,
				Data:    cached.Data,
				Metadata: ResultMetadata{
					ExecutionTime: e.now().Sub(start),
					CacheHit:      true,
					Confidence:    cached.Confidence,
					Intent:        cached.Intent,
				},
			}
		}
	}

	plan := BuildPlan(q, e.cfg.MaxResults)
	log := e.logger.WithContext(ctx)
	log.Debug().
		Int("steps", len(plan.Steps)).
		Float64("estimated_cost", plan.EstimatedCost).
		Str("cache_key", plan.CacheKey).
		Msg("Plan built")

	outputs, executed, err := e.ExecutePlan(ctx, plan)
	if err != nil {
		log.Warn().Err(err).Int("steps_executed", executed).Msg("Plan execution failed")
		res := Failure(err.Error(), 0, e.now().Sub(start))
		res.Metadata.StepsExecuted = executed
		res.Metadata.Intent = string(q.Intent)
		return res
	}

	data, err := synthesize(outputs)
	if err != nil {
		res := Failure(err.Error(), 0, e.now().Sub(start))
		res.Metadata.StepsExecuted = executed
		res.Metadata.Intent = string(q.Intent)
		return res
	}

	res := &QueryResult{
		Success: true,
		Data:    data,
		Metadata: ResultMetadata{
			ExecutionTime: e.now().Sub(start),
			StepsExecuted: executed,
			Confidence:    resultConfidence(q.Confidence, data),
			Intent:        string(q.Intent),
		},
	}

	if e.cache != nil {
		_ = e.cache.Set(ctx, key, res)
	}
	return res
}

// ExecutePlan runs steps strictly in order. A step whose dependency has no
// recorded output fails the plan. Cancellation is checked between steps.
// It returns the outputs keyed by step id and the number of steps run.
func (e *Executor) ExecutePlan(ctx context.Context, plan *ExecutionPlan) (map[string]StepOutput, int, error) {
	outputs := make(map[string]StepOutput, len(plan.Steps))

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return nil, i, fmt.Errorf("before step %s: %w", step.ID, err)
		}
		for _, dep := range step.Dependencies {
			if _, ok := outputs[dep]; !ok {
				return nil, i, fmt.Errorf("%w: step %s requires %s", ErrUnmetDependency, step.ID, dep)
			}
		}

		started := time.Now()
		out, err := e.runStep(ctx, step, outputs)
		e.metrics.ObserveStep(string(step.Type), time.Since(started))
		if err != nil {
			return nil, i, fmt.Errorf("step %s: %w", step.ID, err)
		}
		outputs[step.ID] = out
	}
	return outputs, len(plan.Steps), nil
}

func (e *Executor) runStep(ctx context.Context, step Step, outputs map[string]StepOutput) (StepOutput, error) {
	if step.Params == nil || step.Params.stepType() != step.Type {
		if _, known := stepCosts[step.Type]; !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, step.Type)
		}
		return nil, fmt.Errorf("%w: %s", ErrParamsMismatch, step.Type)
	}

	switch p := step.Params.(type) {
	case SpatialFilterParams:
		return e.spatialFilter(ctx, p), nil
	case RAGSearchParams:
		return e.ragSearch(ctx, p, outputs)
	case AnalysisParams:
		sources, err := sourcesFrom(outputs)
		if err != nil {
			return nil, err
		}
		if p.Mode == AnalysisComparison {
			return *compareSources(sources), nil
		}
		return *computeStatistics(sources), nil
	case AggregationParams:
		sources, err := sourcesFrom(outputs)
		if err != nil {
			return nil, err
		}
		agg, err := aggregateSources(sources, p.GroupBy, p.TopN)
		if err != nil {
			return nil, err
		}
		return *agg, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, step.Type)
	}
}

// resolve returns the constraint's search center and radius. Named locations
// go through the geocoder; without one they are unresolvable.
func (e *Executor) resolve(ctx context.Context, c parser.SpatialConstraint) (*SpatialHint, *geo.BoundingBox, error) {
	if c.Type == parser.ConstraintBBox && c.Bounds != nil {
		b := *c.Bounds
		center := b.Center()
		corner := geo.Coordinates{Latitude: b.North, Longitude: b.East}
		return &SpatialHint{Center: center, RadiusKm: geo.Haversine(center, corner)}, &b, nil
	}

	center := c.Center
	if center == nil {
		if c.LocationName == "" {
			return nil, nil, errors.New("constraint has no center")
		}
		if e.geocoder == nil {
			return nil, nil, fmt.Errorf("no geocoder configured for %q", c.LocationName)
		}
		coords, err := e.geocoder.Geocode(ctx, c.LocationName)
		if err != nil {
			return nil, nil, err
		}
		center = &coords
	}

	radius := c.RadiusKm
	switch c.Type {
	case parser.ConstraintPoint:
		radius = e.cfg.PointRadiusKm
	case parser.ConstraintWithin:
		if radius <= 0 {
			radius = e.cfg.WithinRadiusKm
		}
	}
	if radius <= 0 {
		radius = e.cfg.PointRadiusKm
	}
	return &SpatialHint{Center: *center, RadiusKm: radius}, nil, nil
}

// spatialFilter queries the index for every constraint and unions the
// matches. Unresolvable constraints are skipped with a note.
func (e *Executor) spatialFilter(ctx context.Context, p SpatialFilterParams) SpatialFilterOutput {
	out := SpatialFilterOutput{Features: []spatial.Feature{}}
	seen := make(map[string]bool)

	for _, c := range p.Constraints {
		hint, bounds, err := e.resolve(ctx, c)
		if err != nil {
			out.Notes = append(out.Notes, fmt.Sprintf("skipped %s constraint: %v", c.Type, err))
			continue
		}
		if out.Hint == nil {
			out.Hint = hint
		}

		var matched []spatial.Feature
		if bounds != nil {
			matched = e.index.Query(*bounds)
		} else {
			matched = e.index.QueryRadius(hint.Center, hint.RadiusKm)
		}
		for _, f := range matched {
			if !seen[f.ID] {
				seen[f.ID] = true
				out.Features = append(out.Features, f)
			}
		}
	}

	if len(out.Features) == 0 {
		out.Notes = append(out.Notes, "no features matched the spatial constraints")
	}
	return out
}

// ragSearch takes its spatial hint from the spatial_filter output when one
// exists, else from the first resolvable constraint.
func (e *Executor) ragSearch(ctx context.Context, p RAGSearchParams, outputs map[string]StepOutput) (StepOutput, error) {
	var hint *SpatialHint
	if sf, ok := outputs[string(StepSpatialFilter)].(SpatialFilterOutput); ok {
		hint = sf.Hint
	} else {
		for _, c := range p.Constraints {
			if h, _, err := e.resolve(ctx, c); err == nil {
				hint = h
				break
			}
		}
	}

	q := rag.Query{
		Text:       p.Text,
		Filters:    p.Filters,
		MaxResults: p.MaxResults,
	}
	if hint != nil {
		center := hint.Center
		q.Location = &center
		q.RadiusKm = hint.RadiusKm
	}

	resp, err := e.retriever.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return RAGSearchOutput{Response: resp}, nil
}

func sourcesFrom(outputs map[string]StepOutput) ([]vectorstore.SearchResult, error) {
	out, ok := outputs[string(StepRAGSearch)].(RAGSearchOutput)
	if !ok || out.Response == nil {
		return nil, ErrMissingRAGOutput
	}
	return out.Response.Sources, nil
}

// synthesize assembles the result payload from step outputs.
func synthesize(outputs map[string]StepOutput) (*ResultData, error) {
	rs, ok := outputs[string(StepRAGSearch)].(RAGSearchOutput)
	if !ok || rs.Response == nil {
		return nil, ErrMissingRAGOutput
	}

	data := &ResultData{
		Answer:         rs.Response.Answer,
		Sources:        rs.Response.Sources,
		SpatialContext: rs.Response.SpatialContext,
	}
	if sf, ok := outputs[string(StepSpatialFilter)].(SpatialFilterOutput); ok {
		data.SpatialFilter = &sf
	}
	if an, ok := outputs[string(StepAnalysis)].(AnalysisOutput); ok {
		data.Analysis = &an
	}
	if ag, ok := outputs[string(StepAggregation)].(AggregationOutput); ok {
		data.Aggregation = &ag
	}
	return data, nil
}

// resultConfidence = 0.3*parser + 0.5*mean source score + 0.1 with analysis
// + 0.1 with a query location, capped at 1.
func resultConfidence(parserConfidence float64, data *ResultData) float64 {
	var mean float64
	if n := len(data.Sources); n > 0 {
		for _, s := range data.Sources {
			mean += s.CombinedScore
		}
		mean /= float64(n)
	}

	score := 0.3*parserConfidence + 0.5*mean
	if data.Analysis != nil {
		score += 0.1
	}
	if data.SpatialContext.QueryLocation != nil {
		score += 0.1
	}
	return math.Min(1, score)
}
