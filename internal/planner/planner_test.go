package planner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/parser"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/rag"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

var (
	sanFrancisco = geo.Coordinates{Latitude: 37.7749, Longitude: -122.4194}
	losAngeles   = geo.Coordinates{Latitude: 34.0522, Longitude: -118.2437}
)

func ptr[T any](v T) *T { return &v }

type fakeRetriever struct {
	sources []vectorstore.SearchResult
	err     error
	calls   int
	last    rag.Query
}

func (f *fakeRetriever) Query(_ context.Context, q rag.Query) (*rag.Response, error) {
	f.calls++
	f.last = q
	if f.err != nil {
		return nil, f.err
	}
	sc := rag.SpatialContext{QueryLocation: q.Location, SearchRadiusKm: q.RadiusKm, Scope: rag.ScopeFor(q.Location != nil, q.RadiusKm)}
	return &rag.Response{
		Answer:         "answer",
		Sources:        f.sources,
		Confidence:     rag.Confidence(f.sources),
		SpatialContext: sc,
	}, nil
}

func source(id string, t vectorstore.DocType, score float64, loc *geo.Coordinates) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		Document: vectorstore.Document{
			ID:       id,
			Content:  id + " content",
			Metadata: vectorstore.Metadata{DocType: t, Location: loc, Source: "catalog"},
		},
		Similarity:    score,
		CombinedScore: score,
	}
}

func testSources() []vectorstore.SearchResult {
	return []vectorstore.SearchResult{
		source("sf-park", vectorstore.DocFeature, 0.9, ptr(sanFrancisco)),
		source("la-park", vectorstore.DocFeature, 0.8, ptr(losAngeles)),
		source("report", vectorstore.DocReport, 0.5, nil),
	}
}

func setupTestIndex(t *testing.T) *spatial.Index {
	t.Helper()
	idx := spatial.NewIndex(nil, spatial.DefaultIndexConfig())
	require.NoError(t, idx.Insert(spatial.NewPointFeature("sf", "San Francisco", sanFrancisco, nil)))
	require.NoError(t, idx.Insert(spatial.NewPointFeature("la", "Los Angeles", losAngeles, nil)))
	return idx
}

func setupTestExecutor(t *testing.T, r Retriever, opts ...Option) *Executor {
	t.Helper()
	return NewExecutor(setupTestIndex(t), r, nil, DefaultConfig(), opts...)
}

func stepIDs(p *ExecutionPlan) []string {
	ids := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestBuildPlan(t *testing.T) {
	radius := parser.SpatialConstraint{Type: parser.ConstraintRadius, Center: ptr(sanFrancisco), RadiusKm: 50, Resolved: true}
	two := []parser.Entity{{Type: parser.EntityFeatureType, Text: "parks"}, {Type: parser.EntityLocation, Text: "Oakland"}}

	tests := []struct {
		name     string
		query    parser.ParsedQuery
		wantIDs  []string
		wantCost float64
	}{
		{
			name:     "plain search",
			query:    parser.ParsedQuery{OriginalText: "parks", Intent: parser.IntentSearch},
			wantIDs:  []string{"rag_search"},
			wantCost: 3,
		},
		{
			name:     "spatial search with two entities",
			query:    parser.ParsedQuery{OriginalText: "parks near Oakland", Intent: parser.IntentSearch, Entities: two, SpatialConstraints: []parser.SpatialConstraint{radius}},
			wantIDs:  []string{"spatial_filter", "rag_search", "aggregation"},
			wantCost: 5.5,
		},
		{
			name:     "analyze",
			query:    parser.ParsedQuery{OriginalText: "analyze parks", Intent: parser.IntentAnalyze, Entities: two},
			wantIDs:  []string{"rag_search", "analysis"},
			wantCost: 5,
		},
		{
			name:     "compare with location",
			query:    parser.ParsedQuery{OriginalText: "compare parks", Intent: parser.IntentCompare, SpatialConstraints: []parser.SpatialConstraint{radius}},
			wantIDs:  []string{"spatial_filter", "rag_search", "analysis"},
			wantCost: 6,
		},
		{
			name:     "describe has no extra steps",
			query:    parser.ParsedQuery{OriginalText: "describe parks", Intent: parser.IntentDescribe, Entities: two},
			wantIDs:  []string{"rag_search"},
			wantCost: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := BuildPlan(&tt.query, 10)
			assert.Equal(t, tt.wantIDs, stepIDs(plan))
			assert.InDelta(t, tt.wantCost, plan.EstimatedCost, 1e-9)
			assert.Equal(t, CacheKey(&tt.query), plan.CacheKey)

			for _, s := range plan.Steps {
				assert.Equal(t, s.Type, s.Params.stepType())
				if s.Type == StepRAGSearch && len(tt.query.SpatialConstraints) > 0 {
					assert.Equal(t, []string{"spatial_filter"}, s.Dependencies)
				}
				if s.Type == StepAnalysis || s.Type == StepAggregation {
					assert.Equal(t, []string{"rag_search"}, s.Dependencies)
				}
			}
		})
	}
}

func TestCacheKey(t *testing.T) {
	base := parser.ParsedQuery{
		OriginalText: "Parks  near Oakland",
		Intent:       parser.IntentSearch,
		Entities:     []parser.Entity{{Text: "Parks"}, {Text: "Oakland"}},
	}

	reordered := base
	reordered.OriginalText = "parks near   oakland"
	reordered.Entities = []parser.Entity{{Text: "Oakland"}, {Text: "Parks"}}
	assert.Equal(t, CacheKey(&base), CacheKey(&reordered))

	otherIntent := base
	otherIntent.Intent = parser.IntentDescribe
	assert.NotEqual(t, CacheKey(&base), CacheKey(&otherIntent))

	withTemporal := base
	withTemporal.TemporalConstraints = []parser.TemporalConstraint{{Expression: "last 3 days"}}
	assert.NotEqual(t, CacheKey(&base), CacheKey(&withTemporal))

	// field boundaries are length-prefixed
	a := parser.ParsedQuery{Intent: "ab", Entities: []parser.Entity{{Text: "c"}}}
	b := parser.ParsedQuery{Intent: "a", Entities: []parser.Entity{{Text: "bc"}}}
	assert.NotEqual(t, CacheKey(&a), CacheKey(&b))
}

func TestFoldFilters(t *testing.T) {
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	q := &parser.ParsedQuery{
		Filters: []parser.Filter{
			{Field: parser.FilterType, Value: "report"},
			{Field: parser.FilterTag, Value: "water"},
			{Field: parser.FilterMinConfidence, Value: "0.6"},
			{Field: parser.FilterMinConfidence, Value: "bogus"},
		},
		TemporalConstraints: []parser.TemporalConstraint{
			{Start: now.AddDate(0, 0, -30), End: now},
			{Start: now.AddDate(0, 0, -7), End: now},
		},
	}

	f := foldFilters(q)
	assert.Equal(t, []vectorstore.DocType{vectorstore.DocReport}, f.Types)
	assert.Equal(t, []string{"water"}, f.Tags)
	require.NotNil(t, f.MinConfidence)
	assert.InDelta(t, 0.6, *f.MinConfidence, 1e-9)
	require.NotNil(t, f.TimeRange)
	assert.Equal(t, now.AddDate(0, 0, -7), f.TimeRange.Start)
	assert.Equal(t, now, f.TimeRange.End)
}

func TestExecutePlan_UnmetDependency(t *testing.T) {
	r := &fakeRetriever{sources: testSources()}
	e := setupTestExecutor(t, r)

	plan := &ExecutionPlan{Steps: []Step{
		{ID: "rag_search", Type: StepRAGSearch, Params: RAGSearchParams{Text: "parks"}, Dependencies: []string{"spatial_filter"}},
	}}

	_, executed, err := e.ExecutePlan(context.Background(), plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnmetDependency)
	assert.Contains(t, err.Error(), "unmet dependency")
	assert.Zero(t, executed)
	assert.Zero(t, r.calls)
}

func TestExecutePlan_BadSteps(t *testing.T) {
	e := setupTestExecutor(t, &fakeRetriever{})

	tests := []struct {
		name string
		step Step
		want error
	}{
		{"unknown type", Step{ID: "x", Type: "reproject"}, ErrUnknownStepType},
		{"mismatched params", Step{ID: "x", Type: StepAnalysis, Params: AggregationParams{}}, ErrParamsMismatch},
		{"analysis without search", Step{ID: "x", Type: StepAnalysis, Params: AnalysisParams{Mode: AnalysisStatistics}}, ErrMissingRAGOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.ExecutePlan(context.Background(), &ExecutionPlan{Steps: []Step{tt.step}})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExecutePlan_CancelledBetweenSteps(t *testing.T) {
	r := &fakeRetriever{sources: testSources()}
	e := setupTestExecutor(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := BuildPlan(&parser.ParsedQuery{OriginalText: "parks", Intent: parser.IntentSearch}, 10)
	_, executed, err := e.ExecutePlan(ctx, plan)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, executed)
	assert.Zero(t, r.calls)
}

func TestExecute_CompareDistance(t *testing.T) {
	r := &fakeRetriever{sources: testSources()}
	e := setupTestExecutor(t, r)

	res := e.Execute(context.Background(), &parser.ParsedQuery{
		OriginalText: "compare parks",
		Intent:       parser.IntentCompare,
		Confidence:   0.7,
	})
	require.True(t, res.Success, res.Error)
	require.NotNil(t, res.Data.Analysis)
	cmp := res.Data.Analysis.Comparison
	require.NotNil(t, cmp)
	assert.Equal(t, "sf-park", cmp.FirstID)
	assert.Equal(t, "la-park", cmp.SecondID)

	byAspect := make(map[string]Difference)
	for _, d := range cmp.Differences {
		byAspect[d.Aspect] = d
	}
	require.Contains(t, byAspect, AspectDistance)
	assert.InDelta(t, geo.Haversine(sanFrancisco, losAngeles), *byAspect[AspectDistance].Value, 1e-9)
	assert.InDelta(t, 559, *byAspect[AspectDistance].Value, 5)
	assert.InDelta(t, 0.1, *byAspect[AspectConfidence].Value, 1e-9)
	assert.True(t, *byAspect[AspectType].Equal)

	assert.Equal(t, 2, res.Metadata.StepsExecuted)
	// 0.3*0.7 + 0.5*mean(0.9,0.8,0.5) + 0.1 analysis
	assert.InDelta(t, 0.21+0.5*(2.2/3)+0.1, res.Metadata.Confidence, 1e-9)
}

func TestCompareSources_Degenerate(t *testing.T) {
	out := compareSources(testSources()[:1])
	assert.Nil(t, out.Comparison)
	assert.Contains(t, out.Note, "at least two sources")

	noLoc := compareSources([]vectorstore.SearchResult{
		source("a", vectorstore.DocReport, 0.4, nil),
		source("b", vectorstore.DocFeature, 0.6, ptr(sanFrancisco)),
	})
	require.NotNil(t, noLoc.Comparison)
	for _, d := range noLoc.Comparison.Differences {
		assert.NotEqual(t, AspectDistance, d.Aspect)
		if d.Aspect == AspectType {
			assert.False(t, *d.Equal)
		}
	}
}

func TestComputeStatistics(t *testing.T) {
	sources := testSources()
	sources[2].Document.Metadata.Confidence = ptr(0.2)

	out := computeStatistics(sources)
	stats := out.Statistics
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.SourceCount)
	assert.Equal(t, map[string]int{"feature": 2, "report": 1}, stats.TypeHistogram)
	assert.InDelta(t, (0.9+0.8+0.2)/3, stats.MeanConfidence, 1e-9)
	assert.Equal(t, 2, stats.LocatedCount)
	require.NotNil(t, stats.Centroid)
	assert.InDelta(t, (sanFrancisco.Latitude+losAngeles.Latitude)/2, stats.Centroid.Latitude, 1e-9)
	assert.InDelta(t, sanFrancisco.Latitude-losAngeles.Latitude, stats.LatitudeSpread, 1e-9)
	assert.InDelta(t, losAngeles.Longitude-sanFrancisco.Longitude, stats.LongitudeSpread, 1e-9)

	empty := computeStatistics(nil)
	assert.Equal(t, "no sources to analyze", empty.Note)
	assert.Zero(t, empty.Statistics.SourceCount)
}

func TestAggregateSources(t *testing.T) {
	sources := append(testSources(),
		source("f3", vectorstore.DocFeature, 0.4, nil),
		source("f4", vectorstore.DocFeature, 0.3, nil),
	)

	out, err := aggregateSources(sources, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "type", out.GroupBy)
	require.Len(t, out.Groups, 2)

	assert.Equal(t, "feature", out.Groups[0].Key)
	assert.Equal(t, 4, out.Groups[0].Count)
	assert.InDelta(t, (0.9+0.8+0.4+0.3)/4, out.Groups[0].MeanScore, 1e-9)
	assert.Equal(t, []string{"sf-park", "la-park", "f3"}, out.Groups[0].TopIDs)
	assert.Equal(t, "report", out.Groups[1].Key)

	bySource, err := aggregateSources(sources, "region", 3)
	require.NoError(t, err)
	require.Len(t, bySource.Groups, 1)
	assert.Equal(t, "unknown", bySource.Groups[0].Key)

	_, err = aggregateSources(sources, "colour", 3)
	assert.ErrorIs(t, err, ErrUnknownGroupBy)
}

func TestExecute_SpatialFilter(t *testing.T) {
	gaz, err := NewGazetteer(map[string]geo.Coordinates{"Los Angeles": losAngeles})
	require.NoError(t, err)

	tests := []struct {
		name        string
		opts        []Option
		constraints []parser.SpatialConstraint
		wantIDs     []string
		wantHint    *geo.Coordinates
		wantRadius  float64
		wantNote    string
	}{
		{
			name:        "coordinate radius",
			constraints: []parser.SpatialConstraint{{Type: parser.ConstraintRadius, Center: ptr(sanFrancisco), RadiusKm: 100, Resolved: true}},
			wantIDs:     []string{"sf"},
			wantHint:    ptr(sanFrancisco),
			wantRadius:  100,
		},
		{
			name:        "point uses one kilometre",
			constraints: []parser.SpatialConstraint{{Type: parser.ConstraintPoint, Center: ptr(losAngeles), Resolved: true}},
			wantIDs:     []string{"la"},
			wantHint:    ptr(losAngeles),
			wantRadius:  1,
		},
		{
			name: "bbox unions with radius",
			constraints: []parser.SpatialConstraint{
				{Type: parser.ConstraintBBox, Bounds: &geo.BoundingBox{North: 35, South: 33, East: -117, West: -119}},
				{Type: parser.ConstraintRadius, Center: ptr(sanFrancisco), RadiusKm: 10},
			},
			wantIDs:    []string{"la", "sf"},
			wantHint:   ptr(geo.Coordinates{Latitude: 34, Longitude: -118}),
			wantRadius: geo.Haversine(geo.Coordinates{Latitude: 34, Longitude: -118}, geo.Coordinates{Latitude: 35, Longitude: -117}),
		},
		{
			name:        "named location without geocoder is skipped",
			constraints: []parser.SpatialConstraint{{Type: parser.ConstraintWithin, LocationName: "Los Angeles"}},
			wantIDs:     []string{},
			wantNote:    "no geocoder configured",
		},
		{
			name:        "named location through gazetteer",
			opts:        []Option{WithGeocoder(gaz)},
			constraints: []parser.SpatialConstraint{{Type: parser.ConstraintWithin, LocationName: "los angeles"}},
			wantIDs:     []string{"la"},
			wantHint:    ptr(losAngeles),
			wantRadius:  25,
		},
		{
			name:        "unknown place",
			opts:        []Option{WithGeocoder(gaz)},
			constraints: []parser.SpatialConstraint{{Type: parser.ConstraintRadius, LocationName: "Atlantis", RadiusKm: 5}},
			wantIDs:     []string{},
			wantNote:    "location not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRetriever{sources: testSources()}
			e := setupTestExecutor(t, r, tt.opts...)

			res := e.Execute(context.Background(), &parser.ParsedQuery{
				OriginalText:       "find places",
				Intent:             parser.IntentFindNearby,
				SpatialConstraints: tt.constraints,
			})
			require.True(t, res.Success, res.Error)
			sf := res.Data.SpatialFilter
			require.NotNil(t, sf)

			ids := []string{}
			for _, f := range sf.Features {
				ids = append(ids, f.ID)
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)

			if tt.wantHint == nil {
				assert.Nil(t, sf.Hint)
				assert.Nil(t, r.last.Location, "unresolved names never reach retrieval")
			} else {
				require.NotNil(t, r.last.Location)
				assert.InDelta(t, tt.wantHint.Latitude, r.last.Location.Latitude, 1e-9)
				assert.InDelta(t, tt.wantHint.Longitude, r.last.Location.Longitude, 1e-9)
				assert.InDelta(t, tt.wantRadius, r.last.RadiusKm, 1e-9)
			}
			if tt.wantNote != "" {
				assert.Contains(t, sf.Notes[0], tt.wantNote)
			}
		})
	}
}

func TestExecute_RAGHintWithoutSpatialStep(t *testing.T) {
	r := &fakeRetriever{sources: testSources()}
	e := setupTestExecutor(t, r)

	plan := &ExecutionPlan{Steps: []Step{{
		ID:   "rag_search",
		Type: StepRAGSearch,
		Params: RAGSearchParams{
			Text: "parks",
			Constraints: []parser.SpatialConstraint{
				{Type: parser.ConstraintWithin, LocationName: "Nowhere"},
				{Type: parser.ConstraintRadius, Center: ptr(losAngeles), RadiusKm: 40},
			},
		},
	}}}

	_, _, err := e.ExecutePlan(context.Background(), plan)
	require.NoError(t, err)
	require.NotNil(t, r.last.Location)
	assert.Equal(t, losAngeles, *r.last.Location)
	assert.Equal(t, 40.0, r.last.RadiusKm)
}

func TestExecute_RetrieverFailure(t *testing.T) {
	r := &fakeRetriever{err: errors.New("embedding service down")}
	e := setupTestExecutor(t, r)

	res := e.Execute(context.Background(), &parser.ParsedQuery{OriginalText: "parks", Intent: parser.IntentAnalyze})
	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.Contains(t, res.Error, "embedding service down")
	assert.Zero(t, res.Metadata.StepsExecuted)
}

func TestExecute_CacheHit(t *testing.T) {
	r := &fakeRetriever{sources: testSources()}
	rc := NewResultCache(cache.NewMemoryClient(100), nil, DefaultCacheConfig())
	e := setupTestExecutor(t, r, WithResultCache(rc))

	q := &parser.ParsedQuery{OriginalText: "analyze parks", Intent: parser.IntentAnalyze, Confidence: 0.8}

	first := e.Execute(context.Background(), q)
	require.True(t, first.Success)
	assert.False(t, first.Metadata.CacheHit)

	second := e.Execute(context.Background(), q)
	require.True(t, second.Success)
	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, first.Metadata.Confidence, second.Metadata.Confidence)
	assert.Equal(t, 1, r.calls)

	a, err := json.Marshal(first.Data)
	require.NoError(t, err)
	b, err := json.Marshal(second.Data)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, 1, rc.Len(context.Background()))

	// past the TTL the query runs again
	rc.now = func() time.Time { return time.Now().Add(6 * time.Minute) }
	third := e.Execute(context.Background(), q)
	assert.False(t, third.Metadata.CacheHit)
	assert.Equal(t, 2, r.calls)
}

func TestExecute_FailuresAreNotCached(t *testing.T) {
	r := &fakeRetriever{err: errors.New("boom")}
	rc := NewResultCache(cache.NewMemoryClient(10), nil, DefaultCacheConfig())
	e := setupTestExecutor(t, r, WithResultCache(rc))

	q := &parser.ParsedQuery{OriginalText: "parks", Intent: parser.IntentSearch}
	e.Execute(context.Background(), q)
	e.Execute(context.Background(), q)
	assert.Equal(t, 2, r.calls)
	assert.Zero(t, rc.Len(context.Background()))
}

func TestResultConfidence(t *testing.T) {
	data := &ResultData{Sources: testSources()[:2]}
	assert.InDelta(t, 0.3*0.5+0.5*0.85, resultConfidence(0.5, data), 1e-9)

	data.Analysis = &AnalysisOutput{}
	data.SpatialContext.QueryLocation = ptr(sanFrancisco)
	assert.InDelta(t, 0.3*0.5+0.5*0.85+0.2, resultConfidence(0.5, data), 1e-9)

	data.Sources = []vectorstore.SearchResult{source("x", vectorstore.DocFeature, 1, nil)}
	assert.Equal(t, 1.0, resultConfidence(1, data))
}

func TestGazetteer(t *testing.T) {
	_, err := NewGazetteer(map[string]geo.Coordinates{"Nowhere": {Latitude: 95}})
	assert.Error(t, err)

	g, err := NewGazetteer(map[string]geo.Coordinates{"San  Francisco": sanFrancisco})
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())

	c, err := g.Geocode(context.Background(), " san francisco ")
	require.NoError(t, err)
	assert.Equal(t, sanFrancisco, c)

	_, err = g.Geocode(context.Background(), "Oakland")
	assert.ErrorIs(t, err, ErrLocationNotFound)
}
