// Package planner turns a parsed query into an ordered execution plan, runs
// the plan against the spatial index and the retrieval engine, and caches
// the synthesized result.
package planner

import (
	"errors"
	"time"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/parser"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/rag"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

var (
	ErrUnmetDependency  = errors.New("unmet dependency")
	ErrUnknownStepType  = errors.New("unknown step type")
	ErrParamsMismatch   = errors.New("step params do not match step type")
	ErrUnknownGroupBy   = errors.New("unknown aggregation field")
	ErrMissingRAGOutput = errors.New("plan produced no rag_search output")
)

// StepType discriminates plan steps and their payloads.
type StepType string

const (
	StepSpatialFilter StepType = "spatial_filter"
	StepRAGSearch     StepType = "rag_search"
	StepAnalysis      StepType = "analysis"
	StepAggregation   StepType = "aggregation"
)

// Relative step costs. Diagnostic only.
var stepCosts = map[StepType]float64{
	StepSpatialFilter: 1.0,
	StepRAGSearch:     3.0,
	StepAnalysis:      2.0,
	StepAggregation:   1.5,
}

// StepParams is the typed payload of a step. The concrete type always
// matches the step's Type.
type StepParams interface {
	stepType() StepType
}

// SpatialFilterParams queries the spatial index once per constraint.
type SpatialFilterParams struct {
	Constraints []parser.SpatialConstraint `json:"constraints"`
}

// RAGSearchParams builds the retrieval request. Constraints are only used
// for the spatial hint when no spatial_filter output exists.
type RAGSearchParams struct {
	Text        string                     `json:"text"`
	Constraints []parser.SpatialConstraint `json:"constraints,omitempty"`
	Filters     vectorstore.Filters        `json:"filters"`
	MaxResults  int                        `json:"max_results"`
}

// AnalysisMode selects what the analysis step computes.
type AnalysisMode string

const (
	AnalysisStatistics AnalysisMode = "statistics"
	AnalysisComparison AnalysisMode = "comparison"
)

type AnalysisParams struct {
	Mode AnalysisMode `json:"mode"`
}

// AggregationParams groups sources by a metadata field: type, source or
// region.
type AggregationParams struct {
	GroupBy string `json:"group_by"`
	TopN    int    `json:"top_n"`
}

func (SpatialFilterParams) stepType() StepType { return StepSpatialFilter }
func (RAGSearchParams) stepType() StepType     { return StepRAGSearch }
func (AnalysisParams) stepType() StepType      { return StepAnalysis }
func (AggregationParams) stepType() StepType   { return StepAggregation }

// Step is one unit of a plan.
type Step struct {
	ID           string     `json:"id"`
	Type         StepType   `json:"type"`
	Operation    string     `json:"operation"`
	Params       StepParams `json:"params"`
	Dependencies []string   `json:"dependencies,omitempty"`
}

// ExecutionPlan is an ordered list of steps.
type ExecutionPlan struct {
	Steps         []Step  `json:"steps"`
	EstimatedCost float64 `json:"estimated_cost"`
	CacheKey      string  `json:"cache_key"`
}

// StepOutput is the typed result of a step, discriminated the same way as
// StepParams.
type StepOutput interface {
	stepType() StepType
}

// SpatialHint is the location and radius handed to semantic search.
type SpatialHint struct {
	Center   geo.Coordinates `json:"center"`
	RadiusKm float64         `json:"radius_km"`
}

// SpatialFilterOutput holds the union of features matched by all
// constraints, in first-match order.
type SpatialFilterOutput struct {
	Features []spatial.Feature `json:"features"`
	Hint     *SpatialHint      `json:"hint,omitempty"`
	Notes    []string          `json:"notes,omitempty"`
}

type RAGSearchOutput struct {
	Response *rag.Response `json:"response"`
}

// Statistics summarizes a source set.
type Statistics struct {
	SourceCount     int              `json:"source_count"`
	TypeHistogram   map[string]int   `json:"type_histogram"`
	MeanConfidence  float64          `json:"mean_confidence"`
	LocatedCount    int              `json:"located_count"`
	Centroid        *geo.Coordinates `json:"centroid,omitempty"`
	LatitudeSpread  float64          `json:"latitude_spread"`
	LongitudeSpread float64          `json:"longitude_spread"`
}

// Comparison aspects.
const (
	AspectConfidence = "confidence"
	AspectType       = "type"
	AspectDistance   = "distance"
)

// Difference is one compared aspect. Value carries numeric aspects, Equal
// carries boolean ones.
type Difference struct {
	Aspect string   `json:"aspect"`
	Value  *float64 `json:"value,omitempty"`
	Equal  *bool    `json:"equal,omitempty"`
	Detail string   `json:"detail"`
}

// Comparison contrasts the first two sources.
type Comparison struct {
	FirstID     string       `json:"first_id"`
	SecondID    string       `json:"second_id"`
	Differences []Difference `json:"differences"`
}

// AnalysisOutput carries either statistics or a comparison. Note explains a
// degenerate input.
type AnalysisOutput struct {
	Mode       AnalysisMode `json:"mode"`
	Statistics *Statistics  `json:"statistics,omitempty"`
	Comparison *Comparison  `json:"comparison,omitempty"`
	Note       string       `json:"note,omitempty"`
}

// Group is one aggregation bucket.
type Group struct {
	Key       string   `json:"key"`
	Count     int      `json:"count"`
	MeanScore float64  `json:"mean_score"`
	TopIDs    []string `json:"top_ids"`
}

type AggregationOutput struct {
	GroupBy string  `json:"group_by"`
	Groups  []Group `json:"groups"`
}

func (SpatialFilterOutput) stepType() StepType { return StepSpatialFilter }
func (RAGSearchOutput) stepType() StepType     { return StepRAGSearch }
func (AnalysisOutput) stepType() StepType      { return StepAnalysis }
func (AggregationOutput) stepType() StepType   { return StepAggregation }

// ResultData is the synthesized answer of a successful query.
type ResultData struct {
	Answer         string                     `json:"answer"`
	Sources        []vectorstore.SearchResult `json:"sources"`
	SpatialContext rag.SpatialContext         `json:"spatial_context"`
	SpatialFilter  *SpatialFilterOutput       `json:"spatial_filter,omitempty"`
	Analysis       *AnalysisOutput            `json:"analysis,omitempty"`
	Aggregation    *AggregationOutput         `json:"aggregation,omitempty"`
}

// ResultMetadata describes how a result was produced.
type ResultMetadata struct {
	ExecutionTime time.Duration `json:"execution_time"`
	StepsExecuted int           `json:"steps_executed"`
	CacheHit      bool          `json:"cache_hit"`
	Confidence    float64       `json:"confidence"`
	Intent        string        `json:"intent,omitempty"`
}

// QueryResult is returned for every processed query. Data is nil unless
// Success is true.
type QueryResult struct {
	Success  bool           `json:"success"`
	Data     *ResultData    `json:"data,omitempty"`
	Metadata ResultMetadata `json:"metadata"`
	Error    string         `json:"error,omitempty"`
}

// Failure builds an unsuccessful result.
func Failure(msg string, confidence float64, elapsed time.Duration) *QueryResult {
	return &QueryResult{
		Success: false,
		Error:   msg,
		Metadata: ResultMetadata{
			ExecutionTime: elapsed,
			Confidence:    confidence,
		},
	}
}
