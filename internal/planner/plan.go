package planner

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/parser"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

// BuildPlan converts a parsed query into a plan:
// [spatial_filter] -> rag_search -> [analysis] [aggregation].
func BuildPlan(q *parser.ParsedQuery, maxResults int) *ExecutionPlan {
	plan := &ExecutionPlan{CacheKey: CacheKey(q)}

	var searchDeps []string
	if len(q.SpatialConstraints) > 0 {
		plan.add(Step{
			ID:        string(StepSpatialFilter),
			Type:      StepSpatialFilter,
			Operation: "query_spatial_index",
			Params:    SpatialFilterParams{Constraints: q.SpatialConstraints},
		})
		searchDeps = []string{string(StepSpatialFilter)}
	}

	plan.add(Step{
		ID:        string(StepRAGSearch),
		Type:      StepRAGSearch,
		Operation: "semantic_search",
		Params: RAGSearchParams{
			Text:        q.OriginalText,
			Constraints: q.SpatialConstraints,
			Filters:     foldFilters(q),
			MaxResults:  maxResults,
		},
		Dependencies: searchDeps,
	})

	switch q.Intent {
	case parser.IntentAnalyze:
		plan.add(Step{
			ID:           string(StepAnalysis),
			Type:         StepAnalysis,
			Operation:    "compute_statistics",
			Params:       AnalysisParams{Mode: AnalysisStatistics},
			Dependencies: []string{string(StepRAGSearch)},
		})
	case parser.IntentCompare:
		plan.add(Step{
			ID:           string(StepAnalysis),
			Type:         StepAnalysis,
			Operation:    "compare_sources",
			Params:       AnalysisParams{Mode: AnalysisComparison},
			Dependencies: []string{string(StepRAGSearch)},
		})
	case parser.IntentSearch:
		if len(q.Entities) > 1 {
			plan.add(Step{
				ID:           string(StepAggregation),
				Type:         StepAggregation,
				Operation:    "group_sources",
				Params:       AggregationParams{GroupBy: "type", TopN: 3},
				Dependencies: []string{string(StepRAGSearch)},
			})
		}
	}
	return plan
}

func (p *ExecutionPlan) add(s Step) {
	p.Steps = append(p.Steps, s)
	p.EstimatedCost += stepCosts[s.Type]
}

// foldFilters merges parser filters and temporal constraints into store
// filters. Multiple temporal constraints intersect.
func foldFilters(q *parser.ParsedQuery) vectorstore.Filters {
	var f vectorstore.Filters
	for _, flt := range q.Filters {
		switch flt.Field {
		case parser.FilterType:
			f.Types = append(f.Types, vectorstore.DocType(flt.Value))
		case parser.FilterTag:
			f.Tags = append(f.Tags, flt.Value)
		case parser.FilterMinConfidence:
			v, err := strconv.ParseFloat(flt.Value, 64)
			if err != nil {
				continue
			}
			if f.MinConfidence == nil || v > *f.MinConfidence {
				f.MinConfidence = &v
			}
		}
	}

	for _, tc := range q.TemporalConstraints {
		if f.TimeRange == nil {
			f.TimeRange = &vectorstore.TimeRange{Start: tc.Start, End: tc.End}
			continue
		}
		f.TimeRange.Start = later(f.TimeRange.Start, tc.Start)
		f.TimeRange.End = earlier(f.TimeRange.End, tc.End)
	}
	return f
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func earlier(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

// NormalizeText lowercases text and collapses whitespace.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// CacheKey hashes the semantic fields of a query: intent, sorted entity
// texts, spatial and temporal constraint counts, normalized text. Each field
// is length-prefixed so no two field sequences share an encoding.
func CacheKey(q *parser.ParsedQuery) string {
	texts := make([]string, 0, len(q.Entities))
	for _, e := range q.Entities {
		texts = append(texts, e.Text)
	}
	sort.Strings(texts)

	h := sha256.New()
	var buf [8]byte
	writeField := func(s string) {
		binary.BigEndian.PutUint64(buf[:], uint64(len(s)))
		h.Write(buf[:])
		h.Write([]byte(s))
	}
	writeCount := func(n int) {
		binary.BigEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}

	writeField(string(q.Intent))
	writeCount(len(texts))
	for _, t := range texts {
		writeField(t)
	}
	writeCount(len(q.SpatialConstraints))
	writeCount(len(q.TemporalConstraints))
	writeField(NormalizeText(q.OriginalText))

	return hex.EncodeToString(h.Sum(nil))
}
