// Package grpc provides the Connect query service for the geo engine. The
// service speaks the Connect protocol with a JSON codec over plain Go
// message structs.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/engine"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
)

// ServiceName is the fully-qualified service name.
const ServiceName = "geo.v1.QueryService"

// Procedure paths.
const (
	QueryProcedure    = "/" + ServiceName + "/Query"
	ValidateProcedure = "/" + ServiceName + "/Validate"
	SuggestProcedure  = "/" + ServiceName + "/Suggest"
	StatsProcedure    = "/" + ServiceName + "/Stats"
)

// JSONCodec marshals plain structs with encoding/json. It registers under
// the "json" name so Connect clients sending application/json use it.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// QueryEngine is the engine surface the service needs.
type QueryEngine interface {
	ProcessQuery(ctx context.Context, text string) *engine.QueryResult
	ValidateQuery(text string) engine.Validation
	GetSuggestions(partial string) []string
	GetStats(ctx context.Context) engine.Stats
}

// QueryRequest is the Query and Validate request message.
type QueryRequest struct {
	Text string `json:"text"`
}

// QueryResponse flattens a query result for the wire.
type QueryResponse struct {
	Success       bool              `json:"success"`
	Error         string            `json:"error,omitempty"`
	Intent        string            `json:"intent,omitempty"`
	Confidence    float64           `json:"confidence"`
	CacheHit      bool              `json:"cache_hit"`
	StepsExecuted int32             `json:"steps_executed"`
	LatencyMs     int64             `json:"latency_ms"`
	Answer        string            `json:"answer,omitempty"`
	Sources       []*Source         `json:"sources,omitempty"`
	Spatial       *SpatialContext   `json:"spatial,omitempty"`
	FeatureIDs    []string          `json:"feature_ids,omitempty"`
	Notes         []string          `json:"notes,omitempty"`
	Analysis      json.RawMessage   `json:"analysis,omitempty"`
	Groups        []*AggregateGroup `json:"groups,omitempty"`
}

// Source is one retrieved document.
type Source struct {
	DocumentID       string   `json:"document_id"`
	DocType          string   `json:"doc_type"`
	Content          string   `json:"content"`
	Similarity       float64  `json:"similarity"`
	SpatialRelevance float64  `json:"spatial_relevance"`
	Score            float64  `json:"score"`
	DistanceKm       *float64 `json:"distance_km,omitempty"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
}

// SpatialContext describes where the search was centered.
type SpatialContext struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	RadiusKm  float64  `json:"radius_km"`
	Scope     string   `json:"scope"`
}

// AggregateGroup is one bucket of an aggregation.
type AggregateGroup struct {
	Key       string   `json:"key"`
	Count     int32    `json:"count"`
	MeanScore float64  `json:"mean_score"`
	TopIDs    []string `json:"top_ids,omitempty"`
}

// ValidateResponse mirrors engine.Validation.
type ValidateResponse struct {
	IsValid bool     `json:"is_valid"`
	Issues  []string `json:"issues"`
}

// SuggestRequest carries the partial query text.
type SuggestRequest struct {
	Partial string `json:"partial"`
}

// SuggestResponse lists matching query patterns.
type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// StatsRequest is empty.
type StatsRequest struct{}

// StatsResponse mirrors engine.Stats.
type StatsResponse struct {
	Features         int32 `json:"features"`
	Documents        int32 `json:"documents"`
	CacheSize        int32 `json:"cache_size"`
	QueriesProcessed int64 `json:"queries_processed"`
	Rejections       int64 `json:"rejections"`
	CacheHits        int64 `json:"cache_hits"`
}

// QueryService implements the Connect query service.
type QueryService struct {
	logger *observability.Logger
	engine QueryEngine
}

// NewQueryService creates a new query service.
func NewQueryService(logger *observability.Logger, eng QueryEngine) *QueryService {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &QueryService{logger: logger.WithComponent("connect"), engine: eng}
}

// Handler returns the mount path and the handler serving every procedure.
func (s *QueryService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(QueryProcedure, connect.NewUnaryHandler(QueryProcedure, s.Query, opts...))
	mux.Handle(ValidateProcedure, connect.NewUnaryHandler(ValidateProcedure, s.Validate, opts...))
	mux.Handle(SuggestProcedure, connect.NewUnaryHandler(SuggestProcedure, s.Suggest, opts...))
	mux.Handle(StatsProcedure, connect.NewUnaryHandler(StatsProcedure, s.Stats, opts...))
	return "/" + ServiceName + "/", mux
}

// Query runs a query. Rejected and failed queries are returned as
// unsuccessful responses, not as RPC errors.
func (s *QueryService) Query(ctx context.Context, req *connect.Request[QueryRequest]) (*connect.Response[QueryResponse], error) {
	if strings.TrimSpace(req.Msg.Text) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("text is required"))
	}

	res := s.engine.ProcessQuery(ctx, req.Msg.Text)
	out, err := toQueryResponse(res)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode query response")
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func (s *QueryService) Validate(_ context.Context, req *connect.Request[QueryRequest]) (*connect.Response[ValidateResponse], error) {
	v := s.engine.ValidateQuery(req.Msg.Text)
	return connect.NewResponse(&ValidateResponse{IsValid: v.IsValid, Issues: v.Issues}), nil
}

func (s *QueryService) Suggest(_ context.Context, req *connect.Request[SuggestRequest]) (*connect.Response[SuggestResponse], error) {
	return connect.NewResponse(&SuggestResponse{Suggestions: s.engine.GetSuggestions(req.Msg.Partial)}), nil
}

func (s *QueryService) Stats(ctx context.Context, _ *connect.Request[StatsRequest]) (*connect.Response[StatsResponse], error) {
	st := s.engine.GetStats(ctx)
	return connect.NewResponse(&StatsResponse{
		Features:         int32(st.Features),
		Documents:        int32(st.Documents),
		CacheSize:        int32(st.CacheSize),
		QueriesProcessed: st.QueriesProcessed,
		Rejections:       st.Rejections,
		CacheHits:        st.CacheHits,
	}), nil
}

func toQueryResponse(res *engine.QueryResult) (*QueryResponse, error) {
	out := &QueryResponse{
		Success:       res.Success,
		Error:         res.Error,
		Intent:        res.Metadata.Intent,
		Confidence:    res.Metadata.Confidence,
		CacheHit:      res.Metadata.CacheHit,
		StepsExecuted: int32(res.Metadata.StepsExecuted),
		LatencyMs:     res.Metadata.ExecutionTime.Milliseconds(),
	}
	if res.Data == nil {
		return out, nil
	}

	d := res.Data
	out.Answer = d.Answer
	for _, r := range d.Sources {
		src := &Source{
			DocumentID:       r.Document.ID,
			DocType:          string(r.Document.Metadata.DocType),
			Content:          r.Document.Content,
			Similarity:       r.Similarity,
			SpatialRelevance: r.SpatialRelevance,
			Score:            r.CombinedScore,
			DistanceKm:       r.DistanceKm,
		}
		if loc := r.Document.Metadata.Location; loc != nil {
			lat, lon := loc.Latitude, loc.Longitude
			src.Latitude, src.Longitude = &lat, &lon
		}
		out.Sources = append(out.Sources, src)
	}

	sc := &SpatialContext{RadiusKm: d.SpatialContext.SearchRadiusKm, Scope: d.SpatialContext.Scope}
	if loc := d.SpatialContext.QueryLocation; loc != nil {
		lat, lon := loc.Latitude, loc.Longitude
		sc.Latitude, sc.Longitude = &lat, &lon
	}
	out.Spatial = sc

	if sf := d.SpatialFilter; sf != nil {
		for _, f := range sf.Features {
			out.FeatureIDs = append(out.FeatureIDs, f.ID)
		}
		out.Notes = append(out.Notes, sf.Notes...)
	}

	if d.Analysis != nil {
		raw, err := json.Marshal(d.Analysis)
		if err != nil {
			return nil, err
		}
		out.Analysis = raw
	}

	if d.Aggregation != nil {
		for _, g := range d.Aggregation.Groups {
			out.Groups = append(out.Groups, &AggregateGroup{
				Key:       g.Key,
				Count:     int32(g.Count),
				MeanScore: g.MeanScore,
				TopIDs:    g.TopIDs,
			})
		}
	}
	return out, nil
}
