// Package engine is the query facade: it validates input, gates on parser
// confidence, runs the planner and exposes ingestion, suggestions and stats.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/monitoring"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/parser"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/planner"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/rag"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

// Geocoder resolves place names for named-location constraints.
type Geocoder = planner.Geocoder

// QueryResult is the outcome of ProcessQuery.
type QueryResult = planner.QueryResult

// Config holds engine configuration.
type Config struct {
	MinConfidence  float64                 `yaml:"min_confidence"`
	MinQueryLength int                     `yaml:"min_query_length"`
	MaxQueryLength int                     `yaml:"max_query_length"`
	Spatial        spatial.IndexConfig     `yaml:"spatial"`
	Vector         vectorstore.StoreConfig `yaml:"vector"`
	RAG            rag.Config              `yaml:"rag"`
	Planner        planner.Config          `yaml:"planner"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence:  0.5,
		MinQueryLength: 3,
		MaxQueryLength: 500,
		Spatial:        spatial.DefaultIndexConfig(),
		Vector:         vectorstore.DefaultStoreConfig(),
		RAG:            rag.DefaultConfig(),
		Planner:        planner.DefaultConfig(),
	}
}

type options struct {
	logger      *observability.Logger
	metrics     *observability.Metrics
	cacheClient cache.Client
	geocoder    Geocoder
	audit       *monitoring.AuditLogger
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*options)

func WithLogger(l *observability.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCacheClient replaces the default in-memory result cache backend.
func WithCacheClient(c cache.Client) Option {
	return func(o *options) { o.cacheClient = c }
}

func WithGeocoder(g Geocoder) Option {
	return func(o *options) { o.geocoder = g }
}

func WithAuditLogger(a *monitoring.AuditLogger) Option {
	return func(o *options) { o.audit = a }
}

// WithClock sets the clock used for relative date expressions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Engine owns one spatial index, one vector store and one result cache.
// It is safe for concurrent use.
type Engine struct {
	cfg      Config
	parser   *parser.Parser
	index    *spatial.Index
	store    *vectorstore.Store
	rag      *rag.Engine
	executor *planner.Executor
	results  *planner.ResultCache
	cacheCl  cache.Client
	audit    *monitoring.AuditLogger
	logger   *observability.Logger
	metrics  *observability.Metrics

	queries    atomic.Int64
	rejections atomic.Int64
	cacheHits  atomic.Int64
}

// New wires an engine around embedder.
func New(embedder embedding.Embedder, cfg Config, opts ...Option) (*Engine, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.NopLogger()
	}
	if o.audit == nil {
		o.audit = monitoring.NewAuditLogger(o.logger, nil)
	}

	defaults := DefaultConfig()
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = defaults.MinConfidence
	}
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = defaults.MinQueryLength
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = defaults.MaxQueryLength
	}
	if cfg.Spatial.CellSize <= 0 {
		cfg.Spatial = defaults.Spatial
	}
	if cfg.Vector.GridSize <= 0 {
		cfg.Vector = defaults.Vector
	}

	index := spatial.NewIndex(o.logger, cfg.Spatial)
	store := vectorstore.NewStore(o.logger, cfg.Vector)
	ragEngine, err := rag.NewEngine(embedder, store, o.logger, o.metrics, cfg.RAG)
	if err != nil {
		return nil, fmt.Errorf("create retrieval engine: %w", err)
	}

	cacheClient := o.cacheClient
	if cacheClient == nil && cfg.Planner.Cache.Enabled {
		cacheClient = cache.NewMemoryClient(cfg.Planner.Cache.Capacity)
	}
	results := planner.NewResultCache(cacheClient, o.logger, cfg.Planner.Cache)

	execOpts := []planner.Option{
		planner.WithResultCache(results),
		planner.WithMetrics(o.metrics),
	}
	if o.geocoder != nil {
		execOpts = append(execOpts, planner.WithGeocoder(o.geocoder))
	}

	e := &Engine{
		cfg:      cfg,
		parser:   parser.New(parser.WithLogger(o.logger), parser.WithClock(o.now)),
		index:    index,
		store:    store,
		rag:      ragEngine,
		executor: planner.NewExecutor(index, ragEngine, o.logger, cfg.Planner, execOpts...),
		results:  results,
		cacheCl:  cacheClient,
		audit:    o.audit,
		logger:   o.logger.WithComponent("engine"),
		metrics:  o.metrics,
	}
	return e, nil
}

// Close releases the embedding pool and the cache backend.
func (e *Engine) Close() error {
	e.rag.Close()
	if e.cacheCl != nil {
		return e.cacheCl.Close()
	}
	return nil
}

// Validation reports whether a query is acceptable.
type Validation struct {
	IsValid bool     `json:"is_valid"`
	Issues  []string `json:"issues"`
}

// ValidateQuery checks that text is non-empty, within the length bounds and
// contains at least one letter.
func (e *Engine) ValidateQuery(text string) Validation {
	v := Validation{Issues: []string{}}
	trimmed := strings.TrimSpace(text)

	if trimmed == "" {
		v.Issues = append(v.Issues, "query is empty")
		return v
	}
	n := utf8.RuneCountInString(trimmed)
	if n < e.cfg.MinQueryLength {
		v.Issues = append(v.Issues, fmt.Sprintf("query must be at least %d characters", e.cfg.MinQueryLength))
	}
	if n > e.cfg.MaxQueryLength {
		v.Issues = append(v.Issues, fmt.Sprintf("query must be at most %d characters", e.cfg.MaxQueryLength))
	}
	if !strings.ContainsFunc(trimmed, unicode.IsLetter) {
		v.Issues = append(v.Issues, "query must contain letters")
	}

	v.IsValid = len(v.Issues) == 0
	return v
}

// ProcessQuery validates, parses, gates and executes text. Failures are
// reported in the result, never as a Go error.
func (e *Engine) ProcessQuery(ctx context.Context, text string) *QueryResult {
	ctx, _ = observability.EnsureTraceID(ctx)
	start := time.Now()
	e.queries.Add(1)
	log := e.logger.WithContext(ctx).WithOperation("process_query")

	if v := e.ValidateQuery(text); !v.IsValid {
		res := planner.Failure("invalid query: "+strings.Join(v.Issues, "; "), 0, time.Since(start))
		e.reject(ctx, "validation", text, "", res)
		log.Debug().Strs("issues", v.Issues).Msg("Query rejected by validation")
		return res
	}

	q := e.parser.Parse(text)
	// A bare search with no entities scores exactly the parser's base
	// confidence, so the threshold itself is rejected.
	if q.Confidence <= e.cfg.MinConfidence {
		res := planner.Failure(
			fmt.Sprintf("query confidence %.2f is at or below the threshold %.2f; try naming a place, feature type or distance",
				q.Confidence, e.cfg.MinConfidence),
			q.Confidence, time.Since(start))
		res.Metadata.Intent = string(q.Intent)
		e.reject(ctx, "low_confidence", text, string(q.Intent), res)
		log.Debug().Float64("confidence", q.Confidence).Msg("Query rejected by confidence gate")
		return res
	}

	res := e.executor.Execute(ctx, q)
	if res.Metadata.CacheHit {
		e.cacheHits.Add(1)
	}

	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}
	e.metrics.ObserveQuery(string(q.Intent), outcome, time.Since(start))

	sources := 0
	if res.Data != nil {
		sources = len(res.Data.Sources)
	}
	e.audit.LogQuery(ctx, monitoring.QueryOutcome{
		Text:       text,
		Intent:     string(q.Intent),
		Success:    res.Success,
		CacheHit:   res.Metadata.CacheHit,
		Confidence: res.Metadata.Confidence,
		Sources:    sources,
		Duration:   time.Since(start),
		Error:      res.Error,
	})

	log.Info().
		Str("intent", string(q.Intent)).
		Bool("success", res.Success).
		Bool("cache_hit", res.Metadata.CacheHit).
		Float64("confidence", res.Metadata.Confidence).
		Dur("duration", time.Since(start)).
		Msg("Query processed")
	return res
}

func (e *Engine) reject(ctx context.Context, reason, text, intent string, res *QueryResult) {
	e.rejections.Add(1)
	e.metrics.ObserveRejection(reason)
	e.audit.LogQuery(ctx, monitoring.QueryOutcome{
		Text:       text,
		Intent:     intent,
		Rejected:   true,
		Confidence: res.Metadata.Confidence,
		Duration:   res.Metadata.ExecutionTime,
		Error:      res.Error,
	})
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Features         int   `json:"features"`
	Documents        int   `json:"documents"`
	CacheSize        int   `json:"cache_size"`
	QueriesProcessed int64 `json:"queries_processed"`
	Rejections       int64 `json:"rejections"`
	CacheHits        int64 `json:"cache_hits"`
}

func (e *Engine) GetStats(ctx context.Context) Stats {
	return Stats{
		Features:         e.index.Count(),
		Documents:        e.store.Count(),
		CacheSize:        e.results.Len(ctx),
		QueriesProcessed: e.queries.Load(),
		Rejections:       e.rejections.Load(),
		CacheHits:        e.cacheHits.Load(),
	}
}
