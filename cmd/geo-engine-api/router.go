package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/geo-engine/cmd/geo-engine-api/handlers"
	"github.com/spherical-ai/spherical/libs/geo-engine/cmd/geo-engine-api/middleware"
	rpc "github.com/spherical-ai/spherical/libs/geo-engine/internal/api/grpc"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
)

// AppConfig holds router configuration.
type AppConfig struct {
	RequestTimeout time.Duration
	QueryTimeout   time.Duration
	AllowedOrigins []string
	AuthConfig     middleware.AuthConfig
}

// DefaultAppConfig returns default configuration values.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		RequestTimeout: 30 * time.Second,
		QueryTimeout:   20 * time.Second,
		AllowedOrigins: []string{"*"},
		AuthConfig: middleware.AuthConfig{
			AllowPublicPaths: []string{"/health", "/ready", "/metrics"},
		},
	}
}

// NewRouter creates the API router. metrics may be nil.
func NewRouter(logger *observability.Logger, eng handlers.Engine, metrics *observability.Metrics, cfg *AppConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.TraceID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"geo-engine"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	queryHandler := handlers.NewQueryHandler(logger, eng, cfg.QueryTimeout)
	ingestionHandler := handlers.NewIngestionHandler(logger, eng)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.AuthConfig))

		r.Post("/query", queryHandler.Query)
		r.Post("/validate", queryHandler.Validate)
		r.Get("/suggestions", queryHandler.Suggestions)
		r.Get("/stats", queryHandler.Stats)

		r.Route("/features", func(r chi.Router) {
			r.Post("/", ingestionHandler.InsertFeature)
			r.Get("/{id}", ingestionHandler.GetFeature)
			r.Delete("/{id}", ingestionHandler.RemoveFeature)
		})
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", ingestionHandler.AddDocuments)
			r.Get("/{id}", ingestionHandler.GetDocument)
			r.Delete("/{id}", ingestionHandler.RemoveDocument)
		})
	})

	path, connectHandler := rpc.NewQueryService(logger, eng).Handler()
	r.Mount(path, middleware.Auth(cfg.AuthConfig)(connectHandler))

	return r
}
