// Package app wires a configured engine together with its embedder, cache
// backend, gazetteer, audit trail and catalog. Both binaries start here.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/engine"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/monitoring"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/planner"
)

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config, service string) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		Output:      os.Stderr,
		ServiceName: service,
	})
}

// NewEngine builds an engine from cfg. metrics may be nil.
func NewEngine(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*engine.Engine, error) {
	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
	}

	var publisher monitoring.Publisher
	if cfg.Cache.Driver == "redis" {
		redisCfg := cfg.Cache.Redis
		if redisCfg.Capacity <= 0 {
			redisCfg.Capacity = cfg.Engine.Planner.Cache.Capacity
		}
		rc, err := cache.NewRedisClient(redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		opts = append(opts, engine.WithCacheClient(rc))
		if cfg.Audit.Publish {
			publisher = rc
		}
	}
	opts = append(opts, engine.WithAuditLogger(monitoring.NewAuditLogger(logger, publisher)))

	if len(cfg.Gazetteer) > 0 {
		gaz, err := planner.NewGazetteer(cfg.Places())
		if err != nil {
			return nil, fmt.Errorf("build gazetteer: %w", err)
		}
		opts = append(opts, engine.WithGeocoder(gaz))
	}

	eng, err := engine.New(embedder, cfg.Engine, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("embedding_provider", cfg.Embedding.Provider).
		Str("cache_driver", cfg.Cache.Driver).
		Int("gazetteer_places", len(cfg.Gazetteer)).
		Msg("Engine initialized")
	return eng, nil
}

// OpenCatalog opens the configured catalog and makes sure its schema exists.
// The caller closes the returned closer.
func OpenCatalog(ctx context.Context, cfg *config.Config) (*catalog.Repository, func() error, error) {
	if cfg.Catalog.Driver == "" {
		return nil, nil, fmt.Errorf("no catalog configured")
	}

	opts := catalog.Options{MaxOpenConns: cfg.Catalog.SQLite.MaxOpenConns}
	if cfg.Catalog.Driver == "postgres" {
		opts = catalog.Options{
			MaxOpenConns:    cfg.Catalog.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Catalog.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Catalog.Postgres.ConnMaxLifetime,
		}
	}

	db, err := catalog.Open(cfg.Catalog.Driver, cfg.CatalogDSN(), opts)
	if err != nil {
		return nil, nil, err
	}
	repo := catalog.NewRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repo, db.Close, nil
}

// LoadCatalog copies the configured catalog into eng.
func LoadCatalog(ctx context.Context, cfg *config.Config, eng catalog.Ingester, logger *observability.Logger, progress catalog.Progress) (*catalog.LoadSummary, error) {
	repo, closeDB, err := OpenCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeDB()

	return catalog.NewLoader(repo, logger, cfg.Engine.RAG.BatchSize).Load(ctx, eng, progress)
}
