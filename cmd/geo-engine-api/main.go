// Package main provides the geo engine API server entrypoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/spherical-ai/spherical/libs/geo-engine/cmd/geo-engine-api/middleware"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "geo-engine-api")
	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	eng, err := app.NewEngine(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer eng.Close()

	if cfg.Catalog.LoadOnStart {
		summary, err := app.LoadCatalog(context.Background(), cfg, eng, logger, nil)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		logger.Info().Int("features", summary.Features).Int("documents", summary.Documents).Msg("Catalog ready")
	}

	appCfg := DefaultAppConfig()
	appCfg.RequestTimeout = cfg.Server.ReadTimeout
	appCfg.QueryTimeout = cfg.Server.QueryTimeout
	if keys := os.Getenv("API_KEYS"); keys != "" {
		appCfg.AuthConfig = middleware.AuthConfig{
			Enabled:          true,
			APIKeys:          strings.Split(keys, ","),
			AllowPublicPaths: appCfg.AuthConfig.AllowPublicPaths,
		}
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      NewRouter(logger, eng, metrics, appCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
	return nil
}
