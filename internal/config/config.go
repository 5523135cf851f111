// Package config provides unified configuration loading for the geo engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/engine"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
)

// Config holds all configuration for the geo engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     embedding.Config    `yaml:"embedding"`
	Engine        engine.Config       `yaml:"engine"`
	Gazetteer     []Place             `yaml:"gazetteer"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
}

// CatalogConfig points at the SQL catalog features and documents are loaded
// from at startup. An empty driver disables loading.
type CatalogConfig struct {
	Driver   string         `yaml:"driver"` // sqlite, postgres or empty
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	// LoadOnStart loads the catalog into the engine when the server starts.
	LoadOnStart bool `yaml:"load_on_start"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig selects the result cache backend. TTL and capacity live in
// engine.planner.cache.
type CacheConfig struct {
	Driver string            `yaml:"driver"` // memory or redis
	Redis  cache.RedisConfig `yaml:"redis"`
}

// Place is one gazetteer entry.
type Place struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// AuditConfig controls audit event publishing.
type AuditConfig struct {
	// Publish sends audit events to Redis pub/sub when the cache driver is redis.
	Publish bool `yaml:"publish"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Catalog.Driver == "sqlite" {
			cfg.Catalog.SQLite.Path = ResolveRelativePath(path, cfg.Catalog.SQLite.Path)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			QueryTimeout:     20 * time.Second,
		},
		Catalog: CatalogConfig{
			SQLite: SQLiteConfig{
				Path:         "/tmp/geo-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver: "memory",
			Redis: cache.RedisConfig{
				Addr:     "localhost:6380",
				PoolSize: 10,
				Prefix:   "geo:",
			},
		},
		Embedding: embedding.Config{
			Provider:  embedding.ProviderMock,
			Model:     "text-embedding-3-small",
			BaseURL:   "https://api.openai.com/v1",
			Dimension: 64,
			Timeout:   30 * time.Second,
		},
		Engine: engine.DefaultConfig(),
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Catalog.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid catalog driver: %s", c.Catalog.Driver)
	}
	if c.Catalog.Driver == "postgres" && c.Catalog.Postgres.DSN == "" {
		return fmt.Errorf("postgres catalog requires a dsn")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.Embedding.Provider {
	case embedding.ProviderMock, embedding.ProviderHTTP, embedding.ProviderLangchain:
	default:
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}

	e := c.Engine
	if e.MinConfidence < 0 || e.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0 and 1")
	}
	if e.MinQueryLength > e.MaxQueryLength {
		return fmt.Errorf("min_query_length exceeds max_query_length")
	}
	if e.Vector.SpatialWeight < 0 || e.Vector.SpatialWeight > 1 {
		return fmt.Errorf("spatial_weight must be between 0 and 1")
	}

	for _, p := range c.Gazetteer {
		if !(geo.Coordinates{Latitude: p.Latitude, Longitude: p.Longitude}).Valid() {
			return fmt.Errorf("gazetteer entry %q has invalid coordinates", p.Name)
		}
	}

	return nil
}

// Places returns the gazetteer as a name-to-coordinates map.
func (c *Config) Places() map[string]geo.Coordinates {
	out := make(map[string]geo.Coordinates, len(c.Gazetteer))
	for _, p := range c.Gazetteer {
		out[p.Name] = geo.Coordinates{Latitude: p.Latitude, Longitude: p.Longitude}
	}
	return out
}

// CatalogDSN returns the appropriate database connection string.
func (c *Config) CatalogDSN() string {
	if c.Catalog.Driver == "sqlite" {
		return c.Catalog.SQLite.Path
	}
	return c.Catalog.Postgres.DSN
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("CATALOG_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Catalog.Driver = "sqlite"
			cfg.Catalog.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Catalog.Driver = "postgres"
			cfg.Catalog.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}

	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = v
	}

	if v := os.Getenv("MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.MinConfidence = f
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if targetPath == "" || filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
