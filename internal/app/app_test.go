package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Catalog.Driver = "sqlite"
	cfg.Catalog.SQLite.Path = filepath.Join(t.TempDir(), "catalog.db")
	cfg.Gazetteer = []config.Place{{Name: "San Francisco", Latitude: 37.7749, Longitude: -122.4194}}
	return cfg
}

func TestNewEngine_LoadCatalogAndQuery(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	logger := observability.NopLogger()

	repo, closeDB, err := OpenCatalog(ctx, cfg)
	require.NoError(t, err)
	sf := geo.Coordinates{Latitude: 37.7749, Longitude: -122.4194}
	require.NoError(t, repo.SaveFeature(ctx, spatial.NewPointFeature("gg", "Golden Gate Park", sf, map[string]any{"type": "park"})))
	require.NoError(t, repo.SaveDocument(ctx, vectorstore.Document{
		ID:       "gg-doc",
		Content:  "Golden Gate Park is a large park in San Francisco.",
		Metadata: vectorstore.Metadata{DocType: vectorstore.DocFeature, Location: &sf},
	}))
	require.NoError(t, closeDB())

	eng, err := NewEngine(cfg, logger, observability.NewMetrics())
	require.NoError(t, err)
	defer eng.Close()

	var last [2]int
	summary, err := LoadCatalog(ctx, cfg, eng, logger, func(done, total int) { last = [2]int{done, total} })
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Features)
	assert.Equal(t, 1, summary.Documents)
	assert.Equal(t, [2]int{2, 2}, last)

	res := eng.ProcessQuery(ctx, "Find parks near San Francisco")
	require.True(t, res.Success, res.Error)
	require.NotNil(t, res.Data.SpatialContext.QueryLocation)
	assert.Equal(t, sf, *res.Data.SpatialContext.QueryLocation)
	require.NotEmpty(t, res.Data.Sources)
	assert.Equal(t, "gg-doc", res.Data.Sources[0].Document.ID)
}

func TestOpenCatalog_NotConfigured(t *testing.T) {
	cfg := config.DefaultConfig()
	_, _, err := OpenCatalog(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewEngine_UnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "word2vec"
	_, err := NewEngine(cfg, observability.NopLogger(), nil)
	assert.Error(t, err)
}
