package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/geo-engine/cmd/geo-engine-api/middleware"
	rpc "github.com/spherical-ai/spherical/libs/geo-engine/internal/api/grpc"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/engine"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/planner"
)

func setupTestServer(t *testing.T, cfg *AppConfig) (*httptest.Server, *engine.Engine) {
	t.Helper()
	gaz, err := planner.NewGazetteer(map[string]geo.Coordinates{
		"San Francisco": {Latitude: 37.7749, Longitude: -122.4194},
	})
	require.NoError(t, err)

	eng, err := engine.New(embedding.NewMockClient(32), engine.DefaultConfig(), engine.WithGeocoder(gaz))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	srv := httptest.NewServer(NewRouter(observability.NopLogger(), eng, observability.NewMetrics(), cfg))
	t.Cleanup(srv.Close)
	return srv, eng
}

func do(t *testing.T, method, url, body string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestRouter_Health(t *testing.T) {
	srv, _ := setupTestServer(t, DefaultAppConfig())

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy","service":"geo-engine"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get(middleware.TraceHeader))

	resp, body = do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "geoengine_indexed_features")
}

func TestRouter_IngestAndQuery(t *testing.T) {
	srv, eng := setupTestServer(t, DefaultAppConfig())
	api := srv.URL + "/api/v1"

	resp, _ := do(t, http.MethodPost, api+"/features", `{
		"id": "gg", "name": "Golden Gate Park", "geometry_type": "point",
		"geometry": {"point": {"latitude": 37.7694, "longitude": -122.4862}},
		"properties": {"type": "park"}
	}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, api+"/features", `{"id": "bad", "geometry_type": "point"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, http.MethodPost, api+"/documents", `{"documents": [{
		"id": "gg-doc", "content": "Golden Gate Park is a park in San Francisco.",
		"metadata": {"doc_type": "feature", "location": {"latitude": 37.7694, "longitude": -122.4862}}
	}]}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"added": 1}`, string(body))

	resp, _ = do(t, http.MethodPost, api+"/documents", `{"documents": []}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodGet, api+"/features/gg", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Golden Gate Park")

	resp, body = do(t, http.MethodGet, api+"/documents/gg-doc", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "embedding")

	resp, body = do(t, http.MethodPost, api+"/query", `{"query": "Find parks near San Francisco"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result planner.QueryResult
	require.NoError(t, json.Unmarshal(body, &result))
	require.True(t, result.Success, result.Error)
	require.NotEmpty(t, result.Data.Sources)
	assert.Equal(t, "gg-doc", result.Data.Sources[0].Document.ID)

	resp, body = do(t, http.MethodPost, api+"/query", `{"query": "zq"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rejected planner.QueryResult
	require.NoError(t, json.Unmarshal(body, &rejected))
	assert.False(t, rejected.Success)
	assert.Nil(t, rejected.Data)
	assert.NotEmpty(t, rejected.Error)

	resp, _ = do(t, http.MethodPost, api+"/query", `{"query": ""}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, api+"/query", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, api+"/documents/gg-doc", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, api+"/documents/gg-doc", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, api+"/features/gg", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, api+"/features/gg", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	stats := eng.GetStats(context.Background())
	assert.Zero(t, stats.Features)
	assert.Zero(t, stats.Documents)
	assert.EqualValues(t, 1, stats.Rejections)
}

func TestRouter_ValidateSuggestStats(t *testing.T) {
	srv, _ := setupTestServer(t, DefaultAppConfig())
	api := srv.URL + "/api/v1"

	resp, body := do(t, http.MethodPost, api+"/validate", `{"query": "12345"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"is_valid": false, "issues": ["query must contain letters"]}`, string(body))

	resp, body = do(t, http.MethodGet, api+"/suggestions?q=rainfall", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"suggestions": ["Compare rainfall between Oakland and Sacramento"]}`, string(body))

	resp, body = do(t, http.MethodGet, api+"/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats engine.Stats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Zero(t, stats.QueriesProcessed)
}

func TestRouter_Auth(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.AuthConfig.Enabled = true
	cfg.AuthConfig.APIKeys = []string{"k1"}
	srv, _ := setupTestServer(t, cfg)

	resp, _ := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/stats", "", map[string]string{"X-API-Key": "k1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+rpc.StatsProcedure, `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_ConnectMounted(t *testing.T) {
	srv, _ := setupTestServer(t, DefaultAppConfig())

	client := connect.NewClient[rpc.QueryRequest, rpc.ValidateResponse](
		srv.Client(), srv.URL+rpc.ValidateProcedure, connect.WithCodec(rpc.JSONCodec{}))
	res, err := client.CallUnary(context.Background(), connect.NewRequest(&rpc.QueryRequest{Text: "parks near Oakland"}))
	require.NoError(t, err)
	assert.True(t, res.Msg.IsValid)

	// Plain JSON POST works too, which is what browser clients send.
	resp, err := http.Post(srv.URL+rpc.SuggestProcedure, "application/json", bytes.NewBufferString(`{"partial":"airports"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
