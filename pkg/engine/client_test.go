package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
)

type recorded struct {
	method, path, query string
	auth, trace         string
	body                map[string]any
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			trace:  r.Header.Get("X-Trace-ID"),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	require.NoError(t, err)
	return c, &calls
}

func TestClient_Query(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {"answer": "Golden Gate Park", "sources": [], "spatial_context": {"search_radius_km": 10, "scope": "local"}}, "metadata": {"confidence": 0.8, "steps_executed": 2, "intent": "search"}}`))
	})

	ctx := observability.ContextWithTraceID(context.Background(), "trace-1")
	res, err := c.Query(ctx, "parks near San Francisco")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Golden Gate Park", res.Data.Answer)
	assert.Equal(t, 2, res.Metadata.StepsExecuted)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/api/v1/query", call.path)
	assert.Equal(t, "Bearer secret", call.auth)
	assert.Equal(t, "trace-1", call.trace)
	assert.Equal(t, map[string]any{"query": "parks near San Francisco"}, call.body)
}

func TestClient_GeneratesTraceID(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"suggestions": ["Find airports near Denver"]}`))
	})

	got, err := c.Suggestions(context.Background(), "air ports")
	require.NoError(t, err)
	assert.Equal(t, []string{"Find airports near Denver"}, got)

	call := (*calls)[0]
	assert.Equal(t, "q=air+ports", call.query)
	assert.Len(t, call.trace, 36)
}

func TestClient_Ingestion(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/features":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": "gg"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/documents":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"added": 2}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/features/gg":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "not found"}`))
		}
	})
	ctx := context.Background()

	f := spatial.NewPointFeature("gg", "Golden Gate Park", geo.Coordinates{Latitude: 37.77, Longitude: -122.49}, nil)
	require.NoError(t, c.InsertFeature(ctx, f))
	assert.Equal(t, "gg", (*calls)[0].body["id"])

	n, err := c.AddDocuments(ctx, []Document{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, (*calls)[1].body["documents"], 2)

	require.NoError(t, c.RemoveFeature(ctx, "gg"))
	assert.ErrorIs(t, c.RemoveDocument(ctx, "missing"), ErrNotFound)

	_, err = c.GetFeature(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_APIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "query is required", "message": "query is required"}`))
	})

	_, err := c.Query(context.Background(), "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "query is required", apiErr.Message)
	assert.Equal(t, "geo engine: 400 query is required", apiErr.Error())
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(ClientConfig{BaseURL: "not a url"})
	assert.Error(t, err)

	c, err := NewClient(ClientConfig{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8086/api/v1", c.baseURL)
}
