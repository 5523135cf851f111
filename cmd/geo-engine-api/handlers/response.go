// Package handlers provides HTTP handlers for the geo engine API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/engine"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

// Engine is the engine surface the HTTP API uses. *engine.Engine satisfies it.
type Engine interface {
	ProcessQuery(ctx context.Context, text string) *engine.QueryResult
	ValidateQuery(text string) engine.Validation
	GetSuggestions(partial string) []string
	GetStats(ctx context.Context) engine.Stats

	InsertFeature(ctx context.Context, f spatial.Feature) error
	RemoveFeature(ctx context.Context, id string) bool
	GetFeature(id string) (spatial.Feature, bool)
	AddDocuments(ctx context.Context, docs []vectorstore.Document) error
	RemoveDocument(ctx context.Context, id string) bool
	GetDocument(id string) (vectorstore.Document, bool)
}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(logger *observability.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	json.NewEncoder(w).Encode(resp)
}
