package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

// IngestionHandler serves feature and document mutations.
type IngestionHandler struct {
	logger *observability.Logger
	engine Engine
}

// NewIngestionHandler creates a new ingestion handler.
func NewIngestionHandler(logger *observability.Logger, eng Engine) *IngestionHandler {
	return &IngestionHandler{logger: logger, engine: eng}
}

// DocumentsRequestDTO is the body of POST /documents.
type DocumentsRequestDTO struct {
	Documents []vectorstore.Document `json:"documents"`
}

// InsertFeature handles POST /features.
func (h *IngestionHandler) InsertFeature(w http.ResponseWriter, r *http.Request) {
	var f spatial.Feature
	if err := decodeBody(w, r, &f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := h.engine.InsertFeature(r.Context(), f); err != nil {
		if errors.Is(err, spatial.ErrInvalidGeometry) || errors.Is(err, spatial.ErrMissingID) {
			writeError(w, http.StatusBadRequest, "invalid feature", err.Error())
			return
		}
		h.logger.Error().Err(err).Str("feature_id", f.ID).Msg("Feature insert failed")
		writeError(w, http.StatusInternalServerError, "feature insert failed", err.Error())
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, map[string]string{"id": f.ID})
}

// GetFeature handles GET /features/{id}.
func (h *IngestionHandler) GetFeature(w http.ResponseWriter, r *http.Request) {
	f, ok := h.engine.GetFeature(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "feature not found", "")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, f)
}

// RemoveFeature handles DELETE /features/{id}.
func (h *IngestionHandler) RemoveFeature(w http.ResponseWriter, r *http.Request) {
	if !h.engine.RemoveFeature(r.Context(), chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "feature not found", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddDocuments handles POST /documents. Nothing is stored when embedding
// any document fails.
func (h *IngestionHandler) AddDocuments(w http.ResponseWriter, r *http.Request) {
	var req DocumentsRequestDTO
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents are required", "")
		return
	}
	for _, d := range req.Documents {
		if d.ID == "" {
			writeError(w, http.StatusBadRequest, "every document needs an id", "")
			return
		}
	}

	if err := h.engine.AddDocuments(r.Context(), req.Documents); err != nil {
		h.logger.Error().Err(err).Int("documents", len(req.Documents)).Msg("Document ingestion failed")
		writeError(w, http.StatusBadGateway, "document ingestion failed", err.Error())
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, map[string]int{"added": len(req.Documents)})
}

// GetDocument handles GET /documents/{id}.
func (h *IngestionHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	d, ok := h.engine.GetDocument(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "document not found", "")
		return
	}
	d.Embedding = nil
	writeJSON(h.logger, w, http.StatusOK, d)
}

// RemoveDocument handles DELETE /documents/{id}.
func (h *IngestionHandler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	if !h.engine.RemoveDocument(r.Context(), chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "document not found", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
