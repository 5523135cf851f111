package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
)

// QueryHandler serves query, validation, suggestion and stats requests.
type QueryHandler struct {
	logger  *observability.Logger
	engine  Engine
	timeout time.Duration
}

// NewQueryHandler creates a new query handler. A non-positive timeout
// leaves the request context untouched.
func NewQueryHandler(logger *observability.Logger, eng Engine, timeout time.Duration) *QueryHandler {
	return &QueryHandler{logger: logger, engine: eng, timeout: timeout}
}

// QueryRequestDTO is the body of query and validate requests.
type QueryRequestDTO struct {
	Query string `json:"query"`
}

// Query handles POST /query. Processed queries always answer 200 with the
// result; rejections and execution failures set success=false.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequestDTO
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res := h.engine.ProcessQuery(ctx, req.Query)
	writeJSON(h.logger, w, http.StatusOK, res)
}

// Validate handles POST /validate.
func (h *QueryHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req QueryRequestDTO
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	writeJSON(h.logger, w, http.StatusOK, h.engine.ValidateQuery(req.Query))
}

// Suggestions handles GET /suggestions?q=.
func (h *QueryHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, map[string][]string{
		"suggestions": h.engine.GetSuggestions(r.URL.Query().Get("q")),
	})
}

// Stats handles GET /stats.
func (h *QueryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, h.engine.GetStats(r.Context()))
}
