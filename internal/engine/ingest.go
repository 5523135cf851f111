package engine

import (
	"context"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/monitoring"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

// Every mutation drops cached results so later queries see the new data.

// InsertFeature adds or replaces a feature in the spatial index.
func (e *Engine) InsertFeature(ctx context.Context, f spatial.Feature) error {
	if err := e.index.Insert(f); err != nil {
		return err
	}
	e.afterMutation(ctx)
	e.audit.LogIngestion(ctx, monitoring.ActionFeatureInserted, "feature", f.ID, 1)
	return nil
}

// RemoveFeature reports whether the feature existed.
func (e *Engine) RemoveFeature(ctx context.Context, id string) bool {
	ok := e.index.Remove(id)
	if ok {
		e.afterMutation(ctx)
		e.audit.LogIngestion(ctx, monitoring.ActionFeatureRemoved, "feature", id, 1)
	}
	return ok
}

// GetFeature returns a stored feature.
func (e *Engine) GetFeature(id string) (spatial.Feature, bool) {
	return e.index.Get(id)
}

// AddDocuments embeds documents lacking an embedding and stores all of
// them. Nothing is stored if embedding fails.
func (e *Engine) AddDocuments(ctx context.Context, docs []vectorstore.Document) error {
	if err := e.rag.Initialize(ctx, docs); err != nil {
		return err
	}
	e.afterMutation(ctx)
	e.audit.LogIngestion(ctx, monitoring.ActionDocumentsAdded, "document", "", len(docs))
	return nil
}

// AddDocument is AddDocuments for one document.
func (e *Engine) AddDocument(ctx context.Context, doc vectorstore.Document) error {
	return e.AddDocuments(ctx, []vectorstore.Document{doc})
}

// RemoveDocument reports whether the document existed.
func (e *Engine) RemoveDocument(ctx context.Context, id string) bool {
	ok := e.store.RemoveDocument(id)
	if ok {
		e.afterMutation(ctx)
		e.audit.LogIngestion(ctx, monitoring.ActionDocumentRemoved, "document", id, 1)
	}
	return ok
}

// GetDocument returns a stored document.
func (e *Engine) GetDocument(id string) (vectorstore.Document, bool) {
	return e.store.Get(id)
}

// Clear empties the index, the store and the result cache.
func (e *Engine) Clear(ctx context.Context) {
	e.index.Clear()
	e.store.Clear()
	e.afterMutation(ctx)
	e.audit.LogIngestion(ctx, monitoring.ActionCleared, "engine", "", 0)
}

func (e *Engine) afterMutation(ctx context.Context) {
	if err := e.results.Invalidate(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to invalidate result cache")
	}
	e.metrics.SetIndexSizes(e.index.Count(), e.store.Count())
}
