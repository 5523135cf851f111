package catalog

import (
	"context"
	"fmt"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

// Ingester receives catalog records. *engine.Engine satisfies it.
type Ingester interface {
	InsertFeature(ctx context.Context, f spatial.Feature) error
	AddDocuments(ctx context.Context, docs []vectorstore.Document) error
}

// Progress is called after each feature and each document batch with the
// number of records loaded so far and the total.
type Progress func(done, total int)

// LoadSummary reports what a Load call ingested.
type LoadSummary struct {
	Features  int      `json:"features"`
	Documents int      `json:"documents"`
	Skipped   []string `json:"skipped,omitempty"`
}

// Loader copies catalog records into an Ingester.
type Loader struct {
	repo      *Repository
	logger    *observability.Logger
	batchSize int
}

// NewLoader creates a loader. batchSize bounds the documents handed to
// AddDocuments per call; non-positive means 32.
func NewLoader(repo *Repository, logger *observability.Logger, batchSize int) *Loader {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Loader{repo: repo, logger: logger, batchSize: batchSize}
}

// Load reads every feature and document and ingests them. Invalid features
// are skipped and listed in the summary; a failing document batch aborts
// the load.
func (l *Loader) Load(ctx context.Context, dst Ingester, progress Progress) (*LoadSummary, error) {
	features, err := l.repo.ListFeatures(ctx)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	docs, err := l.repo.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	total := len(features) + len(docs)
	done := 0
	report := func(n int) {
		done += n
		if progress != nil {
			progress(done, total)
		}
	}

	summary := &LoadSummary{}
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := dst.InsertFeature(ctx, f); err != nil {
			l.logger.Warn().Err(err).Str("feature_id", f.ID).Msg("Skipping catalog feature")
			summary.Skipped = append(summary.Skipped, f.ID)
		} else {
			summary.Features++
		}
		report(1)
	}

	for start := 0; start < len(docs); start += l.batchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		end := min(start+l.batchSize, len(docs))
		if err := dst.AddDocuments(ctx, docs[start:end]); err != nil {
			return summary, fmt.Errorf("add documents %d-%d: %w", start, end-1, err)
		}
		summary.Documents += end - start
		report(end - start)
	}

	l.logger.Info().
		Int("features", summary.Features).
		Int("documents", summary.Documents).
		Int("skipped", len(summary.Skipped)).
		Msg("Catalog loaded")

	return summary, nil
}
