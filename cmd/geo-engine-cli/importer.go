package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

// readDocuments accepts either a JSON array of documents or an object with
// a "documents" array, the same body the HTTP API takes.
func readDocuments(data []byte) ([]vectorstore.Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty documents file")
	}

	var docs []vectorstore.Document
	if data[0] == '[' {
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("parse documents: %w", err)
		}
	} else {
		var body struct {
			Documents []vectorstore.Document `json:"documents"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("parse documents: %w", err)
		}
		docs = body.Documents
	}

	for i, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("document %d: missing id", i)
		}
	}
	return docs, nil
}

// catalogWriter is the subset of *catalog.Repository the import needs.
type catalogWriter interface {
	SaveFeature(ctx context.Context, f spatial.Feature) error
	SaveDocument(ctx context.Context, d vectorstore.Document) error
}

var _ catalogWriter = (*catalog.Repository)(nil)

type importSummary struct {
	Features  int      `json:"features"`
	Documents int      `json:"documents"`
	Skipped   []string `json:"skipped,omitempty"`
}

// importRecords writes features then documents. A failing write aborts the
// import; records already written stay in the catalog.
func importRecords(ctx context.Context, dst catalogWriter, features []spatial.Feature, docs []vectorstore.Document, bar *importBar) (*importSummary, error) {
	summary := &importSummary{}
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := dst.SaveFeature(ctx, f); err != nil {
			return summary, fmt.Errorf("save feature %s: %w", f.ID, err)
		}
		summary.Features++
		bar.Add(1)
	}
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := dst.SaveDocument(ctx, d); err != nil {
			return summary, fmt.Errorf("save document %s: %w", d.ID, err)
		}
		summary.Documents++
		bar.Add(1)
	}
	bar.Finish()
	return summary, nil
}

func readFileOrStdin(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
