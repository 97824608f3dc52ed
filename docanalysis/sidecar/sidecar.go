// Package sidecar reads extraction results produced out of process, for example by an OCR service, and
// stored as JSON next to the document's file.
package sidecar

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ledgerdocs/procflow/docanalysis"
)

const contentType = "application/json"

// Key returns the blob key of the extraction result of a document.
func Key(documentID string) string {
	return "extractions/" + documentID + ".json"
}

type Extractor struct {
	blobs docanalysis.BlobStore
}

var _ docanalysis.Extractor = (*Extractor)(nil)

func New(blobs docanalysis.BlobStore) *Extractor {
	return &Extractor{blobs: blobs}
}

// Scan ignores the file and returns the stored extraction result of the document.
func (e *Extractor) Scan(ctx context.Context, file []byte, documentID string) (*docanalysis.ExtractedData, error) {
	raw, err := e.blobs.Download(ctx, Key(documentID))
	if err != nil {
		return nil, fmt.Errorf("reading extraction result: %w", err)
	}

	var data docanalysis.ExtractedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decoding extraction result: %w", err)
	}

	return &data, nil
}

// Store saves an extraction result for a document.
func Store(ctx context.Context, blobs docanalysis.BlobStore, documentID string, data *docanalysis.ExtractedData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding extraction result: %w", err)
	}

	return blobs.Upload(ctx, Key(documentID), raw, contentType)
}
