package docanalysis

import "context"

// BlobStore holds the uploaded files, addressed by an opaque key.
type BlobStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Extractor reads structured data from a file.
type Extractor interface {
	Scan(ctx context.Context, file []byte, documentID string) (*ExtractedData, error)
}

type ExtractorFunc func(ctx context.Context, file []byte, documentID string) (*ExtractedData, error)

func (f ExtractorFunc) Scan(ctx context.Context, file []byte, documentID string) (*ExtractedData, error) {
	return f(ctx, file, documentID)
}

// TagService materializes free-text tag names into tags of a tenant.
type TagService interface {
	FindOrCreate(ctx context.Context, tenantID string, names []string) ([]Tag, error)
}

type DocumentRepository interface {
	// Get returns ErrDocumentNotFound for unknown documents.
	Get(ctx context.Context, tenantID, id string) (*Document, error)
	Save(ctx context.Context, doc *Document) error
}
