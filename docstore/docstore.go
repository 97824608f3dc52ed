// Package docstore keeps uploaded files, documents and tags on disk using diskv.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/ledgerdocs/procflow/docanalysis"
	"github.com/peterbourgon/diskv/v3"
)

var ErrInvalidKey = errors.New("invalid key")

// Store implements the docanalysis collaborators on top of three diskv buckets.
type Store struct {
	blobs     *diskv.Diskv
	documents *diskv.Diskv
	tags      *diskv.Diskv

	clock clock.Clock

	// tagMu serializes FindOrCreate so concurrent calls create a tag only once.
	tagMu sync.Mutex
}

var (
	_ docanalysis.BlobStore          = (*Store)(nil)
	_ docanalysis.DocumentRepository = (*Store)(nil)
	_ docanalysis.TagService         = (*Store)(nil)
)

type Option func(*Store)

func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// treeTransform maps "a/b/c" to the file c in directory a/b.
func treeTransform(key string) *diskv.PathKey {
	path := strings.Split(key, "/")
	last := len(path) - 1

	return &diskv.PathKey{
		Path:     path[:last],
		FileName: path[last],
	}
}

func inverseTreeTransform(pathKey *diskv.PathKey) string {
	if len(pathKey.Path) == 0 {
		return pathKey.FileName
	}

	return strings.Join(pathKey.Path, "/") + "/" + pathKey.FileName
}

func bucket(path, name string, cacheSize uint64) *diskv.Diskv {
	return diskv.New(diskv.Options{
		BasePath:          filepath.Join(path, name),
		AdvancedTransform: treeTransform,
		InverseTransform:  inverseTreeTransform,
		CacheSizeMax:      cacheSize,
	})
}

func New(path string, opts ...Option) *Store {
	s := &Store{
		blobs:     bucket(path, "blobs", 0),
		documents: bucket(path, "documents", 1024*1024),
		tags:      bucket(path, "tags", 1024*1024),
		clock:     clock.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}

	return nil
}

func notFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func (s *Store) Download(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	return s.blobs.Read(key)
}

// Upload stores data under key. The content type is not kept, files are served as stored.
func (s *Store) Upload(_ context.Context, key string, data []byte, contentType string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	return s.blobs.Write(key, data)
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	if err := s.blobs.Erase(key); err != nil && !notFound(err) {
		return err
	}

	return nil
}

func documentKey(tenantID, id string) string {
	return url.PathEscape(tenantID) + "/" + url.PathEscape(id)
}

func (s *Store) Get(_ context.Context, tenantID, id string) (*docanalysis.Document, error) {
	key := documentKey(tenantID, id)
	if err := checkKey(key); err != nil {
		return nil, err
	}

	raw, err := s.documents.Read(key)
	if err != nil {
		if notFound(err) {
			return nil, docanalysis.ErrDocumentNotFound
		}

		return nil, fmt.Errorf("reading document %s: %w", id, err)
	}

	var doc docanalysis.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", id, err)
	}

	return &doc, nil
}

func (s *Store) Save(_ context.Context, doc *docanalysis.Document) error {
	if doc.ID == "" || doc.TenantID == "" {
		return errors.New("document needs id and tenant")
	}

	key := documentKey(doc.TenantID, doc.ID)
	if err := checkKey(key); err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", doc.ID, err)
	}

	return s.documents.Write(key, raw)
}

// List returns the documents of a tenant, most recently updated first.
func (s *Store) List(ctx context.Context, tenantID string) ([]*docanalysis.Document, error) {
	cancel := make(chan struct{})
	defer close(cancel)

	var docs []*docanalysis.Document
	for key := range s.documents.KeysPrefix(url.PathEscape(tenantID)+"/", cancel) {
		raw, err := s.documents.Read(key)
		if err != nil {
			return nil, fmt.Errorf("reading document %s: %w", key, err)
		}

		var doc docanalysis.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decoding document %s: %w", key, err)
		}

		docs = append(docs, &doc)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].ID > docs[j].ID
		}

		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})

	return docs, nil
}

// Import stores an uploaded file and creates a new document for it.
func (s *Store) Import(ctx context.Context, tenantID, fileName, contentType string, data []byte) (*docanalysis.Document, error) {
	doc := &docanalysis.Document{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		FileName:    filepath.Base(fileName),
		ContentType: contentType,
		Status:      docanalysis.StatusNew,
		UpdatedAt:   s.clock.Now(),
	}
	doc.FileKey = documentKey(tenantID, doc.ID) + "/" + url.PathEscape(doc.FileName)

	if err := s.Upload(ctx, doc.FileKey, data, contentType); err != nil {
		return nil, fmt.Errorf("storing file: %w", err)
	}

	if err := s.Save(ctx, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

func tagKey(tenantID, name string) string {
	return url.PathEscape(tenantID) + "/" + url.PathEscape(strings.ToLower(strings.TrimSpace(name)))
}

// FindOrCreate returns the tags with the given names, matched case-insensitively, creating missing ones.
func (s *Store) FindOrCreate(_ context.Context, tenantID string, names []string) ([]docanalysis.Tag, error) {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()

	r := make([]docanalysis.Tag, 0, len(names))
	seen := make(map[string]bool, len(names))

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		key := tagKey(tenantID, name)
		if seen[key] {
			continue
		}
		seen[key] = true

		var tag docanalysis.Tag

		raw, err := s.tags.Read(key)
		switch {
		case err == nil:
			if err := json.Unmarshal(raw, &tag); err != nil {
				return nil, fmt.Errorf("decoding tag %s: %w", name, err)
			}

		case notFound(err):
			tag = docanalysis.Tag{ID: uuid.NewString(), Name: name}

			raw, err := json.Marshal(tag)
			if err != nil {
				return nil, err
			}

			if err := s.tags.Write(key, raw); err != nil {
				return nil, fmt.Errorf("storing tag %s: %w", name, err)
			}

		default:
			return nil, fmt.Errorf("reading tag %s: %w", name, err)
		}

		r = append(r, tag)
	}

	return r, nil
}
