package storeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"media-vault/internal/apperrors"
	"media-vault/internal/database"
)

// DocStore is the record-store helper seen as a database.DocStore.
type DocStore struct {
	*Client
}

var _ database.DocStore = (*DocStore)(nil)

// NewDocStore creates a DocStore for the record store at baseURL.
func NewDocStore(baseURL string) *DocStore {
	return &DocStore{Client: NewClient("record-store", baseURL)}
}

type indexSpec struct {
	Name  string `json:"name"`
	Field string `json:"field"`
	Multi bool   `json:"multi,omitempty"`
}

type createCollectionRequest struct {
	Indexes []indexSpec `json:"indexes"`
}

// EnsureCollection creates the collection and its indexes. Existing
// collections are left as they are.
func (s *DocStore) EnsureCollection(ctx context.Context, name string, indexes []database.Index) error {
	req := createCollectionRequest{Indexes: make([]indexSpec, 0, len(indexes))}
	for _, idx := range indexes {
		req.Indexes = append(req.Indexes, indexSpec{Name: idx.Name, Field: idx.Field, Multi: idx.Multi})
	}
	_, err := s.do(ctx, http.MethodPost, s.endpoint("collection", name), req)
	return err
}

// Get decodes the document into dst.
func (s *DocStore) Get(ctx context.Context, collection, id string, dst any) error {
	data, err := s.do(ctx, http.MethodGet, s.endpoint("collection", collection, id), nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

type bulkRequest struct {
	IDs []string `json:"ids"`
}

// GetMany returns the documents that exist among ids.
func (s *DocStore) GetMany(ctx context.Context, collection string, ids []string) ([][]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := s.do(ctx, http.MethodPost, s.endpoint("collection", collection, "bulk"), bulkRequest{IDs: ids})
	if err != nil {
		return nil, err
	}
	return decodeList(data)
}

// Put creates or replaces a document.
func (s *DocStore) Put(ctx context.Context, collection, id string, doc any) error {
	_, err := s.do(ctx, http.MethodPost, s.endpoint("collection", collection, id), doc)
	return err
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *DocStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.do(ctx, http.MethodDelete, s.endpoint("collection", collection, id), nil)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

// List returns every document of a collection.
func (s *DocStore) List(ctx context.Context, collection string) ([][]byte, error) {
	data, err := s.do(ctx, http.MethodGet, s.endpoint("collection", collection), nil)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeList(data)
}

// Query returns the documents whose indexed field equals key.
func (s *DocStore) Query(ctx context.Context, collection, index, key string) ([][]byte, error) {
	data, err := s.do(ctx, http.MethodGet, s.endpoint("collection", collection, index, key), nil)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeList(data)
}

// Count returns the number of documents in a collection.
func (s *DocStore) Count(ctx context.Context, collection string) (int, error) {
	docs, err := s.List(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return len(docs), nil
}

// Reset drops every collection.
func (s *DocStore) Reset(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodDelete, s.endpoint("collection"), nil)
	return err
}
