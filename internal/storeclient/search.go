package storeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"media-vault/internal/apperrors"
)

// SearchIndex is the search helper.
type SearchIndex struct {
	*Client
}

// NewSearchIndex creates a client for the search helper at baseURL.
func NewSearchIndex(baseURL string) *SearchIndex {
	return &SearchIndex{Client: NewClient("search", baseURL)}
}

// SearchQuery is a search request. Filter uses the helper's filter syntax.
type SearchQuery struct {
	Query  string `json:"query"`
	Filter string `json:"filter,omitempty"`
	Sort   string `json:"sort,omitempty"`
	Skip   int    `json:"skip"`
	Take   int    `json:"take"`
}

// SearchResult is one page of hits.
type SearchResult struct {
	Items []json.RawMessage `json:"items"`
	Total int               `json:"total"`
}

// IndexDocuments adds or replaces docs in the named index. Each document
// must carry an "id" field.
func (s *SearchIndex) IndexDocuments(ctx context.Context, index string, docs []any) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := s.do(ctx, http.MethodPost, s.endpoint("index", index), docs); err != nil {
		return fmt.Errorf("index %d document(s) into %s: %w", len(docs), index, err)
	}
	return nil
}

// DeleteDocument removes one document from the index.
func (s *SearchIndex) DeleteDocument(ctx context.Context, index, id string) error {
	_, err := s.do(ctx, http.MethodDelete, s.endpoint("index", index, id), nil)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

// Search runs q against the named index.
func (s *SearchIndex) Search(ctx context.Context, index string, q SearchQuery) (*SearchResult, error) {
	if q.Take <= 0 {
		q.Take = 24
	}
	data, err := s.do(ctx, http.MethodPost, s.endpoint("index", index, "search"), q)
	if err != nil {
		return nil, err
	}
	var res SearchResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode search result: %w", err)
	}
	return &res, nil
}

// Reset drops every index.
func (s *SearchIndex) Reset(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodDelete, s.endpoint("index"), nil)
	return err
}
