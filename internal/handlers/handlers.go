package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"media-vault/internal/indexer"
	"media-vault/internal/queue"
	"media-vault/internal/storeclient"
)

// Queue is the part of the ingestion queue the API exposes.
type Queue interface {
	Head() (*queue.Item, error)
	Len() (int, error)
	Running() bool
	Current() string
	Remove(id string) error
	Complete(ctx context.Context, id string, result queue.ManualResult) (string, error)
}

// Scanner starts and reports library scans.
type Scanner interface {
	TriggerScan() error
	Status() indexer.Status
}

// Searcher queries the search helper.
type Searcher interface {
	Search(ctx context.Context, index string, q storeclient.SearchQuery) (*storeclient.SearchResult, error)
}

// Handlers serves the HTTP API.
type Handlers struct {
	queue   Queue
	scanner Scanner
	search  Searcher
}

// New creates the handlers. search may be nil when the search helper is
// disabled.
func New(q Queue, s Scanner, search Searcher) *Handlers {
	return &Handlers{queue: q, scanner: s, search: search}
}

// Register adds every route to r.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/queue/head", h.GetQueueHead).Methods(http.MethodGet)
	r.HandleFunc("/queue", h.GetQueueInfo).Methods(http.MethodGet)
	r.HandleFunc("/queue/{id}", h.CompleteQueueItem).Methods(http.MethodPost)
	r.HandleFunc("/queue/{id}", h.RemoveQueueItem).Methods(http.MethodDelete)

	r.HandleFunc("/scan", h.TriggerScan).Methods(http.MethodPost)
	r.HandleFunc("/search", h.Search).Methods(http.MethodGet)

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)
	r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
}
