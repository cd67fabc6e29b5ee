package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"media-vault/internal/apperrors"
	"media-vault/internal/indexer"
	"media-vault/internal/mediatypes"
	"media-vault/internal/queue"
	"media-vault/internal/storeclient"
)

type fakeQueue struct {
	items     map[string]*queue.Item
	order     []string
	completed map[string]queue.ManualResult
	lenErr    error
	current   string
}

func newFakeQueue(items ...*queue.Item) *fakeQueue {
	q := &fakeQueue{items: make(map[string]*queue.Item), completed: make(map[string]queue.ManualResult)}
	for _, it := range items {
		q.items[it.ID] = it
		q.order = append(q.order, it.ID)
	}
	return q
}

func (q *fakeQueue) Head() (*queue.Item, error) {
	for _, id := range q.order {
		if it, ok := q.items[id]; ok {
			return it, nil
		}
	}
	return nil, nil
}

func (q *fakeQueue) Len() (int, error) { return len(q.items), q.lenErr }
func (q *fakeQueue) Running() bool     { return false }
func (q *fakeQueue) Current() string   { return q.current }

func (q *fakeQueue) Remove(id string) error {
	if _, ok := q.items[id]; !ok {
		return fmt.Errorf("queue item %s: %w", id, apperrors.ErrNotFound)
	}
	delete(q.items, id)
	return nil
}

func (q *fakeQueue) Complete(_ context.Context, id string, res queue.ManualResult) (string, error) {
	if _, ok := q.items[id]; !ok {
		return "", fmt.Errorf("queue item %s: %w", id, apperrors.ErrNotFound)
	}
	if id == q.current {
		return "", fmt.Errorf("queue item %s: %w", id, apperrors.ErrItemInFlight)
	}
	if r, ok := res.Scene["rating"].(float64); ok && r > 5 {
		return "", fmt.Errorf("rating: %w", apperrors.ErrValidation)
	}
	q.completed[id] = res
	delete(q.items, id)
	return "sc_1", nil
}

type fakeScanner struct {
	err    error
	calls  int
	status indexer.Status
}

func (s *fakeScanner) TriggerScan() error {
	s.calls++
	return s.err
}

func (s *fakeScanner) Status() indexer.Status { return s.status }

type fakeSearcher struct {
	index string
	query storeclient.SearchQuery
}

func (f *fakeSearcher) Search(_ context.Context, index string, q storeclient.SearchQuery) (*storeclient.SearchResult, error) {
	f.index, f.query = index, q
	return &storeclient.SearchResult{Items: []json.RawMessage{json.RawMessage(`{"id":"sc_1"}`)}, Total: 1}, nil
}

func newRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	h.Register(r)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func testItem(id string) *queue.Item {
	return &queue.Item{ID: id, Kind: mediatypes.KindVideo, Path: "/videos/" + id + ".mp4"}
}

func TestGetQueueHead(t *testing.T) {
	t.Run("returns oldest item", func(t *testing.T) {
		r := newRouter(New(newFakeQueue(testItem("qi_1"), testItem("qi_2")), &fakeScanner{}, nil))
		w := serve(r, http.MethodGet, "/queue/head", "")

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var item queue.Item
		if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if item.ID != "qi_1" {
			t.Errorf("head = %s, want qi_1", item.ID)
		}
	})

	t.Run("empty queue is null", func(t *testing.T) {
		r := newRouter(New(newFakeQueue(), &fakeScanner{}, nil))
		w := serve(r, http.MethodGet, "/queue/head", "")

		if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "null" {
			t.Errorf("got %d %q, want 200 null", w.Code, w.Body.String())
		}
	})
}

func TestCompleteQueueItem(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		body       string
		wantStatus int
	}{
		{"completes", "qi_1", `{"scene":{"name":"Renamed"},"thumbs":[{"path":"/tmp/t.jpg"}]}`, http.StatusOK},
		{"unknown id", "qi_9", `{"scene":{}}`, http.StatusNotFound},
		{"malformed body", "qi_1", `{"scene":`, http.StatusBadRequest},
		{"validation failure", "qi_1", `{"scene":{"rating":9}}`, http.StatusBadRequest},
		{"in flight", "qi_busy", `{"scene":{}}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newFakeQueue(testItem("qi_1"), testItem("qi_busy"))
			q.current = "qi_busy"
			r := newRouter(New(q, &fakeScanner{}, nil))

			w := serve(r, http.MethodPost, "/queue/"+tt.id, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp["id"] != "sc_1" {
				t.Errorf("response = %s, want the record id", w.Body.String())
			}
			res := q.completed["qi_1"]
			if res.Scene["name"] != "Renamed" || len(res.Thumbs) != 1 || res.Thumbs[0].Path != "/tmp/t.jpg" {
				t.Errorf("result passed to queue = %+v", res)
			}
		})
	}
}

func TestRemoveQueueItem(t *testing.T) {
	q := newFakeQueue(testItem("qi_1"))
	r := newRouter(New(q, &fakeScanner{}, nil))

	if w := serve(r, http.MethodDelete, "/queue/qi_1", ""); w.Code != http.StatusNoContent {
		t.Errorf("DELETE known = %d, want 204", w.Code)
	}
	if _, ok := q.items["qi_1"]; ok {
		t.Error("item still queued")
	}
	if w := serve(r, http.MethodDelete, "/queue/qi_1", ""); w.Code != http.StatusNotFound {
		t.Errorf("DELETE unknown = %d, want 404", w.Code)
	}
}

func TestGetQueueInfo(t *testing.T) {
	r := newRouter(New(newFakeQueue(testItem("a"), testItem("b")), &fakeScanner{}, nil))
	w := serve(r, http.MethodGet, "/queue", "")

	var info QueueInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Length != 2 {
		t.Errorf("length = %d, want 2", info.Length)
	}
}

func TestTriggerScan(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"already running", apperrors.ErrScanInProgress, http.StatusConflict},
		{"unexpected error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeScanner{err: tt.err}
			r := newRouter(New(newFakeQueue(), s, nil))

			w := serve(r, http.MethodPost, "/scan", "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if s.calls != 1 {
				t.Errorf("TriggerScan called %d times, want 1", s.calls)
			}
		})
	}
}

func TestSearch(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		r := newRouter(New(newFakeQueue(), &fakeScanner{}, nil))
		if w := serve(r, http.MethodGet, "/search?q=x", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})

	t.Run("forwards query", func(t *testing.T) {
		s := &fakeSearcher{}
		r := newRouter(New(newFakeQueue(), &fakeScanner{}, s))

		w := serve(r, http.MethodGet, "/search?q=beach&index=images&skip=24&take=12", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if s.index != "images" || s.query.Query != "beach" || s.query.Skip != 24 || s.query.Take != 12 {
			t.Errorf("search got index %q query %+v", s.index, s.query)
		}
		var res storeclient.SearchResult
		if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.Total != 1 {
			t.Errorf("response = %s", w.Body.String())
		}
	})

	t.Run("bad params", func(t *testing.T) {
		r := newRouter(New(newFakeQueue(), &fakeScanner{}, &fakeSearcher{}))
		for _, path := range []string{"/search?index=actors", "/search?skip=-1", "/search?take=x"} {
			if w := serve(r, http.MethodGet, path, ""); w.Code != http.StatusBadRequest {
				t.Errorf("%s = %d, want 400", path, w.Code)
			}
		}
	})
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		scanner    *fakeScanner
		lenErr     error
		wantStatus string
	}{
		{"healthy", &fakeScanner{}, nil, statusHealthy},
		{"failed scan", &fakeScanner{status: indexer.Status{LastError: "walk failed"}}, nil, statusDegraded},
		{"queue unreadable", &fakeScanner{}, errors.New("badger closed"), statusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newFakeQueue(testItem("qi_1"))
			q.lenErr = tt.lenErr
			r := newRouter(New(q, tt.scanner, nil))

			w := serve(r, http.MethodGet, "/health", "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var resp HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestVersionAndMetrics(t *testing.T) {
	r := newRouter(New(newFakeQueue(), &fakeScanner{}, nil))

	w := serve(r, http.MethodGet, "/version", "")
	var info map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil || info["version"] == "" {
		t.Errorf("version response = %s", w.Body.String())
	}

	w = serve(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("go_goroutines")) {
		t.Errorf("metrics response = %d", w.Code)
	}
}
