package handlers

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"media-vault/internal/queue"
)

// maxCompleteBody bounds POST /queue/{id} bodies.
const maxCompleteBody = 8 << 20

// QueueInfo describes the queue state.
type QueueInfo struct {
	Length  int    `json:"length"`
	Running bool   `json:"running"`
	Current string `json:"current,omitempty"`
}

// GetQueueHead returns the oldest pending item, or null.
func (h *Handlers) GetQueueHead(w http.ResponseWriter, _ *http.Request) {
	item, err := h.queue.Head()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, item)
}

// GetQueueInfo returns the queue length and loop state.
func (h *Handlers) GetQueueInfo(w http.ResponseWriter, _ *http.Request) {
	n, err := h.queue.Len()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, QueueInfo{
		Length:  n,
		Running: h.queue.Running(),
		Current: h.queue.Current(),
	})
}

// CompleteQueueItem merges externally produced data into the item's record
// and removes the item.
func (h *Handlers) CompleteQueueItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCompleteBody))
	if err != nil {
		writeJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	var result queue.ManualResult
	if err := json.Unmarshal(body, &result); err != nil {
		writeJSONError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	recordID, err := h.queue.Complete(r.Context(), id, result)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]string{"id": recordID})
}

// RemoveQueueItem drops an item without processing it.
func (h *Handlers) RemoveQueueItem(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Remove(mux.Vars(r)["id"]); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
