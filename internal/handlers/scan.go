package handlers

import (
	"net/http"
	"strconv"

	"media-vault/internal/database"
	"media-vault/internal/storeclient"
)

// TriggerScan starts a library scan in the background.
func (h *Handlers) TriggerScan(w http.ResponseWriter, _ *http.Request) {
	if err := h.scanner.TriggerScan(); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// Search forwards a query to the search helper. Query parameters: q,
// index (scenes or images), filter, sort, skip, take.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeJSONError(w, "search is not enabled", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	index := q.Get("index")
	switch index {
	case "":
		index = database.CollectionScenes
	case database.CollectionScenes, database.CollectionImages:
	default:
		writeJSONError(w, "unknown index "+strconv.Quote(index), http.StatusBadRequest)
		return
	}

	query := storeclient.SearchQuery{
		Query:  q.Get("q"),
		Filter: q.Get("filter"),
		Sort:   q.Get("sort"),
	}
	var err error
	if query.Skip, err = intParam(q.Get("skip")); err != nil {
		writeJSONError(w, "invalid skip", http.StatusBadRequest)
		return
	}
	if query.Take, err = intParam(q.Get("take")); err != nil {
		writeJSONError(w, "invalid take", http.StatusBadRequest)
		return
	}

	res, err := h.search.Search(r.Context(), index, query)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, res)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
