package handlers

import (
	"net/http"
	"runtime"

	"media-vault/internal/indexer"
	"media-vault/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Scanner indexer.Status `json:"scanner"`
	Queue   QueueInfo      `json:"queue"`
	Search  bool           `json:"search"`

	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports scanner and queue state. A failed last scan or an
// unreadable queue marks the service degraded; the status code stays 200.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		Scanner:      h.scanner.Status(),
		Search:       h.search != nil,
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	n, err := h.queue.Len()
	if err != nil {
		resp.Status = statusDegraded
	}
	resp.Queue = QueueInfo{Length: n, Running: h.queue.Running(), Current: h.queue.Current()}

	if resp.Scanner.LastError != "" {
		resp.Status = statusDegraded
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, resp)
}
