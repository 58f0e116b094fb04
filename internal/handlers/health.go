package handlers

import (
	"net/http"
	"runtime"
	"time"

	"photo-catalog/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Engine
	Workers        int  `json:"workers"`
	QueuedJobs     int  `json:"queuedJobs"`
	CachingEnabled bool `json:"cachingEnabled"`
	StoreEnabled   bool `json:"storeEnabled"`
	MemoryPaused   bool `json:"memoryPaused"`

	// Pre-warm
	Prewarming        bool   `json:"prewarming"`
	LastPrewarmed     string `json:"lastPrewarmed,omitempty"`
	InitialIndexError string `json:"initialIndexError,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// ready reports whether the initial pre-warm scan, if any, has finished.
func (h *Handlers) ready() bool {
	return h.indexer == nil || h.indexer.IsReady()
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Ready:          h.ready(),
		Version:        startup.Version,
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
		Workers:        h.pool.Stats().Workers,
		QueuedJobs:     h.queue.Len(),
		CachingEnabled: h.cache.Enabled(),
		StoreEnabled:   h.store != nil,
		MemoryPaused:   h.memory.IsPaused(),
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
	}

	if h.indexer != nil {
		status := h.indexer.GetHealthStatus()
		response.Prewarming = status.Indexing
		if !status.LastIndexed.IsZero() {
			response.LastPrewarmed = status.LastIndexed.Format(time.RFC3339)
		}
		response.InitialIndexError = status.InitialIndexError
	}

	switch {
	case !response.Ready:
		response.Status = statusStarting
	case response.InitialIndexError != "" || response.MemoryPaused:
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}

	code := http.StatusOK
	if !response.Ready {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		writeJSON(w, response)
	}
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.ready() {
		writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}
