package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"photo-catalog/internal/indexer"
	"photo-catalog/internal/metrics"
)

const (
	maxPrefetchPaths  = 64
	storeStatsTimeout = 5 * time.Second
)

// QueueStats is the pending job count per priority.
type QueueStats struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
	Total  int `json:"total"`
}

// CacheStats describes the full-picture cache.
type CacheStats struct {
	Enabled  bool `json:"enabled"`
	Capacity int  `json:"capacity"`
	Loading  int  `json:"loading"`
	Ready    int  `json:"ready"`
}

// WorkerStats describes the thumbnail worker pool.
type WorkerStats struct {
	Workers   int   `json:"workers"`
	Busy      int   `json:"busy"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// StoreStats describes the durable thumbnail store.
type StoreStats struct {
	Enabled bool  `json:"enabled"`
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// MemoryStats describes heap pressure as seen by the memory monitor.
type MemoryStats struct {
	Current int64   `json:"current"`
	Limit   int64   `json:"limit"`
	Usage   float64 `json:"usage"`
	Paused  bool    `json:"paused"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Queue   QueueStats            `json:"queue"`
	Cache   CacheStats            `json:"cache"`
	Workers WorkerStats           `json:"workers"`
	Store   StoreStats            `json:"store"`
	Memory  *MemoryStats          `json:"memory,omitempty"`
	Prewarm *indexer.HealthStatus `json:"prewarm,omitempty"`
}

func (h *Handlers) collectStats(ctx context.Context) StatsResponse {
	depth := h.queue.LenByPriority()
	cache := h.cache.Stats()
	pool := h.pool.Stats()

	resp := StatsResponse{
		Queue: QueueStats{High: depth.High, Medium: depth.Medium, Low: depth.Low, Total: depth.Total()},
		Cache: CacheStats{
			Enabled:  h.cache.Enabled(),
			Capacity: cache.Capacity,
			Loading:  cache.Loading,
			Ready:    cache.Ready,
		},
		Workers: WorkerStats{
			Workers:   pool.Workers,
			Busy:      pool.Busy,
			Processed: pool.Processed,
			Failed:    pool.Failed,
		},
	}

	if h.store != nil {
		resp.Store.Enabled = true
		if s, err := h.store.Stats(ctx); err != nil {
			log.Warn("failed to read store stats: %v", err)
		} else {
			resp.Store.Entries = s.Entries
			resp.Store.Bytes = s.Bytes
		}
	}

	if h.memory != nil {
		current, limit, usage := h.memory.GetStats()
		resp.Memory = &MemoryStats{Current: current, Limit: limit, Usage: usage, Paused: h.memory.IsPaused()}
	}

	if h.indexer != nil {
		status := h.indexer.GetHealthStatus()
		resp.Prewarm = &status
	}

	return resp
}

// GetStats returns queue, cache, worker and store statistics.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, h.collectStats(r.Context()))
}

// ClearCache drops every full-picture cache entry and every pending job.
// Requests waiting on a dropped job end with 503.
func (h *Handlers) ClearCache(w http.ResponseWriter, _ *http.Request) {
	jobs := h.queue.Clear()
	entries := h.cache.Clear()
	log.Info("cache cleared: %d entries, %d pending jobs", entries, jobs)

	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"status":        "cleared",
		"cacheEntries":  entries,
		"jobsCancelled": jobs,
	})
}

// PrefetchRequest is the body of POST /api/prefetch.
type PrefetchRequest struct {
	Paths []string `json:"paths"`
}

// Prefetch loads pictures the client expects to show next into the
// full-picture cache at low priority.
func (h *Handlers) Prefetch(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil || !h.cache.Enabled() {
		writeJSONError(w, "Picture cache disabled", http.StatusServiceUnavailable)
		return
	}

	var req PrefetchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Paths) == 0 || len(req.Paths) > maxPrefetchPaths {
		writeJSONError(w, "Between 1 and 64 paths are required", http.StatusBadRequest)
		return
	}

	root, err := filepath.Abs(h.pictureDir)
	if err != nil {
		writeJSONError(w, "Invalid picture directory", http.StatusInternalServerError)
		return
	}

	locators := make([]string, 0, len(req.Paths))
	for _, p := range req.Paths {
		locator := filepath.Join(root, filepath.FromSlash(p))
		if p == "" || !isSubPath(root, locator) {
			writeJSONError(w, "Invalid path: "+p, http.StatusBadRequest)
			return
		}
		locators = append(locators, locator)
	}

	h.loader.Prefetch(locators...)
	writeJSONStatus(w, http.StatusAccepted, map[string]interface{}{
		"status": "queued",
		"count":  len(locators),
	})
}

// TriggerReindex starts a pre-warm scan of the picture directory.
func (h *Handlers) TriggerReindex(w http.ResponseWriter, _ *http.Request) {
	if h.indexer == nil {
		writeJSONError(w, "Pre-warm disabled", http.StatusServiceUnavailable)
		return
	}
	if h.indexer.GetHealthStatus().Indexing {
		writeJSONStatus(w, http.StatusOK, map[string]string{
			"status":  "already_running",
			"message": "Pre-warm scan is already in progress",
		})
		return
	}

	h.indexer.TriggerIndex()
	writeJSONStatus(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "Pre-warm scan started",
	})
}

// StatsProvider adapts Handlers to metrics.StatsProvider.
func (h *Handlers) StatsProvider() metrics.StatsProvider {
	return engineStats{h}
}

type engineStats struct{ h *Handlers }

func (e engineStats) GetStats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), storeStatsTimeout)
	defer cancel()

	s := e.h.collectStats(ctx)
	return metrics.Stats{
		QueueHigh:     s.Queue.High,
		QueueMedium:   s.Queue.Medium,
		QueueLow:      s.Queue.Low,
		CacheLoading:  s.Cache.Loading,
		CacheReady:    s.Cache.Ready,
		CacheCapacity: s.Cache.Capacity,
		StoreEntries:  s.Store.Entries,
		StoreBytes:    s.Store.Bytes,
	}
}
