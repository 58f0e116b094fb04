package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"photo-catalog/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds a snapshot of the engine's state
type Stats struct {
	QueueHigh   int
	QueueMedium int
	QueueLow    int

	CacheLoading  int
	CacheReady    int
	CacheCapacity int

	StoreEntries int
	StoreBytes   int64
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
// It is safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectRuntime()

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	QueueDepth.WithLabelValues("high").Set(float64(stats.QueueHigh))
	QueueDepth.WithLabelValues("medium").Set(float64(stats.QueueMedium))
	QueueDepth.WithLabelValues("low").Set(float64(stats.QueueLow))
	PictureCacheEntries.WithLabelValues("loading").Set(float64(stats.CacheLoading))
	PictureCacheEntries.WithLabelValues("ready").Set(float64(stats.CacheReady))
	PictureCacheCapacity.Set(float64(stats.CacheCapacity))
	StoreEntries.Set(float64(stats.StoreEntries))
	StoreSizeBytes.Set(float64(stats.StoreBytes))

	logging.Debug("Metrics collected: queue=%d/%d/%d, cache=%d loading %d ready (cap %d), store=%d",
		stats.QueueHigh, stats.QueueMedium, stats.QueueLow,
		stats.CacheLoading, stats.CacheReady, stats.CacheCapacity, stats.StoreEntries)
}

func (c *Collector) collectRuntime() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	GoMemAllocBytes.Set(float64(ms.Alloc))
	GoGCRuns.Set(float64(ms.NumGC))

	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < 1<<62 {
		GoMemLimit.Set(float64(limit))
	}
}
