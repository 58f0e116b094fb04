// Package metrics provides Prometheus instrumentation for the photo catalog
// engine.
//
// All metrics are prefixed with "photo_catalog_" and registered with the
// default registry through promauto.
//
// # Metric Categories
//
// ## Thumbnail Queue
//   - QueueDepth: Gauge of pending jobs by priority (high/medium/low)
//   - QueueEventsTotal: Counter of enqueue/replace/dequeue/cancel/clear events
//
// ## Thumbnail Workers
//   - ThumbnailRendersTotal: Counter by pixel source (store/cache/loader/direct/vips) and status
//   - ThumbnailRenderDuration: Histogram of render time by pixel source
//   - WorkersBusy, WorkersTotal: Gauges of pool utilisation
//   - WorkerPanics: Counter of recovered worker panics
//
// ## Picture Cache and Loader
//   - PictureCacheEntries: Gauge of entries by state (loading/ready)
//   - PictureCacheHits / PictureCacheMisses: Lookup counters
//   - PictureCacheRemovals: Counter by reason (evicted/error/removed/cleared)
//   - PictureCacheRejections: Counter by reason (disabled/duplicate/full)
//   - LoaderLoadsTotal, LoaderLoadDuration, LoaderInFlight
//
// ## Image Sources and Store
//   - SourceDecodesTotal, SourceErrorsTotal, SourceFetchRetries, SourceConstrainedTotal
//   - StoreLookupsTotal, StoreWritesTotal, StoreEntries, StoreSizeBytes
//
// ## Memory
//   - GoMemLimit, GoMemAllocBytes, GoGCRuns
//   - MemoryUsageRatio, MemoryPaused, MemoryGCPauses
//
// # Collector
//
// Gauges that describe current state are refreshed by a [Collector] polling
// a [StatsProvider]:
//
//	collector := metrics.NewCollector(engine, 15*time.Second)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Picture cache hit rate:
//
//	rate(photo_catalog_picture_cache_hits_total[5m]) /
//	(rate(photo_catalog_picture_cache_hits_total[5m]) + rate(photo_catalog_picture_cache_misses_total[5m]))
//
// P95 render time for uncached thumbnails:
//
//	histogram_quantile(0.95, sum(rate(photo_catalog_thumbnail_render_duration_seconds_bucket{source="direct"}[5m])) by (le))
package metrics
