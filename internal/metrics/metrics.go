package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Thumbnail queue metrics
var (
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_catalog_queue_depth",
			Help: "Number of pending thumbnail jobs by priority",
		},
		[]string{"priority"}, // "high", "medium", "low"
	)

	QueueEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_queue_events_total",
			Help: "Total number of thumbnail queue events",
		},
		[]string{"event"}, // "enqueued", "replaced", "dequeued", "cancelled", "cleared"
	)
)

// Thumbnail worker metrics
var (
	ThumbnailRendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_thumbnail_renders_total",
			Help: "Total number of thumbnail renders by pixel source and status",
		},
		[]string{"source", "status"},
	)

	ThumbnailRenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_thumbnail_render_duration_seconds",
			Help:    "Thumbnail render duration in seconds by pixel source",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	WorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_workers_busy",
			Help: "Number of thumbnail workers currently rendering a job",
		},
	)

	WorkersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_workers",
			Help: "Size of the thumbnail worker pool",
		},
	)

	WorkerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_worker_panics_total",
			Help: "Total number of recovered panics in thumbnail workers",
		},
	)
)

// Picture cache metrics
var (
	PictureCacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_catalog_picture_cache_entries",
			Help: "Number of picture cache entries by state",
		},
		[]string{"state"}, // "loading", "ready"
	)

	PictureCacheCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_picture_cache_capacity",
			Help: "Configured maximum number of picture cache entries",
		},
	)

	PictureCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_picture_cache_hits_total",
			Help: "Total number of picture cache lookups that found an entry",
		},
	)

	PictureCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_picture_cache_misses_total",
			Help: "Total number of picture cache lookups that found nothing",
		},
	)

	PictureCacheRemovals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_picture_cache_removals_total",
			Help: "Total number of picture cache entries removed by reason",
		},
		[]string{"reason"}, // "evicted", "error", "removed", "cleared"
	)

	PictureCacheRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_picture_cache_rejections_total",
			Help: "Total number of cache additions refused by reason",
		},
		[]string{"reason"}, // "disabled", "duplicate", "full"
	)
)

// Cache loader metrics
var (
	LoaderLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_loader_loads_total",
			Help: "Total number of asynchronous picture loads by outcome",
		},
		[]string{"status"}, // "started", "ready", "error"
	)

	LoaderLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_loader_load_duration_seconds",
			Help:    "Duration of asynchronous picture loads in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	LoaderInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_loader_in_flight",
			Help: "Number of asynchronous picture loads in progress",
		},
	)
)

// Image source metrics
var (
	SourceDecodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_source_decodes_total",
			Help: "Total number of full-resolution decodes by image format",
		},
		[]string{"format"},
	)

	SourceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_source_errors_total",
			Help: "Total number of image source failures by kind",
		},
		[]string{"kind"}, // "locator", "decode"
	)

	SourceFetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_source_fetch_retries_total",
			Help: "Total number of retried remote picture fetches",
		},
		[]string{"scheme"},
	)

	SourceConstrainedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_source_constrained_total",
			Help: "Total number of pictures downscaled at decode because they exceeded size limits",
		},
	)
)

// Thumbnail store metrics
var (
	StoreLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_store_lookups_total",
			Help: "Total number of durable thumbnail lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	StoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_store_writes_total",
			Help: "Total number of durable thumbnail writes by status",
		},
		[]string{"status"},
	)

	StoreEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_store_entries",
			Help: "Number of thumbnails held in the durable store",
		},
	)

	StoreSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_store_size_bytes",
			Help: "Total size of thumbnails held in the durable store",
		},
	)
)

// Pre-warm scan metrics
var (
	PrewarmRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_prewarm_runs_total",
			Help: "Total number of pre-warm scans",
		},
	)

	PrewarmIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_prewarm_is_running",
			Help: "Whether a pre-warm scan is in progress (1) or not (0)",
		},
	)

	PrewarmLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_prewarm_last_run_timestamp",
			Help: "Timestamp of the last completed pre-warm scan",
		},
	)

	PrewarmLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_prewarm_last_run_duration_seconds",
			Help: "Duration of the last pre-warm scan in seconds",
		},
	)

	PrewarmPicturesQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_prewarm_pictures_queued_total",
			Help: "Total number of pictures queued by pre-warm scans",
		},
	)

	PrewarmErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_prewarm_errors_total",
			Help: "Total number of pre-warm scan errors",
		},
	)

	PrewarmChangesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_prewarm_changes_detected_total",
			Help: "Total number of picture directory changes that triggered a rescan",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_filesystem_retry_attempts_total",
			Help: "Total number of filesystem operation retries after a stale NFS handle",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_filesystem_stale_errors_total",
			Help: "Total number of stale NFS file handle errors seen",
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_go_memlimit_bytes",
			Help: "Configured GOMEMLIMIT in bytes (0 if not set)",
		},
	)

	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_go_memory_alloc_bytes",
			Help: "Current Go heap allocation in bytes",
		},
	)

	GoGCRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_go_gc_runs",
			Help: "Number of completed GC cycles",
		},
	)

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_memory_usage_ratio",
			Help: "Current memory usage as ratio of limit (0.0-1.0)",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_memory_paused",
			Help: "Whether thumbnail rendering is paused due to memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_memory_gc_pauses_total",
			Help: "Total number of times rendering was paused for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_catalog_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
