package metrics

// Label values used by the engine. They are exported so callers and the
// pre-population below stay in sync.
const (
	PixelSourceStore  = "store"
	PixelSourceCache  = "cache"
	PixelSourceLoader = "loader"
	PixelSourceDirect = "direct"
	PixelSourceVips   = "vips"
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, p := range []string{"high", "medium", "low"} {
		QueueDepth.WithLabelValues(p)
	}
	for _, e := range []string{"enqueued", "replaced", "dequeued", "cancelled", "cleared"} {
		QueueEventsTotal.WithLabelValues(e)
	}

	for _, src := range []string{PixelSourceStore, PixelSourceCache, PixelSourceLoader, PixelSourceDirect, PixelSourceVips} {
		ThumbnailRendersTotal.WithLabelValues(src, "success")
		ThumbnailRendersTotal.WithLabelValues(src, "error")
		ThumbnailRenderDuration.WithLabelValues(src)
	}

	for _, s := range []string{"loading", "ready"} {
		PictureCacheEntries.WithLabelValues(s)
	}
	for _, r := range []string{"evicted", "error", "removed", "cleared"} {
		PictureCacheRemovals.WithLabelValues(r)
	}
	for _, r := range []string{"disabled", "duplicate", "full"} {
		PictureCacheRejections.WithLabelValues(r)
	}

	for _, s := range []string{"started", "ready", "error"} {
		LoaderLoadsTotal.WithLabelValues(s)
	}

	for _, format := range []string{"jpeg", "png", "gif", "webp", "bmp", "tiff", "unknown"} {
		SourceDecodesTotal.WithLabelValues(format)
	}
	for _, k := range []string{"locator", "decode"} {
		SourceErrorsTotal.WithLabelValues(k)
	}
	for _, s := range []string{"http", "https"} {
		SourceFetchRetries.WithLabelValues(s)
	}

	for _, r := range []string{"hit", "miss", "error"} {
		StoreLookupsTotal.WithLabelValues(r)
	}
	for _, s := range []string{"success", "error"} {
		StoreWritesTotal.WithLabelValues(s)
	}

	for _, op := range []string{"stat", "open"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}
}
