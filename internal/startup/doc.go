// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is loaded from environment variables via [LoadConfig]. An
// optional .env file (path in ENV_FILE, default ".env") is read first;
// variables already present in the environment take precedence.
//
//   - PICTURE_DIR: Directory scanned by the pre-warm pass (default: /pictures)
//   - CACHE_DIR: Directory holding the thumbnail store (default: /cache)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_ENABLED: Serve /metrics (default: true)
//   - MAX_CACHE_ENTRIES: Full-picture cache capacity, <= 0 disables it (default: 10)
//   - THUMBNAIL_WORKERS: Thumbnail worker count (default: 2)
//   - THUMBNAIL_SIZE: Longest thumbnail edge in pixels (default: 200)
//   - LOADER_CONCURRENCY: Concurrent background cache loads (default: 2)
//   - PREWARM: Queue every picture under PICTURE_DIR at low priority (default: false)
//   - PREWARM_INTERVAL: Repeat the pre-warm scan, 0 runs it once (default: 0)
//   - VIPS_ENABLED: Use libvips for local decodes when available (default: false)
//   - SHUTDOWN_TIMEOUT: Graceful HTTP shutdown timeout (default: 30s)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
//   - [LogMemoryConfig]: GOMEMLIMIT configuration
//   - [LogVipsInit]: libvips availability
//   - [LogEngineInit]: worker, cache and store sizing
//   - [LogHTTPRoutes]: Registered HTTP routes (debug level)
//   - [LogServerStarted]: Server endpoints and startup duration
//   - [LogShutdownInitiated], [LogShutdownComplete]: Graceful shutdown
package startup
