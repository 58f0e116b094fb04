package workers

import (
	"os"
	"runtime"
	"strconv"

	"photo-catalog/internal/logging"
)

// Environment variables consulted by the engine's pools.
const (
	// EnvThumbnailWorkers overrides the thumbnail worker pool size.
	EnvThumbnailWorkers = "THUMBNAIL_WORKERS"
	// EnvLoaderConcurrency overrides the number of concurrent cache pre-loads.
	EnvLoaderConcurrency = "LOADER_CONCURRENCY"
)

// Count returns the number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
//   - 1.5 for mixed tasks
//
// The limit parameter caps the worker count to prevent resource exhaustion.
// Use 0 for no limit.
func Count(multiplier float64, limit int) int {
	// GOMAXPROCS is automatically set to container CPU limit in Go 1.19+
	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// FromEnv returns a fixed pool size: the positive integer in envVar if set,
// otherwise fallback. A fallback <= 0 means "size for a mixed workload".
// The result is capped at limit when limit > 0 and is never below 1.
func FromEnv(envVar string, fallback, limit int) int {
	size := fallback
	if override := os.Getenv(envVar); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			size = count
		} else {
			logging.Warn("Invalid %s value %q, using %d", envVar, override, fallback)
		}
	}

	if size <= 0 {
		size = ForMixed(limit)
	}
	if limit > 0 && size > limit {
		size = limit
	}
	if size < 1 {
		size = 1
	}
	return size
}
