// Package handlers provides the HTTP surface of the photo catalog service.
//
// It includes handlers for:
//   - Thumbnails rendered through the worker pool
//   - Engine stats, cache clearing, prefetch and pre-warm triggers
//   - Health checks, version information and Prometheus metrics
package handlers
