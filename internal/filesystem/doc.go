/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors.

Picture collections frequently live on network shares. When an NFS server
re-exports or a file is replaced underneath an open handle, os.Open and
os.Stat fail with ESTALE even though the next attempt would succeed. The
helpers here retry only that error, with exponential backoff from
github.com/cenkalti/backoff/v4, and fail immediately on everything else.

# Usage

	info, err := filesystem.StatWithRetry(ctx, "/nfs/photos/img_0001.jpg", filesystem.DefaultRetryConfig())

	f, err := filesystem.OpenWithRetry(ctx, path, filesystem.DefaultRetryConfig())
	if err != nil {
	    return err
	}
	defer f.Close()

# Retry Behavior

Defaults: 3 retries, 50ms initial backoff doubling up to 500ms, no jitter.
A cancelled context stops retrying.

Metrics are recorded through an [Observer] registered with [SetObserver];
the metrics package provides the Prometheus implementation.
*/
package filesystem
