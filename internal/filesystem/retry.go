package filesystem

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"photo-catalog/internal/logging"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// newBackOff builds a deterministic (no jitter) exponential policy bounded
// by MaxRetries and ctx.
func (c RetryConfig) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.InitialBackoff
	exp.MaxInterval = c.MaxBackoff
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// isNFSStaleError checks if an error is an NFS stale file handle error
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}

	// ESTALE is errno 116 on Linux
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}

	return false
}

func withRetry[T any](ctx context.Context, op, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	attempts := 0
	var staleSeen bool

	result, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempts++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !isNFSStaleError(err) {
			return v, backoff.Permanent(err)
		}
		staleSeen = true
		if o := observe(); o != nil {
			o.ObserveStaleError(op)
		}
		return v, err
	}, config.newBackOff(ctx), func(err error, wait time.Duration) {
		if o := observe(); o != nil {
			o.ObserveRetryAttempt(op)
		}
		logging.Debug("NFS %s stale file handle for %s, retrying in %v (attempt %d/%d)",
			op, path, wait, attempts, config.MaxRetries)
	})

	if err == nil {
		if attempts > 1 {
			logging.Info("NFS %s succeeded on retry %d for %s", op, attempts-1, path)
			if o := observe(); o != nil {
				o.ObserveRetrySuccess(op)
			}
		}
		return result, nil
	}

	if staleSeen {
		logging.Warn("NFS %s failed after %d attempts for %s: %v", op, attempts, path, err)
		if o := observe(); o != nil {
			o.ObserveRetryFailure(op)
		}
	}
	return result, err
}

// StatWithRetry performs os.Stat, retrying NFS stale file handle errors
func StatWithRetry(ctx context.Context, path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry(ctx, "stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry performs os.Open, retrying NFS stale file handle errors
func OpenWithRetry(ctx context.Context, path string, config RetryConfig) (*os.File, error) {
	return withRetry(ctx, "open", path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}
