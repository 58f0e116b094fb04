package imagesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"photo-catalog/internal/filesystem"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/mediatypes"
	"photo-catalog/internal/metrics"
)

// Opener turns a locator into a byte stream.
type Opener interface {
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
}

// OpenerConfig tunes retries for local and remote pictures.
type OpenerConfig struct {
	// FileRetry covers stale NFS handles on local paths.
	FileRetry filesystem.RetryConfig

	// FetchRetries is the number of retries for transient HTTP failures.
	FetchRetries        int
	FetchInitialBackoff time.Duration
	FetchMaxBackoff     time.Duration

	// FetchTimeout bounds a single HTTP attempt.
	FetchTimeout time.Duration
}

// DefaultOpenerConfig returns the production retry settings.
func DefaultOpenerConfig() OpenerConfig {
	return OpenerConfig{
		FileRetry:           filesystem.DefaultRetryConfig(),
		FetchRetries:        3,
		FetchInitialBackoff: 200 * time.Millisecond,
		FetchMaxBackoff:     2 * time.Second,
		FetchTimeout:        30 * time.Second,
	}
}

// DefaultOpener opens local paths, file:// URLs and http(s) URLs.
type DefaultOpener struct {
	client *http.Client
	config OpenerConfig
}

// NewOpener creates an opener. A nil client uses a client with
// config.FetchTimeout.
func NewOpener(client *http.Client, config OpenerConfig) *DefaultOpener {
	if client == nil {
		client = &http.Client{Timeout: config.FetchTimeout}
	}
	return &DefaultOpener{client: client, config: config}
}

// statusError is a non-2xx HTTP response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.code)
}

// Open implements Opener. Failures are returned as *LocatorError.
func (o *DefaultOpener) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if strings.TrimSpace(locator) == "" {
		return nil, &LocatorError{Locator: locator, Err: ErrEmptyLocator}
	}

	if mediatypes.IsRemote(locator) {
		rc, err := o.fetch(ctx, locator)
		if err != nil {
			return nil, &LocatorError{Locator: locator, Err: err}
		}
		return rc, nil
	}

	path := locator
	if strings.HasPrefix(locator, "file://") {
		u, err := url.Parse(locator)
		if err != nil {
			return nil, &LocatorError{Locator: locator, Err: err}
		}
		path = u.Path
	} else if strings.Contains(locator, "://") {
		return nil, &LocatorError{Locator: locator, Err: ErrUnsupportedScheme}
	}

	f, err := filesystem.OpenWithRetry(ctx, path, o.config.FileRetry)
	if err != nil {
		return nil, &LocatorError{Locator: locator, Err: err}
	}
	return f, nil
}

func (o *DefaultOpener) fetchBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = o.config.FetchInitialBackoff
	exp.MaxInterval = o.config.FetchMaxBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := o.config.FetchRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

func (o *DefaultOpener) fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	scheme := "http"
	if strings.HasPrefix(strings.ToLower(locator), "https://") {
		scheme = "https"
	}

	resp, err := backoff.RetryNotifyWithData(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := o.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		drainAndClose(resp.Body)
		serr := &statusError{code: resp.StatusCode}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}, o.fetchBackOff(ctx), func(err error, wait time.Duration) {
		metrics.SourceFetchRetries.WithLabelValues(scheme).Inc()
		logging.Debug("Fetch of %s failed: %v, retrying in %v", locator, err, wait)
	})
	if err != nil {
		var serr *statusError
		if errors.As(err, &serr) {
			return nil, serr
		}
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	return resp.Body, nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	if err := body.Close(); err != nil {
		logging.Debug("failed to close response body: %v", err)
	}
}
