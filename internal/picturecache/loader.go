package picturecache

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"photo-catalog/internal/imagesource"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// ErrLoaderStopped is returned by Request after Stop.
var ErrLoaderStopped = errors.New("picture loader stopped")

var log = logging.For("picturecache")

// Loader fills a Cache, starting at most one load per key. Loads run
// asynchronously, at most concurrency at a time.
type Loader struct {
	cache   *Cache
	decoder imagesource.Decoder
	sem     *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewLoader creates a loader decoding through decoder. concurrency below
// one is treated as one.
func NewLoader(cache *Cache, decoder imagesource.Decoder, concurrency int) *Loader {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		cache:   cache,
		decoder: decoder,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Cache returns the cache this loader fills.
func (l *Loader) Cache() *Cache { return l.cache }

// Load starts loading key unless it is already cached, caching is
// disabled, or the cache is full of in-flight loads. It never blocks.
func (l *Loader) Load(key string, rotation float64, priority imagesource.Priority) {
	if !l.cache.Enabled() || l.cache.IsInCache(key) {
		return
	}
	if _, err := l.Request(key, rotation, priority); err != nil && !errors.Is(err, ErrAlreadyCached) {
		log.Debug("load of %s skipped: %v", key, err)
	}
}

// Prefetch warms the cache for pictures likely to be viewed next.
func (l *Loader) Prefetch(keys ...string) {
	for _, key := range keys {
		l.Load(key, 0, imagesource.PriorityLow)
	}
}

// Request registers a Loading entry for key and starts its load, returning
// the entry to wait on. It fails with the Cache.Add errors when no entry
// could be created, and with ErrLoaderStopped after Stop.
func (l *Loader) Request(key string, rotation float64, priority imagesource.Priority) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return nil, ErrLoaderStopped
	}

	entry, err := l.cache.Add(key, rotation)
	if err != nil {
		return nil, err
	}

	src := imagesource.New(key, l.decoder, imagesource.WithLimiter(l.sem))
	el := &entryListener{loader: l, entry: entry, started: time.Now()}
	el.sub = src.Subscribe(el)

	l.wg.Add(1)
	metrics.LoaderInFlight.Inc()
	metrics.LoaderLoadsTotal.WithLabelValues("started").Inc()
	log.Debug("loading %s (priority %s, rotation %.0f)", key, priority, rotation)

	src.Load(l.ctx, priority, rotation)
	return entry, nil
}

// Stop cancels queued loads and waits for running ones to finish. Later
// requests fail with ErrLoaderStopped.
func (l *Loader) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
}

// entryListener bridges one Source to one cache entry.
type entryListener struct {
	loader  *Loader
	entry   *Entry
	sub     *imagesource.Subscription
	started time.Time
}

func (el *entryListener) OnStatus(s imagesource.Status) {
	switch s.Code {
	case imagesource.StatusReady:
		if !el.loader.cache.markReadyEntry(el.entry, s.Source.Image()) {
			log.Debug("dropping late result for %s", el.entry.key)
		}
		el.finish("ready")
	case imagesource.StatusError:
		err := s.Source.Err()
		el.loader.cache.markErrorEntry(el.entry, err)
		if errors.Is(err, context.Canceled) {
			log.Debug("load of %s cancelled", el.entry.key)
		} else {
			log.Warn("failed to load %s: %s", el.entry.key, s.Message)
		}
		el.finish("error")
	}
}

func (el *entryListener) OnProgress(imagesource.ProgressCode, int) {}

func (el *entryListener) finish(status string) {
	el.sub.Cancel()
	metrics.LoaderInFlight.Dec()
	metrics.LoaderLoadsTotal.WithLabelValues(status).Inc()
	metrics.LoaderLoadDuration.Observe(time.Since(el.started).Seconds())
	el.loader.wg.Done()
}
