package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"photo-catalog/internal/imagesource"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/mediatypes"
	"photo-catalog/internal/memory"
	"photo-catalog/internal/metrics"
	"photo-catalog/internal/picturecache"
	"photo-catalog/internal/thumbstore"
)

// DefaultSize is the bounding box of a thumbnail in pixels.
const DefaultSize = 200

// Store persists rendered thumbnails. *thumbstore.Store satisfies it.
type Store interface {
	Lookup(ctx context.Context, key thumbstore.Key) (image.Image, bool)
	Save(ctx context.Context, key thumbstore.Key, img image.Image) error
}

// Config wires a Pool. Queue and Decoder are required; a nil Loader, Store
// or Memory disables that stage.
type Config struct {
	Workers int
	Size    int

	Queue   *Queue
	Loader  *picturecache.Loader
	Decoder imagesource.Decoder
	Store   Store
	Memory  *memory.Monitor

	// ErrorIcon is written to slots whose picture cannot be rendered.
	ErrorIcon image.Image

	// UseVips lets uncached local pictures shrink during decode.
	UseVips bool
}

// PoolStats is a snapshot of worker activity.
type PoolStats struct {
	Workers   int
	Busy      int
	Processed int64
	Failed    int64
}

// Pool runs a fixed number of workers rendering queued jobs.
type Pool struct {
	cfg Config

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	busy      atomic.Int32
	processed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a stopped pool. Workers below one become one and a size
// below one becomes DefaultSize.
func NewPool(cfg Config) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Size < 1 {
		cfg.Size = DefaultSize
	}
	if cfg.ErrorIcon == nil {
		cfg.ErrorIcon = ErrorIcon(cfg.Size)
	}
	return &Pool{cfg: cfg}
}

// Start launches the workers. They run until ctx ends or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)

	metrics.WorkersTotal.Set(float64(p.cfg.Workers))
	logging.Info("Starting %d thumbnail workers (size %dpx)", p.cfg.Workers, p.cfg.Size)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals the workers and waits for them to exit. Pending jobs stay
// in the queue; a job being rendered is abandoned at its next blocking
// point.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

// Stats returns worker counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.cfg.Workers,
		Busy:      int(p.busy.Load()),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	logging.Debug("Thumbnail worker %d started", id)
	defer logging.Debug("Thumbnail worker %d stopped", id)

	for {
		if !p.cfg.Memory.WaitIfPaused(ctx) {
			return
		}
		job, ok := p.cfg.Queue.Wait(ctx)
		if !ok {
			return
		}
		p.process(ctx, job)
	}
}

func (p *Pool) process(ctx context.Context, job Job) {
	p.busy.Add(1)
	metrics.WorkersBusy.Inc()
	start := time.Now()

	defer func() {
		p.busy.Add(-1)
		metrics.WorkersBusy.Dec()
		if r := recover(); r != nil {
			metrics.WorkerPanics.Inc()
			logging.Error("thumbnail worker panic rendering %s: %v", job.Target.Picture().Locator, r)
			p.failed.Add(1)
			job.Target.SetError(p.cfg.ErrorIcon)
		}
	}()

	pic := job.Target.Picture()
	thumb, source, err := p.render(ctx, job, pic)
	p.processed.Add(1)
	metrics.ThumbnailRenderDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			logging.Debug("Thumbnail for %s abandoned on shutdown", pic.Locator)
			return
		}
		p.failed.Add(1)
		metrics.ThumbnailRendersTotal.WithLabelValues(source, "error").Inc()
		logging.Warn("Thumbnail for %s failed (%s): %v", pic.Locator, imagesource.ErrorKind(err), err)
		job.Target.SetError(p.cfg.ErrorIcon)
		return
	}

	metrics.ThumbnailRendersTotal.WithLabelValues(source, "success").Inc()
	job.Target.SetBitmap(thumb)
}

// render returns the thumbnail for pic and where its pixels came from.
func (p *Pool) render(ctx context.Context, job Job, pic Picture) (image.Image, string, error) {
	key := thumbstore.Key{Locator: pic.Locator, Rotation: pic.Rotation, Size: p.cfg.Size}

	if !job.Force && p.cfg.Store != nil {
		if img, ok := p.cfg.Store.Lookup(ctx, key); ok {
			return img, metrics.PixelSourceStore, nil
		}
	}

	full, source, err := p.resolve(ctx, pic, job.Priority)
	if err != nil {
		return nil, source, err
	}

	// Fit always returns a new image, so cached pixels are never touched.
	thumb := imaging.Fit(full, p.cfg.Size, p.cfg.Size, imaging.Lanczos)

	if p.cfg.Store != nil {
		if err := p.cfg.Store.Save(ctx, key, thumb); err != nil {
			logging.Warn("Failed to store thumbnail for %s: %v", pic.Locator, err)
		}
	}
	return thumb, source, nil
}

// resolve obtains full-resolution pixels for pic: from a cached entry,
// through the loader, or by decoding on this worker when caching is off
// or the cache is saturated.
func (p *Pool) resolve(ctx context.Context, pic Picture, priority Priority) (image.Image, string, error) {
	if p.cfg.Loader != nil && p.cfg.Loader.Cache().Enabled() {
		img, source, err := p.resolveCached(ctx, pic, priority)
		if err == nil || !errors.Is(err, errUncached) {
			return img, source, err
		}
	}
	return p.decodeDirect(ctx, pic)
}

var errUncached = errors.New("picture not cacheable")

func (p *Pool) resolveCached(ctx context.Context, pic Picture, priority Priority) (image.Image, string, error) {
	cache := p.cfg.Loader.Cache()

	// Two rounds cover losing a race with another requester for the same key.
	for attempt := 0; attempt < 2; attempt++ {
		source := metrics.PixelSourceCache
		entry, ok := cache.Lookup(pic.Locator)
		if !ok {
			var err error
			entry, err = p.cfg.Loader.Request(pic.Locator, pic.Rotation, priority.sourcePriority())
			switch {
			case errors.Is(err, picturecache.ErrAlreadyCached):
				continue
			case err != nil:
				logging.Debug("Picture cache unavailable for %s: %v", pic.Locator, err)
				return nil, "", errUncached
			}
			source = metrics.PixelSourceLoader
		}

		img, err := entry.Wait(ctx)
		switch {
		case errors.Is(err, picturecache.ErrEvicted):
			continue
		case err != nil:
			return nil, source, err
		}

		if delta := pic.Rotation - entry.Rotation(); delta != 0 {
			img = imagesource.Rotate(img, delta)
		}
		return img, source, nil
	}
	return nil, "", errUncached
}

func (p *Pool) decodeDirect(ctx context.Context, pic Picture) (image.Image, string, error) {
	if p.cfg.UseVips && !mediatypes.IsRemote(pic.Locator) && imagesource.VipsAvailable() {
		img, err := imagesource.ThumbnailWithVips(pic.Locator, p.cfg.Size, pic.Rotation)
		if err == nil {
			return img, metrics.PixelSourceVips, nil
		}
		logging.Debug("vips failed for %s, falling back: %v", pic.Locator, err)
	}

	if p.cfg.Decoder == nil {
		return nil, metrics.PixelSourceDirect, fmt.Errorf("no decoder configured for %s", pic.Locator)
	}
	img, err := imagesource.New(pic.Locator, p.cfg.Decoder).LoadSync(ctx, pic.Rotation)
	return img, metrics.PixelSourceDirect, err
}
