package picturecache

import (
	"errors"
	"image"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"

	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

var (
	// ErrCachingDisabled means the cache was built with capacity <= 0.
	// It is a deliberate no-op, not a failure.
	ErrCachingDisabled = errors.New("picture caching disabled")

	// ErrAlreadyCached is returned by Add when the key has an entry.
	ErrAlreadyCached = errors.New("picture already cached")

	// ErrCacheFull is returned by Add when every entry is Loading and the
	// cache is at capacity.
	ErrCacheFull = errors.New("picture cache full of in-flight loads")

	// ErrEvicted is reported to waiters of a Loading entry removed before
	// its load completed.
	ErrEvicted = errors.New("picture evicted before load completed")
)

// Stats is a point-in-time view of the cache.
type Stats struct {
	Capacity int
	Loading  int
	Ready    int
}

// Cache is a bounded map from picture locator to Entry. Entries being
// loaded are never evicted; among the rest the least recently looked-up
// goes first.
type Cache struct {
	mu       sync.Mutex
	capacity int
	lru      *simplelru.LRU
}

// New creates a cache holding at most capacity entries. A capacity of
// zero or less disables caching.
func New(capacity int) *Cache {
	c := &Cache{capacity: capacity}
	if capacity > 0 {
		// Size is never exceeded because Add makes room first, so the LRU
		// never evicts on its own.
		lru, err := simplelru.NewLRU(capacity, nil)
		if err != nil {
			logging.Error("picture cache: %v, caching disabled", err)
			c.capacity = 0
		} else {
			c.lru = lru
		}
	}
	metrics.PictureCacheCapacity.Set(float64(c.capacity))
	return c
}

// Capacity returns the configured maximum number of entries.
func (c *Cache) Capacity() int { return c.capacity }

// Enabled reports whether the cache stores anything.
func (c *Cache) Enabled() bool { return c.lru != nil }

// Len returns the number of Loading and Ready entries.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// IsInCache reports whether key has an entry in any state. It does not
// affect eviction order.
func (c *Cache) IsInCache(key string) bool {
	if c.lru == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(key)
}

// Lookup returns the entry for key and marks it recently used.
func (c *Cache) Lookup(key string) (*Entry, bool) {
	if c.lru == nil {
		return nil, false
	}

	c.mu.Lock()
	v, ok := c.lru.Get(key)
	c.mu.Unlock()

	if !ok {
		metrics.PictureCacheMisses.Inc()
		return nil, false
	}
	metrics.PictureCacheHits.Inc()
	return v.(*Entry), true
}

// Add registers a Loading entry for key. At capacity the oldest idle entry
// is evicted first; if every entry is Loading, Add fails with
// ErrCacheFull rather than exceed capacity.
func (c *Cache) Add(key string, rotation float64) (*Entry, error) {
	if c.lru == nil {
		metrics.PictureCacheRejections.WithLabelValues("disabled").Inc()
		return nil, ErrCachingDisabled
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru.Contains(key) {
		metrics.PictureCacheRejections.WithLabelValues("duplicate").Inc()
		return nil, ErrAlreadyCached
	}

	if c.lru.Len() >= c.capacity {
		if _, ok := c.evictOldestIdleLocked(); !ok {
			metrics.PictureCacheRejections.WithLabelValues("full").Inc()
			logging.Debug("picture cache full of loading entries, rejecting %s", key)
			return nil, ErrCacheFull
		}
	}

	e := newEntry(key, rotation)
	c.lru.Add(key, e)
	return e, nil
}

// MarkReady attaches pixels to the Loading entry for key.
func (c *Cache) MarkReady(key string, img image.Image) bool {
	e, ok := c.peek(key)
	if !ok {
		return false
	}
	return c.markReadyEntry(e, img)
}

// MarkError fails the Loading entry for key and removes it. Failed loads
// never count against capacity.
func (c *Cache) MarkError(key string, err error) bool {
	e, ok := c.peek(key)
	if !ok {
		return false
	}
	return c.markErrorEntry(e, err)
}

func (c *Cache) peek(key string) (*Entry, bool) {
	if c.lru == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Peek(key)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// markReadyEntry resolves e if it is still the cached entry for its key.
// A completion for an entry that was evicted or replaced is dropped.
func (c *Cache) markReadyEntry(e *Entry, img image.Image) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrentLocked(e) {
		return false
	}
	return e.resolve(img, nil)
}

func (c *Cache) markErrorEntry(e *Entry, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrentLocked(e) {
		return false
	}
	c.lru.Remove(e.key)
	metrics.PictureCacheRemovals.WithLabelValues("error").Inc()
	return e.resolve(nil, err)
}

func (c *Cache) isCurrentLocked(e *Entry) bool {
	v, ok := c.lru.Peek(e.key)
	return ok && v.(*Entry) == e
}

// Remove drops the entry for key in any state. Waiters on a Loading entry
// receive ErrEvicted.
func (c *Cache) Remove(key string) bool {
	if c.lru == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Peek(key)
	if !ok {
		return false
	}
	c.lru.Remove(key)
	v.(*Entry).resolve(nil, ErrEvicted)
	metrics.PictureCacheRemovals.WithLabelValues("removed").Inc()
	return true
}

// EvictOldestIdle removes the least recently looked-up entry that is not
// Loading and returns its key.
func (c *Cache) EvictOldestIdle() (string, bool) {
	if c.lru == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictOldestIdleLocked()
}

func (c *Cache) evictOldestIdleLocked() (string, bool) {
	// Keys are ordered oldest first.
	for _, k := range c.lru.Keys() {
		v, _ := c.lru.Peek(k)
		if v.(*Entry).State() == StateLoading {
			continue
		}
		key := k.(string)
		c.lru.Remove(k)
		metrics.PictureCacheRemovals.WithLabelValues("evicted").Inc()
		logging.Debug("picture cache evicted %s", key)
		return key, true
	}
	return "", false
}

// Clear removes every entry and returns how many were dropped. Waiters on
// Loading entries receive ErrEvicted.
func (c *Cache) Clear() int {
	if c.lru == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.lru.Len()
	for _, k := range c.lru.Keys() {
		if v, ok := c.lru.Peek(k); ok {
			v.(*Entry).resolve(nil, ErrEvicted)
		}
	}
	c.lru.Purge()
	metrics.PictureCacheRemovals.WithLabelValues("cleared").Add(float64(n))
	return n
}

// Stats returns entry counts by state.
func (c *Cache) Stats() Stats {
	s := Stats{Capacity: c.capacity}
	if c.lru == nil {
		return s
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.lru.Keys() {
		v, _ := c.lru.Peek(k)
		if v.(*Entry).State() == StateLoading {
			s.Loading++
		} else {
			s.Ready++
		}
	}
	return s
}
