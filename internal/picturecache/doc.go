// Package picturecache keeps a bounded set of decoded full-resolution
// pictures so that thumbnails, prefetches and viewers share one decode per
// locator.
//
// [Cache] maps a locator to an [Entry] that is Loading until its decode
// completes and Ready afterwards. A failed load removes its entry at once.
// When the cache is at capacity the least recently looked-up Ready entry
// is evicted; Loading entries are never evicted, so a cache full of them
// rejects new work with [ErrCacheFull]. A capacity of zero or less turns
// caching off and every add reports [ErrCachingDisabled].
//
// [Loader] starts at most one load per locator. It subscribes to an
// [imagesource.Source], promotes the entry on Ready, drops it on Error and
// then cancels its subscription:
//
//	cache := picturecache.New(cfg.MaxCacheEntries)
//	loader := picturecache.NewLoader(cache, decoder, cfg.LoaderConcurrency)
//	defer loader.Stop()
//
//	entry, err := loader.Request(path, 0, imagesource.PriorityHigh)
//	if err == nil {
//	    img, err = entry.Wait(ctx)
//	}
package picturecache
