// Package thumbnail renders thumbnails in the background.
//
// Callers describe each display surface as a [Slot] and submit a [Job] to a
// [Queue]. The queue keeps one pending job per slot and serves High before
// Medium before Low, oldest first within a priority. Enqueue never blocks
// and shows the queued placeholder immediately.
//
// A [Pool] of workers takes jobs from the queue. Each worker:
//
//   - waits while the memory monitor reports pressure
//   - uses a stored thumbnail unless the job is forced
//   - otherwise takes full-resolution pixels from the picture cache, loading
//     them through the cache loader when absent, or decodes on its own
//     goroutine when caching is off or saturated
//   - scales a private copy with imaging.Fit, stores it and writes it to
//     the slot
//
// Failures write the error icon to the slot. Jobs are never retried.
//
//	queue := thumbnail.NewQueue(thumbnail.QueuedIcon(200))
//	pool := thumbnail.NewPool(thumbnail.Config{
//	    Workers: 2,
//	    Queue:   queue,
//	    Loader:  loader,
//	    Decoder: decoder,
//	    Store:   store,
//	})
//	pool.Start(ctx)
//	defer pool.Stop()
//
//	queue.Enqueue(thumbnail.Job{Target: slot, Priority: thumbnail.High})
package thumbnail
