// Package memory keeps full-resolution decoding inside the container's
// memory budget.
//
// A decoded 24MP photo occupies roughly 96MB as RGBA, and the picture cache
// holds several of them. [ConfigureFromEnv] derives GOMEMLIMIT from the
// container limit (MEMORY_LIMIT, MEMORY_RATIO) and [Monitor] samples heap
// usage, pausing thumbnail workers above CriticalWaterMark until usage drops
// under HighWaterMark:
//
//	memory.ConfigureFromEnv()
//
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	mon.Start()
//	defer mon.Stop()
//
//	if !mon.WaitIfPaused(ctx) {
//	    return // shutting down
//	}
package memory
