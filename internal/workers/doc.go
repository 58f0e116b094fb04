/*
Package workers sizes the engine's fixed goroutine pools in containerized
environments.

runtime.NumCPU reports the host's CPUs, while GOMAXPROCS follows cgroup CPU
limits (Go 1.19+). Sizing from GOMAXPROCS keeps a pod limited to 2 CPUs
from starting 64 thumbnail workers.

	// 1 worker per CPU, at most 8
	n := workers.ForCPU(8)

	// Thumbnail pool: THUMBNAIL_WORKERS if set, else 2
	n := workers.FromEnv(workers.EnvThumbnailWorkers, 2, 16)

Invalid overrides (non-numeric, zero, negative) are logged and ignored.
*/
package workers
