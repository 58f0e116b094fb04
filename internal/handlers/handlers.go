package handlers

import (
	"time"

	"photo-catalog/internal/indexer"
	"photo-catalog/internal/memory"
	"photo-catalog/internal/picturecache"
	"photo-catalog/internal/thumbnail"
	"photo-catalog/internal/thumbstore"
)

// DefaultRequestTimeout bounds how long a thumbnail request waits for its
// job to render.
const DefaultRequestTimeout = 30 * time.Second

// Prewarmer is the part of the pre-warm indexer the handlers use.
type Prewarmer interface {
	IsReady() bool
	GetHealthStatus() indexer.HealthStatus
	TriggerIndex()
}

// Config wires Handlers. Queue, Pool and Cache are required; Loader, Store,
// Memory and Indexer may be nil when the feature is disabled.
type Config struct {
	PictureDir     string
	RequestTimeout time.Duration

	Queue   *thumbnail.Queue
	Pool    *thumbnail.Pool
	Cache   *picturecache.Cache
	Loader  *picturecache.Loader
	Store   *thumbstore.Store
	Memory  *memory.Monitor
	Indexer Prewarmer
}

// Handlers serves the HTTP API.
type Handlers struct {
	pictureDir     string
	requestTimeout time.Duration
	startTime      time.Time

	queue   *thumbnail.Queue
	pool    *thumbnail.Pool
	cache   *picturecache.Cache
	loader  *picturecache.Loader
	store   *thumbstore.Store
	memory  *memory.Monitor
	indexer Prewarmer
}

// New creates Handlers from cfg.
func New(cfg Config) *Handlers {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Handlers{
		pictureDir:     cfg.PictureDir,
		requestTimeout: cfg.RequestTimeout,
		startTime:      time.Now(),
		queue:          cfg.Queue,
		pool:           cfg.Pool,
		cache:          cfg.Cache,
		loader:         cfg.Loader,
		store:          cfg.Store,
		memory:         cfg.Memory,
		indexer:        cfg.Indexer,
	}
}
