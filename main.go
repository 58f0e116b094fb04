package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"photo-catalog/internal/filesystem"
	"photo-catalog/internal/handlers"
	"photo-catalog/internal/imagesource"
	"photo-catalog/internal/indexer"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/memory"
	"photo-catalog/internal/metrics"
	"photo-catalog/internal/middleware"
	"photo-catalog/internal/picturecache"
	"photo-catalog/internal/startup"
	"photo-catalog/internal/thumbnail"
	"photo-catalog/internal/thumbstore"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const metricsCollectInterval = 15 * time.Second

// engine is everything that must be stopped on shutdown.
type engine struct {
	pool      *thumbnail.Pool
	loader    *picturecache.Loader
	store     *thumbstore.Store
	monitor   *memory.Monitor
	indexer   *indexer.Indexer
	collector *metrics.Collector
}

func main() {
	startTime := time.Now()

	memConfig := memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memConfig)

	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	}
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	if config.VipsEnabled {
		vipsErr := imagesource.InitVips()
		startup.LogVipsInit(vipsErr)
		if vipsErr == nil {
			defer imagesource.ShutdownVips()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, h, err := buildEngine(ctx, config)
	if err != nil {
		startup.LogFatal("Failed to initialize thumbnail engine: %v", err)
	}

	// Setup router
	router := setupRouter(h, config.MetricsEnabled)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.Logger(loggingConfig)(router),
	)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      handlers.DefaultRequestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := run(ctx, srv, eng, config.ShutdownTimeout); err != nil {
		startup.LogFatal("Server error: %v", err)
	}
}

// buildEngine assembles the queue, cache, loader, worker pool and their
// optional collaborators, starts the background parts and returns the
// HTTP handlers that front them.
func buildEngine(ctx context.Context, config *startup.Config) (*engine, *handlers.Handlers, error) {
	initStart := time.Now()
	eng := &engine{}

	storeEntries := 0
	if config.ThumbnailsEnabled {
		store, err := thumbstore.Open(ctx, config.ThumbnailDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open thumbnail store: %w", err)
		}
		eng.store = store
		if stats, err := store.Stats(ctx); err == nil {
			storeEntries = stats.Entries
		}
	}

	decoder := imagesource.NewDecoder(
		imagesource.NewOpener(nil, imagesource.DefaultOpenerConfig()),
		imagesource.DefaultConstraints(),
	)

	cache := picturecache.New(config.MaxCacheEntries)
	if cache.Enabled() {
		eng.loader = picturecache.NewLoader(cache, decoder, config.LoaderConcurrency)
	}

	eng.monitor = memory.NewMonitor(memory.DefaultConfig())
	eng.monitor.Start()

	queue := thumbnail.NewQueue(thumbnail.QueuedIcon(config.ThumbnailSize))
	poolConfig := thumbnail.Config{
		Workers: config.ThumbnailWorkers,
		Size:    config.ThumbnailSize,
		Queue:   queue,
		Loader:  eng.loader,
		Decoder: decoder,
		Memory:  eng.monitor,
		UseVips: imagesource.VipsAvailable(),
	}
	// A nil *thumbstore.Store would make a non-nil interface.
	if eng.store != nil {
		poolConfig.Store = eng.store
	}
	eng.pool = thumbnail.NewPool(poolConfig)
	// Workers outlive the signal context so in-flight requests can drain.
	eng.pool.Start(context.Background())

	startup.LogEngineInit(config, storeEntries, time.Since(initStart))

	handlerConfig := handlers.Config{
		PictureDir: config.PictureDir,
		Queue:      queue,
		Pool:       eng.pool,
		Cache:      cache,
		Loader:     eng.loader,
		Store:      eng.store,
		Memory:     eng.monitor,
	}
	if config.Prewarm {
		eng.indexer = indexer.New(queue, config.PictureDir, config.PrewarmInterval)
		eng.indexer.SetVipsAvailable(imagesource.VipsAvailable())
		eng.indexer.Start()
		startup.LogPrewarmStarted(config.PictureDir, config.PrewarmInterval)
		handlerConfig.Indexer = eng.indexer
	}
	h := handlers.New(handlerConfig)

	if config.MetricsEnabled {
		eng.collector = metrics.NewCollector(h.StatsProvider(), metricsCollectInterval)
		eng.collector.Start()
	}

	return eng, h, nil
}

// run serves HTTP until ctx is cancelled by a signal or the listener fails,
// then shuts everything down within timeout.
func run(ctx context.Context, srv *http.Server, eng *engine, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			startup.LogShutdownInitiated("signal")
		} else {
			startup.LogShutdownInitiated("server error")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return shutdown(shutdownCtx, srv, eng)
	})

	return g.Wait()
}

func shutdown(ctx context.Context, srv *http.Server, eng *engine) error {
	if eng.indexer != nil {
		startup.LogShutdownStep("Stopping pre-warm indexer")
		eng.indexer.Stop()
		startup.LogShutdownStepComplete("Pre-warm indexer stopped")
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	err := srv.Shutdown(ctx)
	if err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	eng.stop()
	startup.LogShutdownComplete()
	return err
}

// stop halts the background parts of the engine. The pool goes first so no
// worker touches the loader or store after they close.
func (e *engine) stop() {
	startup.LogShutdownStep("Stopping thumbnail workers")
	e.pool.Stop()
	startup.LogShutdownStepComplete("Thumbnail workers stopped")

	if e.loader != nil {
		e.loader.Stop()
		startup.LogShutdownStepComplete("Picture loader stopped")
	}
	if e.collector != nil {
		e.collector.Stop()
	}
	e.monitor.Stop()

	if e.store != nil {
		if err := e.store.Close(); err != nil {
			logging.Warn("Thumbnail store close error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Thumbnail store closed")
		}
	}
}

func setupRouter(h *handlers.Handlers, metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check and version routes
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	if metricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnail/{path:.*}", h.GetThumbnail).Methods(http.MethodGet)
	api.HandleFunc("/thumbnail/{path:.*}", h.InvalidateThumbnail).Methods(http.MethodDelete)
	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/cache/clear", h.ClearCache).Methods(http.MethodPost)
	api.HandleFunc("/prefetch", h.Prefetch).Methods(http.MethodPost)
	api.HandleFunc("/reindex", h.TriggerReindex).Methods(http.MethodPost)

	return r
}
