package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"photo-catalog/internal/logging"
	"photo-catalog/internal/memory"
	"photo-catalog/internal/workers"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultMaxCacheEntries   = 10
	DefaultThumbnailWorkers  = 2
	DefaultThumbnailSize     = 200
	DefaultLoaderConcurrency = 2

	maxThumbnailSize = 2048
	maxWorkers       = 32
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	PictureDir      string
	CacheDir        string
	Port            string
	MetricsEnabled  bool
	LogHealthChecks bool
	VipsEnabled     bool

	// Engine sizing
	MaxCacheEntries   int
	ThumbnailWorkers  int
	ThumbnailSize     int
	LoaderConcurrency int

	// Pre-warm scan of PictureDir. Zero interval means scan once at startup.
	Prewarm         bool
	PrewarmInterval time.Duration

	ShutdownTimeout time.Duration

	// Derived paths
	ThumbnailDir string

	// Feature flags based on directory availability
	ThumbnailsEnabled bool
}

// CachingEnabled reports whether the full-picture cache holds entries.
func (c *Config) CachingEnabled() bool {
	return c.MaxCacheEntries > 0
}

// LoadConfig loads and validates configuration from environment variables.
// A .env file (ENV_FILE, default ".env") is read first when present; values
// already set in the environment win.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	envFile := getEnv("ENV_FILE", ".env")
	if loaded, err := loadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	} else if loaded {
		logging.Info("  Loaded environment from %s", envFile)
	}

	pictureDir := getEnv("PICTURE_DIR", "/pictures")
	cacheDir := getEnv("CACHE_DIR", "/cache")
	port := getEnv("PORT", "8080")
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)
	vipsEnabled := getEnvBool("VIPS_ENABLED", false)
	maxCacheEntries := getEnvInt("MAX_CACHE_ENTRIES", DefaultMaxCacheEntries)
	thumbnailSize := getEnvInt("THUMBNAIL_SIZE", DefaultThumbnailSize)
	thumbnailWorkers := workers.FromEnv(workers.EnvThumbnailWorkers, DefaultThumbnailWorkers, maxWorkers)
	loaderConcurrency := workers.FromEnv(workers.EnvLoaderConcurrency, DefaultLoaderConcurrency, maxWorkers)
	prewarm := getEnvBool("PREWARM", false)
	prewarmIntervalStr := getEnv("PREWARM_INTERVAL", "0")
	shutdownTimeoutStr := getEnv("SHUTDOWN_TIMEOUT", "30s")

	if thumbnailSize <= 0 || thumbnailSize > maxThumbnailSize {
		logging.Warn("  Invalid THUMBNAIL_SIZE %d, using default: %d", thumbnailSize, DefaultThumbnailSize)
		thumbnailSize = DefaultThumbnailSize
	}

	prewarmInterval, err := time.ParseDuration(prewarmIntervalStr)
	if err != nil || prewarmInterval < 0 {
		logging.Warn("  Invalid PREWARM_INTERVAL, pre-warm will run once")
		prewarmInterval = 0
	}

	shutdownTimeout, err := time.ParseDuration(shutdownTimeoutStr)
	if err != nil || shutdownTimeout <= 0 {
		logging.Warn("  Invalid SHUTDOWN_TIMEOUT, using default: 30s")
		shutdownTimeout = 30 * time.Second
	}

	logging.Info("  PICTURE_DIR:         %s", pictureDir)
	logging.Info("  CACHE_DIR:           %s", cacheDir)
	logging.Info("  PORT:                %s", port)
	logging.Info("  METRICS_ENABLED:     %v", metricsEnabled)
	logging.Info("  MAX_CACHE_ENTRIES:   %d", maxCacheEntries)
	logging.Info("  THUMBNAIL_WORKERS:   %d", thumbnailWorkers)
	logging.Info("  THUMBNAIL_SIZE:      %d", thumbnailSize)
	logging.Info("  LOADER_CONCURRENCY:  %d", loaderConcurrency)
	logging.Info("  PREWARM:             %v", prewarm)
	logging.Info("  PREWARM_INTERVAL:    %v", prewarmInterval)
	logging.Info("  VIPS_ENABLED:        %v", vipsEnabled)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", logHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	pictureDir, err = filepath.Abs(pictureDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve picture directory path: %w", err)
	}
	logging.Info("  Picture directory (absolute): %s", pictureDir)

	cacheDir, err = filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	logging.Info("  Cache directory (absolute): %s", cacheDir)

	// Pictures are mounted read-only; absence is reported, not fatal
	if err := checkDirectory(pictureDir, "picture"); err != nil {
		logging.Warn("  Picture directory issue: %v", err)
	}

	config := &Config{
		PictureDir:        pictureDir,
		CacheDir:          cacheDir,
		Port:              port,
		MetricsEnabled:    metricsEnabled,
		LogHealthChecks:   logHealthChecks,
		VipsEnabled:       vipsEnabled,
		MaxCacheEntries:   maxCacheEntries,
		ThumbnailWorkers:  thumbnailWorkers,
		ThumbnailSize:     thumbnailSize,
		LoaderConcurrency: loaderConcurrency,
		Prewarm:           prewarm,
		PrewarmInterval:   prewarmInterval,
		ShutdownTimeout:   shutdownTimeout,
		ThumbnailDir:      filepath.Join(cacheDir, "thumbnails"),
	}

	config.ThumbnailsEnabled = setupOptionalDir(config.ThumbnailDir, "thumbnails")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Picture cache:     %s", enabledString(config.CachingEnabled()))
	logging.Info("    Thumbnail store:   %s", enabledString(config.ThumbnailsEnabled))
	logging.Info("    Pre-warm:          %s", enabledString(config.Prewarm))
	logging.Info("    libvips:           %s", enabledString(config.VipsEnabled))
	logging.Info("    Metrics:           %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// loadDotEnv reads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv.
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	if !result.Configured {
		logging.Info("  GOMEMLIMIT not configured (set MEMORY_LIMIT or GOMEMLIMIT)")
		logging.Info("")
		return
	}

	logging.Info("  Source:          %s", result.Source)
	if result.ContainerLimit > 0 {
		logging.Info("  Container limit: %s", formatBytes(result.ContainerLimit))
		logging.Info("  Ratio:           %.0f%%", result.Ratio*100)
	}
	logging.Info("  GOMEMLIMIT:      %s", formatBytes(result.GoMemLimit))
	logging.Info("")
}

// LogEngineInit logs how the thumbnail engine was assembled.
func LogEngineInit(config *Config, storeEntries int, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("THUMBNAIL ENGINE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Workers:           %d", config.ThumbnailWorkers)
	logging.Info("  Thumbnail size:    %dpx", config.ThumbnailSize)
	if config.CachingEnabled() {
		logging.Info("  Picture cache:     %d entries, %d concurrent loads", config.MaxCacheEntries, config.LoaderConcurrency)
	} else {
		logging.Info("  Picture cache:     disabled, workers decode directly")
	}
	if config.ThumbnailsEnabled {
		logging.Info("  Stored thumbnails: %d", storeEntries)
	} else {
		logging.Info("  Thumbnails are not persisted (cache directory not writable)")
	}
	logging.Info("  [OK] Engine initialized in %v", duration)
}

// LogVipsInit logs the libvips startup result.
func LogVipsInit(err error) {
	if err != nil {
		logging.Warn("  libvips unavailable: %v", err)
		logging.Warn("  Falling back to pure Go decoding")
		return
	}
	logging.Info("  [OK] libvips initialized")
}

// LogPrewarmStarted logs that the background pre-warm indexer is running.
func LogPrewarmStarted(dir string, interval time.Duration) {
	if interval > 0 {
		logging.Info("  [OK] Pre-warming thumbnails under %s (rescan every %v)", dir, interval)
		return
	}
	logging.Info("  [OK] Pre-warming thumbnails under %s", dir)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Thumbnails:    http://0.0.0.0:%s/api/thumbnail/{path}", config.Port)
	logging.Info("    Stats:         http://0.0.0.0:%s/api/stats", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
    ____  __          __           ______      __        __
   / __ \/ /_  ____  / /_____     / ____/___ _/ /_____ _/ /___  ____ _
  / /_/ / __ \/ __ \/ __/ __ \   / /   / __ '/ __/ __ '/ / __ \/ __ '/
 / ____/ / / / /_/ / /_/ /_/ /  / /___/ /_/ / /_/ /_/ / / /_/ / /_/ /
/_/   /_/ /_/\____/\__/\____/   \____/\__,_/\__/\__,_/_/\____/\__, /
                                                             /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

// checkDirectory verifies path is an existing directory without creating it.
func checkDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")

	if logging.IsDebugEnabled() {
		entries, err := os.ReadDir(path)
		if err == nil {
			fileCount := 0
			dirCount := 0
			for _, e := range entries {
				if e.IsDir() {
					dirCount++
				} else {
					fileCount++
				}
			}
			logging.Debug("    Contents: %d files, %d directories (top level)", fileCount, dirCount)
		}
	}

	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
