package imagesource

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"photo-catalog/internal/logging"
)

// ErrVipsUnavailable is returned when libvips was not started.
var ErrVipsUnavailable = errors.New("libvips not available")

var (
	vipsMu          sync.Mutex
	vipsInitialized bool
)

// vipsLogBridge maps the application log level onto the libvips verbosity
// and returns a handler forwarding libvips messages to the application log.
// libvips filters by the returned level itself.
func vipsLogBridge(level logging.LogLevel) (vips.LogLevel, func(string, vips.LogLevel, string)) {
	var threshold vips.LogLevel
	switch level {
	case logging.LevelDebug:
		threshold = vips.LogLevelInfo
	case logging.LevelInfo:
		threshold = vips.LogLevelWarning
	case logging.LevelWarn:
		threshold = vips.LogLevelError
	default:
		threshold = vips.LogLevelCritical
	}

	log := logging.For("vips")
	return threshold, func(domain string, lvl vips.LogLevel, msg string) {
		switch lvl {
		case vips.LogLevelError, vips.LogLevelCritical:
			log.Error("%s: %s", domain, msg)
		case vips.LogLevelWarning:
			log.Warn("%s: %s", domain, msg)
		default:
			log.Debug("%s: %s", domain, msg)
		}
	}
}

// InitVips starts libvips. Call it once at startup; later calls are
// no-ops. libvips cannot be restarted after ShutdownVips.
func InitVips() error {
	vipsMu.Lock()
	defer vipsMu.Unlock()

	if vipsInitialized {
		return nil
	}

	level, handler := vipsLogBridge(logging.GetLevel())
	vips.LoggingSettings(handler, level)

	// One operation at a time keeps decode memory predictable.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips releases libvips.
func ShutdownVips() {
	vipsMu.Lock()
	defer vipsMu.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		logging.Info("libvips shutdown complete")
	}
}

// VipsAvailable reports whether InitVips has run.
func VipsAvailable() bool {
	vipsMu.Lock()
	defer vipsMu.Unlock()
	return vipsInitialized
}

// ThumbnailWithVips decodes a local file and shrinks it to fit size x size
// in one pass, honouring EXIF orientation. JPEGs are shrunk during decode,
// so full-resolution pixels never reach the Go heap. rotation is applied
// after shrinking.
func ThumbnailWithVips(path string, size int, rotation float64) (image.Image, error) {
	if !VipsAvailable() {
		return nil, ErrVipsUnavailable
	}

	logging.Debug("Loading %s with vips (target: %dx%d)", filepath.Base(path), size, size)

	ref, err := vips.NewThumbnailFromFile(path, size, size, vips.InterestingNone)
	if err != nil {
		return nil, &DecodeError{Locator: path, Err: fmt.Errorf("vips load: %w", err)}
	}
	defer ref.Close()

	buf, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        95,
		OptimizeCoding: true,
	})
	if err != nil {
		return nil, &DecodeError{Locator: path, Err: fmt.Errorf("vips export: %w", err)}
	}

	img, err := imaging.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, &DecodeError{Locator: path, Err: fmt.Errorf("decode vips output: %w", err)}
	}

	return Rotate(img, rotation), nil
}
