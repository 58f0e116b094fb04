package imagesource

import (
	"errors"
	"testing"

	"photo-catalog/internal/logging"
)

func TestThumbnailWithVipsUnavailable(t *testing.T) {
	if VipsAvailable() {
		t.Skip("libvips already started in this process")
	}
	_, err := ThumbnailWithVips("any.jpg", 200, 0)
	if !errors.Is(err, ErrVipsUnavailable) {
		t.Errorf("ThumbnailWithVips() error = %v, want ErrVipsUnavailable", err)
	}
}

func TestVipsLogBridge(t *testing.T) {
	levels := []logging.LogLevel{logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError}
	seen := map[int]bool{}
	for _, l := range levels {
		threshold, handler := vipsLogBridge(l)
		if handler == nil {
			t.Fatalf("vipsLogBridge(%v) returned nil handler", l)
		}
		seen[int(threshold)] = true
	}
	if len(seen) != len(levels) {
		t.Errorf("expected a distinct libvips level per application level, got %d", len(seen))
	}
}
