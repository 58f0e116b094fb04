package imagesource

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"photo-catalog/internal/filesystem"
)

// gradient returns a test picture with a gradient so resizing is visible.
func gradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func encodePicture(t *testing.T, width, height int, format string) []byte {
	t.Helper()

	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, gradient(width, height), &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(&buf, gradient(width, height))
	default:
		t.Fatalf("Unsupported test picture format: %s", format)
	}
	if err != nil {
		t.Fatalf("Failed to encode test picture: %v", err)
	}
	return buf.Bytes()
}

func writePicture(t *testing.T, dir, name string, width, height int, format string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, encodePicture(t, width, height, format), 0o644); err != nil {
		t.Fatalf("Failed to write test picture: %v", err)
	}
	return path
}

func fastOpenerConfig() OpenerConfig {
	return OpenerConfig{
		FileRetry: filesystem.RetryConfig{
			MaxRetries:     1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
		FetchRetries:        3,
		FetchInitialBackoff: time.Millisecond,
		FetchMaxBackoff:     5 * time.Millisecond,
		FetchTimeout:        5 * time.Second,
	}
}

func newTestDecoder(c Constraints) *ImageDecoder {
	return NewDecoder(NewOpener(nil, fastOpenerConfig()), c)
}

func TestDecodeLocalFiles(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		file   string
		width  int
		height int
		format string
	}{
		{"Small JPEG", "small.jpg", 64, 48, "jpeg"},
		{"Small PNG", "small.png", 30, 90, "png"},
	}

	dec := newTestDecoder(DefaultConstraints())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePicture(t, dir, tt.file, tt.width, tt.height, tt.format)

			img, err := dec.Decode(context.Background(), path)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			b := img.Bounds()
			if b.Dx() != tt.width || b.Dy() != tt.height {
				t.Errorf("Decode() size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.width, tt.height)
			}
		})
	}
}

func TestDecodeFileURL(t *testing.T) {
	path := writePicture(t, t.TempDir(), "a.png", 10, 10, "png")

	img, err := newTestDecoder(DefaultConstraints()).Decode(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("Decode(file://) error = %v", err)
	}
	if img.Bounds().Dx() != 10 {
		t.Errorf("width = %d, want 10", img.Bounds().Dx())
	}
}

func TestDecodeConstrainsLargePictures(t *testing.T) {
	path := writePicture(t, t.TempDir(), "wide.png", 400, 200, "png")

	dec := newTestDecoder(Constraints{MaxDimension: 100, MaxPixels: 1_000_000})
	img, err := dec.Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("Decode() size = %dx%d, want 100x50", b.Dx(), b.Dy())
	}
}

func TestDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.jpg")
	if err := os.WriteFile(garbage, []byte("definitely not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		locator    string
		wantKind   string
		wantTarget error
	}{
		{"Missing file", filepath.Join(dir, "missing.jpg"), "locator", fs.ErrNotExist},
		{"Empty locator", "  ", "locator", ErrEmptyLocator},
		{"Unsupported scheme", "ftp://example.com/a.jpg", "locator", ErrUnsupportedScheme},
		{"Not a picture", garbage, "decode", nil},
	}

	dec := newTestDecoder(DefaultConstraints())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dec.Decode(context.Background(), tt.locator)
			if err == nil {
				t.Fatal("Decode() expected error")
			}
			if got := ErrorKind(err); got != tt.wantKind {
				t.Errorf("ErrorKind() = %q, want %q (err: %v)", got, tt.wantKind, err)
			}
			if tt.wantTarget != nil && !errors.Is(err, tt.wantTarget) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantTarget)
			}
		})
	}
}

func TestDecodeRejectsOversizedStreams(t *testing.T) {
	path := writePicture(t, t.TempDir(), "big.png", 50, 50, "png")

	dec := newTestDecoder(Constraints{MaxBytes: 16})
	_, err := dec.Decode(context.Background(), path)

	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Decode() error = %v, want *DecodeError", err)
	}
}

func TestDecodeRemote(t *testing.T) {
	body := encodePicture(t, 20, 10, "png")

	t.Run("Success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(body)
		}))
		defer srv.Close()

		img, err := newTestDecoder(DefaultConstraints()).Decode(context.Background(), srv.URL+"/a.png")
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if img.Bounds().Dx() != 20 {
			t.Errorf("width = %d, want 20", img.Bounds().Dx())
		}
	})

	t.Run("Retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write(body)
		}))
		defer srv.Close()

		if _, err := newTestDecoder(DefaultConstraints()).Decode(context.Background(), srv.URL+"/a.png"); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if got := calls.Load(); got != 3 {
			t.Errorf("server calls = %d, want 3", got)
		}
	})

	t.Run("Does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.NotFound(w, r)
		}))
		defer srv.Close()

		_, err := newTestDecoder(DefaultConstraints()).Decode(context.Background(), srv.URL+"/missing.png")
		var le *LocatorError
		if !errors.As(err, &le) {
			t.Fatalf("Decode() error = %v, want *LocatorError", err)
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("server calls = %d, want 1", got)
		}
	})

	t.Run("Gives up after retries", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestDecoder(DefaultConstraints()).Decode(context.Background(), srv.URL+"/a.png")
		if ErrorKind(err) != "locator" {
			t.Fatalf("Decode() error = %v, want locator error", err)
		}
		if got := calls.Load(); got != 4 {
			t.Errorf("server calls = %d, want 4", got)
		}
	})
}

func TestConstrain(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		maxDim       int
		maxPixels    int
		wantW, wantH int
	}{
		{"Within limits", 800, 600, 4096, 20_000_000, 800, 600},
		{"Landscape over dimension", 8000, 4000, 4096, 0, 4096, 2048},
		{"Portrait over dimension", 3000, 6000, 3000, 0, 1500, 3000},
		{"Over pixel budget", 2000, 2000, 0, 1_000_000, 1000, 1000},
		{"No limits", 9000, 9000, 0, 0, 9000, 9000},
		{"Degenerate", 0, 10, 100, 100, 0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := constrain(tt.w, tt.h, tt.maxDim, tt.maxPixels)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("constrain(%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}
