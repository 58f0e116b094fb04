package imagesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // BMP format support
	_ "golang.org/x/image/tiff" // TIFF format support
	_ "golang.org/x/image/webp" // WebP format support

	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

const (
	// MaxImageDimension is the maximum width or height kept after decode.
	// Larger pictures are downscaled first.
	MaxImageDimension = 4096

	// MaxImagePixels is the maximum total pixels kept after decode.
	// A 50MP image would be ~50,000,000 pixels, which uses ~200MB in RGBA.
	MaxImagePixels = 20_000_000

	// MaxEncodedBytes caps how much of a stream is read before giving up.
	MaxEncodedBytes = 256 << 20
)

// Decoder produces full-resolution pixels for a locator.
type Decoder interface {
	Decode(ctx context.Context, locator string) (image.Image, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, locator string) (image.Image, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(ctx context.Context, locator string) (image.Image, error) {
	return f(ctx, locator)
}

// Constraints bound the size of decoded pictures.
type Constraints struct {
	MaxDimension int
	MaxPixels    int
	MaxBytes     int64
}

// DefaultConstraints returns the limits used in production.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxDimension: MaxImageDimension,
		MaxPixels:    MaxImagePixels,
		MaxBytes:     MaxEncodedBytes,
	}
}

// ImageDecoder reads a locator through an Opener and decodes it with
// EXIF auto-orientation, downscaling pictures that exceed its Constraints.
type ImageDecoder struct {
	opener      Opener
	constraints Constraints
}

// NewDecoder creates an ImageDecoder.
func NewDecoder(opener Opener, constraints Constraints) *ImageDecoder {
	return &ImageDecoder{opener: opener, constraints: constraints}
}

// Decode implements Decoder. Errors are *LocatorError or *DecodeError.
func (d *ImageDecoder) Decode(ctx context.Context, locator string) (image.Image, error) {
	rc, err := d.opener.Open(ctx, locator)
	if err != nil {
		var le *LocatorError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &LocatorError{Locator: locator, Err: err}
	}
	defer func() {
		if err := rc.Close(); err != nil {
			logging.Warn("failed to close picture stream %s: %v", locator, err)
		}
	}()

	limit := d.constraints.MaxBytes
	if limit <= 0 {
		limit = MaxEncodedBytes
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, &LocatorError{Locator: locator, Err: fmt.Errorf("read failed: %w", err)}
	}
	if int64(len(data)) > limit {
		return nil, &DecodeError{Locator: locator, Err: fmt.Errorf("picture exceeds %d bytes", limit)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return decodeBytes(locator, data, d.constraints)
}

func decodeBytes(locator string, data []byte, c Constraints) (image.Image, error) {
	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		metrics.SourceDecodesTotal.WithLabelValues("unknown").Inc()
		return nil, &DecodeError{Locator: locator, Err: err}
	}
	metrics.SourceDecodesTotal.WithLabelValues(format).Inc()

	logging.Debug("Picture %s: %s %dx%d", locator, format, config.Width, config.Height)

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Locator: locator, Err: err}
	}

	bounds := img.Bounds()
	width, height := constrain(bounds.Dx(), bounds.Dy(), c.MaxDimension, c.MaxPixels)
	if width == bounds.Dx() && height == bounds.Dy() {
		return img, nil
	}

	logging.Info("Constraining large picture %s from %dx%d to %dx%d", locator, bounds.Dx(), bounds.Dy(), width, height)
	metrics.SourceConstrainedTotal.Inc()
	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}

// constrain returns the largest size not exceeding maxDimension on either
// side nor maxPixels in total, keeping the aspect ratio. Zero limits are
// ignored.
func constrain(width, height, maxDimension, maxPixels int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}

	targetWidth, targetHeight := width, height

	if maxDimension > 0 && (width > maxDimension || height > maxDimension) {
		if width > height {
			targetWidth = maxDimension
			targetHeight = height * maxDimension / width
		} else {
			targetHeight = maxDimension
			targetWidth = width * maxDimension / height
		}
	}

	if maxPixels > 0 && targetWidth*targetHeight > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(targetWidth*targetHeight))
		targetWidth = int(float64(targetWidth) * scale)
		targetHeight = int(float64(targetHeight) * scale)
	}

	return max(targetWidth, 1), max(targetHeight, 1)
}
