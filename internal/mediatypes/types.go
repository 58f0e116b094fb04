package mediatypes

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Format identifies a picture encoding.
type Format string

const (
	// FormatJPEG is baseline or progressive JPEG.
	FormatJPEG Format = "jpeg"
	// FormatPNG is PNG.
	FormatPNG Format = "png"
	// FormatGIF is GIF; only the first frame is used.
	FormatGIF Format = "gif"
	// FormatWebP is lossy or lossless WebP.
	FormatWebP Format = "webp"
	// FormatBMP is Windows bitmap.
	FormatBMP Format = "bmp"
	// FormatTIFF is TIFF.
	FormatTIFF Format = "tiff"
	// FormatHEIF is HEIC/HEIF, decodable only through libvips.
	FormatHEIF Format = "heif"
	// FormatUnknown is anything else.
	FormatUnknown Format = "unknown"
)

// PictureExtensions maps lowercase file extensions to their format.
var PictureExtensions = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".jpe":  FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".webp": FormatWebP,
	".bmp":  FormatBMP,
	".tiff": FormatTIFF,
	".tif":  FormatTIFF,
	".heic": FormatHEIF,
	".heif": FormatHEIF,
}

// MimeTypes maps formats to their MIME types.
var MimeTypes = map[Format]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatWebP: "image/webp",
	FormatBMP:  "image/bmp",
	FormatTIFF: "image/tiff",
	FormatHEIF: "image/heif",
}

// NeedsVips reports whether the pure Go decoders cannot read f.
func (f Format) NeedsVips() bool {
	return f == FormatHEIF
}

// MimeType returns the MIME type of f, or "application/octet-stream".
func (f Format) MimeType() string {
	if mime, ok := MimeTypes[f]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsRemote reports whether locator is an http or https URL.
func IsRemote(locator string) bool {
	lower := strings.ToLower(locator)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Ext returns the lowercase extension of a locator. For URLs the query
// and fragment are ignored.
func Ext(locator string) string {
	if IsRemote(locator) {
		u, err := url.Parse(locator)
		if err != nil {
			return ""
		}
		return strings.ToLower(path.Ext(u.Path))
	}
	return strings.ToLower(filepath.Ext(locator))
}

// FormatOf returns the format implied by a locator's extension.
func FormatOf(locator string) Format {
	if f, ok := PictureExtensions[Ext(locator)]; ok {
		return f
	}
	return FormatUnknown
}

// IsPicture reports whether locator names a supported picture.
func IsPicture(locator string) bool {
	return FormatOf(locator) != FormatUnknown
}
